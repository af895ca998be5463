package policy

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/objectrl/pkg/ml/layers/mlp"
	"github.com/gomlx/objectrl/pkg/ml/layers/objects"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

var mlpObservations = [][]float32{
	{1, 2, 3},
	{-1, 0, 0.5},
	{0, 0, 0},
}

func TestMlpPolicy(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	p, err := NewMlpPolicy(backend, ctx, MlpConfig{InputSize: 3, OutputSize: 2, HiddenSizes: []int{8}})
	require.NoError(t, err)

	actions, err := p.GetActions(mlpObservations)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for _, action := range actions {
		assert.Len(t, action, 2)
	}

	// A different batch size reuses the same weights.
	action, info, err := p.GetAction(mlpObservations[1])
	require.NoError(t, err)
	assert.Empty(t, info)
	assert.InDeltaSlice(t, actions[1], action, 1e-6)

	again, err := p.GetActions(mlpObservations)
	require.NoError(t, err)
	assert.Equal(t, actions, again)

	_, err = p.GetActions([][]float32{{1, 2}})
	assert.True(t, errors.Is(err, objects.ErrShape))
	_, _, err = p.GetAction([]float32{1, 2, 3, 4})
	assert.True(t, errors.Is(err, objects.ErrShape))
	_, err = p.GetActions(nil)
	assert.True(t, errors.Is(err, objects.ErrShape))

	_, err = NewMlpPolicy(backend, context.New(), MlpConfig{InputSize: 3, OutputSize: 0})
	assert.Error(t, err)
	_, err = NewMlpPolicy(backend, context.New(), MlpConfig{InputSize: 3, OutputSize: 1, HiddenSizes: []int{0}})
	assert.Error(t, err)
}

func TestTanhMlpPolicy(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	ctx.SetParams(map[string]any{mlp.ParamInitW: 1.0})
	p, err := NewTanhMlpPolicy(backend, ctx, MlpConfig{InputSize: 3, OutputSize: 4, HiddenSizes: []int{16, 16}})
	require.NoError(t, err)
	actions, err := p.GetActions([][]float32{{100, -200, 300}, {1, 1, 1}})
	require.NoError(t, err)
	for _, action := range actions {
		for _, value := range action {
			assert.LessOrEqual(t, math.Abs(float64(value)), 1.0)
		}
	}
}

func TestFixedNormalizer(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	n, err := NewFixedNormalizer(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, n.Mean())
	assert.Equal(t, []float32{1, 1}, n.Std())

	require.NoError(t, n.Update([][]float32{{1, 10}, {3, 10}}))
	assert.InDeltaSlice(t, []float32{2, 10}, n.Mean(), 1e-6)
	assert.InDelta(t, 1.0, n.Std()[0], 1e-6)
	assert.InDelta(t, 1e-8, n.Std()[1], 1e-9)
	require.NoError(t, n.Update([][]float32{{2, 10}}))
	assert.InDeltaSlice(t, []float32{2, 10}, n.Mean(), 1e-6)
	assert.InDelta(t, math.Sqrt(2.0/3.0), n.Std()[0], 1e-6)

	require.NoError(t, n.SetMean([]float32{1, -1}))
	require.NoError(t, n.SetStd([]float32{2, 0.5}))
	n.WithClipRange(5)
	normalized := context.MustExecOnce(backend, ctx, func(ctx *context.Context, obs *Node) *Node {
		return n.Normalize(ctx, obs)
	}, [][]float32{{3, 0}, {-1, 10}})
	assert.Equal(t, [][]float32{{1, 2}, {-1, 5}}, normalized.Value())

	assert.True(t, errors.Is(n.SetMean([]float32{1}), objects.ErrShape))
	assert.True(t, errors.Is(n.Update([][]float32{{1, 2, 3}}), objects.ErrShape))
	_, err = NewFixedNormalizer(ctx, 0)
	assert.Error(t, err)
}

func TestMlpPolicyNormalizer(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	n, err := NewFixedNormalizer(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, n.SetMean([]float32{1, 2, 3}))
	require.NoError(t, n.SetStd([]float32{2, 2, 2}))

	normalizedPolicy, err := NewMlpPolicy(backend, ctx, MlpConfig{InputSize: 3, OutputSize: 2, HiddenSizes: []int{8}, Normalizer: n})
	require.NoError(t, err)
	plainPolicy, err := NewMlpPolicy(backend, ctx, MlpConfig{InputSize: 3, OutputSize: 2, HiddenSizes: []int{8}})
	require.NoError(t, err)

	got, err := normalizedPolicy.GetActions([][]float32{{3, 4, 5}})
	require.NoError(t, err)
	want, err := plainPolicy.GetActions([][]float32{{1, 1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0], got[0], 1e-6)
}

func taskLayout(t *testing.T) *objects.Layout {
	layout, err := objects.NewLayout(11, []int{1, 5, 7, 9}, []int{0, 1, 2, 2}, 2)
	require.NoError(t, err)
	return layout
}

var objectObservations = [][]float32{
	{0, 0.1, 0.2, 0.3, 0.4, 1, 2, 3, 4, 5, 6},
	{1, -1, 0, 1, 0, 0.5, 0.5, -2, 1, 3, -3},
}

func TestObjectPolicy(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	layout := taskLayout(t)
	p, err := NewObjectPolicy(backend, ctx, layout, 3, nil)
	require.NoError(t, err)

	actions, err := p.GetActions(objectObservations)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Len(t, actions[0], 3)

	action, info, err := p.GetAction(objectObservations[1])
	require.NoError(t, err)
	assert.InDeltaSlice(t, actions[1], action, 1e-6)
	weights, ok := info[InfoAttentionWeights].([]float32)
	require.True(t, ok)
	require.Len(t, weights, 3)
	var sum float64
	for _, w := range weights {
		sum += float64(w)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	attention, err := p.Attention(objectObservations)
	require.NoError(t, err)
	assert.Len(t, attention, 2)
	assert.InDeltaSlice(t, weights, attention[1], 1e-6)

	// Task id out of range, and wrong width.
	for _, id := range []float32{2, float32(math.Inf(1)), float32(math.NaN()), 1e20} {
		badTask := append([]float32{id}, objectObservations[0][1:]...)
		_, _, err = p.GetAction(badTask)
		assert.Truef(t, errors.Is(err, objects.ErrShape), "task id %g should be rejected", id)
	}
	_, err = p.GetActions([][]float32{{0, 1, 2}})
	assert.True(t, errors.Is(err, objects.ErrShape))

	_, err = NewObjectPolicy(backend, ctx, nil, 3, nil)
	assert.True(t, errors.Is(err, objects.ErrConfiguration))
}

func TestObjectPolicyKeepsTaskColumn(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	layout := taskLayout(t)

	// The normalizer would map any task id to a negative value, but the task column is not normalized.
	n, err := NewFixedNormalizer(ctx, layout.InputSize())
	require.NoError(t, err)
	mean := make([]float32, layout.InputSize())
	mean[0] = 100
	require.NoError(t, n.SetMean(mean))

	normalizedPolicy, err := NewObjectPolicy(backend, ctx, layout, 2, n)
	require.NoError(t, err)
	plainPolicy, err := NewObjectPolicy(backend, ctx, layout, 2, nil)
	require.NoError(t, err)

	got, err := normalizedPolicy.GetActions(objectObservations)
	require.NoError(t, err)
	want, err := plainPolicy.GetActions(objectObservations)
	require.NoError(t, err)
	for b := range want {
		assert.InDeltaSlice(t, want[b], got[b], 1e-6)
	}
}
