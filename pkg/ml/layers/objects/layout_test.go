package objects

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	// Task id, 4-feature agent, a target and two enemies with 2 features each.
	layout, err := NewLayout(11, []int{1, 5, 7, 9}, []int{0, 1, 2, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, 11, layout.InputSize())
	assert.Equal(t, 3, layout.NumTasks())
	assert.True(t, layout.HasTaskColumn())
	assert.Equal(t, 2, layout.NumClasses())
	assert.Equal(t, 3, layout.NumObjects())
	assert.Equal(t, 4, layout.AgentSize())
	assert.Equal(t, 2, layout.ObjectSize())
	assert.Equal(t, Slot{1, 5}, layout.AgentSlot())
	assert.Equal(t, Slot{5, 7}, layout.ObjectSlot(0))
	assert.Equal(t, Slot{9, 11}, layout.ObjectSlot(2))
	assert.Equal(t, 0, layout.ObjectClass(0))
	assert.Equal(t, 1, layout.ObjectClass(1))
	assert.Equal(t, 1, layout.ObjectClass(2))

	// No task column.
	layout, err = NewLayout(6, []int{0, 2, 4}, []int{0, 1, 1}, 0)
	require.NoError(t, err)
	assert.False(t, layout.HasTaskColumn())
	assert.Equal(t, 1, layout.NumClasses())
	assert.Equal(t, 2, layout.NumObjects())
}

func TestNewLayoutErrors(t *testing.T) {
	testCases := []struct {
		name                       string
		inputSize                  int
		objectIndex, objectClasses []int
		numTasks                   int
	}{
		{"negative tasks", 10, []int{0, 4, 6}, []int{0, 1, 2}, -1},
		{"length mismatch", 10, []int{0, 4, 6}, []int{0, 1}, 0},
		{"degenerate classes", 10, []int{0, 4, 6, 8}, []int{0, 0, 0, 0}, 0},
		{"no objects", 10, []int{0}, []int{0}, 0},
		{"task column missing", 10, []int{0, 4, 6}, []int{0, 1, 2}, 2},
		{"task column unexpected", 10, []int{1, 4, 6}, []int{0, 1, 2}, 0},
		{"not increasing", 10, []int{0, 6, 4}, []int{0, 1, 2}, 0},
		{"beyond input", 6, []int{0, 4, 6}, []int{0, 1, 2}, 0},
		{"agent not first", 10, []int{0, 4, 6, 8}, []int{1, 0, 2, 2}, 0},
		{"non contiguous labels", 10, []int{0, 4, 6, 8}, []int{0, 1, 3, 3}, 0},
		{"unequal object widths", 11, []int{0, 4, 7}, []int{0, 1, 2}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLayout(tc.inputSize, tc.objectIndex, tc.objectClasses, tc.numTasks)
			require.Error(t, err)
			assert.Truef(t, errors.Is(err, ErrConfiguration), "expected ErrConfiguration, got %v", err)
		})
	}
}

func TestLayoutFromIndexToObject(t *testing.T) {
	layout := DefaultObjectLayout()
	assert.Equal(t, 10, layout.InputSize())
	assert.False(t, layout.HasTaskColumn())
	assert.Equal(t, Slot{0, 4}, layout.AgentSlot())
	assert.Equal(t, Slot{4, 6}, layout.ObjectSlot(0))
	assert.Equal(t, Slot{6, 8}, layout.ObjectSlot(1))
	assert.Equal(t, Slot{8, 10}, layout.ObjectSlot(2))
	assert.Equal(t, 2, layout.NumClasses())
	assert.Equal(t, []int{0, 1, 1}, []int{layout.ObjectClass(0), layout.ObjectClass(1), layout.ObjectClass(2)})

	for name, indexToObject := range map[string][]int{
		"empty":          nil,
		"not from agent": {1, 1, 0, 0},
		"skips object":   {0, 0, 2, 2},
		"not contiguous": {0, 0, 1, 2, 1},
	} {
		_, err := LayoutFromIndexToObject(indexToObject, []string{"agent", "a", "b"})
		assert.Truef(t, errors.Is(err, ErrConfiguration), "%s: expected ErrConfiguration, got %v", name, err)
	}

	_, err := LayoutFromIndexToObject([]int{0, 1, 1}, []string{"agent", "agent"})
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = LayoutFromIndexToObject([]int{0, 1, 1}, []string{"agent", "target", "enemy"})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCheckTaskIDs(t *testing.T) {
	layout, err := NewLayout(5, []int{1, 3}, []int{0, 1}, 2)
	require.NoError(t, err)
	require.NoError(t, layout.CheckTaskIDs([][]float32{{0, 1, 1, 1, 1}, {1, 0, 0, 0, 0}}))
	err = layout.CheckTaskIDs([][]float32{{0, 1, 1, 1, 1}, {2, 0, 0, 0, 0}})
	assert.True(t, errors.Is(err, ErrShape))
	err = layout.CheckTaskIDs([][]float32{{-1, 1, 1, 1, 1}})
	assert.True(t, errors.Is(err, ErrShape))

	// Fractional ids are truncated, like in the graph.
	require.NoError(t, layout.CheckTaskIDs([][]float32{{1.5, 1, 1, 1, 1}}))
	for _, id := range []float32{2.5, float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN()), 1e20, -1e20} {
		err = layout.CheckTaskIDs([][]float32{{id, 1, 1, 1, 1}})
		assert.Truef(t, errors.Is(err, ErrShape), "task id %g should be rejected", id)
	}

	require.NoError(t, DefaultObjectLayout().CheckTaskIDs([][]float32{{-5}}))
}
