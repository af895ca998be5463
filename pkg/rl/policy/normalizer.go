// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package policy

import (
	"math"
	"slices"
	"sync"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/objectrl/pkg/ml/layers/objects"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Normalizer transforms observations before they are fed to a network.
type Normalizer interface {
	// Normalize returns the normalized observations, with the same shape as obs.
	Normalize(ctx *context.Context, obs *Node) *Node
}

// NormalizerScope is the scope, under the policy context, of the FixedNormalizer variables.
const NormalizerScope = "obs_normalizer"

// FixedNormalizer normalizes each feature with a fixed mean and standard deviation: `(obs-mean)/std`,
// optionally clipped.
//
// The statistics are kept on the host, and mirrored in non-trainable variables, so they are saved
// along with the model. They are set explicitly (SetMean, SetStd) or accumulated from batches of
// observations (Update).
type FixedNormalizer struct {
	mu        sync.Mutex
	size      int
	eps, clip float64

	count      float64
	sum, sumSq []float64
	mean, std  []float32
	meanVar    *context.Variable
	stdVar     *context.Variable
}

// NewFixedNormalizer creates the normalizer variables in the NormalizerScope of ctx, for observations with size features.
// It starts with mean 0 and std 1, that is, as the identity.
//
// If the variables already exist (e.g. loaded from a checkpoint), their values are used instead.
func NewFixedNormalizer(ctx *context.Context, size int) (*FixedNormalizer, error) {
	if size <= 0 {
		return nil, errors.Errorf("normalizer size must be > 0, got %d", size)
	}
	n := &FixedNormalizer{
		size:  size,
		eps:   1e-8,
		clip:  math.Inf(1),
		sum:   make([]float64, size),
		sumSq: make([]float64, size),
		mean:  make([]float32, size),
		std:   make([]float32, size),
	}
	for ii := range n.std {
		n.std[ii] = 1
	}
	ctx = ctx.In(NormalizerScope).Checked(false)
	n.meanVar = ctx.VariableWithValue("mean", slices.Clone(n.mean)).SetTrainable(false)
	n.stdVar = ctx.VariableWithValue("std", slices.Clone(n.std)).SetTrainable(false)
	if value, err := n.meanVar.Value(); err == nil && value != nil && value.Shape().Size() == size {
		n.mean = tensors.MustCopyFlatData[float32](value)
	}
	if value, err := n.stdVar.Value(); err == nil && value != nil && value.Shape().Size() == size {
		n.std = tensors.MustCopyFlatData[float32](value)
	}
	return n, nil
}

// WithEpsilon sets the minimum standard deviation. Default is 1e-8.
func (n *FixedNormalizer) WithEpsilon(eps float64) *FixedNormalizer {
	n.eps = eps
	return n
}

// WithClipRange clips the normalized values to [-clip, clip]. Default is no clipping.
func (n *FixedNormalizer) WithClipRange(clip float64) *FixedNormalizer {
	n.clip = clip
	return n
}

// Size is the number of features normalized.
func (n *FixedNormalizer) Size() int { return n.size }

// Normalize implements Normalizer.
func (n *FixedNormalizer) Normalize(_ *context.Context, obs *Node) *Node {
	g := obs.Graph()
	if obs.Shape().Dimensions[obs.Rank()-1] != n.size {
		panic(errors.Wrapf(objects.ErrShape, "normalizer configured for %d features, got observations shaped %s",
			n.size, obs.Shape()))
	}
	mean := ConvertDType(n.meanVar.ValueGraph(g), obs.DType())
	std := ConvertDType(n.stdVar.ValueGraph(g), obs.DType())
	normalized := Div(Sub(obs, ExpandLeftToRank(mean, obs.Rank())), ExpandLeftToRank(MaxScalar(std, n.eps), obs.Rank()))
	if !math.IsInf(n.clip, 1) {
		normalized = ClipScalar(normalized, -n.clip, n.clip)
	}
	return normalized
}

// Update accumulates the statistics of a batch of observations, and updates the mean and standard
// deviation with all observations seen so far.
func (n *FixedNormalizer) Update(batch [][]float32) error {
	if err := checkWidths(batch, n.size); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, row := range batch {
		for ii, value := range row {
			v := float64(value)
			n.sum[ii] += v
			n.sumSq[ii] += v * v
		}
	}
	n.count += float64(len(batch))
	mean := make([]float32, n.size)
	std := make([]float32, n.size)
	for ii := range mean {
		m := n.sum[ii] / n.count
		variance := max(n.sumSq[ii]/n.count-m*m, n.eps*n.eps)
		mean[ii] = float32(m)
		std[ii] = float32(math.Sqrt(variance))
	}
	klog.V(2).Infof("policy: normalizer updated with %d observations, %g in total", len(batch), n.count)
	return n.setLocked(mean, std)
}

// SetMean sets the mean of each feature.
func (n *FixedNormalizer) SetMean(mean []float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setLocked(mean, n.std)
}

// SetStd sets the standard deviation of each feature.
func (n *FixedNormalizer) SetStd(std []float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setLocked(n.mean, std)
}

// Mean returns a copy of the current mean of each feature.
func (n *FixedNormalizer) Mean() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.mean)
}

// Std returns a copy of the current standard deviation of each feature.
func (n *FixedNormalizer) Std() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.std)
}

func (n *FixedNormalizer) setLocked(mean, std []float32) error {
	if len(mean) != n.size || len(std) != n.size {
		return errors.Wrapf(objects.ErrShape, "normalizer has %d features, got mean with %d and std with %d",
			n.size, len(mean), len(std))
	}
	if err := n.meanVar.SetValue(tensors.FromValue(slices.Clone(mean))); err != nil {
		return errors.WithMessagef(err, "failed to set normalizer mean")
	}
	if err := n.stdVar.SetValue(tensors.FromValue(slices.Clone(std))); err != nil {
		return errors.WithMessagef(err, "failed to set normalizer std")
	}
	n.mean = slices.Clone(mean)
	n.std = slices.Clone(std)
	return nil
}
