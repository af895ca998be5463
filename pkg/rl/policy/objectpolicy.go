// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/objectrl/pkg/ml/layers/objects"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ObjectPolicy is a deterministic policy implemented by a FullObjectMlp (see objects.NewFull), with
// task-conditioned attention over the objects of the observation.
type ObjectPolicy struct {
	backend    backends.Backend
	ctx        *context.Context
	layout     *objects.Layout
	outputSize int
	normalizer Normalizer
	exec       *context.Exec
}

var _ Policy = (*ObjectPolicy)(nil)

// NewObjectPolicy creates an object policy with the weights in ctx, for observations segmented by layout.
//
// The normalizer is optional (it can be nil). If the layout has a task column, the task id is never normalized.
func NewObjectPolicy(backend backends.Backend, ctx *context.Context, layout *objects.Layout, outputSize int,
	normalizer Normalizer) (*ObjectPolicy, error) {
	if layout == nil {
		return nil, errors.Wrap(objects.ErrConfiguration, "ObjectPolicy requires a layout")
	}
	if outputSize <= 0 {
		return nil, errors.Errorf("ObjectPolicy requires outputSize > 0, got %d", outputSize)
	}
	p := &ObjectPolicy{
		backend:    backend,
		ctx:        ctx,
		layout:     layout,
		outputSize: outputSize,
		normalizer: normalizer,
	}
	var err error
	p.exec, err = context.NewExec(backend, inferenceContext(ctx), func(ctx *context.Context, obs *Node) (action, weights *Node) {
		ctx.SetTraining(obs.Graph(), false)
		result := p.Forward(ctx, obs)
		return result.Action, result.Weights
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create ObjectPolicy executor")
	}
	klog.V(1).Infof("policy: ObjectPolicy in scope %q with %d objects, %d classes, %d tasks, output size %d",
		ctx.Scope(), layout.NumObjects(), layout.NumClasses(), layout.NumTasks(), outputSize)
	return p, nil
}

// Layout of the observations.
func (p *ObjectPolicy) Layout() *objects.Layout { return p.layout }

// Context returns the context holding the weights of the policy.
func (p *ObjectPolicy) Context() *context.Context { return p.ctx }

// Forward builds the policy network for obs shaped `[batchSize, layout.InputSize()]`.
func (p *ObjectPolicy) Forward(ctx *context.Context, obs *Node) *objects.Result {
	p.layout.CheckObservation(obs)
	if p.normalizer != nil {
		normalized := p.normalizer.Normalize(ctx, obs)
		if p.layout.HasTaskColumn() {
			task := Slice(obs, AxisRange(), AxisElem(0))
			features := Slice(normalized, AxisRange(), AxisRange(1, p.layout.InputSize()))
			normalized = Concatenate([]*Node{task, features}, -1)
		}
		obs = normalized
	}
	return objects.NewFull(ctx, p.layout, obs, p.outputSize).Done()
}

// run validates obs on the host and returns the actions and attention weights.
func (p *ObjectPolicy) run(obs [][]float32) (actions, weights [][]float32, err error) {
	if err = checkWidths(obs, p.layout.InputSize()); err != nil {
		return
	}
	if err = p.layout.CheckTaskIDs(obs); err != nil {
		return
	}
	err = exceptions.TryCatch[error](func() {
		actionsT, weightsT := p.exec.MustExec2(obs)
		actions, weights = tensorToRows(actionsT), tensorToRows(weightsT)
	})
	if err != nil {
		err = errors.WithMessagef(err, "ObjectPolicy failed to compute actions")
	}
	return
}

// GetActions implements Policy.
func (p *ObjectPolicy) GetActions(obs [][]float32) ([][]float32, error) {
	actions, _, err := p.run(obs)
	return actions, err
}

// Attention returns the attention weight of each object, for each observation: shaped `[len(obs)][NumObjects]`.
func (p *ObjectPolicy) Attention(obs [][]float32) ([][]float32, error) {
	_, weights, err := p.run(obs)
	return weights, err
}

// GetAction implements Policy. The returned Info holds the attention weights of the objects
// under the key InfoAttentionWeights.
func (p *ObjectPolicy) GetAction(obs []float32) ([]float32, Info, error) {
	actions, weights, err := p.run([][]float32{obs})
	if err != nil {
		return nil, nil, err
	}
	return actions[0], Info{InfoAttentionWeights: weights[0]}, nil
}
