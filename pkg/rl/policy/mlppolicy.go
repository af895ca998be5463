// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/objectrl/pkg/ml/layers/mlp"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MlpConfig configures an MlpPolicy.
type MlpConfig struct {
	// InputSize is the number of features of the observations.
	InputSize int

	// OutputSize is the size of the actions.
	OutputSize int

	// HiddenSizes of the MLP. If nil, the mlp.ParamHiddenSizes hyperparameter is used.
	HiddenSizes []int

	// OutputActivation applied to the actions. Zero value is activations.TypeNone (identity).
	OutputActivation activations.Type

	// LayerNorm enables layer normalization in the hidden layers.
	LayerNorm bool

	// Normalizer, if set, is applied to the observations before the MLP.
	Normalizer Normalizer
}

// MlpPolicy is a deterministic policy implemented by an MLP.
type MlpPolicy struct {
	backend backends.Backend
	ctx     *context.Context
	config  MlpConfig
	exec    *context.Exec
}

var _ Policy = (*MlpPolicy)(nil)

// NewMlpPolicy creates an MLP policy with the weights in ctx.
//
// Variables that don't exist yet are created (and initialized) on the first call to GetActions.
// Use Forward with the same ctx to train it.
func NewMlpPolicy(backend backends.Backend, ctx *context.Context, config MlpConfig) (*MlpPolicy, error) {
	if config.InputSize <= 0 || config.OutputSize <= 0 {
		return nil, errors.Errorf("MlpPolicy requires InputSize and OutputSize > 0, got %d and %d",
			config.InputSize, config.OutputSize)
	}
	for _, size := range config.HiddenSizes {
		if size <= 0 {
			return nil, errors.Errorf("MlpPolicy hidden sizes must be > 0, got %v", config.HiddenSizes)
		}
	}
	p := &MlpPolicy{backend: backend, ctx: ctx, config: config}
	var err error
	p.exec, err = context.NewExec(backend, inferenceContext(ctx), func(ctx *context.Context, obs *Node) *Node {
		ctx.SetTraining(obs.Graph(), false)
		return p.Forward(ctx, obs)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create MlpPolicy executor")
	}
	klog.V(1).Infof("policy: MlpPolicy in scope %q with input size %d, hidden sizes %v, output size %d (%s)",
		ctx.Scope(), config.InputSize, config.HiddenSizes, config.OutputSize, config.OutputActivation)
	return p, nil
}

// Config returns the configuration of the policy.
func (p *MlpPolicy) Config() MlpConfig { return p.config }

// Context returns the context holding the weights of the policy.
func (p *MlpPolicy) Context() *context.Context { return p.ctx }

// Forward builds the policy network for obs shaped `[batchSize, InputSize]` and returns the actions,
// shaped `[batchSize, OutputSize]`.
func (p *MlpPolicy) Forward(ctx *context.Context, obs *Node) *Node {
	if obs.Rank() != 2 || obs.Shape().Dimensions[1] != p.config.InputSize {
		exceptions.Panicf("MlpPolicy: expected observations shaped [batch_size, %d], got %s",
			p.config.InputSize, obs.Shape())
	}
	if p.config.Normalizer != nil {
		obs = p.config.Normalizer.Normalize(ctx, obs)
	}
	network := mlp.New(ctx, obs, p.config.OutputSize).
		OutputActivation(p.config.OutputActivation).
		LayerNorm(p.config.LayerNorm)
	if p.config.HiddenSizes != nil {
		network.HiddenSizes(p.config.HiddenSizes...)
	}
	return network.Done()
}

// GetActions implements Policy.
func (p *MlpPolicy) GetActions(obs [][]float32) ([][]float32, error) {
	if err := checkWidths(obs, p.config.InputSize); err != nil {
		return nil, err
	}
	var actions [][]float32
	err := exceptions.TryCatch[error](func() {
		actions = tensorToRows(p.exec.MustExec1(obs))
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "MlpPolicy failed to compute actions")
	}
	return actions, nil
}

// GetAction implements Policy. The returned Info is empty.
func (p *MlpPolicy) GetAction(obs []float32) ([]float32, Info, error) {
	actions, err := p.GetActions([][]float32{obs})
	if err != nil {
		return nil, nil, err
	}
	return actions[0], Info{}, nil
}

// TanhMlpPolicy is an MlpPolicy whose actions are bounded to (-1, 1) by a tanh.
type TanhMlpPolicy struct {
	*MlpPolicy
}

// NewTanhMlpPolicy creates an MlpPolicy with the output activation set to tanh, overriding config.OutputActivation.
func NewTanhMlpPolicy(backend backends.Backend, ctx *context.Context, config MlpConfig) (*TanhMlpPolicy, error) {
	config.OutputActivation = activations.TypeTanh
	p, err := NewMlpPolicy(backend, ctx, config)
	if err != nil {
		return nil, err
	}
	return &TanhMlpPolicy{p}, nil
}

// tensorToRows converts a float32 tensor shaped `[batchSize, n]` to rows.
func tensorToRows(t *tensors.Tensor) [][]float32 {
	return t.Value().([][]float32)
}
