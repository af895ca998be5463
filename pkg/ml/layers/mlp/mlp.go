// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mlp implements the multi-layer perceptron (MLP) used as the base block of policies and
// value functions: a chain of affine layers, each followed by a hidden activation, and a final
// affine layer followed by a configurable output activation.
//
// Hidden weights are initialized with FanInUniform, hidden biases with a constant (0.1 by default)
// and the output layer with small uniform values in [-initW, initW] (3e-3 by default), which keeps
// the initial outputs of a policy close to zero.
//
// E.g.: a value function Q(s, a) over a state and an action:
//
//	func QFunction(ctx *context.Context, state, action *Node) *Node {
//		return mlp.NewFlatten(ctx.In("qf"), []*Node{state, action}, 1).
//			HiddenSizes(256, 256).
//			Done()
//	}
package mlp

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

const (
	// ParamHiddenSizes is the hyperparameter with the widths of the hidden layers.
	// The default is no hidden layers ([]int).
	ParamHiddenSizes = "mlp_hidden_sizes"

	// ParamActivation is the hyperparameter with the activation applied after each hidden layer.
	// The default is "relu" (string).
	ParamActivation = "mlp_activation"

	// ParamOutputActivation is the hyperparameter with the activation applied to the output.
	// The default is "none" (string), the identity.
	ParamOutputActivation = "mlp_output_activation"

	// ParamLayerNorm is the hyperparameter that enables layer normalization on all hidden layers but the last.
	// The default is false (bool).
	ParamLayerNorm = "mlp_layer_norm"

	// ParamInitW is the hyperparameter with the half-width of the uniform range used to initialize the output layer.
	// The default is 3e-3 (float64).
	ParamInitW = "mlp_init_w"

	// ParamBiasInit is the hyperparameter with the constant used to initialize the hidden biases.
	// The default is 0.1 (float64).
	ParamBiasInit = "mlp_bias_init"
)

// DenseScope is the scope, under each layer scope (hidden_0, ..., output), of the layer "weights" and "biases".
const DenseScope = "dense"

// Config is created with New and can be configured with its methods, or simply setting the corresponding
// hyperparameters in the context.
type Config struct {
	ctx                          *context.Context
	input                        *Node
	outputSize                   int
	hiddenSizes                  []int
	activation, outputActivation activations.Type
	layerNorm                    bool
	initW, biasInit              float64

	hiddenInitializer                  context.VariableInitializer
	outputWeightsInit, outputBiasesInit context.VariableInitializer
}

// New creates a configuration for an MLP on input, with outputSize output units.
// Configure it with its methods and call Done to add the computation to the graph.
//
// The input is expected to have shape `[<batch axes...>, features]` (rank >= 2), and the output will have
// shape `[<batch axes...>, outputSize]`. The same weights are applied to every element of the batch axes,
// so an input shaped `[batchSize, numObjects, features]` applies one shared network to every object.
//
// Defaults are read from the context hyperparameters, see the Param* constants.
func New(ctx *context.Context, input *Node, outputSize int) *Config {
	if input.Rank() < 2 {
		exceptions.Panicf("mlp: input must be rank at least 2, got input.shape=%s", input.Shape())
	}
	if outputSize <= 0 {
		exceptions.Panicf("mlp: outputSize must be > 0, got %d", outputSize)
	}
	c := &Config{
		ctx:              ctx,
		input:            input,
		outputSize:       outputSize,
		hiddenSizes:      context.GetParamOr(ctx, ParamHiddenSizes, []int(nil)),
		activation:       activations.FromName(context.GetParamOr(ctx, ParamActivation, "relu")),
		outputActivation: activations.FromName(context.GetParamOr(ctx, ParamOutputActivation, "none")),
		layerNorm:        context.GetParamOr(ctx, ParamLayerNorm, false),
		initW:            context.GetParamOr(ctx, ParamInitW, 3e-3),
		biasInit:         context.GetParamOr(ctx, ParamBiasInit, 0.1),
	}
	c.HiddenSizes(c.hiddenSizes...)
	return c
}

// NewFlatten creates an MLP configuration over the concatenation of inputs on their last axis.
// All inputs must have the same batch axes.
//
// It is used when a state and an action, or multiple observation streams, must be fused.
func NewFlatten(ctx *context.Context, inputs []*Node, outputSize int) *Config {
	if len(inputs) == 0 {
		exceptions.Panicf("mlp: NewFlatten requires at least one input")
	}
	if len(inputs) == 1 {
		return New(ctx, inputs[0], outputSize)
	}
	return New(ctx, Concatenate(inputs, -1), outputSize)
}

// HiddenSizes sets the widths of the hidden layers, in order. No sizes means a single affine layer.
//
// The default can be configured with ParamHiddenSizes.
func (c *Config) HiddenSizes(sizes ...int) *Config {
	for _, size := range sizes {
		if size <= 0 {
			exceptions.Panicf("mlp: hidden sizes must be > 0, got %v", sizes)
		}
	}
	c.hiddenSizes = sizes
	return c
}

// Activation sets the activation applied after each hidden layer. Default is relu.
func (c *Config) Activation(activation activations.Type) *Config {
	c.activation = activation
	return c
}

// OutputActivation sets the activation applied to the last layer. Default is activations.TypeNone (identity).
func (c *Config) OutputActivation(activation activations.Type) *Config {
	c.outputActivation = activation
	return c
}

// LayerNorm enables a layer normalization before the activation of every hidden layer except the last one.
func (c *Config) LayerNorm(useLayerNorm bool) *Config {
	c.layerNorm = useLayerNorm
	return c
}

// InitW sets the half-width of the uniform range used for the output layer weights and biases,
// unless OutputInitializers is used.
func (c *Config) InitW(initW float64) *Config {
	if initW < 0 {
		exceptions.Panicf("mlp: initW must be >= 0, got %g", initW)
	}
	c.initW = initW
	return c
}

// BiasInit sets the constant used to initialize the biases of the hidden layers.
func (c *Config) BiasInit(value float64) *Config {
	c.biasInit = value
	return c
}

// HiddenInitializer sets the initializer of the hidden layers' weights. Default is FanInUniform.
func (c *Config) HiddenInitializer(initializer context.VariableInitializer) *Config {
	c.hiddenInitializer = initializer
	return c
}

// OutputInitializers sets the initializers of the output layer's weights and biases.
// A nil value keeps the default, uniform in [-initW, initW].
func (c *Config) OutputInitializers(weights, biases context.VariableInitializer) *Config {
	c.outputWeightsInit = weights
	c.outputBiasesInit = biases
	return c
}

// Done builds the MLP and returns its output.
func (c *Config) Done() *Node {
	output, _ := c.DoneWithPreactivation()
	return output
}

// DoneWithPreactivation builds the MLP and returns its output along with the output of the last
// affine layer before the output activation, e.g. raw logits.
func (c *Config) DoneWithPreactivation() (output, preactivation *Node) {
	ctx := c.ctx
	x := c.input
	hiddenInit := c.hiddenInitializer
	if hiddenInit == nil {
		hiddenInit = FanInUniform(ctx)
	}
	for ii, size := range c.hiddenSizes {
		layerCtx := ctx.Inf("hidden_%d", ii)
		x = affine(layerCtx, x, size, hiddenInit, Constant(c.biasInit))
		if c.layerNorm && ii < len(c.hiddenSizes)-1 {
			x = layers.LayerNormalization(layerCtx, x, -1).Done()
		}
		x = activations.Apply(c.activation, x)
	}

	weightsInit, biasesInit := c.outputWeightsInit, c.outputBiasesInit
	if weightsInit == nil {
		weightsInit = initializers.RandomUniformFn(ctx, -c.initW, c.initW)
	}
	if biasesInit == nil {
		biasesInit = initializers.RandomUniformFn(ctx, -c.initW, c.initW)
	}
	preactivation = affine(ctx.In("output"), x, c.outputSize, weightsInit, biasesInit)
	output = activations.Apply(c.outputActivation, preactivation)
	return
}

// affine adds a layers.Dense without bias, and a "biases" variable next to its weights, in the "dense"
// scope, so that the biases can have their own initializer. It returns `x·weights + biases`, contracting
// the last axis of x.
func affine(ctx *context.Context, x *Node, outputSize int, weightsInit, biasesInit context.VariableInitializer) *Node {
	output := layers.Dense(ctx.WithInitializer(weightsInit), x, false, outputSize)
	biases := ctx.In(DenseScope).WithInitializer(biasesInit).
		VariableWithShape("biases", shapes.Make(x.DType(), outputSize)).
		ValueGraph(x.Graph())
	return Add(output, ExpandLeftToRank(biases, output.Rank()))
}
