// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package objects implements object-centric networks: the observation is segmented by a Layout into
// an agent and a set of typed objects, and the action is built from per-object proposals.
//
// Every object class gets a learned affordance embedding. A translator network, shared by all objects,
// maps (agent, object, affordance) to an action proposal. FullObjectMlp combines the proposals with a
// task-conditioned attention over the objects, while ObjectMlp simply sums them.
//
// Both networks are vectorized over the objects: the objects are stacked on a new axis and the shared
// networks are applied once, see mlp.New.
package objects

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/objectrl/pkg/ml/layers/mlp"
	"k8s.io/klog/v2"
)

const (
	// ParamAffordanceSize is the hyperparameter with the size of the affordance embedding of each object class.
	// The default is 20 (int).
	ParamAffordanceSize = "objects_affordance_size"

	// ParamAffordanceHidden is the hyperparameter with the hidden layer sizes of the FullObjectMlp affordance network.
	// The default is [20] ([]int).
	ParamAffordanceHidden = "objects_affordance_hidden"

	// ParamTranslatorHidden is the hyperparameter with the hidden layer sizes of the translator network.
	// The default is [10, 10] ([]int).
	ParamTranslatorHidden = "objects_translator_hidden"

	// ParamAttentionHidden is the hyperparameter with the hidden layer sizes of the task attention network.
	// The default is [10] ([]int).
	ParamAttentionHidden = "objects_attention_hidden"
)

// Scope names of the sub-networks.
const (
	AffordanceScope = "affordance"
	TranslatorScope = "translator"
	AttentionScope  = "task_attention"
)

// FullConfig is created with NewFull and configured with its methods, or with the corresponding
// hyperparameters in the context.
type FullConfig struct {
	ctx        *context.Context
	layout     *Layout
	obs        *Node
	outputSize int

	affordanceSize                                     int
	affordanceHidden, translatorHidden, attentionHidden []int
	activation                                         activations.Type
	layerNorm                                          bool
	biasInit                                           float64
}

// NewFull creates the configuration of a FullObjectMlp over the observations obs, shaped
// `[batchSize, layout.InputSize()]`, with outputSize outputs.
// Call Done to build it.
//
// The network:
//
//  1. Looks up the one-hot task vector of the task id in column 0 (if the layout has a task column).
//  2. Computes the affordance of every object class, from its one-hot class vector.
//  3. For each object, the translator maps (agent, object, affordance of its class) to a proposal.
//  4. For each object, the task attention network maps (task, one-hot class, agent) to a logit.
//  5. The action is the sum of the proposals weighted by the softmax of the logits.
//
// The last layer of the attention network is initialized with zero weights, so initially the attention
// is uniform over the objects. Only the last layer is zeroed, not the first one, so the hidden attention
// layers get non-zero gradients from the first step.
func NewFull(ctx *context.Context, layout *Layout, obs *Node, outputSize int) *FullConfig {
	if outputSize <= 0 {
		exceptions.Panicf("objects: outputSize must be > 0, got %d", outputSize)
	}
	return &FullConfig{
		ctx:              ctx,
		layout:           layout,
		obs:              obs,
		outputSize:       outputSize,
		affordanceSize:   context.GetParamOr(ctx, ParamAffordanceSize, 20),
		affordanceHidden: context.GetParamOr(ctx, ParamAffordanceHidden, []int{20}),
		translatorHidden: context.GetParamOr(ctx, ParamTranslatorHidden, []int{10, 10}),
		attentionHidden:  context.GetParamOr(ctx, ParamAttentionHidden, []int{10}),
		activation:       activations.FromName(context.GetParamOr(ctx, mlp.ParamActivation, "relu")),
		layerNorm:        context.GetParamOr(ctx, mlp.ParamLayerNorm, false),
		biasInit:         context.GetParamOr(ctx, mlp.ParamBiasInit, 0.1),
	}
}

// AffordanceSize sets the size of the affordance embedding of each object class. Default is 20.
func (c *FullConfig) AffordanceSize(size int) *FullConfig {
	if size <= 0 {
		exceptions.Panicf("objects: affordance size must be > 0, got %d", size)
	}
	c.affordanceSize = size
	return c
}

// AffordanceHidden sets the hidden layer sizes of the affordance network. Default is [20].
func (c *FullConfig) AffordanceHidden(sizes ...int) *FullConfig {
	c.affordanceHidden = sizes
	return c
}

// TranslatorHidden sets the hidden layer sizes of the translator network. Default is [10, 10].
func (c *FullConfig) TranslatorHidden(sizes ...int) *FullConfig {
	c.translatorHidden = sizes
	return c
}

// AttentionHidden sets the hidden layer sizes of the task attention network. Default is [10].
func (c *FullConfig) AttentionHidden(sizes ...int) *FullConfig {
	c.attentionHidden = sizes
	return c
}

// Activation sets the hidden activation of all sub-networks. Default is relu.
func (c *FullConfig) Activation(activation activations.Type) *FullConfig {
	c.activation = activation
	return c
}

// LayerNorm enables layer normalization in the sub-networks, see mlp.Config.LayerNorm.
func (c *FullConfig) LayerNorm(useLayerNorm bool) *FullConfig {
	c.layerNorm = useLayerNorm
	return c
}

// Done builds the network. It panics with an error wrapping ErrShape if the observations don't match the layout.
func (c *FullConfig) Done() *Result {
	ctx, layout, obs := c.ctx, c.layout, c.obs
	layout.CheckObservation(obs)
	g := obs.Graph()
	dtype := obs.DType()
	batchSize := obs.Shape().Dimensions[0]
	numObjects := layout.NumObjects()
	klog.V(1).Infof("objects: building FullObjectMlp in scope %q: %d objects, %d classes, %d tasks, outputSize=%d",
		ctx.Scope(), numObjects, layout.NumClasses(), layout.NumTasks(), c.outputSize)

	var task *Node
	if layout.HasTaskColumn() {
		taskIDs := ConvertDType(Slice(obs, AxisRange(), AxisElem(0)), dtypes.Int32)
		task = Gather(identityTable(g, dtype, layout.NumTasks()), taskIDs)
	}
	agent := layout.AgentSlot().slice(obs)

	classTable := identityTable(g, dtype, layout.NumClasses())
	affordances := c.subNetwork(ctx.In(AffordanceScope), classTable, c.affordanceSize, c.affordanceHidden).Done()

	translatorInputs := make([]*Node, numObjects)
	attentionInputs := make([]*Node, numObjects)
	for k := range numObjects {
		class := layout.ObjectClass(k)
		object := layout.ObjectSlot(k).slice(obs)
		translatorInputs[k] = Concatenate([]*Node{agent, object, rowOf(affordances, class, batchSize)}, -1)
		attention := []*Node{rowOf(classTable, class, batchSize), agent}
		if task != nil {
			attention = append([]*Node{task}, attention...)
		}
		attentionInputs[k] = Concatenate(attention, -1)
	}

	proposals := c.subNetwork(ctx.In(TranslatorScope), Stack(translatorInputs, 1), c.outputSize, c.translatorHidden).
		Done()
	logits := c.subNetwork(ctx.In(AttentionScope), Stack(attentionInputs, 1), 1, c.attentionHidden).
		OutputInitializers(initializers.Zero, mlp.Constant(c.biasInit)).
		Done()
	logits = Reshape(logits, batchSize, numObjects)
	weights := Softmax(logits, -1)
	action := ReduceSum(Mul(proposals, InsertAxes(weights, -1)), 1)
	return &Result{
		Action:             action,
		Weights:            weights,
		Logits:             logits,
		Proposals:          proposals,
		Affordances:        affordances,
		ActionDistribution: Softmax(action, -1),
	}
}

// subNetwork configures one of the internal networks: all its layers, including the last one, use
// fan-in uniform weights and constant biases.
func (c *FullConfig) subNetwork(ctx *context.Context, x *Node, outputSize int, hidden []int) *mlp.Config {
	return mlp.New(ctx, x, outputSize).
		HiddenSizes(hidden...).
		Activation(c.activation).
		OutputActivation(activations.TypeNone).
		LayerNorm(c.layerNorm).
		BiasInit(c.biasInit).
		OutputInitializers(mlp.FanInUniform(ctx), mlp.Constant(c.biasInit))
}

// FullObjectMlp builds a FullObjectMlp with the default configuration and returns its action,
// shaped `[batchSize, outputSize]`. See NewFull for details.
func FullObjectMlp(ctx *context.Context, layout *Layout, obs *Node, outputSize int) *Node {
	return NewFull(ctx, layout, obs, outputSize).Done().Action
}
