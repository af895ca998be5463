// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package objects

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/objectrl/pkg/ml/layers/mlp"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	// DefaultIndexToObject is the column to object table of the default scenario: a 4-feature agent,
	// followed by three 2-feature objects.
	DefaultIndexToObject = []int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3}

	// DefaultObjects names the entities of the default scenario: one target and two enemies.
	DefaultObjects = []string{"agent", "target", "enemy", "enemy"}
)

// DefaultObjectLayout returns the layout of the default scenario, see DefaultIndexToObject and DefaultObjects.
func DefaultObjectLayout() *Layout {
	return must.M1(LayoutFromIndexToObject(slices.Clone(DefaultIndexToObject), slices.Clone(DefaultObjects)))
}

// ObjectConfig is created with NewObjectMlp and configured with its methods.
type ObjectConfig struct {
	ctx        *context.Context
	layout     *Layout
	obs        *Node
	outputSize int

	affordanceSize   int
	translatorHidden []int
	activation       activations.Type
	biasInit         float64
}

// NewObjectMlp creates the configuration of an ObjectMlp: the simpler object network with no task and no attention.
// Call Done to build it.
//
// The affordance of each class is a single affine layer on its one-hot class vector, the translator
// (shared by all objects) maps (agent, object, affordance) to a proposal, and the action is the
// unweighted sum of the proposals.
//
// If the layout has a task column it is ignored.
//
// The diagnostic Result.Weights holds, for each object, the probability that the softmax of its proposal
// assigns to the most likely action of the softmax of the summed action.
func NewObjectMlp(ctx *context.Context, layout *Layout, obs *Node, outputSize int) *ObjectConfig {
	if outputSize <= 0 {
		exceptions.Panicf("objects: outputSize must be > 0, got %d", outputSize)
	}
	return &ObjectConfig{
		ctx:              ctx,
		layout:           layout,
		obs:              obs,
		outputSize:       outputSize,
		affordanceSize:   context.GetParamOr(ctx, ParamAffordanceSize, 20),
		translatorHidden: context.GetParamOr(ctx, ParamTranslatorHidden, []int{10, 10}),
		activation:       activations.FromName(context.GetParamOr(ctx, mlp.ParamActivation, "relu")),
		biasInit:         context.GetParamOr(ctx, mlp.ParamBiasInit, 0.1),
	}
}

// AffordanceSize sets the size of the affordance embedding of each object class. Default is 20.
func (c *ObjectConfig) AffordanceSize(size int) *ObjectConfig {
	if size <= 0 {
		exceptions.Panicf("objects: affordance size must be > 0, got %d", size)
	}
	c.affordanceSize = size
	return c
}

// TranslatorHidden sets the hidden layer sizes of the translator network. Default is [10, 10].
func (c *ObjectConfig) TranslatorHidden(sizes ...int) *ObjectConfig {
	c.translatorHidden = sizes
	return c
}

// Done builds the network. Result.Logits is nil.
func (c *ObjectConfig) Done() *Result {
	ctx, layout, obs := c.ctx, c.layout, c.obs
	layout.CheckObservation(obs)
	g := obs.Graph()
	dtype := obs.DType()
	batchSize := obs.Shape().Dimensions[0]
	numObjects := layout.NumObjects()
	klog.V(1).Infof("objects: building ObjectMlp in scope %q: %d objects, %d classes, outputSize=%d",
		ctx.Scope(), numObjects, layout.NumClasses(), c.outputSize)

	affordanceCtx := ctx.In(AffordanceScope)
	affordances := mlp.New(affordanceCtx, identityTable(g, dtype, layout.NumClasses()), c.affordanceSize).
		HiddenSizes().
		OutputInitializers(mlp.FanInUniform(affordanceCtx), mlp.Constant(c.biasInit)).
		Done()

	agent := layout.AgentSlot().slice(obs)
	translatorInputs := make([]*Node, numObjects)
	for k := range numObjects {
		object := layout.ObjectSlot(k).slice(obs)
		translatorInputs[k] = Concatenate([]*Node{agent, object, rowOf(affordances, layout.ObjectClass(k), batchSize)}, -1)
	}
	translatorCtx := ctx.In(TranslatorScope)
	proposals := mlp.New(translatorCtx, Stack(translatorInputs, 1), c.outputSize).
		HiddenSizes(c.translatorHidden...).
		Activation(c.activation).
		OutputActivation(activations.TypeNone).
		BiasInit(c.biasInit).
		OutputInitializers(mlp.FanInUniform(translatorCtx), mlp.Constant(c.biasInit)).
		Done()
	action := ReduceSum(proposals, 1)
	distribution := Softmax(action, -1)

	// Probability each proposal gives to the most likely action of the sum.
	best := OneHot(ArgMax(distribution, -1, dtypes.Int32), c.outputSize, dtype)
	weights := ReduceSum(Mul(Softmax(proposals, -1), InsertAxes(best, 1)), -1)
	return &Result{
		Action:             action,
		Weights:            StopGradient(weights),
		Proposals:          proposals,
		Affordances:        affordances,
		ActionDistribution: distribution,
	}
}

// ObjectMlp builds an ObjectMlp with the default configuration and returns its action,
// shaped `[batchSize, outputSize]`. See NewObjectMlp for details.
func ObjectMlp(ctx *context.Context, layout *Layout, obs *Node, outputSize int) *Node {
	return NewObjectMlp(ctx, layout, obs, outputSize).Done().Action
}
