// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mlp

import (
	"math"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
)

// Constant returns an initializer that fills variables with value.
func Constant(value float64) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		if value == 0 || !shape.DType.IsFloat() {
			return Zeros(g, shape)
		}
		return MulScalar(Ones(g, shape), value)
	}
}

// FanInUniform returns an initializer that draws values uniformly from [-1/sqrt(fanIn), 1/sqrt(fanIn)),
// where fanIn is the input width of the weights: the product of all but their last axis.
//
// Values are drawn from the context random number generator (see initializers.RandomUniformFn), so a seeded
// context builds the same weights every time. Variables of rank <= 1 (biases) use fanIn=1.
func FanInUniform(ctx *context.Context) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		fanIn := 1
		if shape.Rank() > 1 {
			for _, dim := range shape.Dimensions[:shape.Rank()-1] {
				fanIn *= dim
			}
		}
		bound := 1.0 / math.Sqrt(float64(max(fanIn, 1)))
		return initializers.RandomUniformFn(ctx, -bound, bound)(g, shape)
	}
}
