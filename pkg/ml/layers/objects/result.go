// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package objects

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// Result holds the outputs of an object network.
// Only Action is meant to be trained on; the other fields are exposed for inspection.
type Result struct {
	// Action is the network output, shaped `[batchSize, outputSize]`.
	Action *Node

	// Weights is the weight of each object in the action, shaped `[batchSize, numObjects]`.
	// For FullObjectMlp these are the attention weights, and they sum to 1 for each example.
	Weights *Node

	// Logits are the attention logits before the softmax, shaped `[batchSize, numObjects]`.
	// Nil for ObjectMlp, which has no attention.
	Logits *Node

	// Proposals are the per-object actions, shaped `[batchSize, numObjects, outputSize]`.
	Proposals *Node

	// Affordances are the learned embeddings of each object class, shaped `[numClasses, affordanceSize]`.
	Affordances *Node

	// ActionDistribution is the softmax of Action over its last axis.
	ActionDistribution *Node
}
