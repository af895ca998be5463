// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package policy wraps the networks of this module into policies: objects that map observations
// to actions on the host, for environment rollouts and evaluation.
//
// Each policy holds a backend, a context with the weights and a compiled executor. Its graph function
// (Forward) is exported, so a trainer can build the same network in the same context scope: after training,
// the policy reads the updated weights on its next call.
package policy

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/objectrl/pkg/ml/layers/objects"
	"github.com/pkg/errors"
)

// Info holds extra per-observation information returned by Policy.GetAction. It may be empty.
type Info map[string]any

// InfoAttentionWeights is the Info key with the attention weight of each object, a []float32.
const InfoAttentionWeights = "attention_weights"

// Policy maps observations to actions.
type Policy interface {
	// GetAction returns the action for one observation.
	GetAction(obs []float32) ([]float32, Info, error)

	// GetActions returns one action per row of obs.
	GetActions(obs [][]float32) ([][]float32, error)
}

// checkWidths returns an error wrapping objects.ErrShape if obs is empty or if any row doesn't have width features.
func checkWidths(obs [][]float32, width int) error {
	if len(obs) == 0 {
		return errors.Wrapf(objects.ErrShape, "empty batch of observations")
	}
	for row, values := range obs {
		if len(values) != width {
			return errors.Wrapf(objects.ErrShape, "observation %d has %d features, expected %d", row, len(values), width)
		}
	}
	return nil
}

// inferenceContext returns the context used by the policies' executors: variables are created on the
// first call, if they don't exist yet, and reused afterwards.
func inferenceContext(ctx *context.Context) *context.Context {
	return ctx.Checked(false)
}
