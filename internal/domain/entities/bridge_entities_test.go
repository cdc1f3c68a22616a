package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepsWith(statuses ...StepStatus) BridgeSteps {
	steps := NewBridgeSteps()
	for i, status := range statuses {
		steps[i].Status = status
	}
	return steps
}

func TestNewBridgeSteps(t *testing.T) {
	steps := NewBridgeSteps()
	require.Len(t, steps, 4)
	assert.Equal(t, StepApprove, steps[0].Name)
	assert.Equal(t, StepBurn, steps[1].Name)
	assert.Equal(t, StepAttestation, steps[2].Name)
	assert.Equal(t, StepMint, steps[3].Name)
	for _, step := range steps {
		assert.Equal(t, StepStatusPending, step.Status)
	}
	assert.NoError(t, steps.Validate())
}

func TestFirstIncomplete(t *testing.T) {
	assert.Equal(t, 0, NewBridgeSteps().FirstIncomplete())

	steps := stepsWith(StepStatusCompleted, StepStatusCompleted)
	assert.Equal(t, 2, steps.FirstIncomplete())

	// a failed step still counts as the resume point
	steps = stepsWith(StepStatusCompleted, StepStatusFailed)
	assert.Equal(t, 1, steps.FirstIncomplete())

	steps = stepsWith(StepStatusCompleted, StepStatusCompleted, StepStatusCompleted, StepStatusCompleted)
	assert.Equal(t, -1, steps.FirstIncomplete())
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		steps    BridgeSteps
		expected BridgeStatus
	}{
		{"all pending", NewBridgeSteps(), BridgeStatusPending},
		{"first in progress", stepsWith(StepStatusInProgress), BridgeStatusBridging},
		{"partially complete", stepsWith(StepStatusCompleted, StepStatusInProgress), BridgeStatusBridging},
		{"complete without active step", stepsWith(StepStatusCompleted, StepStatusCompleted), BridgeStatusBridging},
		{"failure wins", stepsWith(StepStatusCompleted, StepStatusCompleted, StepStatusFailed), BridgeStatusFailed},
		{"all complete", stepsWith(StepStatusCompleted, StepStatusCompleted, StepStatusCompleted, StepStatusCompleted), BridgeStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.steps.DeriveStatus())
		})
	}
}

func TestStepsValidate(t *testing.T) {
	t.Run("left to right completion", func(t *testing.T) {
		steps := NewBridgeSteps()
		steps[2].Status = StepStatusCompleted
		assert.Error(t, steps.Validate())
	})

	t.Run("single in progress", func(t *testing.T) {
		steps := stepsWith(StepStatusCompleted, StepStatusCompleted, StepStatusCompleted)
		steps[3].Status = StepStatusInProgress
		assert.NoError(t, steps.Validate())
	})

	t.Run("wrong length", func(t *testing.T) {
		steps := NewBridgeSteps()[:3]
		assert.Error(t, steps.Validate())
	})

	t.Run("wrong order", func(t *testing.T) {
		steps := NewBridgeSteps()
		steps[0], steps[1] = steps[1], steps[0]
		assert.Error(t, steps.Validate())
	})
}

func TestStepsJSONRoundTrip(t *testing.T) {
	steps := stepsWith(StepStatusCompleted, StepStatusInProgress)
	steps[0].TxHash = "0xaaa"
	steps[1].Error = "burn reverted"

	value, err := steps.Value()
	require.NoError(t, err)

	var decoded BridgeSteps
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, steps, decoded)
}

func TestBridgeStatusTransitions(t *testing.T) {
	assert.True(t, BridgeStatusPending.CanTransitionTo(BridgeStatusBridging))
	assert.True(t, BridgeStatusFailed.CanTransitionTo(BridgeStatusBridging))
	assert.True(t, BridgeStatusBridging.CanTransitionTo(BridgeStatusCancelled))
	assert.False(t, BridgeStatusCompleted.CanTransitionTo(BridgeStatusBridging))
	assert.False(t, BridgeStatusCancelled.CanTransitionTo(BridgeStatusBridging))

	assert.True(t, BridgeStatusCompleted.IsTerminal())
	assert.True(t, BridgeStatusCancelled.IsTerminal())
	assert.False(t, BridgeStatusFailed.IsTerminal())

	assert.True(t, BridgeStatusFailed.IsCancellable())
	assert.False(t, BridgeStatusCompleted.IsCancellable())
}
