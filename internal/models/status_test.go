package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionCanonicalTable(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		StatusIdle:           {StatusSignalReceived},
		StatusSignalReceived: {StatusValidating, StatusRejected},
		StatusValidating:     {StatusOrderPending, StatusRejected},
		StatusOrderPending:   {StatusOrderSent, StatusFailed},
		StatusOrderSent:      {StatusPartialFilled, StatusFullyFilled, StatusCancelled},
		StatusPartialFilled:  {StatusFullyFilled, StatusCancelled},
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidateTransitionNamesPair(t *testing.T) {
	err := ValidateTransition(StatusFullyFilled, StatusCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "FULLY_FILLED")
	assert.Contains(t, err.Error(), "CANCELLED")

	assert.NoError(t, ValidateTransition(StatusIdle, StatusSignalReceived))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range AllStatuses() {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range AllStatuses() {
			assert.False(t, CanTransition(from, to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestPendingStates(t *testing.T) {
	want := []OrderStatus{StatusOrderPending, StatusOrderSent, StatusPartialFilled}
	assert.Equal(t, want, PendingStates())

	for _, s := range AllStatuses() {
		inSet := false
		for _, p := range want {
			if p == s {
				inSet = true
			}
		}
		assert.Equal(t, inSet, s.IsPending(), "%s", s)
	}
}
