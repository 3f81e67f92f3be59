package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionDeclaredEdges(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusProcessing, StatusReadyToShip},
		{StatusReadyToShip, StatusShippedSeller},
		{StatusShippedSeller, StatusDelivered},
		{StatusPending, StatusCancellationRequested},
		{StatusProcessing, StatusCancellationRequested},
		{StatusReadyToShip, StatusCancellationRequested},
		{StatusShippedSeller, StatusCancellationRequested},
		{StatusCancellationRequested, StatusCancelled},
	}
	for _, e := range legal {
		assert.True(t, CanTransition(e.from, e.to), "%s -> %s should be legal", e.from, e.to)
	}
}

func TestCanTransitionRejectsUndeclaredEdges(t *testing.T) {
	illegal := []struct{ from, to Status }{
		{StatusPending, StatusDelivered},
		{StatusPending, StatusShippedSeller},
		{StatusProcessing, StatusDelivered},
		{StatusDelivered, StatusPending},
		{StatusDelivered, StatusCancellationRequested},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusCancellationRequested},
		{StatusShippedSeller, StatusProcessing},
	}
	for _, e := range illegal {
		assert.False(t, CanTransition(e.from, e.to), "%s -> %s should be illegal", e.from, e.to)
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	assert.Empty(t, AllowedTransitions(StatusDelivered))
	assert.Empty(t, AllowedTransitions(StatusCancelled))
}

func TestDeriveOrderStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all pending", []Status{StatusPending, StatusPending}, StatusPending},
		{"lowest progress wins", []Status{StatusDelivered, StatusProcessing}, StatusProcessing},
		{"cancelled slices ignored", []Status{StatusCancelled, StatusShippedSeller}, StatusShippedSeller},
		{"all cancelled", []Status{StatusCancelled, StatusCancelled}, StatusCancelled},
		{"cancellation requested surfaces", []Status{StatusDelivered, StatusCancellationRequested}, StatusCancellationRequested},
		{"all delivered", []Status{StatusDelivered, StatusDelivered}, StatusDelivered},
		{"single slice", []Status{StatusReadyToShip}, StatusReadyToShip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slices := make([]VendorSlice, len(tt.statuses))
			for i, s := range tt.statuses {
				slices[i] = VendorSlice{VendorID: "v", Status: s}
			}
			assert.Equal(t, tt.want, DeriveOrderStatus(slices))
		})
	}
}
