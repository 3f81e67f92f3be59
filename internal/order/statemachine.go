package order

// transitions declares every legal slice-status edge. A cancellation request
// is reachable from any pre-delivered state; delivered and cancelled are
// terminal. Rejecting a cancellation restores the stored prior status
// directly rather than through an edge, since there is no single undo edge.
var transitions = map[Status][]Status{
	StatusPending:               {StatusProcessing, StatusCancellationRequested},
	StatusProcessing:            {StatusReadyToShip, StatusCancellationRequested},
	StatusReadyToShip:           {StatusShippedSeller, StatusCancellationRequested},
	StatusShippedSeller:         {StatusDelivered, StatusCancellationRequested},
	StatusCancellationRequested: {StatusCancelled},
	StatusDelivered:             {},
	StatusCancelled:             {},
}

// CanTransition reports whether the edge from -> to is declared.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the declared outgoing edges of from.
func AllowedTransitions(from Status) []Status {
	allowed := transitions[from]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// DeriveOrderStatus computes the aggregate order status from its slices.
//
// If every slice is cancelled the order is cancelled. If any slice has a
// cancellation pending, the order surfaces cancellation_requested so the
// order carries a single actionable signal. Otherwise the order reports the
// lowest-progress status among its non-cancelled slices.
func DeriveOrderStatus(slices []VendorSlice) Status {
	if len(slices) == 0 {
		return StatusPending
	}

	allCancelled := true
	for _, s := range slices {
		if s.Status != StatusCancelled {
			allCancelled = false
			break
		}
	}
	if allCancelled {
		return StatusCancelled
	}

	for _, s := range slices {
		if s.Status == StatusCancellationRequested {
			return StatusCancellationRequested
		}
	}

	lowest := StatusDelivered
	for _, s := range slices {
		if s.Status == StatusCancelled {
			continue
		}
		if statusRank[s.Status] < statusRank[lowest] {
			lowest = s.Status
		}
	}
	return lowest
}
