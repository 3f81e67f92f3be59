package order

// Status is the lifecycle state of an order or of a single vendor slice.
// Both draw from the same vocabulary; the order-level value is always
// derived from the slice values, never set independently.
type Status string

const (
	StatusPending               Status = "pending"
	StatusProcessing            Status = "processing"
	StatusReadyToShip           Status = "ready_to_ship"
	StatusShippedSeller         Status = "shipped_seller"
	StatusDelivered             Status = "delivered"
	StatusCancellationRequested Status = "cancellation_requested"
	StatusCancelled             Status = "cancelled"
	StatusCancellationRejected  Status = "cancellation_rejected"
)

// statusRank orders the fulfillment statuses by progress. Statuses outside
// this map (cancellation family) have no rank and never participate in the
// "lowest progress" aggregate derivation directly.
var statusRank = map[Status]int{
	StatusPending:       0,
	StatusProcessing:    1,
	StatusReadyToShip:   2,
	StatusShippedSeller: 3,
	StatusDelivered:     4,
}

// Fulfillment reports whether s is on the happy-path fulfillment ladder.
func (s Status) Fulfillment() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether a slice in this status can never transition again.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

// Role identifies the kind of actor driving a transition.
type Role string

const (
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	RoleSystem   Role = "system"
)

// PaymentStatus tracks the financial settlement of an order, updated only
// from externally reported payment outcomes.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// RequestStatus is the lifecycle of a cancellation request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// ReturnStatus is the lifecycle of a return request. Approval is a decision;
// completion is a confirmed financial event reported by the payment provider.
type ReturnStatus string

const (
	ReturnPending    ReturnStatus = "pending"
	ReturnApproved   ReturnStatus = "approved"
	ReturnRejected   ReturnStatus = "rejected"
	ReturnProcessing ReturnStatus = "processing"
	ReturnCompleted  ReturnStatus = "completed"
)

// Active reports whether the return still occupies the order's single
// active-return slot.
func (s ReturnStatus) Active() bool {
	return s == ReturnPending || s == ReturnApproved || s == ReturnProcessing
}
