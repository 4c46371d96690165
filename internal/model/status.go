package model

// Status is a local order status.
type Status string

const (
	StatusIncomplete Status = "kco-incomplete"
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on-hold"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusIncomplete: {StatusPending: true, StatusProcessing: true, StatusOnHold: true, StatusCancelled: true},
	StatusPending:    {StatusOnHold: true, StatusProcessing: true, StatusCancelled: true, StatusFailed: true},
	StatusOnHold:     {StatusProcessing: true, StatusCompleted: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusOnHold: true, StatusCancelled: true, StatusRefunded: true},
	StatusCompleted:  {StatusRefunded: true},
	StatusFailed:     {StatusPending: true, StatusCancelled: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Manual reports whether an admin may pick s as a target status.
// kco-incomplete is only ever set by the bridge itself.
func (s Status) Manual() bool {
	return s.Valid() && s != StatusIncomplete
}

// Paid reports whether the order has been through payment complete.
func (s Status) Paid() bool {
	return s == StatusProcessing || s == StatusCompleted || s == StatusRefunded
}
