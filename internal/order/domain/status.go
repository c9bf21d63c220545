package domain

import "strings"

type Status string

const (
	StatusPending          Status = "PENDING"
	StatusConfirmed        Status = "CONFIRMED"
	StatusProcessing       Status = "PROCESSING"
	StatusReadyForDelivery Status = "READY_FOR_DELIVERY"
	StatusShipped          Status = "SHIPPED"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
	StatusRefunded         Status = "REFUNDED"
)

var forward = map[Status]Status{
	StatusPending:          StatusConfirmed,
	StatusConfirmed:        StatusProcessing,
	StatusProcessing:       StatusReadyForDelivery,
	StatusReadyForDelivery: StatusShipped,
	StatusShipped:          StatusDelivered,
}

// ParseStatus accepts any casing and reports whether the value is known.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusReadyForDelivery,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// CanTransition allows one step along the fulfilment chain, or a move to
// CANCELLED or REFUNDED, from any non-terminal status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() || from == to {
		return false
	}
	if to == StatusCancelled || to == StatusRefunded {
		return true
	}
	return forward[from] == to
}
