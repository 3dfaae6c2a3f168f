// Package subscription implements the prescription subscription core:
// the fulfillment state machine, aggregate status derivation, the
// append-only communication log, and the actionable display ordering.
package subscription

import (
	"errors"
	"fmt"
)

// Status is the aggregate status of a subscription. Pending and Approved
// are administrative values set at creation; Active, Action Required and
// Fulfilled are derived from the fulfillment set; On Hold is a sticky
// manual override that suppresses derivation until explicitly cleared.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusApproved       Status = "Approved"
	StatusActive         Status = "Active"
	StatusActionRequired Status = "Action Required"
	StatusFulfilled      Status = "Fulfilled"
	StatusOnHold         Status = "On Hold"
)

// AllStatuses returns every aggregate status value.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusApproved,
		StatusActive,
		StatusActionRequired,
		StatusFulfilled,
		StatusOnHold,
	}
}

// ErrUnknownStatus indicates a status string outside the named set.
var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus validates a wire string against the named status set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusActive, StatusActionRequired, StatusFulfilled, StatusOnHold:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// FulfillmentStatus is the lifecycle state of a single monthly fulfillment.
type FulfillmentStatus string

const (
	FulfillmentScheduled  FulfillmentStatus = "Scheduled"
	FulfillmentIntakeSent FulfillmentStatus = "Intake Sent"
	FulfillmentAwaitingRx FulfillmentStatus = "Awaiting RX"
	FulfillmentRxReceived FulfillmentStatus = "RX Received"
	FulfillmentShipped    FulfillmentStatus = "Shipped"
)

// AllFulfillmentStatuses returns every fulfillment status value in
// lifecycle order.
func AllFulfillmentStatuses() []FulfillmentStatus {
	return []FulfillmentStatus{
		FulfillmentScheduled,
		FulfillmentIntakeSent,
		FulfillmentAwaitingRx,
		FulfillmentRxReceived,
		FulfillmentShipped,
	}
}

// ParseFulfillmentStatus validates a wire string against the named
// fulfillment status set.
func ParseFulfillmentStatus(s string) (FulfillmentStatus, error) {
	switch FulfillmentStatus(s) {
	case FulfillmentScheduled, FulfillmentIntakeSent, FulfillmentAwaitingRx, FulfillmentRxReceived, FulfillmentShipped:
		return FulfillmentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// PhysicianStatus tracks physician sign-off on the subscription.
type PhysicianStatus string

const (
	PhysicianPending  PhysicianStatus = "Pending"
	PhysicianApproved PhysicianStatus = "Approved"
)

// ParsePhysicianStatus validates a wire string against the physician
// status set.
func ParsePhysicianStatus(s string) (PhysicianStatus, error) {
	switch PhysicianStatus(s) {
	case PhysicianPending, PhysicianApproved:
		return PhysicianStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Actor identifies who authored a communication log entry.
type Actor string

const (
	ActorSystem Actor = "System"
	ActorStaff  Actor = "Pharmacy Staff"
)

// ParseActor validates a wire string against the actor set.
func ParseActor(s string) (Actor, error) {
	switch Actor(s) {
	case ActorSystem, ActorStaff:
		return Actor(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// StatusMeta carries the presentation tokens for a status value. The
// mappings below are total over the named sets so a new status cannot be
// introduced without giving it metadata here.
type StatusMeta struct {
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// Meta returns the presentation metadata for an aggregate status.
func (s Status) Meta() StatusMeta {
	switch s {
	case StatusPending:
		return StatusMeta{Color: "amber", Icon: "clock"}
	case StatusApproved:
		return StatusMeta{Color: "blue", Icon: "check"}
	case StatusActive:
		return StatusMeta{Color: "green", Icon: "refresh"}
	case StatusActionRequired:
		return StatusMeta{Color: "red", Icon: "alert"}
	case StatusFulfilled:
		return StatusMeta{Color: "gray", Icon: "archive"}
	case StatusOnHold:
		return StatusMeta{Color: "orange", Icon: "pause"}
	}
	return StatusMeta{Color: "gray", Icon: "question"}
}

// Meta returns the presentation metadata for a fulfillment status.
func (f FulfillmentStatus) Meta() StatusMeta {
	switch f {
	case FulfillmentScheduled:
		return StatusMeta{Color: "slate", Icon: "calendar"}
	case FulfillmentIntakeSent:
		return StatusMeta{Color: "blue", Icon: "send"}
	case FulfillmentAwaitingRx:
		return StatusMeta{Color: "amber", Icon: "hourglass"}
	case FulfillmentRxReceived:
		return StatusMeta{Color: "red", Icon: "inbox"}
	case FulfillmentShipped:
		return StatusMeta{Color: "green", Icon: "truck"}
	}
	return StatusMeta{Color: "gray", Icon: "question"}
}
