package subscription

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransitionCommand asks the transition worker to move one fulfillment to a
// new status. Pharmacy integrations publish these keyed by subscription ID so
// commands for the same record arrive in order.
type TransitionCommand struct {
	ID              string            `json:"id"`
	SubscriptionID  string            `json:"subscription_id"`
	FulfillmentID   string            `json:"fulfillment_id,omitempty"`
	FulfillmentDate *time.Time        `json:"fulfillment_date,omitempty"`
	Status          FulfillmentStatus `json:"status"`
	Tracking        string            `json:"tracking,omitempty"`
	Source          string            `json:"source,omitempty"`
	RequestedAt     time.Time         `json:"requested_at"`
}

// NewTransitionCommand creates a command targeting a fulfillment by ID.
func NewTransitionCommand(subscriptionID, fulfillmentID string, status FulfillmentStatus, tracking string) *TransitionCommand {
	return &TransitionCommand{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		FulfillmentID:  fulfillmentID,
		Status:         status,
		Tracking:       tracking,
		RequestedAt:    time.Now().UTC(),
	}
}

// Validate checks the command is well formed before it touches a record.
func (c *TransitionCommand) Validate() error {
	if c.SubscriptionID == "" {
		return errors.New("subscription_id is required")
	}
	if c.FulfillmentID == "" && c.FulfillmentDate == nil {
		return errors.New("fulfillment_id or fulfillment_date is required")
	}
	if _, err := ParseFulfillmentStatus(string(c.Status)); err != nil {
		return err
	}
	if c.Status == FulfillmentShipped && c.Tracking == "" {
		return ErrTrackingRequired
	}
	return nil
}

// Apply runs the command against a subscription record.
func (c *TransitionCommand) Apply(s *Subscription) (*LogEntry, error) {
	if c.FulfillmentID != "" {
		return s.ApplyTransition(c.FulfillmentID, c.Status, c.Tracking)
	}
	return s.ApplyTransitionByDate(*c.FulfillmentDate, c.Status, c.Tracking)
}
