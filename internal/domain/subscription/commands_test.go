package subscription

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionCommandValidate(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cmd     TransitionCommand
		wantErr error
	}{
		{
			name: "valid by id",
			cmd:  *NewTransitionCommand("sub-1", "ful-1", FulfillmentAwaitingRx, ""),
		},
		{
			name: "valid by date",
			cmd: TransitionCommand{
				SubscriptionID:  "sub-1",
				FulfillmentDate: &date,
				Status:          FulfillmentIntakeSent,
			},
		},
		{
			name: "shipped with tracking",
			cmd:  *NewTransitionCommand("sub-1", "ful-1", FulfillmentShipped, "1Z999AA10123456784"),
		},
		{
			name:    "shipped without tracking",
			cmd:     *NewTransitionCommand("sub-1", "ful-1", FulfillmentShipped, ""),
			wantErr: ErrTrackingRequired,
		},
		{
			name:    "unknown status",
			cmd:     *NewTransitionCommand("sub-1", "ful-1", FulfillmentStatus("Teleported"), ""),
			wantErr: ErrUnknownStatus,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransitionCommandValidateMissingTarget(t *testing.T) {
	t.Parallel()

	cmd := TransitionCommand{SubscriptionID: "sub-1", Status: FulfillmentShipped, Tracking: "t"}
	if err := cmd.Validate(); err == nil {
		t.Fatal("Validate() accepted a command with no fulfillment target")
	}

	cmd = TransitionCommand{Status: FulfillmentShipped, Tracking: "t", FulfillmentID: "ful-1"}
	if err := cmd.Validate(); err == nil {
		t.Fatal("Validate() accepted a command with no subscription")
	}
}

func TestTransitionCommandApply(t *testing.T) {
	t.Parallel()

	sub := newTestSubscription(t, 2)

	cmd := NewTransitionCommand(sub.ID, sub.Fulfillments[0].ID, FulfillmentShipped, "9400100000000000000000")
	entry, err := cmd.Apply(sub)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if entry.Actor != ActorStaff {
		t.Errorf("entry actor = %q, want %q", entry.Actor, ActorStaff)
	}
	if got := sub.Fulfillments[0].Status; got != FulfillmentShipped {
		t.Errorf("fulfillment status = %q, want %q", got, FulfillmentShipped)
	}

	date := sub.Fulfillments[1].FulfillmentDate
	byDate := TransitionCommand{
		SubscriptionID:  sub.ID,
		FulfillmentDate: &date,
		Status:          FulfillmentAwaitingRx,
	}
	if _, err := byDate.Apply(sub); err != nil {
		t.Fatalf("Apply by date: %v", err)
	}
	if got := sub.Fulfillments[1].Status; got != FulfillmentAwaitingRx {
		t.Errorf("fulfillment status = %q, want %q", got, FulfillmentAwaitingRx)
	}

	missing := NewTransitionCommand(sub.ID, "no-such", FulfillmentShipped, "t")
	if _, err := missing.Apply(sub); !errors.Is(err, ErrFulfillmentNotFound) {
		t.Errorf("Apply missing fulfillment = %v, want %v", err, ErrFulfillmentNotFound)
	}
}
