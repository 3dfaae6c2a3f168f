package subscription

import (
	"errors"
	"fmt"
	"time"
)

// ErrFulfillmentNotFound indicates a transition addressed a fulfillment
// key with no match.
var ErrFulfillmentNotFound = errors.New("fulfillment not found")

// ErrTrackingRequired indicates a Shipped transition arrived without a
// tracking number. The machine does not enforce this; calling boundaries
// (HTTP handlers, the transition worker) check it before applying.
var ErrTrackingRequired = errors.New("tracking number required for shipped transition")

// ApplyTransition moves the fulfillment with the given synthetic ID to
// the target status and appends the transition's log entry.
//
// Transitions are unguarded: any named status may move to any other named
// status, including re-applying the current one. Re-application leaves
// the fulfillment unchanged but still appends a fresh log entry; the log
// records attempts, not diffs. Tracking is replaced only when a non-empty
// value is supplied; an empty value preserves whatever is stored.
func (s *Subscription) ApplyTransition(fulfillmentID string, status FulfillmentStatus, tracking string) (*LogEntry, error) {
	f, ok := s.FulfillmentByID(fulfillmentID)
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrFulfillmentNotFound, fulfillmentID)
	}
	return s.transition(f, status, tracking), nil
}

// ApplyTransitionByDate is the date-keyed variant of ApplyTransition,
// addressing the first fulfillment whose date exactly equals the given
// instant.
func (s *Subscription) ApplyTransitionByDate(date time.Time, status FulfillmentStatus, tracking string) (*LogEntry, error) {
	f, ok := s.FulfillmentByDate(date)
	if !ok {
		return nil, fmt.Errorf("%w: date %s", ErrFulfillmentNotFound, date.Format(time.RFC3339))
	}
	return s.transition(f, status, tracking), nil
}

func (s *Subscription) transition(f *Fulfillment, status FulfillmentStatus, tracking string) *LogEntry {
	f.Status = status
	if tracking != "" {
		f.Tracking = tracking
	}

	when := f.FulfillmentDate.Format(messageDateLayout)
	if status == FulfillmentShipped {
		return s.AppendLog(fmt.Sprintf("Fulfillment %s shipped, tracking %s", when, f.Tracking), ActorStaff)
	}
	return s.AppendLog(fmt.Sprintf("Fulfillment %s status changed to %s", when, status), ActorSystem)
}

// Hold applies the sticky On Hold override. The override persists across
// derivations until Resume clears it.
func (s *Subscription) Hold() *LogEntry {
	s.Status = StatusOnHold
	return s.AppendLog("Subscription placed on hold", ActorStaff)
}

// Resume clears the On Hold override and returns the subscription to the
// derived lifecycle.
func (s *Subscription) Resume() *LogEntry {
	s.Status = StatusActive
	return s.AppendLog("Subscription hold released", ActorStaff)
}
