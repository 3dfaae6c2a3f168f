// Package subscription implements the prescription subscription core.
package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Layout used when a fulfillment date appears inside a log message.
const messageDateLayout = "Jan 2, 2006"

// ErrInvalidDuration indicates a non-positive subscription duration.
var ErrInvalidDuration = errors.New("duration must be at least one month")

// Subscription is a patient's recurring prescription enrollment. Its full
// fulfillment series is materialized at creation and never resized; the
// communication log only grows.
type Subscription struct {
	ID               string          `json:"id"`
	PatientName      string          `json:"patient_name"`
	DrugName         string          `json:"drug_name"`
	NewRxCall        bool            `json:"new_rx_call"`
	Duration         int             `json:"duration"`
	Status           Status          `json:"status"`
	PhysicianStatus  PhysicianStatus `json:"physician_status"`
	StartDate        time.Time       `json:"start_date"`
	Fulfillments     []Fulfillment   `json:"fulfillments"`
	CommunicationLog []LogEntry      `json:"communication_log"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Fulfillment is one month's delivery cycle within a subscription. The ID
// is a synthetic stable identifier assigned at creation; transitions key
// by it rather than by date value, which is not guaranteed unique.
type Fulfillment struct {
	ID              string            `json:"id"`
	FulfillmentDate time.Time         `json:"fulfillment_date"`
	Status          FulfillmentStatus `json:"status"`
	Tracking        string            `json:"tracking,omitempty"`
	RxID            string            `json:"rx_id,omitempty"`
}

// LogEntry is one record in the append-only communication log.
type LogEntry struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Actor   Actor     `json:"actor"`
}

// NewParams holds the creation inputs for a subscription.
type NewParams struct {
	PatientName string
	DrugName    string
	Duration    int
	StartDate   time.Time
	RxID        string
	NewRxCall   bool
}

// New creates a subscription with its complete monthly fulfillment series.
// The first fulfillment starts at RX Received carrying the initial rxId;
// all later fulfillments start Scheduled, dated one month apart from the
// start date.
func New(p NewParams) (*Subscription, error) {
	if p.Duration < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, p.Duration)
	}

	now := time.Now().UTC()
	start := p.StartDate
	if start.IsZero() {
		start = now
	}

	s := &Subscription{
		ID:              uuid.New().String(),
		PatientName:     p.PatientName,
		DrugName:        p.DrugName,
		NewRxCall:       p.NewRxCall,
		Duration:        p.Duration,
		Status:          StatusPending,
		PhysicianStatus: PhysicianPending,
		StartDate:       start,
		Fulfillments:    make([]Fulfillment, 0, p.Duration),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for i := 0; i < p.Duration; i++ {
		f := Fulfillment{
			ID:              uuid.New().String(),
			FulfillmentDate: start.AddDate(0, i, 0),
			Status:          FulfillmentScheduled,
		}
		if i == 0 {
			f.Status = FulfillmentRxReceived
			f.RxID = p.RxID
		}
		s.Fulfillments = append(s.Fulfillments, f)
	}

	s.AppendLog(fmt.Sprintf("Subscription created for %s, %d monthly fulfillments", p.DrugName, p.Duration), ActorSystem)
	return s, nil
}

// FulfillmentByID returns the fulfillment with the given synthetic ID.
func (s *Subscription) FulfillmentByID(id string) (*Fulfillment, bool) {
	for i := range s.Fulfillments {
		if s.Fulfillments[i].ID == id {
			return &s.Fulfillments[i], true
		}
	}
	return nil, false
}

// FulfillmentByDate returns the first fulfillment whose date exactly
// equals the given instant. Date equality was the observed addressing
// scheme; it is kept for callers that do not hold fulfillment IDs.
func (s *Subscription) FulfillmentByDate(date time.Time) (*Fulfillment, bool) {
	for i := range s.Fulfillments {
		if s.Fulfillments[i].FulfillmentDate.Equal(date) {
			return &s.Fulfillments[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy. Callers that hand a subscription across a
// goroutine boundary copy first so the single-writer rule holds.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	out.Fulfillments = make([]Fulfillment, len(s.Fulfillments))
	copy(out.Fulfillments, s.Fulfillments)
	out.CommunicationLog = make([]LogEntry, len(s.CommunicationLog))
	copy(out.CommunicationLog, s.CommunicationLog)
	return &out
}
