package subscription

import (
	"testing"
	"time"
)

func TestAppendLogGrowsInInsertionOrder(t *testing.T) {
	t.Parallel()
	s := newTestSubscription(t, 1)

	s.AppendLog("first", ActorStaff)
	s.AppendLog("second", ActorSystem)

	if got := len(s.CommunicationLog); got != 3 {
		t.Fatalf("log length: got %d, want 3", got)
	}
	if s.CommunicationLog[1].Message != "first" || s.CommunicationLog[2].Message != "second" {
		t.Error("log entries are not in insertion order")
	}
	if s.CommunicationLog[1].Actor != ActorStaff {
		t.Errorf("actor: got %q, want %q", s.CommunicationLog[1].Actor, ActorStaff)
	}
	if s.CommunicationLog[2].Date.IsZero() {
		t.Error("appended entry has no timestamp")
	}
	if s.UpdatedAt.Before(s.CommunicationLog[2].Date) {
		t.Error("append should advance the subscription's updated timestamp")
	}
}

func TestDisplayOrderNewestFirstAndStable(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{ID: "a", Date: base.Add(-2 * time.Hour), Message: "oldest"},
		{ID: "b", Date: base, Message: "tied first"},
		{ID: "c", Date: base, Message: "tied second"},
		{ID: "d", Date: base.Add(time.Hour), Message: "newest"},
	}

	got := DisplayOrder(entries)

	wantIDs := []string{"d", "b", "c", "a"}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, got[i].ID, want)
		}
	}

	// The stored log keeps insertion order.
	if entries[0].ID != "a" || entries[3].ID != "d" {
		t.Error("DisplayOrder mutated the stored log")
	}
}

func TestDisplayOrderEmpty(t *testing.T) {
	t.Parallel()
	if got := DisplayOrder(nil); len(got) != 0 {
		t.Errorf("DisplayOrder(nil): got %d entries, want 0", len(got))
	}
}
