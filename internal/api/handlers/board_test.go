package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianrx/rxsub/internal/board"
	"github.com/meridianrx/rxsub/internal/domain/subscription"
)

func newBoardRouter(t *testing.T) (chi.Router, *board.Board) {
	t.Helper()
	b := board.New(nil)
	r := chi.NewRouter()
	r.Mount("/board", NewBoardHandler(b, nil).Routes())
	return r, b
}

func applySnapshot(t *testing.T, b *board.Board, patient string, start time.Time) *subscription.Subscription {
	t.Helper()
	sub, err := subscription.New(subscription.NewParams{
		PatientName: patient,
		DrugName:    "Sertraline 50mg",
		Duration:    2,
		StartDate:   start,
		RxID:        "RX-777",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	value, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := b.Apply(sub.ID, value); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return sub
}

func TestBoardList(t *testing.T) {
	t.Parallel()
	router, b := newBoardRouter(t)

	later := applySnapshot(t, b, "Booker Hale", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	earlier := applySnapshot(t, b, "Amber Chu", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/board", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Items []board.Item `json:"items"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count: got %d, want 2", resp.Count)
	}
	if resp.Items[0].Subscription.ID != earlier.ID {
		t.Errorf("first item: got %s, want %s", resp.Items[0].Subscription.PatientName, earlier.PatientName)
	}
	if resp.Items[1].Subscription.ID != later.ID {
		t.Errorf("second item: got %s, want %s", resp.Items[1].Subscription.PatientName, later.PatientName)
	}
}

func TestBoardGetAndStats(t *testing.T) {
	t.Parallel()
	router, b := newBoardRouter(t)
	sub := applySnapshot(t, b, "Amber Chu", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/board/"+sub.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", rec.Code)
	}

	var item board.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Subscription.ID != sub.ID {
		t.Errorf("id: got %q, want %q", item.Subscription.ID, sub.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/board/unknown", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	req = httptest.NewRequest(http.MethodGet, "/board/stats", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: got %d", rec.Code)
	}

	var stats board.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Subscriptions != 1 || stats.AppliedSnapshots != 1 {
		t.Errorf("stats: got %+v", stats)
	}
}
