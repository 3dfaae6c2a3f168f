package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/observability/metrics"
	"github.com/meridianrx/rxsub/internal/storage/memory"
)

func newTestRouter(t *testing.T) (chi.Router, *memory.Store) {
	t.Helper()
	store := memory.New()
	r := chi.NewRouter()
	m := metrics.New(prometheus.NewRegistry())
	r.Mount("/subscriptions", NewSubscriptionHandler(store, m, nil).Routes())
	return r, store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createSubscription(t *testing.T, router http.Handler, duration int) SubscriptionResponse {
	t.Helper()
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	rec := doJSON(t, router, http.MethodPost, "/subscriptions", CreateRequest{
		PatientName: "Dana Velez",
		DrugName:    "Metformin 500mg",
		Duration:    duration,
		StartDate:   &start,
		RxID:        "RX-88341",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp SubscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func TestCreateSubscription(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	resp := createSubscription(t, router, 6)
	sub := resp.Subscription

	if len(sub.Fulfillments) != 6 {
		t.Fatalf("fulfillments: got %d, want 6", len(sub.Fulfillments))
	}
	if sub.Status != subscription.StatusPending {
		t.Errorf("status: got %q, want %q", sub.Status, subscription.StatusPending)
	}
	if sub.Fulfillments[0].Status != subscription.FulfillmentRxReceived {
		t.Errorf("first fulfillment: got %q, want %q", sub.Fulfillments[0].Status, subscription.FulfillmentRxReceived)
	}
	if sub.Fulfillments[0].RxID != "RX-88341" {
		t.Errorf("first fulfillment rx: got %q, want %q", sub.Fulfillments[0].RxID, "RX-88341")
	}
	if resp.Derived.Status != subscription.StatusActionRequired {
		t.Errorf("derived: got %q, want %q", resp.Derived.Status, subscription.StatusActionRequired)
	}
	if resp.Meta != subscription.StatusActionRequired.Meta() {
		t.Errorf("meta: got %+v", resp.Meta)
	}
	if len(sub.CommunicationLog) != 1 {
		t.Fatalf("log entries: got %d, want 1", len(sub.CommunicationLog))
	}
	if sub.CommunicationLog[0].Actor != subscription.ActorSystem {
		t.Errorf("creation entry actor: got %q, want %q", sub.CommunicationLog[0].Actor, subscription.ActorSystem)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body CreateRequest
	}{
		{"missing patient", CreateRequest{DrugName: "Metformin 500mg", Duration: 3}},
		{"missing drug", CreateRequest{PatientName: "Dana Velez", Duration: 3}},
		{"zero duration", CreateRequest{PatientName: "Dana Velez", DrugName: "Metformin 500mg"}},
		{"negative duration", CreateRequest{PatientName: "Dana Velez", DrugName: "Metformin 500mg", Duration: -2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/subscriptions", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetSubscription(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)

	rec := doJSON(t, router, http.MethodGet, "/subscriptions/"+created.Subscription.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", rec.Code)
	}

	var resp SubscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subscription.ID != created.Subscription.ID {
		t.Errorf("id: got %q, want %q", resp.Subscription.ID, created.Subscription.ID)
	}

	if rec := doJSON(t, router, http.MethodGet, "/subscriptions/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing subscription status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListSubscriptions(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	first := createSubscription(t, router, 3)
	second := createSubscription(t, router, 4)

	rec := doJSON(t, router, http.MethodGet, "/subscriptions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}

	var resp []SubscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("list length: got %d, want 2", len(resp))
	}
	if resp[0].Subscription.ID != first.Subscription.ID || resp[1].Subscription.ID != second.Subscription.ID {
		t.Error("list is not in storage order")
	}
}

func TestTransitionShipped(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	sub := created.Subscription

	path := fmt.Sprintf("/subscriptions/%s/fulfillments/%s/transition", sub.ID, sub.Fulfillments[0].ID)
	rec := doJSON(t, router, http.MethodPost, path, TransitionRequest{Status: "Shipped", Tracking: "1Z999AA10123456784"})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp TransitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subscription.Fulfillments[0].Status != subscription.FulfillmentShipped {
		t.Errorf("fulfillment status: got %q", resp.Subscription.Fulfillments[0].Status)
	}
	if resp.Entry.Actor != subscription.ActorStaff {
		t.Errorf("entry actor: got %q, want %q", resp.Entry.Actor, subscription.ActorStaff)
	}
	if !strings.Contains(resp.Entry.Message, "1Z999AA10123456784") {
		t.Errorf("entry message missing tracking: %q", resp.Entry.Message)
	}
	// With the only RX Received fulfillment shipped the rest are Scheduled,
	// so the subscription derives Active.
	if resp.Derived.Status != subscription.StatusActive {
		t.Errorf("derived: got %q, want %q", resp.Derived.Status, subscription.StatusActive)
	}

	// The write persisted: a fresh read sees the transition and its entry.
	get := doJSON(t, router, http.MethodGet, "/subscriptions/"+sub.ID, nil)
	var fresh SubscriptionResponse
	if err := json.Unmarshal(get.Body.Bytes(), &fresh); err != nil {
		t.Fatalf("decode fresh: %v", err)
	}
	if fresh.Subscription.Fulfillments[0].Status != subscription.FulfillmentShipped {
		t.Error("transition was not persisted")
	}
	if len(fresh.Subscription.CommunicationLog) != 2 {
		t.Errorf("log entries: got %d, want 2", len(fresh.Subscription.CommunicationLog))
	}
}

func TestTransitionValidation(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	sub := created.Subscription
	path := fmt.Sprintf("/subscriptions/%s/fulfillments/%s/transition", sub.ID, sub.Fulfillments[1].ID)

	rec := doJSON(t, router, http.MethodPost, path, TransitionRequest{Status: "Teleported"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doJSON(t, router, http.MethodPost, path, TransitionRequest{Status: "Shipped"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("shipped without tracking: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	badFulfillment := fmt.Sprintf("/subscriptions/%s/fulfillments/%s/transition", sub.ID, "bogus")
	rec = doJSON(t, router, http.MethodPost, badFulfillment, TransitionRequest{Status: "Intake Sent"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown fulfillment: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	badSub := fmt.Sprintf("/subscriptions/%s/fulfillments/%s/transition", "missing", sub.Fulfillments[1].ID)
	rec = doJSON(t, router, http.MethodPost, badSub, TransitionRequest{Status: "Intake Sent"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown subscription: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	// Failed attempts must leave the record untouched.
	get := doJSON(t, router, http.MethodGet, "/subscriptions/"+sub.ID, nil)
	var fresh SubscriptionResponse
	if err := json.Unmarshal(get.Body.Bytes(), &fresh); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fresh.Subscription.CommunicationLog) != 1 {
		t.Errorf("log entries after failed attempts: got %d, want 1", len(fresh.Subscription.CommunicationLog))
	}
}

func TestTransitionByDate(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	sub := created.Subscription

	rec := doJSON(t, router, http.MethodPost, "/subscriptions/"+sub.ID+"/transitions", TransitionByDateRequest{
		FulfillmentDate: sub.Fulfillments[1].FulfillmentDate,
		Status:          "Awaiting RX",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp TransitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subscription.Fulfillments[1].Status != subscription.FulfillmentAwaitingRx {
		t.Errorf("fulfillment status: got %q", resp.Subscription.Fulfillments[1].Status)
	}

	rec = doJSON(t, router, http.MethodPost, "/subscriptions/"+sub.ID+"/transitions", TransitionByDateRequest{
		FulfillmentDate: time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:          "Awaiting RX",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unmatched date: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHoldAndResume(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	id := created.Subscription.ID

	rec := doJSON(t, router, http.MethodPost, "/subscriptions/"+id+"/hold", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hold status: got %d", rec.Code)
	}
	var held TransitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &held); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if held.Derived.Status != subscription.StatusOnHold || !held.Derived.Manual {
		t.Errorf("derived after hold: got %+v, want manual On Hold", held.Derived)
	}

	rec = doJSON(t, router, http.MethodPost, "/subscriptions/"+id+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status: got %d", rec.Code)
	}
	var resumed TransitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resumed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// A fresh subscription still has its first fulfillment at RX Received.
	if resumed.Derived.Status != subscription.StatusActionRequired {
		t.Errorf("derived after resume: got %q, want %q", resumed.Derived.Status, subscription.StatusActionRequired)
	}
	if resumed.Derived.Manual {
		t.Error("resume left the manual override set")
	}
}

func TestUpdateAdministrativeFields(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	id := created.Subscription.ID

	flag := true
	physician := string(subscription.PhysicianApproved)
	rec := doJSON(t, router, http.MethodPatch, "/subscriptions/"+id, UpdateRequest{
		NewRxCall:       &flag,
		PhysicianStatus: &physician,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp SubscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Subscription.NewRxCall {
		t.Error("new_rx_call was not set")
	}
	if resp.Subscription.PhysicianStatus != subscription.PhysicianApproved {
		t.Errorf("physician status: got %q", resp.Subscription.PhysicianStatus)
	}
	if resp.Subscription.Status != subscription.StatusApproved {
		t.Errorf("status after approval: got %q, want %q", resp.Subscription.Status, subscription.StatusApproved)
	}
	// Both changes appended log entries after the creation entry.
	if len(resp.Subscription.CommunicationLog) != 3 {
		t.Errorf("log entries: got %d, want 3", len(resp.Subscription.CommunicationLog))
	}

	bad := "Maybe"
	rec = doJSON(t, router, http.MethodPatch, "/subscriptions/"+id, UpdateRequest{PhysicianStatus: &bad})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown physician status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAppendLogAndDisplayOrder(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	id := created.Subscription.ID

	for _, msg := range []string{"Called patient, left voicemail", "Patient confirmed address"} {
		rec := doJSON(t, router, http.MethodPost, "/subscriptions/"+id+"/log", AppendLogRequest{Message: msg})
		if rec.Code != http.StatusOK {
			t.Fatalf("append log status: got %d", rec.Code)
		}
	}

	if rec := doJSON(t, router, http.MethodPost, "/subscriptions/"+id+"/log", AppendLogRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec := doJSON(t, router, http.MethodGet, "/subscriptions/"+id+"/log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get log status: got %d", rec.Code)
	}

	var entries []subscription.LogEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("log entries: got %d, want 3", len(entries))
	}
	if entries[0].Message != "Patient confirmed address" {
		t.Errorf("newest entry first: got %q", entries[0].Message)
	}
	if entries[0].Actor != subscription.ActorStaff {
		t.Errorf("staff note actor: got %q, want %q", entries[0].Actor, subscription.ActorStaff)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Date.After(entries[i-1].Date) {
			t.Errorf("entries not in descending date order at %d", i)
		}
	}
}

func TestDeleteSubscription(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)
	created := createSubscription(t, router, 3)
	id := created.Subscription.ID

	rec := doJSON(t, router, http.MethodDelete, "/subscriptions/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	if rec := doJSON(t, router, http.MethodGet, "/subscriptions/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := doJSON(t, router, http.MethodDelete, "/subscriptions/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("double delete: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}
