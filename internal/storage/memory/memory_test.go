package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/storage"
)

func newRecord(t *testing.T, patient string) *subscription.Subscription {
	t.Helper()
	sub, err := subscription.New(subscription.NewParams{
		PatientName: patient,
		DrugName:    "Atorvastatin 20mg",
		Duration:    3,
		StartDate:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		RxID:        "RX-10021",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sub
}

func TestCreateGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()
	sub := newRecord(t, "Dana Velez")

	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, sub); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate Create: got %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PatientName != sub.PatientName || len(got.Fulfillments) != len(sub.Fulfillments) {
		t.Fatalf("Get returned a different record: got %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	store := New()

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
	if err := store.Put(context.Background(), newRecord(t, "Kai Moreno")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Put missing: got %v, want ErrNotFound", err)
	}
	if err := store.Delete(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Delete missing: got %v, want ErrNotFound", err)
	}
}

func TestPutReplacesWholeRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()
	sub := newRecord(t, "Dana Velez")
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub.NewRxCall = true
	if _, err := sub.ApplyTransition(sub.Fulfillments[1].ID, subscription.FulfillmentIntakeSent, ""); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if err := store.Put(ctx, sub); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.NewRxCall {
		t.Error("Put did not persist the replaced record")
	}
	if got.Fulfillments[1].Status != subscription.FulfillmentIntakeSent {
		t.Errorf("fulfillment status: got %q, want %q", got.Fulfillments[1].Status, subscription.FulfillmentIntakeSent)
	}
}

func TestStoreIsolatesCallers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()
	sub := newRecord(t, "Dana Velez")
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating the caller's copy after Create must not leak into the store.
	sub.Fulfillments[0].Status = subscription.FulfillmentShipped

	got, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fulfillments[0].Status == subscription.FulfillmentShipped {
		t.Error("store shared fulfillment state with the caller")
	}

	// Mutating a fetched copy must not leak either.
	got.PatientName = "Mallory"
	again, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.PatientName == "Mallory" {
		t.Error("store shared record state with a reader")
	}
}

func TestListInsertionOrderAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	first := newRecord(t, "Amber Chu")
	second := newRecord(t, "Booker Hale")
	third := newRecord(t, "Cleo Ward")
	for _, sub := range []*subscription.Subscription{first, second, third} {
		if err := store.Create(ctx, sub); err != nil {
			t.Fatalf("Create(%s): %v", sub.PatientName, err)
		}
	}

	if err := store.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	subs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("List length: got %d, want 2", len(subs))
	}
	if subs[0].ID != first.ID || subs[1].ID != third.ID {
		t.Errorf("List order: got [%s %s], want [%s %s]",
			subs[0].PatientName, subs[1].PatientName, first.PatientName, third.PatientName)
	}
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := New()
	if err := store.Create(ctx, newRecord(t, "Dana Velez")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Create with cancelled context: got %v, want context.Canceled", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("List with cancelled context: got %v, want context.Canceled", err)
	}
}
