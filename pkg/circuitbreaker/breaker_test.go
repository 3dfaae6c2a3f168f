package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
		FailureRatio:     0.6,
		MinRequests:      100, // Keep tests on the consecutive-failure path.
	}
}

func TestExecutePassesThroughResults(t *testing.T) {
	t.Parallel()
	cb, err := New(testConfig("pass-through"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "published", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "published" {
		t.Errorf("result: got %v, want %q", result, "published")
	}
	if !cb.IsClosed() {
		t.Errorf("state: got %q, want closed", cb.GetState())
	}
}

func TestExecutePropagatesFailures(t *testing.T) {
	t.Parallel()
	cb, err := New(testConfig("propagate"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wantErr := errors.New("broker unreachable")
	_, err = cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Execute error: got %v, want %v", err, wantErr)
	}
	if counts := cb.Counts(); counts.TotalFailures != 1 {
		t.Errorf("failures: got %d, want 1", counts.TotalFailures)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb, err := New(testConfig("opens"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
	}

	if !cb.IsOpen() {
		t.Fatalf("state after failures: got %q, want open", cb.GetState())
	}

	_, err = cb.Execute(context.Background(), func() (interface{}, error) {
		t.Error("function must not run while the circuit is open")
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open circuit error: got %v, want %v", err, gobreaker.ErrOpenState)
	}
}
