package idempotency

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 14, 9, 26, 53, 0, time.UTC)

	a := GenerateKey("sub-1", "ful-2", "Shipped", at)
	b := GenerateKey("sub-1", "ful-2", "Shipped", at)
	if a != b {
		t.Errorf("same inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestGenerateKeyToleratesClockDrift(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 14, 9, 26, 10, 0, time.UTC)
	drifted := base.Add(40 * time.Second)

	if GenerateKey("sub-1", "ful-2", "Shipped", base) != GenerateKey("sub-1", "ful-2", "Shipped", drifted) {
		t.Error("keys within the same minute should match")
	}

	nextMinute := base.Add(time.Minute)
	if GenerateKey("sub-1", "ful-2", "Shipped", base) == GenerateKey("sub-1", "ful-2", "Shipped", nextMinute) {
		t.Error("keys a minute apart should differ")
	}
}

func TestGenerateKeyVariesByComponent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)
	base := GenerateKey("sub-1", "ful-2", "Shipped", at)

	tests := []struct {
		name string
		key  string
	}{
		{"subscription", GenerateKey("sub-2", "ful-2", "Shipped", at)},
		{"fulfillment", GenerateKey("sub-1", "ful-3", "Shipped", at)},
		{"status", GenerateKey("sub-1", "ful-2", "Awaiting RX", at)},
	}
	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("changing %s did not change the key", tt.name)
		}
	}
}

func TestIsTerminalError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown status", errors.New(`unknown status value: "Teleported"`), true},
		{"missing fulfillment", errors.New("fulfillment not found"), true},
		{"missing tracking", errors.New("tracking number required for shipped transitions"), true},
		{"transient db", errors.New("connection refused"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isTerminalError(tt.err); got != tt.want {
				t.Errorf("isTerminalError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
