package gas

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

func newTestBreaker(t *testing.T, inner Source, threshold int, cooldown time.Duration) *BreakerSource {
	t.Helper()
	breaker, err := NewBreakerSource(BreakerConfig{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
		Logger:           zap.NewNop(),
	}, inner)
	if err != nil {
		t.Fatalf("NewBreakerSource() error = %v", err)
	}
	return breaker
}

func TestNewBreakerSource_Validation(t *testing.T) {
	inner := &fakeSource{name: "primary"}
	logger := zap.NewNop()

	tests := []struct {
		name string
		cfg  BreakerConfig
		src  Source
	}{
		{name: "nil-source", cfg: BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute, Logger: logger}},
		{name: "nil-logger", cfg: BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}, src: inner},
		{name: "zero-threshold", cfg: BreakerConfig{Cooldown: time.Minute, Logger: logger}, src: inner},
		{name: "zero-cooldown", cfg: BreakerConfig{FailureThreshold: 3, Logger: logger}, src: inner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBreakerSource(tt.cfg, tt.src); err == nil {
				t.Error("NewBreakerSource() succeeded, want error")
			}
		})
	}
}

func TestBreakerSource_PassesThroughWhileClosed(t *testing.T) {
	inner := &fakeSource{name: "primary", prices: []*types.GasPrice{gweiPrice(50, "primary")}}
	breaker := newTestBreaker(t, inner, 3, time.Minute)

	price, err := breaker.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if price.Source != "primary" {
		t.Errorf("Source = %q, want primary", price.Source)
	}
	if breaker.Name() != "primary" {
		t.Errorf("Name() = %q, want primary", breaker.Name())
	}
	if breaker.IsOpen() {
		t.Error("breaker open after a success")
	}
}

func TestBreakerSource_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeSource{name: "primary", failing: true}
	breaker := newTestBreaker(t, inner, 3, time.Hour)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := breaker.Fetch(ctx); err == nil {
			t.Fatal("Fetch() from failing source succeeded")
		}
	}
	if !breaker.IsOpen() {
		t.Fatal("breaker still closed after threshold failures")
	}

	// Open breaker fails fast without touching the source.
	before := inner.idx
	_, err := breaker.Fetch(ctx)
	if !errors.Is(err, ErrSourceSuspended) {
		t.Errorf("Fetch() while open error = %v, want ErrSourceSuspended", err)
	}
	if inner.idx != before {
		t.Error("open breaker still hit the wrapped source")
	}
}

func TestBreakerSource_FailuresResetOnSuccess(t *testing.T) {
	inner := &fakeSource{name: "primary", failing: true}
	breaker := newTestBreaker(t, inner, 3, time.Hour)

	ctx := context.Background()
	breaker.Fetch(ctx)
	breaker.Fetch(ctx)

	inner.failing = false
	inner.prices = []*types.GasPrice{gweiPrice(50, "primary")}
	if _, err := breaker.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	// Two more failures must not trip: the counter restarted at zero.
	inner.failing = true
	breaker.Fetch(ctx)
	breaker.Fetch(ctx)
	if breaker.IsOpen() {
		t.Error("breaker tripped without reaching the threshold")
	}
}

func TestBreakerSource_ProbeAfterCooldown(t *testing.T) {
	inner := &fakeSource{name: "primary", failing: true}
	breaker := newTestBreaker(t, inner, 1, 20*time.Millisecond)

	ctx := context.Background()
	breaker.Fetch(ctx)
	if !breaker.IsOpen() {
		t.Fatal("breaker not tripped")
	}

	time.Sleep(40 * time.Millisecond)

	// First probe fails: breaker re-trips and the cooldown restarts.
	if _, err := breaker.Fetch(ctx); errors.Is(err, ErrSourceSuspended) {
		t.Error("probe after cooldown was rejected")
	}
	if !breaker.IsOpen() {
		t.Error("breaker closed after a failed probe")
	}

	time.Sleep(40 * time.Millisecond)

	// Successful probe closes the breaker.
	inner.failing = false
	inner.prices = []*types.GasPrice{gweiPrice(50, "primary")}
	if _, err := breaker.Fetch(ctx); err != nil {
		t.Fatalf("successful probe error = %v", err)
	}
	if breaker.IsOpen() {
		t.Error("breaker still open after a successful probe")
	}
}

func TestBreakerSource_CloseReleasesInner(t *testing.T) {
	inner := &fakeSource{name: "primary"}
	breaker := newTestBreaker(t, inner, 3, time.Minute)

	breaker.Close()
	if !inner.closed {
		t.Error("Close() did not close the wrapped source")
	}
}
