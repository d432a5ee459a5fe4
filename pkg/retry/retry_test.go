package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.NextDelay(i + 1); got != w {
			t.Errorf("retry %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	p := DefaultPolicy()
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) { waits = append(waits, d) }

	calls := 0
	err := p.Do(context.Background(), "op", func() Outcome {
		calls++
		if calls < 3 {
			return Transient(errors.New("503"))
		}
		return OK()
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("unexpected waits: %v", waits)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	p := NoDelay()
	calls := 0
	want := errors.New("400 bad request")
	err := p.Do(context.Background(), "op", func() Outcome {
		calls++
		return Permanent(want)
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoGivesUpAfterBudget(t *testing.T) {
	p := NoDelay()
	calls := 0
	err := p.Do(context.Background(), "op", func() Outcome {
		calls++
		return Transient(errors.New("timeout"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", calls)
	}
}
