package retry

import (
	"context"
	"log"
	"math"
	"time"
)

// Outcome is the result of a single attempt. Retryable tells the policy whether
// another attempt may succeed; it is set by the operation, not inferred from the
// error value.
type Outcome struct {
	Err       error
	Retryable bool
}

// OK is the outcome of a successful attempt.
func OK() Outcome { return Outcome{} }

// Transient marks err as worth retrying.
func Transient(err error) Outcome { return Outcome{Err: err, Retryable: err != nil} }

// Permanent marks err as final for this operation.
func Permanent(err error) Outcome { return Outcome{Err: err} }

// Policy configures capped exponential backoff.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// DefaultPolicy retries three times after the first failure, waiting 1s, 2s and 4s.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     4 * time.Second,
	}
}

// NoDelay returns a policy with the default retry count and no waiting between
// attempts.
func NoDelay() *Policy {
	return &Policy{MaxRetries: 3, Multiplier: 2.0}
}

// NextDelay returns the wait before the given retry (1-based).
func (p *Policy) NextDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry-1))
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, returns a non-retryable outcome, or the retry
// budget is spent. The error of the last attempt is returned.
func (p *Policy) Do(ctx context.Context, op string, fn func() Outcome) error {
	var out Outcome
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out = fn()
		if out.Err == nil {
			return nil
		}
		if !out.Retryable {
			return out.Err
		}
		if attempt == p.MaxRetries {
			break
		}
		delay := p.NextDelay(attempt + 1)
		log.Printf("[Retry] %s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, p.MaxRetries+1, delay, out.Err)
		p.wait(ctx, delay)
		if ctx.Err() != nil {
			return out.Err
		}
	}
	log.Printf("[Retry] %s failed after %d attempts: %v", op, p.MaxRetries+1, out.Err)
	return out.Err
}

func (p *Policy) wait(ctx context.Context, d time.Duration) {
	if p.sleep != nil {
		p.sleep(ctx, d)
		return
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
