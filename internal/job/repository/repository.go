package repository

import (
	"context"
	"time"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
)

// JobRepository is the durable work queue.
type JobRepository interface {
	// Enqueue inserts a pending job, or returns the id of the pending job with
	// the same (type, user, payload).
	Enqueue(ctx context.Context, jobType jobdomain.Type, userID string, payload any, maxAttempts int) (string, error)
	// Claim takes the oldest claimable pending job, optionally restricted to
	// types. It returns nil, nil when nothing is claimable.
	Claim(ctx context.Context, types ...jobdomain.Type) (*jobdomain.Job, error)
	Complete(ctx context.Context, id string) error
	// Fail records msg. The job returns to pending while attempts remain and
	// is terminally failed otherwise. The updated job is returned.
	Fail(ctx context.Context, id, msg string) (*jobdomain.Job, error)
	// Release returns a running job to pending without consuming an attempt.
	Release(ctx context.Context, id string, delay time.Duration) error
	Cleanup(ctx context.Context, daysOld int) (int64, error)
	HasPendingJob(ctx context.Context, userID string, jobType jobdomain.Type, threadKey string) (bool, error)
	// ReclaimStale requeues running jobs whose lease is older than timeout.
	ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error)
	Get(ctx context.Context, id string) (*jobdomain.Job, error)
	ListRecent(ctx context.Context, status jobdomain.Status, limit int) ([]*jobdomain.Job, error)
	Stats(ctx context.Context) ([]jobdomain.Stats, error)
}
