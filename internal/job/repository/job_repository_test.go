package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
)

func newRepo(t *testing.T) JobRepository {
	t.Helper()
	return NewJobRepository(storetest.Open(t))
}

func countJobs(t *testing.T, repo JobRepository) int {
	t.Helper()
	jobs, err := repo.ListRecent(context.Background(), "", 1000)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	return len(jobs)
}

func TestEnqueueDeduplicatesPendingJobs(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first, err := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: "t1"}, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second, err := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", map[string]string{"thread_id": "t1"}, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same id, got %s and %s", first, second)
	}
	if n := countJobs(t, repo); n != 1 {
		t.Fatalf("expected exactly one row, got %d", n)
	}

	// Different user, type or payload are distinct jobs.
	if id, _ := repo.Enqueue(ctx, jobdomain.TypeClassify, "u2", jobdomain.ThreadPayload{ThreadID: "t1"}, 0); id == first {
		t.Error("different user must not deduplicate")
	}
	if id, _ := repo.Enqueue(ctx, jobdomain.TypeDraft, "u1", jobdomain.ThreadPayload{ThreadID: "t1"}, 0); id == first {
		t.Error("different type must not deduplicate")
	}
	if n := countJobs(t, repo); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestEnqueueAfterClaimCreatesNewJob(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first, _ := repo.Enqueue(ctx, jobdomain.TypeSync, "u1", jobdomain.SyncPayload{}, 0)
	job, err := repo.Claim(ctx)
	if err != nil || job == nil || job.ID != first {
		t.Fatalf("Claim: %v %+v", err, job)
	}
	second, err := repo.Enqueue(ctx, jobdomain.TypeSync, "u1", jobdomain.SyncPayload{}, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if second == first {
		t.Fatal("a running job must not absorb new work")
	}
}

func TestClaimOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	a, _ := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: "a"}, 0)
	time.Sleep(2 * time.Millisecond)
	b, _ := repo.Enqueue(ctx, jobdomain.TypeDraft, "u1", jobdomain.ThreadPayload{ThreadID: "b"}, 0)

	job, err := repo.Claim(ctx, jobdomain.TypeDraft)
	if err != nil || job == nil || job.ID != b {
		t.Fatalf("expected filtered claim of %s, got %+v (%v)", b, job, err)
	}
	if job.Status != jobdomain.StatusRunning || job.Attempts != 1 || job.StartedAt == nil {
		t.Errorf("unexpected claimed job state %+v", job)
	}

	job, _ = repo.Claim(ctx)
	if job == nil || job.ID != a {
		t.Fatalf("expected %s, got %+v", a, job)
	}
	if job, _ := repo.Claim(ctx); job != nil {
		t.Fatalf("queue should be empty, got %+v", job)
	}
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	const total = 20
	for i := 0; i < total; i++ {
		if _, err := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: string(rune('a' + i))}, 0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.Claim(ctx)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestFailRetriesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, _ := repo.Enqueue(ctx, jobdomain.TypeDraft, "u1", jobdomain.ThreadPayload{ThreadID: "t1"}, 2)

	job, _ := repo.Claim(ctx)
	failed, err := repo.Fail(ctx, job.ID, "boom")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobdomain.StatusPending || failed.ErrorMessage != "boom" {
		t.Fatalf("expected pending retry, got %+v", failed)
	}
	// The retried job deduplicates again.
	if again, _ := repo.Enqueue(ctx, jobdomain.TypeDraft, "u1", jobdomain.ThreadPayload{ThreadID: "t1"}, 2); again != id {
		t.Fatalf("expected retried job to absorb duplicate, got %s", again)
	}

	job, _ = repo.Claim(ctx)
	if job == nil || job.Attempts != 2 {
		t.Fatalf("expected second attempt, got %+v", job)
	}
	failed, err = repo.Fail(ctx, job.ID, "boom again")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobdomain.StatusFailed {
		t.Fatalf("expected terminal failure, got %s", failed.Status)
	}
	if job, _ := repo.Claim(ctx); job != nil {
		t.Fatalf("failed job must not be claimable, got %+v", job)
	}
}

func TestReleaseDoesNotConsumeAttempt(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, _ := repo.Enqueue(ctx, jobdomain.TypeSync, "u1", jobdomain.SyncPayload{}, 1)
	job, _ := repo.Claim(ctx)
	if err := repo.Release(ctx, job.ID, time.Hour); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, _ := repo.Get(ctx, id)
	if got.Status != jobdomain.StatusPending || got.Attempts != 0 {
		t.Fatalf("unexpected released job %+v", got)
	}
	if job, _ := repo.Claim(ctx); job != nil {
		t.Fatal("released job should wait for its delay")
	}
}

func TestHasPendingJobAndCleanup(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	id, _ := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: "t1", MessageID: "m1"}, 0)
	if ok, _ := repo.HasPendingJob(ctx, "u1", jobdomain.TypeClassify, "t1"); !ok {
		t.Fatal("expected pending job for t1")
	}
	if ok, _ := repo.HasPendingJob(ctx, "u1", jobdomain.TypeClassify, "t2"); ok {
		t.Fatal("unexpected pending job for t2")
	}

	job, _ := repo.Claim(ctx)
	if err := repo.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if ok, _ := repo.HasPendingJob(ctx, "u1", jobdomain.TypeClassify, "t1"); ok {
		t.Fatal("completed job is not pending")
	}

	if n, _ := repo.Cleanup(ctx, 1); n != 0 {
		t.Fatalf("fresh job must survive cleanup, removed %d", n)
	}
	if n, _ := repo.Cleanup(ctx, -1); n != 1 {
		t.Fatalf("expected one reaped job, got %d", n)
	}
	if got, _ := repo.Get(ctx, id); got != nil {
		t.Fatal("job should be gone")
	}
}

func TestReclaimStale(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	retryable, _ := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: "t1"}, 3)
	exhausted, _ := repo.Enqueue(ctx, jobdomain.TypeClassify, "u1", jobdomain.ThreadPayload{ThreadID: "t2"}, 1)
	repo.Claim(ctx)
	repo.Claim(ctx)

	if n, _ := repo.ReclaimStale(ctx, time.Hour); n != 0 {
		t.Fatalf("fresh leases must be kept, reclaimed %d", n)
	}
	n, err := repo.ReclaimStale(ctx, -time.Second)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 reclaimed, got %d (%v)", n, err)
	}
	if got, _ := repo.Get(ctx, retryable); got.Status != jobdomain.StatusPending {
		t.Errorf("expected retryable job pending, got %s", got.Status)
	}
	if got, _ := repo.Get(ctx, exhausted); got.Status != jobdomain.StatusFailed {
		t.Errorf("expected exhausted job failed, got %s", got.Status)
	}
}
