package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	useruc "github.com/landovsky/gmail-assistant-sub002/internal/user/usecase"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail/gmailtest"
)

type poolFixture struct {
	pool   *Pool
	jobs   jobrepo.JobRepository
	events emailrepo.EmailEventRepository
	userID string
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	db := storetest.Open(t)
	u := storetest.CreateUser(t, db, "owner@example.com")

	jobs := jobrepo.NewJobRepository(db)
	events := emailrepo.NewEmailEventRepository(db)
	emails := emailrepo.NewEmailRecordRepository(db)
	manager := lifecycle.NewManager(emails, events, emailrepo.NewLabelMappingRepository(db))

	mb := gmailtest.New()
	mailboxes := useruc.MailboxesFunc(func(context.Context, *userdomain.User) (gmail.Mailbox, error) {
		return mb, nil
	})
	pool := NewPool(jobs, userrepo.NewUserRepository(db), mailboxes, manager, config.WorkerConfig{Concurrency: 2, PollInterval: 10 * time.Millisecond})
	return &poolFixture{pool: pool, jobs: jobs, events: events, userID: u.ID}
}

func (f *poolFixture) enqueue(t *testing.T, jt jobdomain.Type, userID string, payload any, maxAttempts int) string {
	t.Helper()
	id, err := f.jobs.Enqueue(context.Background(), jt, userID, payload, maxAttempts)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func (f *poolFixture) job(t *testing.T, id string) *jobdomain.Job {
	t.Helper()
	j, err := f.jobs.Get(context.Background(), id)
	if err != nil || j == nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return j
}

func (f *poolFixture) next(t *testing.T) bool {
	t.Helper()
	ok, err := f.pool.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	return ok
}

func TestProcessNextCompletesJob(t *testing.T) {
	f := newPoolFixture(t)
	var got *userdomain.User
	f.pool.Register(jobdomain.TypeDraft, func(_ context.Context, _ *jobdomain.Job, u *userdomain.User, _ gmail.Mailbox) error {
		got = u
		return nil
	})
	id := f.enqueue(t, jobdomain.TypeDraft, f.userID, jobdomain.ThreadPayload{ThreadID: "t1"}, 0)

	if !f.next(t) {
		t.Fatal("expected a job to be processed")
	}
	if got == nil || got.ID != f.userID {
		t.Fatalf("handler got user %+v", got)
	}
	if j := f.job(t, id); j.Status != jobdomain.StatusCompleted {
		t.Errorf("expected completed, got %s", j.Status)
	}
	if f.next(t) {
		t.Error("queue should be empty")
	}
}

func TestProcessNextOnlyClaimsRegisteredTypes(t *testing.T) {
	f := newPoolFixture(t)
	f.pool.Register(jobdomain.TypeDraft, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error { return nil })
	id := f.enqueue(t, jobdomain.TypeSync, f.userID, jobdomain.SyncPayload{}, 0)

	if f.next(t) {
		t.Fatal("sync job must not be claimed by a draft-only pool")
	}
	if j := f.job(t, id); j.Status != jobdomain.StatusPending {
		t.Errorf("expected pending, got %s", j.Status)
	}
}

func TestTerminalFailureRecordsThreadError(t *testing.T) {
	f := newPoolFixture(t)
	f.pool.Register(jobdomain.TypeDraft, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error {
		return errors.New("llm unavailable")
	})
	id := f.enqueue(t, jobdomain.TypeDraft, f.userID, jobdomain.ThreadPayload{ThreadID: "t1"}, 1)

	f.next(t)
	j := f.job(t, id)
	if j.Status != jobdomain.StatusFailed || j.ErrorMessage != "llm unavailable" {
		t.Fatalf("expected failed job, got %s %q", j.Status, j.ErrorMessage)
	}
	events, err := f.events.ListByThread(context.Background(), f.userID, "t1")
	if err != nil {
		t.Fatalf("ListByThread: %v", err)
	}
	if len(events) != 1 || events[0].EventType != emaildomain.EventError {
		t.Fatalf("expected one error event, got %+v", events)
	}
}

func TestFailureRetriesUntilExhausted(t *testing.T) {
	f := newPoolFixture(t)
	var calls int32
	f.pool.Register(jobdomain.TypeDraft, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	id := f.enqueue(t, jobdomain.TypeDraft, f.userID, jobdomain.ThreadPayload{ThreadID: "t1"}, 2)

	f.next(t)
	if j := f.job(t, id); j.Status != jobdomain.StatusPending {
		t.Fatalf("first failure should requeue, got %s", j.Status)
	}
	f.next(t)
	if j := f.job(t, id); j.Status != jobdomain.StatusFailed {
		t.Fatalf("second failure should be terminal, got %s", j.Status)
	}
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	f := newPoolFixture(t)
	f.pool.Register(jobdomain.TypeDraft, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error {
		panic("nil map")
	})
	id := f.enqueue(t, jobdomain.TypeDraft, f.userID, jobdomain.ThreadPayload{ThreadID: "t1"}, 1)

	f.next(t)
	if j := f.job(t, id); j.Status != jobdomain.StatusFailed || j.ErrorMessage != "panic: nil map" {
		t.Errorf("unexpected job state %s %q", j.Status, j.ErrorMessage)
	}
}

func TestDeferReleasesWithoutUsingAttempt(t *testing.T) {
	f := newPoolFixture(t)
	f.pool.Register(jobdomain.TypeSync, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error {
		return Defer(time.Hour, "busy")
	})
	id := f.enqueue(t, jobdomain.TypeSync, f.userID, jobdomain.SyncPayload{}, 1)

	f.next(t)
	j := f.job(t, id)
	if j.Status != jobdomain.StatusPending || j.Attempts != 0 {
		t.Fatalf("expected pending with no attempts used, got %s/%d", j.Status, j.Attempts)
	}
	if f.next(t) {
		t.Error("deferred job should not be claimable before its delay")
	}
}

func TestUnknownUserFailsJob(t *testing.T) {
	f := newPoolFixture(t)
	called := false
	f.pool.Register(jobdomain.TypeDraft, func(context.Context, *jobdomain.Job, *userdomain.User, gmail.Mailbox) error {
		called = true
		return nil
	})
	id := f.enqueue(t, jobdomain.TypeDraft, "ghost", jobdomain.ThreadPayload{ThreadID: "t1"}, 1)

	f.next(t)
	if called {
		t.Error("handler must not run for an unknown user")
	}
	if j := f.job(t, id); j.Status != jobdomain.StatusFailed {
		t.Errorf("expected failed, got %s", j.Status)
	}
}

func TestStartProcessesQueuedJobs(t *testing.T) {
	f := newPoolFixture(t)
	done := make(chan string, 4)
	f.pool.Register(jobdomain.TypeDraft, func(_ context.Context, j *jobdomain.Job, _ *userdomain.User, _ gmail.Mailbox) error {
		done <- j.ThreadKey
		return nil
	})
	for _, th := range []string{"t1", "t2", "t3"} {
		f.enqueue(t, jobdomain.TypeDraft, f.userID, jobdomain.ThreadPayload{ThreadID: th}, 0)
	}

	f.pool.Start(context.Background())
	defer f.pool.Stop()

	seen := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case th := <-done:
			seen[th] = true
		case <-timeout:
			t.Fatalf("timed out, processed %v", seen)
		}
	}
}
