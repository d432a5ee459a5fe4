package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	useruc "github.com/landovsky/gmail-assistant-sub002/internal/user/usecase"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// HandlerFunc processes one claimed job against the owner's mailbox.
type HandlerFunc func(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error

// DeferError asks the pool to put the job back without using an attempt.
type DeferError struct {
	Delay  time.Duration
	Reason string
}

func (e *DeferError) Error() string {
	return fmt.Sprintf("deferred for %s: %s", e.Delay, e.Reason)
}

// Defer builds a DeferError.
func Defer(delay time.Duration, reason string) error {
	return &DeferError{Delay: delay, Reason: reason}
}

// ErrorRecorder appends a thread's terminal failure to its audit log.
type ErrorRecorder interface {
	RecordError(ctx context.Context, userID, threadID, msg string) error
}

// Pool runs a fixed number of poll-and-claim workers over the job queue.
type Pool struct {
	jobs      jobrepo.JobRepository
	users     userrepo.UserRepository
	mailboxes useruc.Mailboxes
	errors    ErrorRecorder
	handlers  map[jobdomain.Type]HandlerFunc

	workerCount  int
	pollInterval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
}

// NewPool creates a worker pool. Handlers are added with Register before
// Start.
func NewPool(jobs jobrepo.JobRepository, users userrepo.UserRepository, mailboxes useruc.Mailboxes, recorder ErrorRecorder, cfg config.WorkerConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Pool{
		jobs:         jobs,
		users:        users,
		mailboxes:    mailboxes,
		errors:       recorder,
		handlers:     map[jobdomain.Type]HandlerFunc{},
		workerCount:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
	}
}

// Register sets the handler of a job type.
func (p *Pool) Register(t jobdomain.Type, h HandlerFunc) {
	p.handlers[t] = h
}

// Types returns the registered job types in a stable order.
func (p *Pool) Types() []jobdomain.Type {
	types := make([]jobdomain.Type, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.workerWg.Add(1)
		go p.worker(ctx, i)
	}
	log.Printf("[Worker] Started %d workers for %v", p.workerCount, p.Types())
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.workerWg.Wait()
	log.Println("[Worker] All workers stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.workerWg.Done()

	for ctx.Err() == nil {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			log.Printf("[Worker] Worker %d: %v", id, err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.pollInterval):
		}
	}
	log.Printf("[Worker] Worker %d stopped", id)
}

// ProcessNext claims and runs one job. It reports whether a job was
// claimed; handler failures are recorded on the job, not returned.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.jobs.Claim(ctx, p.Types()...)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *jobdomain.Job) {
	started := time.Now()
	log.Printf("[Worker] Processing job %s: %s (user=%s, attempt %d/%d)", job.ID, job.Type, job.UserID, job.Attempts, job.MaxAttempts)

	err := p.run(ctx, job)
	// Queue bookkeeping must survive shutdown of the worker context.
	bg := context.WithoutCancel(ctx)

	var deferred *DeferError
	switch {
	case err == nil:
		if err := p.jobs.Complete(bg, job.ID); err != nil {
			log.Printf("[Worker] Failed to complete job %s: %v", job.ID, err)
			return
		}
		log.Printf("[Worker] Job %s (%s) completed in %s", job.ID, job.Type, time.Since(started).Round(time.Millisecond))

	case errors.As(err, &deferred):
		if err := p.jobs.Release(bg, job.ID, deferred.Delay); err != nil {
			log.Printf("[Worker] Failed to release job %s: %v", job.ID, err)
			return
		}
		log.Printf("[Worker] Job %s (%s) %v", job.ID, job.Type, deferred)

	default:
		p.fail(bg, job, err)
	}
}

func (p *Pool) run(ctx context.Context, job *jobdomain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Job %s panicked: %v\n%s", job.ID, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	handler, ok := p.handlers[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	user, err := p.users.FindByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s not found", job.UserID)
	}
	if !user.IsActive {
		log.Printf("[Worker] User %s is inactive, dropping %s job %s", user.ID, job.Type, job.ID)
		return nil
	}
	mb, err := p.mailboxes.ForUser(ctx, user)
	if err != nil {
		return err
	}
	return handler(ctx, job, user, mb)
}

func (p *Pool) fail(ctx context.Context, job *jobdomain.Job, cause error) {
	log.Printf("[Worker] Job %s (%s) failed: %v", job.ID, job.Type, cause)
	updated, err := p.jobs.Fail(ctx, job.ID, cause.Error())
	if err != nil {
		log.Printf("[Worker] Failed to record failure of job %s: %v", job.ID, err)
		return
	}
	if updated.Status != jobdomain.StatusFailed {
		return
	}
	log.Printf("[Worker] Job %s (%s) failed permanently after %d attempts", job.ID, job.Type, updated.Attempts)
	if job.ThreadKey == "" || p.errors == nil {
		return
	}
	msg := fmt.Sprintf("%s job failed after %d attempts: %v", job.Type, updated.Attempts, cause)
	if err := p.errors.RecordError(ctx, job.UserID, job.ThreadKey, msg); err != nil {
		log.Printf("[Worker] Failed to record error event for thread %s: %v", job.ThreadKey, err)
	}
}
