// Package scheduler runs the periodic maintenance of the assistant: the
// fallback and full syncs, watch renewal and queue housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	syncuc "github.com/landovsky/gmail-assistant-sub002/internal/sync/usecase"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	useruc "github.com/landovsky/gmail-assistant-sub002/internal/user/usecase"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"

	"github.com/robfig/cron/v3"
)

// reclaimSpec is how often running jobs with an expired lease are requeued.
const reclaimSpec = "@every 1m"

// cronParser accepts standard 5-field expressions, an optional seconds
// field and descriptors such as "@every 15m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns the cron entries of the background maintenance tasks.
type Scheduler struct {
	jobs      jobrepo.JobRepository
	users     userrepo.UserRepository
	mailboxes useruc.Mailboxes
	sync      *syncuc.Engine
	cfg       config.SyncConfig
	topic     string

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. An empty topic disables watch renewal.
func New(jobs jobrepo.JobRepository, users userrepo.UserRepository, mailboxes useruc.Mailboxes, engine *syncuc.Engine, cfg config.SyncConfig, topic string) *Scheduler {
	if cfg.FallbackIntervalMinutes <= 0 {
		cfg.FallbackIntervalMinutes = 15
	}
	if cfg.FullSyncIntervalHours <= 0 {
		cfg.FullSyncIntervalHours = 24
	}
	if cfg.WatchRenewalCron == "" {
		cfg.WatchRenewalCron = "0 3 * * *"
	}
	if cfg.CleanupCron == "" {
		cfg.CleanupCron = "30 4 * * *"
	}
	if cfg.JobRetentionDays <= 0 {
		cfg.JobRetentionDays = 7
	}
	if cfg.LeaseTimeoutMinutes <= 0 {
		cfg.LeaseTimeoutMinutes = 10
	}
	return &Scheduler{
		jobs:      jobs,
		users:     users,
		mailboxes: mailboxes,
		sync:      engine,
		cfg:       cfg,
		topic:     topic,
		cron:      cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the entries and starts the cron ticker. Watches are
// renewed once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	entries := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"fallback sync", fmt.Sprintf("@every %dm", s.cfg.FallbackIntervalMinutes), s.fallbackSync},
		{"full sync", fmt.Sprintf("@every %dh", s.cfg.FullSyncIntervalHours), s.fullSync},
		{"watch renewal", s.cfg.WatchRenewalCron, s.RenewWatches},
		{"job cleanup", s.cfg.CleanupCron, s.CleanupJobs},
		{"reclaim stale", reclaimSpec, s.ReclaimStale},
	}
	for _, e := range entries {
		name, run := e.name, e.run
		if _, err := s.cron.AddFunc(e.spec, func() { s.runTask(name, run) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", e.spec, e.name, err)
		}
		log.Printf("[Scheduler] Scheduled %s (%s)", e.name, e.spec)
	}
	s.cron.Start()

	go s.runTask("watch renewal", s.RenewWatches)
	return nil
}

// Stop stops the cron ticker and waits for running entries.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Scheduler stopped")
}

func (s *Scheduler) runTask(name string, run func(context.Context) (int, error)) {
	n, err := run(s.ctx)
	if err != nil {
		log.Printf("[Scheduler] %s failed: %v", name, err)
		return
	}
	log.Printf("[Scheduler] %s done (%d)", name, n)
}

func (s *Scheduler) fallbackSync(ctx context.Context) (int, error) {
	return s.EnqueueSyncAll(ctx, false)
}

func (s *Scheduler) fullSync(ctx context.Context) (int, error) {
	return s.EnqueueSyncAll(ctx, true)
}

// EnqueueSyncAll queues a sync job for every active user. full forces a
// bootstrap sync.
func (s *Scheduler) EnqueueSyncAll(ctx context.Context, full bool) (int, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}
	queued := 0
	for _, u := range users {
		if _, err := s.jobs.Enqueue(ctx, jobdomain.TypeSync, u.ID, jobdomain.SyncPayload{ForceFull: full}, 0); err != nil {
			log.Printf("[Scheduler] Failed to queue sync for %s: %v", u.Email, err)
			continue
		}
		queued++
	}
	return queued, nil
}

// RenewWatches renews the push subscription of every active user.
func (s *Scheduler) RenewWatches(ctx context.Context) (int, error) {
	if s.topic == "" {
		return 0, nil
	}
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}
	renewed := 0
	for _, u := range users {
		mb, err := s.mailboxes.ForUser(ctx, u)
		if err != nil {
			log.Printf("[Scheduler] No mailbox for %s: %v", u.Email, err)
			continue
		}
		if err := s.sync.RenewWatch(ctx, mb, u.ID, s.topic); err != nil {
			log.Printf("[Scheduler] Watch renewal for %s failed: %v", u.Email, err)
			continue
		}
		renewed++
	}
	return renewed, nil
}

// CleanupJobs deletes finished jobs older than the retention period.
func (s *Scheduler) CleanupJobs(ctx context.Context) (int, error) {
	n, err := s.jobs.Cleanup(ctx, s.cfg.JobRetentionDays)
	return int(n), err
}

// ReclaimStale requeues running jobs whose worker vanished.
func (s *Scheduler) ReclaimStale(ctx context.Context) (int, error) {
	n, err := s.jobs.ReclaimStale(ctx, s.cfg.LeaseTimeout())
	return int(n), err
}
