package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimRetries bounds compare-and-swap attempts when another worker wins the race.
const claimRetries = 5

// jobRepository implements JobRepository interface
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new instance of jobRepository
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{
		db: db,
	}
}

func (r *jobRepository) Enqueue(ctx context.Context, jobType jobdomain.Type, userID string, payload any, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = jobdomain.DefaultMaxAttempts
	}
	canonical, err := jobdomain.CanonicalPayload(payload)
	if err != nil {
		return "", err
	}
	key := jobdomain.DedupKey(jobType, userID, canonical)

	// The pending duplicate may leave the pending state between the insert
	// and the lookup; in that case the insert is simply retried.
	for i := 0; i < claimRetries; i++ {
		now := time.Now().UTC()
		job := &jobdomain.Job{
			ID:          uuid.New().String(),
			Type:        jobType,
			UserID:      userID,
			Payload:     canonical,
			ThreadKey:   jobdomain.ThreadKeyOf(canonical),
			Status:      jobdomain.StatusPending,
			MaxAttempts: maxAttempts,
			DedupKey:    &key,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).Create(job)
		if res.Error != nil {
			return "", fmt.Errorf("failed to enqueue %s job: %w", jobType, res.Error)
		}
		if res.RowsAffected == 1 {
			return job.ID, nil
		}

		var existing jobdomain.Job
		err := r.db.WithContext(ctx).Select("id").Where("dedup_key = ?", key).First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("failed to enqueue %s job: dedup race not resolved", jobType)
}

func (r *jobRepository) claimable(tx *gorm.DB, now time.Time, types []jobdomain.Type) *gorm.DB {
	q := tx.Where("status = ? AND attempts < max_attempts AND available_at <= ?", jobdomain.StatusPending, now)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	return q.Order("created_at, id")
}

func claimUpdates(now time.Time) map[string]any {
	return map[string]any{
		"status":     jobdomain.StatusRunning,
		"attempts":   gorm.Expr("attempts + 1"),
		"dedup_key":  nil,
		"started_at": now,
		"updated_at": now,
	}
}

func markClaimed(job *jobdomain.Job, now time.Time) {
	job.Status = jobdomain.StatusRunning
	job.Attempts++
	job.DedupKey = nil
	job.StartedAt = &now
	job.UpdatedAt = now
}

func (r *jobRepository) Claim(ctx context.Context, types ...jobdomain.Type) (*jobdomain.Job, error) {
	if r.db.Dialector.Name() == "postgres" {
		return r.claimLocked(ctx, types)
	}
	return r.claimCAS(ctx, types)
}

// claimLocked uses SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers
// never wait on each other's candidate row.
func (r *jobRepository) claimLocked(ctx context.Context, types []jobdomain.Type) (*jobdomain.Job, error) {
	var claimed *jobdomain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var job jobdomain.Job
		err := r.claimable(tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}), now, types).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Model(&jobdomain.Job{}).Where("id = ?", job.ID).Updates(claimUpdates(now)).Error; err != nil {
			return err
		}
		markClaimed(&job, now)
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return claimed, nil
}

// claimCAS selects a candidate and flips it with a conditional update. Losing
// the race to another worker just moves on to the next candidate.
func (r *jobRepository) claimCAS(ctx context.Context, types []jobdomain.Type) (*jobdomain.Job, error) {
	db := r.db.WithContext(ctx)
	for i := 0; i < claimRetries; i++ {
		now := time.Now().UTC()
		var job jobdomain.Job
		err := r.claimable(db, now, types).First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		res := db.Model(&jobdomain.Job{}).
			Where("id = ? AND status = ?", job.ID, jobdomain.StatusPending).
			Updates(claimUpdates(now))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim job: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			markClaimed(&job, now)
			return &job, nil
		}
	}
	return nil, nil
}

func (r *jobRepository) Complete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&jobdomain.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":        jobdomain.StatusCompleted,
		"dedup_key":     nil,
		"error_message": "",
		"completed_at":  now,
		"updated_at":    now,
	}).Error
}

func (r *jobRepository) Fail(ctx context.Context, id, msg string) (*jobdomain.Job, error) {
	job, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	now := time.Now().UTC()
	if job.Exhausted() {
		err := r.db.WithContext(ctx).Model(&jobdomain.Job{}).Where("id = ?", id).Updates(map[string]any{
			"status":        jobdomain.StatusFailed,
			"dedup_key":     nil,
			"error_message": msg,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
		if err != nil {
			return nil, err
		}
		job.Status = jobdomain.StatusFailed
		job.ErrorMessage = msg
		return job, nil
	}
	if err := r.requeue(ctx, job, msg, job.Attempts, now); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepository) Release(ctx context.Context, id string, delay time.Duration) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	attempts := job.Attempts - 1
	if attempts < 0 {
		attempts = 0
	}
	return r.requeue(ctx, job, job.ErrorMessage, attempts, time.Now().UTC().Add(delay))
}

// requeue puts job back to pending with its dedup key restored. If an
// identical job was enqueued meanwhile, that one carries the work and this
// one is closed as failed.
func (r *jobRepository) requeue(ctx context.Context, job *jobdomain.Job, msg string, attempts int, availableAt time.Time) error {
	key := jobdomain.DedupKey(job.Type, job.UserID, job.Payload)
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&jobdomain.Job{}).Where("id = ?", job.ID).Updates(map[string]any{
		"status":        jobdomain.StatusPending,
		"attempts":      attempts,
		"dedup_key":     key,
		"error_message": msg,
		"available_at":  availableAt,
		"updated_at":    now,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Printf("[Queue] Job %s superseded by a pending duplicate", job.ID)
		job.Status = jobdomain.StatusFailed
		job.ErrorMessage = msg
		return r.db.WithContext(ctx).Model(&jobdomain.Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":        jobdomain.StatusFailed,
			"dedup_key":     nil,
			"error_message": "superseded by pending duplicate: " + msg,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
	}
	if err != nil {
		return err
	}
	job.Status = jobdomain.StatusPending
	job.Attempts = attempts
	job.ErrorMessage = msg
	job.DedupKey = &key
	job.AvailableAt = availableAt
	return nil
}

func (r *jobRepository) Cleanup(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []jobdomain.Status{jobdomain.StatusCompleted, jobdomain.StatusFailed}, cutoff).
		Delete(&jobdomain.Job{})
	return res.RowsAffected, res.Error
}

func (r *jobRepository) HasPendingJob(ctx context.Context, userID string, jobType jobdomain.Type, threadKey string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&jobdomain.Job{}).
		Where("user_id = ? AND type = ? AND status = ?", userID, jobType, jobdomain.StatusPending)
	if threadKey != "" {
		q = q.Where("thread_key = ?", threadKey)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *jobRepository) ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	var stale []*jobdomain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", jobdomain.StatusRunning, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	var reclaimed int64
	for _, job := range stale {
		const msg = "lease expired"
		if job.Exhausted() {
			now := time.Now().UTC()
			res := r.db.WithContext(ctx).Model(&jobdomain.Job{}).
				Where("id = ? AND status = ?", job.ID, jobdomain.StatusRunning).
				Updates(map[string]any{
					"status":        jobdomain.StatusFailed,
					"error_message": msg,
					"completed_at":  now,
					"updated_at":    now,
				})
			if res.Error != nil {
				return reclaimed, res.Error
			}
			reclaimed += res.RowsAffected
			continue
		}
		if err := r.requeue(ctx, job, msg, job.Attempts, time.Now().UTC()); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (r *jobRepository) Get(ctx context.Context, id string) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) ListRecent(ctx context.Context, status jobdomain.Status, limit int) ([]*jobdomain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []*jobdomain.Job
	err := q.Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (r *jobRepository) Stats(ctx context.Context) ([]jobdomain.Stats, error) {
	var stats []jobdomain.Stats
	err := r.db.WithContext(ctx).Model(&jobdomain.Job{}).
		Select("type, status, COUNT(*) AS count").
		Group("type, status").
		Order("type, status").
		Scan(&stats).Error
	return stats, err
}
