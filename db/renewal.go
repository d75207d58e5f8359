package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RenewalEvent is one recorded renewal attempt.
type RenewalEvent struct {
	ID        uint   `gorm:"primaryKey"`
	Reason    string // trigger reason (file-changed, proactive-expiry, ...)
	Source    string // path or token identity that raised the request
	Outcome   string // "success" or "failure"
	Error     string
	StartedAt time.Time
	TookMs    int64
}

// keepEvents is how many history rows survive a prune.
const keepEvents = 500

// RenewalRepository defines decoupled operations for renewal history.
type RenewalRepository interface {
	Record(ctx context.Context, reason, source, outcome, errMsg string, startedAt time.Time, took time.Duration) error
	Recent(ctx context.Context, n int) ([]RenewalEvent, error)
	Prune(ctx context.Context) error
}

// gormRenewalRepo is a GORM-backed implementation of RenewalRepository.
// Use constructor NewRenewalRepository to obtain an instance.
type gormRenewalRepo struct{ db *gorm.DB }

// NewRenewalRepository creates a RenewalRepository. Accepts *gorm.DB to avoid global access.
func NewRenewalRepository(db *gorm.DB) RenewalRepository { return &gormRenewalRepo{db: db} }

func (r *gormRenewalRepo) Record(ctx context.Context, reason, source, outcome, errMsg string, startedAt time.Time, took time.Duration) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	event := RenewalEvent{
		Reason:    reason,
		Source:    source,
		Outcome:   outcome,
		Error:     errMsg,
		StartedAt: startedAt,
		TookMs:    took.Milliseconds(),
	}
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *gormRenewalRepo) Recent(ctx context.Context, n int) ([]RenewalEvent, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var events []RenewalEvent
	err := r.db.WithContext(ctx).Order("started_at desc").Limit(n).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Prune drops all but the newest keepEvents rows.
func (r *gormRenewalRepo) Prune(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	var cutoff RenewalEvent
	err := r.db.WithContext(ctx).Order("id desc").Offset(keepEvents).First(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id <= ?", cutoff.ID).Delete(&RenewalEvent{}).Error
}
