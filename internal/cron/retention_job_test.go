package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	calls := 0
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: logger.Nop(),
		DB:     passthroughTx{},
		Purge: func(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
			calls++
			gotCutoff = cutoff
			return 7, nil
		},
		Retention: Days(30),
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	job := jobIface.(*retentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one purge, got %d", calls)
	}
	if want := now.Add(-30 * 24 * time.Hour); !gotCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, gotCutoff)
	}
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job, err := NewRetentionJob(RetentionJobParams{
		Name:   "attempt-retention",
		Logger: logger.Nop(),
		DB:     passthroughTx{},
		Purge: func(context.Context, *gorm.DB, time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
		Retention: Days(90),
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetentionJobRequiresPositiveWindow(t *testing.T) {
	_, err := NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: logger.Nop(),
		DB:     passthroughTx{},
		Purge: func(context.Context, *gorm.DB, time.Time) (int64, error) {
			return 0, nil
		},
	})
	if err == nil {
		t.Fatal("expected error for zero retention")
	}
}
