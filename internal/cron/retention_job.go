package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PurgeFunc deletes rows older than cutoff and reports how many went.
type PurgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	DB        txRunner
	Purge     PurgeFunc
	Retention time.Duration
}

// NewRetentionJob builds a job that deletes rows past their retention window.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, errors.New("job name required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	if params.Purge == nil {
		return nil, errors.New("purge func required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		db:        params.DB,
		purge:     params.Purge,
		retention: params.Retention,
		now:       time.Now,
	}, nil
}

// Days converts a day count from config into a retention window.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	purge     PurgeFunc
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.purge(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}
