package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

const (
	defaultExpiryBatchSize  = 500
	defaultExpiryMaxBatches = 200
)

type codeExpirer interface {
	ExpireStale(ctx context.Context, limit int) (int64, error)
}

// CodeExpiryJobParams configures the available→expired sweep of the code pool.
type CodeExpiryJobParams struct {
	Logger     *logger.Logger
	Codes      codeExpirer
	BatchSize  int
	MaxBatches int
}

// NewCodeExpiryJob expires available codes whose expiry has passed, in batches.
func NewCodeExpiryJob(params CodeExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Codes == nil {
		return nil, fmt.Errorf("codes service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultExpiryMaxBatches
	}
	return &codeExpiryJob{
		logg:       params.Logger,
		codes:      params.Codes,
		batchSize:  batch,
		maxBatches: maxBatches,
	}, nil
}

type codeExpiryJob struct {
	logg       *logger.Logger
	codes      codeExpirer
	batchSize  int
	maxBatches int
}

func (j *codeExpiryJob) Name() string { return "recharge-code-expiry" }

func (j *codeExpiryJob) Run(ctx context.Context) error {
	var total int64
	batches := 0
	for batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.codes.ExpireStale(ctx, j.batchSize)
		if err != nil {
			return fmt.Errorf("expire stale codes: %w", err)
		}
		batches++
		total += n
		if n < int64(j.batchSize) {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"codes_expired": total,
		"batches":       batches,
	})
	if batches == j.maxBatches {
		j.logg.Warn(logCtx, "code expiry stopped at batch limit; remaining codes wait for next run")
		return nil
	}
	j.logg.Info(logCtx, "code expiry complete")
	return nil
}
