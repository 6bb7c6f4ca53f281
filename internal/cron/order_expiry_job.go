package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const (
	defaultOrderExpiry = 15 * time.Minute
	expiryBatchSize    = 200
)

// OrderExpiryJobParams configure the unpaid order sweeper.
type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Orders  orderExpirer
	Metrics *metrics.OrderMetrics
	Expiry  time.Duration
}

type orderExpirer interface {
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, id uuid.UUID, cutoff time.Time, note string) (bool, error)
}

func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = defaultOrderExpiry
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		metrics: params.Metrics,
		expiry:  expiry,
		batch:   expiryBatchSize,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	orders  orderExpirer
	metrics *metrics.OrderMetrics
	expiry  time.Duration
	batch   int
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run cancels every pending, unpaid order placed before now minus the expiry
// window. Each order is expired in its own transaction; a failure is collected
// and the sweep moves on.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.expiry)
	note := fmt.Sprintf("Order automatically cancelled: not paid within %s", j.expiry)

	ids, err := j.orders.FindExpired(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find expired orders: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.orders.Expire(ctx, id, cutoff, note)
		if err != nil {
			j.logg.Error(j.logg.WithField(ctx, "order_id", id.String()), "expire order failed", err)
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
	}
	j.metrics.AddExpired(expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(ids),
		"expired":    expired,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}
