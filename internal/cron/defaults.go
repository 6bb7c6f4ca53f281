package cron

import (
	"fmt"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

// DefaultJobsParams wire the jobs every sweeper process runs. Payments is only
// registered when provider polling is configured.
type DefaultJobsParams struct {
	Logger   *logger.Logger
	Orders   orderExpirer
	Payments paymentPoller
	DB       txRunner
	Outbox   outboxRetentionRepo
	Metrics  *metrics.OrderMetrics
	Checkout config.CheckoutConfig
	Polling  config.PaymentsConfig
}

// NewDefaultRegistry registers order-expiry, payment-poll and outbox-retention.
func NewDefaultRegistry(params DefaultJobsParams) (*Registry, error) {
	registry := NewRegistry()

	expiry, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:  params.Logger,
		Orders:  params.Orders,
		Metrics: params.Metrics,
		Expiry:  params.Checkout.OrderExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("order expiry job: %w", err)
	}
	registry.Register(expiry, params.Checkout.SweepInterval)

	if params.Polling.PollingEnabled() && params.Payments != nil {
		poll, err := NewPaymentPollJob(params.Payments)
		if err != nil {
			return nil, fmt.Errorf("payment poll job: %w", err)
		}
		registry.Register(poll, params.Polling.PollInterval)
	}

	if params.Outbox != nil {
		retention, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
			Logger:     params.Logger,
			DB:         params.DB,
			Repository: params.Outbox,
		})
		if err != nil {
			return nil, fmt.Errorf("outbox retention job: %w", err)
		}
		registry.Register(retention, 0)
	}

	return registry, nil
}
