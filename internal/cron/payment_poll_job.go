package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopcore-backend/internal/payments"
)

type paymentPoller interface {
	PollOnce(ctx context.Context) (payments.PollSummary, error)
}

// NewPaymentPollJob wraps one pass over the provider transaction feed.
func NewPaymentPollJob(poller paymentPoller) (Job, error) {
	if poller == nil {
		return nil, fmt.Errorf("payment poller required")
	}
	return &paymentPollJob{poller: poller}, nil
}

type paymentPollJob struct {
	poller paymentPoller
}

func (j *paymentPollJob) Name() string { return "payment-poll" }

func (j *paymentPollJob) Run(ctx context.Context) error {
	if _, err := j.poller.PollOnce(ctx); err != nil {
		return fmt.Errorf("payment poll: %w", err)
	}
	return nil
}
