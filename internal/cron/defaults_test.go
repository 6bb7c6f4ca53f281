package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

func jobNames(registry *Registry) []string {
	var names []string
	for _, entry := range registry.Entries() {
		names = append(names, entry.Job.Name())
	}
	return names
}

func TestNewDefaultRegistrySkipsPollingWithoutProvider(t *testing.T) {
	registry, err := NewDefaultRegistry(DefaultJobsParams{
		Logger:   logger.Nop(),
		Orders:   &fakeExpirer{},
		Payments: &fakePoller{},
		DB:       passthroughTxRunner{},
		Outbox:   &fakeOutboxRetentionRepo{},
		Checkout: config.CheckoutConfig{OrderExpiry: 15 * time.Minute, SweepInterval: 5 * time.Minute},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order-expiry", "outbox-retention"}, jobNames(registry))
	assert.Equal(t, 5*time.Minute, registry.Entries()[0].Interval)
}

func TestNewDefaultRegistryWithPolling(t *testing.T) {
	registry, err := NewDefaultRegistry(DefaultJobsParams{
		Logger:   logger.Nop(),
		Orders:   &fakeExpirer{},
		Payments: &fakePoller{},
		Checkout: config.CheckoutConfig{OrderExpiry: 15 * time.Minute, SweepInterval: 5 * time.Minute},
		Polling: config.PaymentsConfig{
			ProviderBaseURL: "https://bank.example",
			ProviderToken:   "token",
			PollInterval:    time.Minute,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order-expiry", "payment-poll"}, jobNames(registry))
	assert.Equal(t, time.Minute, registry.Entries()[1].Interval)
}

func TestNewDefaultRegistryRequiresOrders(t *testing.T) {
	_, err := NewDefaultRegistry(DefaultJobsParams{Logger: logger.Nop()})
	require.Error(t, err)
}
