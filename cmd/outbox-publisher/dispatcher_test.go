package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/registry"
)

func TestDispatchBatchPublishesAndRetries(t *testing.T) {
	first := newOrderRow(t, "ORD17672400000000001", 0)
	second := newOrderRow(t, "ORD17672400000000002", 0)
	store := &memoryEvents{rows: []models.OutboxEvent{first, second}}
	pub := &recordingPublisher{errs: []error{errors.New("unavailable"), nil}}
	d := newTestDispatcher(t, store, &memoryDLQ{}, pub, config.OutboxConfig{BatchSize: 2, MaxAttempts: 5})

	stats, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, batchStats{claimed: 2, published: 1, retried: 1}, stats)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
}

func TestDispatchSetsOrderingKeyAndAttributes(t *testing.T) {
	row := newOrderRow(t, "ORD17672400000000042", 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	pub := &recordingPublisher{}
	d := newTestDispatcher(t, store, &memoryDLQ{}, pub, config.OutboxConfig{})

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, row.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, string(enums.EventNotificationNewOrder), msg.Attributes["event_type"])
	assert.Equal(t, "ORD17672400000000042", msg.Attributes["order_number"])
	assert.Equal(t, "1", msg.Attributes["event_version"])
	assert.Equal(t, []string{"notifications"}, pub.topics)
}

func TestDispatchDeadLettersUndecodableRows(t *testing.T) {
	row := newOrderRow(t, "ORD17672400000000003", 0)
	row.Payload = json.RawMessage(`{"version":1,"eventId":"x","data":null}`)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	pub := &recordingPublisher{}
	d := newTestDispatcher(t, store, dlq, pub, config.OutboxConfig{MaxAttempts: 4})

	stats, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.deadLettered)
	assert.Empty(t, pub.messages)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, row.ID, dlq.entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
	assert.Equal(t, map[uuid.UUID]int{row.ID: 4}, store.terminal)
}

func TestDispatchDeadLettersAfterMaxAttempts(t *testing.T) {
	row := newOrderRow(t, "ORD17672400000000004", 2)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	pub := &recordingPublisher{errs: []error{errors.New("deadline exceeded")}}
	d := newTestDispatcher(t, store, dlq, pub, config.OutboxConfig{MaxAttempts: 3})

	stats, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	assert.Empty(t, store.failed)
}

func TestDispatchWithoutPublisherDeadLetters(t *testing.T) {
	row := newOrderRow(t, "ORD17672400000000005", 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	dlq := &memoryDLQ{}
	d := newTestDispatcher(t, store, dlq, nil, config.OutboxConfig{})
	d.publisherFor = func(string) topicPublisher { return nil }

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestDispatchBatchAbortsOnBookkeepingFailure(t *testing.T) {
	row := newOrderRow(t, "ORD17672400000000006", 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}, markErr: errors.New("connection reset")}
	d := newTestDispatcher(t, store, &memoryDLQ{}, &recordingPublisher{}, config.OutboxConfig{})

	_, err := d.dispatchBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.Error(t, err)

	d := newTestDispatcher(t, &memoryEvents{}, &memoryDLQ{}, &recordingPublisher{}, config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, d.batchSize)
	assert.Equal(t, defaultMaxAttempts, d.maxAttempts)
	assert.Equal(t, defaultPollInterval, d.pollInterval)
}

func TestRunStopsOnCancel(t *testing.T) {
	d := newTestDispatcher(t, &memoryEvents{}, &memoryDLQ{}, &recordingPublisher{}, config.OutboxConfig{PollIntervalMS: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestDispatcher(t *testing.T, store eventStore, dlq deadLetterStore, pub *recordingPublisher, cfg config.OutboxConfig) *Dispatcher {
	t.Helper()
	events, err := registry.NewEventRegistry(config.PubSubConfig{NotificationTopic: "notifications"})
	require.NoError(t, err)

	d, err := NewDispatcher(DispatcherParams{
		Outbox:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:          passthroughDB{},
		Topics:      nilTopics{},
		Events:      store,
		DeadLetters: dlq,
		Registry:    events,
		Metrics:     metrics.NewOutboxMetrics(prometheus.NewRegistry()),
		PublisherFor: func(topic string) topicPublisher {
			if pub == nil {
				return nil
			}
			pub.topics = append(pub.topics, topic)
			return pub
		},
	})
	require.NoError(t, err)
	return d
}

func newOrderRow(t *testing.T, orderNumber string, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.NewOrderNotification{
		OrderID:     uuid.New(),
		OrderNumber: orderNumber,
		TotalAmount: 125000,
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationNewOrder,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
		AttemptCount:  attempts,
	}
}

type memoryEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  map[uuid.UUID]int
	markErr   error
}

func (m *memoryEvents) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memoryEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.published = append(m.published, id)
	return nil
}

func (m *memoryEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryEvents) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	if m.terminal == nil {
		m.terminal = make(map[uuid.UUID]int)
	}
	m.terminal[id] = attempts
	return nil
}

type memoryDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memoryDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type passthroughDB struct{}

func (passthroughDB) Ping(context.Context) error { return nil }

func (passthroughDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type nilTopics struct{}

func (nilTopics) Ping(context.Context) error { return nil }

func (nilTopics) Publisher(string) *gcppubsub.Publisher { return nil }

type recordingPublisher struct {
	errs     []error
	messages []*gcppubsub.Message
	topics   []string
}

func (r *recordingPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	r.messages = append(r.messages, msg)
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	return staticResult{err: err}
}

type staticResult struct {
	err error
}

func (s staticResult) Get(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "server-id", nil
}
