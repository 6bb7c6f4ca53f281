package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	maxJitter             = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// DispatcherParams wires the notification dispatcher.
type DispatcherParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Topics      topicSource
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    eventResolver
	Metrics     *metrics.OutboxMetrics

	// PublisherFor overrides topic lookup; tests inject fakes here.
	PublisherFor func(topic string) topicPublisher
}

// Dispatcher drains outbox_events onto the notification topic. Rows are claimed
// inside a transaction so each one is marked in the same commit that
// acknowledges its publish attempt.
type Dispatcher struct {
	logg         *logger.Logger
	db           txRunner
	topics       topicSource
	events       eventStore
	deadLetters  deadLetterStore
	registry     eventResolver
	metrics      *metrics.OutboxMetrics
	publisherFor func(topic string) topicPublisher
	publishers   map[string]topicPublisher

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

type outcome string

const (
	outcomePublished    outcome = metrics.OutboxPublished
	outcomeRetry        outcome = metrics.OutboxRetried
	outcomeDeadLettered outcome = metrics.OutboxDeadLettered
)

type batchStats struct {
	claimed      int
	published    int
	retried      int
	deadLettered int
}

func (s *batchStats) record(o outcome) {
	switch o {
	case outcomePublished:
		s.published++
	case outcomeRetry:
		s.retried++
	case outcomeDeadLettered:
		s.deadLettered++
	}
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Topics == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	d := &Dispatcher{
		logg:         p.Logger,
		db:           p.DB,
		topics:       p.Topics,
		events:       p.Events,
		deadLetters:  p.DeadLetters,
		registry:     p.Registry,
		metrics:      p.Metrics,
		publisherFor: p.PublisherFor,
		publishers:   make(map[string]topicPublisher),
		batchSize:    positiveOr(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(p.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
	}
	if p.Outbox.PollIntervalMS > 0 {
		d.pollInterval = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if d.publisherFor == nil {
		d.publisherFor = d.gcpPublisher
	}
	return d, nil
}

// Run polls until ctx is cancelled. A full, clean batch is followed immediately
// by the next one. A failed batch doubles the wait up to maxIdleBackoff.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := d.topics.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := d.pollInterval
	for {
		stats, err := d.dispatchBatch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case stats.claimed > 0:
			wait = d.pollInterval
			d.logBatch(ctx, stats)
			if stats.claimed == d.batchSize && stats.retried == 0 {
				continue
			}
		default:
			wait = d.pollInterval
		}

		if err := sleepCtx(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		rows, err := d.events.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		stats.claimed = len(rows)
		d.metrics.ObserveBatch(len(rows))

		for _, row := range rows {
			o, err := d.dispatchOne(ctx, tx, row)
			if err != nil {
				return err
			}
			stats.record(o)
			d.metrics.Dispatched(string(row.EventType), string(o))
		}
		return nil
	})
	return stats, err
}

// dispatchOne publishes a single row and records the result on it. The
// returned error is reserved for bookkeeping failures, which abort the batch.
func (d *Dispatcher) dispatchOne(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}

	pubErr := d.publish(ctx, row, resolved)
	if pubErr == nil {
		if err := d.events.MarkPublishedTx(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		return outcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(pubErr, &nonRetryable) {
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if row.AttemptCount+1 >= d.maxAttempts {
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr))
	}

	logCtx := d.logg.WithFields(ctx, rowFields(row))
	logCtx = d.logg.WithField(logCtx, "error", pubErr.Error())
	d.logg.Warn(logCtx, "outbox publish failed, will retry")
	if err := d.events.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := rowFields(row)
	fields["dlq_reason"] = reason
	fields["error"] = cause.Error()
	d.logg.Warn(d.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := d.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := d.events.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := d.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes:  messageAttributes(row, resolved),
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers filter and route without decoding the body.
func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"event_version":  strconv.Itoa(resolved.Envelope.Version),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	switch p := resolved.Payload.(type) {
	case *payloads.NewOrderNotification:
		attrs["order_number"] = p.OrderNumber
	case *payloads.OrderConfirmedNotification:
		attrs["order_number"] = p.OrderNumber
	}
	return attrs
}

func (d *Dispatcher) gcpPublisher(topic string) topicPublisher {
	if pub, ok := d.publishers[topic]; ok {
		return pub
	}
	raw := d.topics.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	pub := gcpPublisher{raw}
	d.publishers[topic] = pub
	return pub
}

func (d *Dispatcher) logBatch(ctx context.Context, stats batchStats) {
	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"claimed":       stats.claimed,
		"published":     stats.published,
		"retried":       stats.retried,
		"dead_lettered": stats.deadLettered,
	}), "outbox batch dispatched")
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func jitter() time.Duration {
	return rand.N(maxJitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return orderedResult{result: p.Publisher.Publish(ctx, msg), publisher: p.Publisher, key: msg.OrderingKey}
}

// orderedResult resumes the ordering key after a failure; Pub/Sub pauses a key
// until told otherwise.
type orderedResult struct {
	result    *gcppubsub.PublishResult
	publisher *gcppubsub.Publisher
	key       string
}

func (r orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.result.Get(ctx)
	if err != nil && r.key != "" {
		r.publisher.ResumePublish(r.key)
	}
	return id, err
}
