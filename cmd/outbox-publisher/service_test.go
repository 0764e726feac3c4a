package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestProcessBatchRecordsEachOutcome(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			releasedEvent(t, "event-one", 0),
			releasedEvent(t, "event-two", 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, releasedRegistry(), &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
}

func TestProcessBatchPublishesAllBeforeWaiting(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			releasedEvent(t, "a", 0),
			releasedEvent(t, "b", 0),
			releasedEvent(t, "c", 0),
		},
	}
	pub := &fakePublisher{}
	for range repo.events {
		pub.results = append(pub.results, &orderedResult{pub: pub})
	}
	service := newTestService(t, repo, pub, releasedRegistry(), &fakeDLQRepo{}, &config.OutboxConfig{BatchSize: 3})

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, repo.published, 3)
	assert.Equal(t, []int{3, 3, 3}, pub.sentAtGet)
}

func TestPublisherReusedPerTopic(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			releasedEvent(t, "a", 0),
			releasedEvent(t, "b", 0),
		},
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub, releasedRegistry(), &fakeDLQRepo{}, nil)

	var topics []string
	service.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"payout-topic"}, topics)
	assert.Len(t, pub.messages, 2)

	service.stopPublishers()
	assert.Equal(t, 1, pub.stopped)
	assert.Empty(t, service.publishers)
}

func TestPublishSetsAttributes(t *testing.T) {
	event := releasedEvent(t, "attrs", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, releasedRegistry(), &fakeDLQRepo{}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, string(enums.EventEscrowHoldReleased), msg.Attributes["event_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.True(t, bytes.Equal(msg.Data, event.Payload), "message data should be the stored envelope")
}

func TestProcessBatchDeadLettersNonRetryable(t *testing.T) {
	event := releasedEvent(t, "nonretryable", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, reg, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)

	entry := dlqRepo.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.True(t, bytes.Equal(entry.Payload, event.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestProcessBatchTreatsResolveErrorsAsTerminal(t *testing.T) {
	event := releasedEvent(t, "plain-error", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{err: errors.New("boom")}, dlqRepo, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlqRepo.entries[0].ErrorReason)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := releasedEvent(t, "max-attempts", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, releasedRegistry(), dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)

	entry := dlqRepo.entries[0]
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "max publish attempts reached")
	assert.Empty(t, repo.failed, "terminal rows are not retryable failures")
}

func TestProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, releasedRegistry(), &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchFetchError(t *testing.T) {
	service := newTestService(t, &fakeRepo{fetchErr: errors.New("db down")}, &fakePublisher{}, releasedRegistry(), &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.ErrorContains(t, err, "fetch outbox batch")
	assert.False(t, processed)
}

func TestRunStopsWhenPingFails(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, releasedRegistry(), &fakeDLQRepo{}, nil)
	service.db = &fakeDB{pingErr: errors.New("refused")}

	err := service.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
}

func TestRunReturnsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, releasedRegistry(), &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   releasedRegistry(),
	})
	assert.EqualError(t, err, "dlq repository is required")

	_, err = NewService(ServiceParams{})
	assert.EqualError(t, err, "config is required")
}

func newTestService(t testing.TB, repo outboxRepository, pub publisher, reg registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return service
}

func releasedEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEscrowHoldReleased,
		AggregateType: enums.AggregateEscrowHold,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(tb, eventID),
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

func releasedRegistry() *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventEscrowHoldReleased,
			AggregateType: enums.AggregateEscrowHold,
			Topic:         "payout-topic",
		},
		Payload: &payloads.EscrowHoldReleasedEvent{},
	}}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"source":"admin"}`),
	}
	payload, err := json.Marshal(env)
	require.NoError(tb, err)
	return payload
}

type fakeRepo struct {
	fetchErr  error
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, f.fetchErr
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results   []publishResult
	messages  []*gcppubsub.Message
	sentAtGet []int
	stopped   int
}

func (f *fakePublisher) Stop() {
	f.stopped++
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

// orderedResult records how many messages had been sent when it was awaited.
type orderedResult struct {
	pub *fakePublisher
}

func (r *orderedResult) Get(context.Context) (string, error) {
	r.pub.sentAtGet = append(r.pub.sentAtGet, len(r.pub.messages))
	return "server-id", nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
