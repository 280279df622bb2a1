package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// Publisher delivery policy: eight attempts with exponential backoff from
// two seconds, capped at five minutes, then dead-letter.
const (
	DefaultMaxAttempts    = 8
	DefaultInitialBackoff = 2 * time.Second
	DefaultBackoffCap     = 5 * time.Minute
	DefaultBatchLimit     = 100
)

// Sink receives published events. Delivery is at-least-once; sinks must
// tolerate redelivery.
type Sink interface {
	Publish(ctx context.Context, topic string, payload json.RawMessage) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, topic string, payload json.RawMessage) error

func (f SinkFunc) Publish(ctx context.Context, topic string, payload json.RawMessage) error {
	return f(ctx, topic, payload)
}

// HTTPSink posts events to a downstream collector endpoint.
type HTTPSink struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPSink builds an HTTP sink targeting endpoint.
func NewHTTPSink(endpoint string, httpClient *http.Client) *HTTPSink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{endpoint: endpoint, httpClient: httpClient}
}

type sinkEnvelope struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func (s *HTTPSink) Publish(ctx context.Context, topic string, payload json.RawMessage) error {
	body, err := json.Marshal(sinkEnvelope{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("outbox: encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("outbox: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("outbox: publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("outbox: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// LogSink writes events to the service log. Used when no collector endpoint
// is configured so events remain observable in development.
type LogSink struct {
	Logger infra.Logger
}

func (s LogSink) Publish(ctx context.Context, topic string, payload json.RawMessage) error {
	s.Logger.Info().
		Str("topic", topic).
		RawJSON("payload", payload).
		Msg("outbox: event published")
	return nil
}

// Publisher drains pending outbox events to its sinks. Every sink must
// accept an event before it is marked published; a failure reschedules the
// whole event with exponential backoff until the attempt budget is spent,
// after which it moves to the dead-letter state for operator inspection.
type Publisher struct {
	store          domain.Store
	sinks          []Sink
	logger         infra.Logger
	maxAttempts    int
	initialBackoff time.Duration
	backoffCap     time.Duration
	batchLimit     int
}

// NewPublisher wires a publisher over the given sinks.
func NewPublisher(store domain.Store, logger infra.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		store:          store,
		sinks:          sinks,
		logger:         logger,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		backoffCap:     DefaultBackoffCap,
		batchLimit:     DefaultBatchLimit,
	}
}

// Drain publishes one batch of due pending events. It returns the number of
// events successfully published; per-event failures are recorded on the
// event and do not abort the batch.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	events, err := p.store.Outbox().ListPending(ctx, time.Now(), p.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}

	published := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := p.deliver(ctx, ev); err != nil {
			p.settleFailure(ctx, ev, err)
			continue
		}
		if err := p.store.Outbox().MarkPublished(ctx, ev.ID, time.Now().UTC()); err != nil {
			p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("outbox: mark published failed")
			continue
		}
		published++
	}
	return published, nil
}

func (p *Publisher) deliver(ctx context.Context, ev domain.OutboxEvent) error {
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, ev.Topic, ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) settleFailure(ctx context.Context, ev domain.OutboxEvent, cause error) {
	attempts := ev.Attempts + 1
	if attempts >= p.maxAttempts {
		if err := p.store.Outbox().MarkDead(ctx, ev.ID, cause.Error()); err != nil {
			p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("outbox: mark dead failed")
			return
		}
		p.logger.Error().
			Str("event_id", ev.ID).
			Str("topic", ev.Topic).
			Int("attempts", attempts).
			Str("last_error", cause.Error()).
			Msg("outbox: event dead-lettered")
		return
	}

	next := time.Now().Add(p.Backoff(attempts))
	if err := p.store.Outbox().MarkFailed(ctx, ev.ID, attempts, next, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("outbox: mark failed failed")
		return
	}
	p.logger.Warn().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Int("attempts", attempts).
		Time("next_attempt_at", next).
		Err(cause).
		Msg("outbox: publish failed, rescheduled")
}

// Backoff returns the delay before the given attempt: exponential from the
// initial delay, capped.
func (p *Publisher) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.initialBackoff << (attempt - 1)
	if d > p.backoffCap || d <= 0 {
		d = p.backoffCap
	}
	return d
}

// Prune deletes published events older than the retention window.
func (p *Publisher) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	deleted, err := p.store.Outbox().DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune published events: %w", err)
	}
	if deleted > 0 {
		p.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("outbox: pruned published events")
	}
	return deleted, nil
}
