// Package events publishes domain events to a Redis stream so downstream
// consumers (pharmacy queues, reporting) can follow intake activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/metrics"
)

const (
	TypeOrderSubmitted     = "order.submitted"
	TypeCarePlanGenerated  = "careplan.generated"
	defaultStreamMaxLength = 100000
)

// Event is one domain occurrence. Payload is JSON-encoded into the stream
// entry's "data" field.
type Event struct {
	Type       string
	Payload    interface{}
	OccurredAt time.Time
}

type OrderSubmitted struct {
	OrderID          uuid.UUID `json:"orderId"`
	PatientID        uuid.UUID `json:"patientId"`
	ProviderID       uuid.UUID `json:"providerId"`
	Medication       string    `json:"medication"`
	DuplicateWarning bool      `json:"duplicateWarning"`
}

type CarePlanGenerated struct {
	CarePlanID uuid.UUID `json:"carePlanId"`
	OrderID    uuid.UUID `json:"orderId"`
	PatientID  uuid.UUID `json:"patientId"`
	Backend    string    `json:"backend"`
	ArchiveKey string    `json:"archiveKey,omitempty"`
}

// Publisher delivers events. Publishing happens after the owning write has
// committed, so implementations must not be relied on for consistency.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RedisPublisher appends events to a capped Redis stream with XADD.
type RedisPublisher struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	metrics *metrics.Metrics
}

func NewRedisPublisher(client *redis.Client, stream string, m *metrics.Metrics) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		stream:  stream,
		maxLen:  defaultStreamMaxLength,
		metrics: m,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		p.metrics.ObserveEvent(evt.Type, metrics.OutcomeFailure)
		return fmt.Errorf("marshal %s payload: %w", evt.Type, err)
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      evt.Type,
			"data":      string(data),
			"timestamp": occurred.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		p.metrics.ObserveEvent(evt.Type, metrics.OutcomeFailure)
		return fmt.Errorf("xadd %s to %s: %w", evt.Type, p.stream, err)
	}
	p.metrics.ObserveEvent(evt.Type, metrics.OutcomeSuccess)
	return nil
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
