package vaultobserve

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// SnapshotAdmittedEvent is published, best-effort, whenever a snapshot
// clears admission. Publication failure never fails the admitting
// request: the event stream is a non-authoritative notification channel,
// not part of the admission invariants.
type SnapshotAdmittedEvent struct {
	VolumePubkey string    `json:"volume_pubkey"`
	Hash         string    `json:"hash"`
	Generation   uint64    `json:"generation"`
	Size         uint64    `json:"size"`
	AdmittedAt   time.Time `json:"admitted_at"`
}

// PublisherConfig configures an EventPublisher.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// EventPublisher publishes admitted-snapshot notifications to Kafka with
// bounded retry.
type EventPublisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewEventPublisher(cfg PublisherConfig) (*EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("vaultobserve: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("vaultobserve: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Brokers...),
		Topic: cfg.Topic,
		// Key-hash balancing keeps one volume's events ordered on a
		// single partition.
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &EventPublisher{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// PublishSnapshotAdmitted publishes ev, keyed by volume pubkey. Failures
// are logged, never returned to the caller's admission path.
func (p *EventPublisher) PublishSnapshotAdmitted(ctx context.Context, ev SnapshotAdmittedEvent) {
	if p == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		Logf("vaultobserve", "marshal snapshot event failed: %v", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.VolumePubkey),
		Value: value,
		Time:  ev.AdmittedAt,
	}
	if err := p.writeWithRetry(ctx, msg); err != nil {
		Logf("vaultobserve", "publish snapshot event failed after %d attempts: %v", p.maxAttempts, err)
	}
}

func (p *EventPublisher) writeWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return lastErr
}

// Close shuts down the underlying writer.
func (p *EventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
