package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EscalationEvent announces a delivered escalation to downstream consumers.
type EscalationEvent struct {
	EscalationID int64
	ResultID     int64
	Project      string
	Kind         string // "email" or "issue"
	Target       string // recipient address or owner/name repository
	IssueURL     string // Optional: set for issues
	TraceID      string // Optional
	DeliveredAt  time.Time
}

type Producer interface {
	Publish(ctx context.Context, evt EscalationEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewRedisProducer appends events to stream with XADD.
func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Publish(ctx context.Context, evt EscalationEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: streamFields(evt),
	}).Err(); err != nil {
		return fmt.Errorf("publish escalation event: %w", err)
	}

	p.logger.InfoContext(ctx, "published escalation event",
		"escalation_id", evt.EscalationID, "kind", evt.Kind, "stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func streamFields(evt EscalationEvent) map[string]any {
	delivered := evt.DeliveredAt
	if delivered.IsZero() {
		delivered = time.Now()
	}

	fields := map[string]any{
		"escalation_id": evt.EscalationID,
		"result_id":     evt.ResultID,
		"project":       evt.Project,
		"kind":          evt.Kind,
		"target":        evt.Target,
		"delivered_at":  delivered.UTC().Format(time.RFC3339),
	}
	if evt.IssueURL != "" {
		fields["issue_url"] = evt.IssueURL
	}
	if evt.TraceID != "" {
		fields["trace_id"] = evt.TraceID
	}
	return fields
}
