package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/redis/go-redis/v9"
)

const DefaultAuditStream = "commands:audit"

// auditMaxLen caps the stream; trimming is approximate.
const auditMaxLen = 100_000

// AuditPublisher appends command events to a Redis stream.
type AuditPublisher struct {
	client *redis.Client
	stream string
}

func NewAuditPublisher(client *redis.Client, stream string) *AuditPublisher {
	if stream == "" {
		stream = DefaultAuditStream
	}
	return &AuditPublisher{client: client, stream: stream}
}

func (p *AuditPublisher) Publish(ctx context.Context, e command.Event) error {
	values, err := EncodeAuditEvent(e)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: auditMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// EncodeAuditEvent flattens e into stream fields.
func EncodeAuditEvent(e command.Event) (map[string]any, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	return map[string]any{
		"type":        e.Type,
		"command":     e.Command,
		"success":     strconv.FormatBool(e.Success),
		"error":       e.Error,
		"duration_ms": strconv.FormatInt(e.Duration.Milliseconds(), 10),
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"payload":     string(payload),
	}, nil
}

// AuditRecord is an audit event read back from the stream. The payload
// stays raw JSON since its shape depends on the command.
type AuditRecord struct {
	ID         string
	Type       string
	Command    string
	Success    bool
	Error      string
	Duration   time.Duration
	OccurredAt time.Time
	Payload    json.RawMessage
}

// DecodeAuditEvent parses a stream message written by AuditPublisher.
func DecodeAuditEvent(msg redis.XMessage) (AuditRecord, error) {
	rec := AuditRecord{ID: msg.ID}
	field := func(name string) string {
		s, _ := msg.Values[name].(string)
		return s
	}

	rec.Type = field("type")
	rec.Command = field("command")
	if rec.Type == "" || rec.Command == "" {
		return rec, fmt.Errorf("audit message %s: missing type or command", msg.ID)
	}
	rec.Error = field("error")

	var err error
	if rec.Success, err = strconv.ParseBool(field("success")); err != nil {
		return rec, fmt.Errorf("audit message %s: success: %w", msg.ID, err)
	}
	if ms := field("duration_ms"); ms != "" {
		n, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("audit message %s: duration: %w", msg.ID, err)
		}
		rec.Duration = time.Duration(n) * time.Millisecond
	}
	if ts := field("occurred_at"); ts != "" {
		if rec.OccurredAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return rec, fmt.Errorf("audit message %s: occurred_at: %w", msg.ID, err)
		}
	}
	if p := field("payload"); p != "" {
		rec.Payload = json.RawMessage(p)
	}
	return rec, nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

// CreateGroup creates the stream and group if missing.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the block duration. No messages is not an error.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale messages: %w", err)
	}
	return msgs, nil
}
