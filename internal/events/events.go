// Package events publishes an outbound-only audit stream of job
// lifecycle transitions to Kafka. It is adapted from the teacher's
// internal/queue Kafka producer almost unchanged in shape (batching,
// compression, acks); what changed is the payload (job lifecycle events
// instead of weather metrics) and that nothing in this server ever reads
// the stream back — it exists purely as an optional diagnostic tap, so
// publishing never fails a client-facing verb. With Async set (the
// default) it does not block one either; a synchronous writer waits for
// the broker.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/rmkadzi/workq/internal/logging"
)

// Kind names the lifecycle transition an Event records.
type Kind string

const (
	KindPut     Kind = "put"
	KindReserve Kind = "reserve"
	KindDelete  Kind = "delete"
	KindRelease Kind = "release"
	KindBury    Kind = "bury"
	KindKick    Kind = "kick"
	KindTimeout Kind = "timeout"
)

// Event is one job lifecycle transition, serialized as JSON onto the
// audit topic keyed by job id so a consumer can reconstruct a single
// job's history from partition order.
type Event struct {
	Kind Kind      `json:"kind"`
	ID   uint64    `json:"id"`
	Pri  uint32    `json:"pri,omitempty"`
	At   time.Time `json:"at"`
}

// ProducerConfig configures the underlying Kafka writer.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	Async        bool
	MaxAttempts  int
	RequiredAcks int
}

// DefaultProducerConfig mirrors the teacher's tuning: small batches,
// short timeout, snappy compression, async so a slow broker never stalls
// a verb handler.
func DefaultProducerConfig(brokers []string, topic string) *ProducerConfig {
	return &ProducerConfig{
		Brokers:      brokers,
		Topic:        topic,
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		Compression:  "snappy",
		Async:        true,
		MaxAttempts:  3,
		RequiredAcks: 1,
	}
}

// Publisher wraps a kafka.Writer, publishing Events keyed by job id.
type Publisher struct {
	writer *kafka.Writer
	log    *logging.Logger
}

// NewPublisher builds a Publisher from cfg. A nil cfg (or empty Brokers)
// yields a no-op publisher so the engine can be run with events disabled
// entirely without special-casing every call site.
func NewPublisher(cfg *ProducerConfig, log *logging.Logger) *Publisher {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return &Publisher{log: log}
	}

	var compression compress.Compression
	switch cfg.Compression {
	case "snappy":
		compression = compress.Snappy
	case "lz4":
		compression = compress.Lz4
	case "gzip":
		compression = compress.Gzip
	case "zstd":
		compression = compress.Zstd
	}

	var acks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case -1:
		acks = kafka.RequireAll
	case 0:
		acks = kafka.RequireNone
	default:
		acks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  compression,
		Async:        cfg.Async,
		RequiredAcks: acks,
		MaxAttempts:  cfg.MaxAttempts,
	}
	return &Publisher{writer: writer, log: log}
}

// Publish emits ev. Errors are logged and swallowed: the audit stream is
// a diagnostic tap, not a source of truth, so a broker outage must never
// surface as a client-visible failure.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p.writer == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logError("marshal event", err)
		return
	}
	key := []byte(strconv.FormatUint(ev.ID, 10))
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: data}); err != nil {
		p.logError("publish event", err)
	}
}

func (p *Publisher) logError(msg string, err error) {
	if p.log != nil {
		p.log.Warn(msg, "error", err)
	}
}

// Close flushes and closes the underlying writer, if any.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
