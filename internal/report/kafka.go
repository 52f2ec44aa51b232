package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/dgcap/internal/core"
)

const (
	defaultKafkaTopic   = "dgcap-reports"
	defaultBatchTimeout = 50 * time.Millisecond
	defaultMaxAttempts  = 3
	publishTimeout      = 5 * time.Second
)

// KafkaConfig configures report publishing.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Compression string // none|gzip|snappy|lz4|zstd
	MaxAttempts int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends reports to a Kafka topic as JSON, keyed by host name.
type Publisher struct {
	writer messageWriter
	key    []byte
	topic  string

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher creates a synchronous Kafka writer for cfg.
func NewPublisher(cfg KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultKafkaTopic
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        1,
		BatchTimeout:     defaultBatchTimeout,
		MaxAttempts:      cfg.MaxAttempts,
		CompressionCodec: codec,
	})

	slog.Info("kafka report publisher created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"compression", cfg.Compression)
	return newPublisher(w, cfg.Topic), nil
}

func newPublisher(w messageWriter, topic string) *Publisher {
	host, err := os.Hostname()
	if err != nil {
		host = "dgcap"
	}
	return &Publisher{writer: w, key: []byte(host), topic: topic}
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	case "zstd":
		return compress.Zstd.Codec(), nil
	default:
		return nil, fmt.Errorf("%w: invalid kafka compression %q", core.ErrConfigInvalid, name)
	}
}

// Publish sends r. Errors are returned and counted.
func (p *Publisher) Publish(ctx context.Context, r Report) error {
	value, err := json.Marshal(r)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("serialize report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   p.key,
		Value: value,
		Time:  r.Time,
	})
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("publish report to %s: %w", p.topic, err)
	}
	p.published.Add(1)
	return nil
}

// PublishLogged sends r and logs a failure instead of returning it.
func (p *Publisher) PublishLogged(ctx context.Context, r Report) {
	if err := p.Publish(ctx, r); err != nil {
		slog.Warn("report publish failed", "error", err)
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	err := p.writer.Close()
	slog.Info("kafka report publisher stopped",
		"published", p.published.Load(),
		"failed", p.failed.Load())
	return err
}
