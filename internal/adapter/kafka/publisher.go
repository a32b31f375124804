// Package kafka publishes tracked constellation snapshots to a sink topic
// for downstream consumers (renderers, archival).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/driftline/constellation-tracker/internal/config"
	"github.com/driftline/constellation-tracker/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces snapshot messages to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSnapshot serializes one poll's snapshot and writes it to the sink
// topic. The poll timestamp keys the message so replays stay ordered per
// partition.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap domain.ConstellationSnapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a snapshot into a Kafka message.
func serializeToMessage(snap domain.ConstellationSnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.PolledAt.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(snap.Source)},
			{Key: "hours_ago", Value: []byte(strconv.Itoa(snap.HoursAgo))},
			{Key: "point_count", Value: []byte(strconv.Itoa(len(snap.Points)))},
		},
	}, nil
}
