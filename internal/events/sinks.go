package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/util"
)

// KafkaProducer is the slice of client.KafkaProducer the sinks use.
type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type KafkaSink struct {
	producer KafkaProducer
	topic    string
}

func NewKafkaSink(producer KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, batch []Event) error {
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		key := e.AccountID
		if key == "" {
			key = e.Email
		}
		headers := map[string]string{"event_type": string(e.Type)}
		if err := s.producer.ProduceMessage(ctx, s.topic, []byte(key), value, headers); err != nil {
			return err
		}
	}
	return nil
}

// DocumentIndexer is the slice of client.ESClient the sink uses.
type DocumentIndexer interface {
	BulkIndex(ctx context.Context, index string, docs map[string]interface{}) error
}

type ElasticsearchSink struct {
	es    DocumentIndexer
	index string
}

func NewElasticsearchSink(es DocumentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{es: es, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, batch []Event) error {
	docs := make(map[string]interface{}, len(batch))
	for _, e := range batch {
		docs[e.ID] = e
	}
	return s.es.BulkIndex(ctx, s.index, docs)
}

// SecurityEventWriter is the slice of client.ClickHouseClient the sink uses.
type SecurityEventWriter interface {
	InsertSecurityEvents(ctx context.Context, rows []client.SecurityEventRow) error
}

type ClickHouseSink struct {
	ch SecurityEventWriter
}

func NewClickHouseSink(ch SecurityEventWriter) *ClickHouseSink {
	return &ClickHouseSink{ch: ch}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Write(ctx context.Context, batch []Event) error {
	rows := make([]client.SecurityEventRow, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, client.SecurityEventRow{
			EventID:    e.ID,
			EventType:  string(e.Type),
			AccountID:  e.AccountID,
			Email:      e.Email,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			SessionID:  e.SessionID,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return s.ch.InsertSecurityEvents(ctx, rows)
}

// LogSink writes events to the service log. It is always installed.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: util.Named("security")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, batch []Event) error {
	for _, e := range batch {
		s.logger.Info("security event",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.String("account_id", e.AccountID),
			zap.String("email", e.Email),
			zap.String("ip_address", e.IPAddress),
			zap.String("session_id", e.SessionID),
			zap.Any("detail", e.Detail),
		)
	}
	return nil
}
