// Package mq publishes domain events to Kafka. Every record carries its event
// type and, when the request has one, the trace id as headers.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/config"
	applog "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
)

const (
	HeaderEventType = "event-type"
	HeaderTraceID   = "trace-id"
)

var ErrProducerClosed = errors.New("kafka producer is closed")

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewKafkaProducer connects a synchronous producer. Records are hashed by key
// so one conversation's events stay on one partition.
func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Compression = sarama.CompressionSnappy
	if cfg.SendTimeout > 0 {
		sc.Producer.Timeout = cfg.SendTimeout
		sc.Net.WriteTimeout = cfg.SendTimeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("start sarama producer: %w", err)
	}
	return NewKafkaProducerFrom(producer, cfg.Topic, logger), nil
}

// NewKafkaProducerFrom wraps an existing sarama producer.
func NewKafkaProducerFrom(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{producer: producer, topic: topic, logger: logger.Named("mq"), now: time.Now}
}

func (k *KafkaProducer) Topic() string { return k.topic }

// Publish sends v as JSON under key.
func (k *KafkaProducer) Publish(ctx context.Context, key, eventType string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	headers := []sarama.RecordHeader{{Key: []byte(HeaderEventType), Value: []byte(eventType)}}
	traceID := applog.GetTraceID(ctx)
	if traceID != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte(HeaderTraceID), Value: []byte(traceID)})
	}
	msg := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Headers:   headers,
		Timestamp: k.now(),
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrProducerClosed
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	k.logger.Debug("event published",
		zap.String("event", eventType),
		zap.String("key", key),
		zap.String("trace_id", traceID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close is idempotent; Publish fails with ErrProducerClosed afterwards.
func (k *KafkaProducer) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.producer.Close()
}

// Header returns the named header of a consumed record, or "".
func Header(msg *sarama.ConsumerMessage, name string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == name {
			return string(h.Value)
		}
	}
	return ""
}
