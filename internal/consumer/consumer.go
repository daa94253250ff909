package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
	applog "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
	"github.com/Lejs5034/LegionOfBrothers-sub000/pkg/mq"
)

// Recorder persists a mention batch.
type Recorder interface {
	RecordMentions(ctx context.Context, batch services.MentionBatch) error
}

// MentionConsumer drains the mention topic into the database.
type MentionConsumer struct {
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration
}

func NewMentionConsumer(recorder Recorder, logger *zap.Logger) *MentionConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MentionConsumer{recorder: recorder, logger: logger.Named("consumer"), timeout: 10 * time.Second}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *MentionConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *MentionConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (c *MentionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handle(session.Context(), message)
			// Failed records are logged and skipped so one bad batch
			// cannot stall the partition.
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *MentionConsumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	// Records without the header predate it and are mention batches.
	if et := mq.Header(message, mq.HeaderEventType); et != "" && et != services.MentionBatchEvent {
		c.logger.Debug("skip foreign event", zap.String("event", et), zap.Int64("offset", message.Offset))
		return
	}
	if traceID := mq.Header(message, mq.HeaderTraceID); traceID != "" {
		ctx = applog.WithTraceID(ctx, traceID)
	}

	var batch services.MentionBatch
	if err := json.Unmarshal(message.Value, &batch); err != nil {
		c.logger.Warn("drop malformed mention batch",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.recorder.RecordMentions(ctx, batch); err != nil {
		c.logger.Error("record mentions",
			zap.String("message_id", batch.MessageID),
			zap.String("trace_id", applog.GetTraceID(ctx)),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("mentions recorded", zap.String("message_id", batch.MessageID), zap.Int("count", len(batch.Mentions)))
}

// Start joins the consumer group and consumes until ctx is cancelled. The
// returned group must be closed by the caller.
func Start(ctx context.Context, brokers []string, groupID, topic string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (sarama.ConsumerGroup, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	go func() {
		for {
			if err := group.Consume(ctx, []string{topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Error("consume", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return group, nil
}
