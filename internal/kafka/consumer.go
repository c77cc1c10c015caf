package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"post_scheduler/internal/cache"
	"post_scheduler/internal/metrics"

	"github.com/IBM/sarama"
)

// RequestProcessor inserts one authoring request as a pending row.
type RequestProcessor interface {
	ProcessPostRequest(ctx context.Context, message []byte) error
}

// Consumer ingests post authoring requests from the requests topic.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  *log.Logger
}

func NewConsumer(
	brokers []string,
	groupID string,
	topic string,
	processor RequestProcessor,
	c cache.Cache,
	logger *log.Logger,
) (*Consumer, error) {
	if logger == nil {
		logger = log.Default()
	}

	cfg := sarama.NewConfig()

	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	// Commit by hand only after a request has been stored.
	cfg.Consumer.Offsets.AutoCommit.Enable = false

	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	h := &requestGroupHandler{
		processor: processor,
		logger:    logger,
		cache:     c,
	}

	return &Consumer{
		group:   group,
		topic:   topic,
		handler: h,
		logger:  logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	// Group errors go to a separate log stream
	go func() {
		for err := range c.group.Errors() {
			c.logger.Printf("consumer group error: %v", err)
			metrics.IncKafkaError("consumer", "group")
		}
	}()

	for {
		err := c.group.Consume(ctx, []string{c.topic}, c.handler)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Printf("consume loop error: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type requestGroupHandler struct {
	processor RequestProcessor
	logger    *log.Logger
	cache     cache.Cache
}

func (h *requestGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *requestGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *requestGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for kafkaMsg := range claim.Messages() {
		lag := claim.HighWaterMarkOffset() - kafkaMsg.Offset - 1
		metrics.SetKafkaConsumerLag(kafkaMsg.Topic, kafkaMsg.Partition, lag)

		if err := h.processWithRetry(session.Context(), kafkaMsg); err != nil {
			metrics.IncKafkaError("consumer", "process")
			// Not marked, not committed: the message will be read again.
			return err
		}
		metrics.IncKafkaProcessed()

		// New row invalidates every cached list response.
		if h.cache != nil {
			_ = h.invalidateListCache(session.Context())
		}

		session.MarkMessage(kafkaMsg, "")
		session.Commit()
	}
	return nil
}

func (h *requestGroupHandler) processWithRetry(ctx context.Context, m *sarama.ConsumerMessage) error {
	attempt := 0

	for {
		attempt++
		err := h.processOnce(ctx, m)
		if err == nil {
			return nil
		}
		if isMalformed(err) {
			// Poison message: log and drop, retrying cannot fix it.
			h.logger.Printf(
				"drop malformed request topic=%s partition=%d offset=%d err=%v",
				m.Topic, m.Partition, m.Offset, err,
			)
			return nil
		}

		backoff := retryBackoff(attempt)
		h.logger.Printf(
			"process kafka request failed topic=%s partition=%d offset=%d attempt=%d err=%v; retry in %s",
			m.Topic, m.Partition, m.Offset, attempt, err, backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (h *requestGroupHandler) processOnce(ctx context.Context, m *sarama.ConsumerMessage) error {
	if err := h.processor.ProcessPostRequest(ctx, m.Value); err != nil {
		return fmt.Errorf("process request in service: %w", err)
	}
	return nil
}

func retryBackoff(attempt int) time.Duration {
	// linear backoff 1..30s
	d := time.Duration(attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func isMalformed(err error) bool {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return true
	}
	return strings.Contains(err.Error(), "invalid post request")
}

func (h *requestGroupHandler) invalidateListCache(ctx context.Context) error {
	setKey := cache.PostListKeysSetKey()
	keys, err := h.cache.SMembers(ctx, setKey)
	if err == nil && len(keys) > 0 {
		_ = h.cache.Del(ctx, keys...)
	}
	return h.cache.Del(ctx, setKey)
}
