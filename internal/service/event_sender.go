package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"post_scheduler/internal/kafka"
	"post_scheduler/internal/metrics"
	"post_scheduler/internal/models"
)

// EventOutbox is the slice of the event repository the sender drains.
type EventOutbox interface {
	GetPending(ctx context.Context, limit int) ([]*models.PostEvent, error)
	MarkSent(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, errorMsg string) error
	CleanupSent(ctx context.Context, retentionDays int) (int, error)
}

// EventSender drains the publish-outcome outbox towards Kafka.
type EventSender struct {
	repo          EventOutbox
	producer      *kafka.Producer
	pollInterval  time.Duration
	batchSize     int
	retentionDays int
	maxRetries    int
	logger        *log.Logger

	cleanupEvery time.Duration
}

func NewEventSender(
	repo EventOutbox,
	producer *kafka.Producer,
	pollInterval time.Duration,
	batchSize int,
	retentionDays int,
	maxRetries int,
	logger *log.Logger,
) *EventSender {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if logger == nil {
		logger = log.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if retentionDays < 0 {
		retentionDays = 0
	}

	return &EventSender{
		repo:          repo,
		producer:      producer,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		retentionDays: retentionDays,
		maxRetries:    maxRetries,
		logger:        logger,
		// cleanup runs far less often than the drain
		cleanupEvery: 1 * time.Hour,
	}
}

// Start launches the background drain goroutine.
func (s *EventSender) Start(ctx context.Context) {
	go func() {
		s.logger.Println("event sender started")
		defer s.logger.Println("event sender stopped")

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		cleanupTicker := time.NewTicker(s.cleanupEvery)
		defer cleanupTicker.Stop()

		s.flushOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.flushOnce(ctx)
			case <-cleanupTicker.C:
				s.cleanupOnce(ctx)
			}
		}
	}()
}

func (s *EventSender) flushOnce(ctx context.Context) {
	evs, err := s.repo.GetPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Printf("event sender: get pending failed: %v", err)
		return
	}
	if len(evs) == 0 {
		return
	}

	for _, ev := range evs {
		if err := s.sendOne(ev); err != nil {
			// retry_count++ and keep the error; the repo parks the event as
			// failed once the limit is reached
			if err2 := s.repo.MarkFailed(ctx, ev.EventID, err.Error()); err2 != nil {
				s.logger.Printf("event sender: mark failed error: %v", err2)
			}
			if ev.RetryCount+1 >= s.maxRetries {
				metrics.IncEventFailed()
			}
			continue
		}
		if err := s.repo.MarkSent(ctx, ev.EventID); err != nil {
			s.logger.Printf("event sender: mark sent failed: %v", err)
		}
	}
}

func (s *EventSender) sendOne(ev *models.PostEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.Topic == "" {
		return fmt.Errorf("event topic is empty")
	}
	if len(ev.Payload) == 0 {
		return fmt.Errorf("event payload is empty")
	}

	metrics.ObserveEventLagSeconds(time.Since(ev.CreatedAt).Seconds())

	start := time.Now()

	// Key by post id so every event of one row lands on the same partition.
	key, err := extractPostID(ev.Payload)
	if err != nil {
		metrics.IncKafkaError("producer", "prepare")
		metrics.ObserveEventProcessing(time.Since(start))
		return fmt.Errorf("extract post_id: %w", err)
	}

	if err := s.producer.SendRaw(ev.Topic, key, ev.Payload); err != nil {
		metrics.IncKafkaError("producer", "send")
		metrics.IncEventRetry()
		metrics.ObserveEventProcessing(time.Since(start))

		return fmt.Errorf("kafka send failed: %w", err)
	}

	metrics.IncKafkaSent()
	metrics.IncEventSent()
	metrics.ObserveEventProcessing(time.Since(start))

	return nil
}

func (s *EventSender) cleanupOnce(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	n, err := s.repo.CleanupSent(ctx, s.retentionDays)
	if err != nil {
		s.logger.Printf("event sender: cleanup failed: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("event sender: deleted %d sent events", n)
	}
}

func extractPostID(payload []byte) (string, error) {
	var x struct {
		PostID int `json:"post_id"`
	}
	if err := json.Unmarshal(payload, &x); err != nil {
		return "", err
	}
	if x.PostID <= 0 {
		return "", fmt.Errorf("post_id missing in payload")
	}
	return strconv.Itoa(x.PostID), nil
}
