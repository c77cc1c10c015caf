package service

import (
	"context"
	"log"
	"strings"
	"time"

	"post_scheduler/internal/metrics"
	"post_scheduler/internal/platform"
)

// EngagementRefresher periodically re-reads engagement metrics for rows that
// were already published. It is deliberately dumb: least-recently refreshed
// first, per-post errors are logged and skipped, nothing here can touch the
// publish state machine.
type EngagementRefresher struct {
	store  RowStore
	client platform.Client

	interval  time.Duration
	batchSize int
	logger    *log.Logger
}

func NewEngagementRefresher(
	store RowStore,
	client platform.Client,
	interval time.Duration,
	batchSize int,
	logger *log.Logger,
) *EngagementRefresher {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	if logger == nil {
		logger = log.Default()
	}
	return &EngagementRefresher{
		store:     store,
		client:    client,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start launches the background refresh goroutine.
func (r *EngagementRefresher) Start(ctx context.Context) {
	go func() {
		r.logger.Println("engagement refresher started")
		defer r.logger.Println("engagement refresher stopped")

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refreshOnce(ctx)
			}
		}
	}()
}

func (r *EngagementRefresher) refreshOnce(ctx context.Context) {
	rows, err := r.store.ListPostedForRefresh(ctx, r.batchSize)
	if err != nil {
		r.logger.Printf("engagement: list posted failed: %v", err)
		return
	}

	for _, row := range rows {
		postID := postIDFromURL(row.Result)
		if postID == "" {
			r.logger.Printf("engagement: row %d has no usable post id in %q", row.ID, row.Result)
			continue
		}

		eng, err := r.client.GetEngagement(ctx, postID)
		if err != nil {
			r.logger.Printf("engagement: row %d: %v", row.ID, err)
			metrics.IncEngagementError()
			continue
		}

		if err := r.store.UpdateEngagement(ctx, row.ID, eng.Likes, eng.Reposts, eng.Replies); err != nil {
			r.logger.Printf("engagement: row %d: write: %v", row.ID, err)
			metrics.IncEngagementError()
			continue
		}
		metrics.IncEngagementRefreshed()
	}
}

// postIDFromURL pulls the platform post id out of a recorded status URL.
// The result column is shared with failure details, so anything that does
// not look like a URL yields no id.
func postIDFromURL(result string) string {
	if !strings.HasPrefix(result, "http://") && !strings.HasPrefix(result, "https://") {
		return ""
	}
	trimmed := strings.TrimRight(result, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	return trimmed[idx+1:]
}
