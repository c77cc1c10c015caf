package metrics

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func StartDBCollectors(ctx context.Context, db *pgxpool.Pool, interval time.Duration, logger *log.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, db, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, db, logger)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, db *pgxpool.Pool, logger *log.Logger) {
	// posts counts by status
	{
		rows, err := db.Query(ctx, `SELECT COALESCE(NULLIF(status, ''), 'pending'), COUNT(*) FROM posts GROUP BY 1`)
		if err != nil {
			logger.Printf("metrics db query posts: %v", err)
		} else {
			defer rows.Close()
			for rows.Next() {
				var status string
				var cnt int64
				if err := rows.Scan(&status, &cnt); err != nil {
					logger.Printf("metrics db scan posts: %v", err)
					continue
				}
				SetPostStatusCount(status, cnt)
			}
		}
	}

	// outbox event counts by status (+ pending)
	{
		rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM post_events GROUP BY status`)
		if err != nil {
			// table may not exist yet on a fresh database
			return
		}
		defer rows.Close()

		var pending int64
		for rows.Next() {
			var status string
			var cnt int64
			if err := rows.Scan(&status, &cnt); err != nil {
				logger.Printf("metrics db scan post_events: %v", err)
				continue
			}
			SetEventStatusCount(status, cnt)
			if status == "pending" {
				pending = cnt
			}
		}
		SetEventPendingCount(pending)
	}
}
