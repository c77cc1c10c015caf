package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"post_scheduler/internal/cache"
	"post_scheduler/internal/metrics"
	"post_scheduler/internal/platform"
	"post_scheduler/internal/schedule"
)

// Locker is the advisory lock around one publish run.
type Locker interface {
	Acquire(ctx context.Context, maxWait time.Duration) (release func(), ok bool, err error)
}

// RunReport tells the trigger what one run did. Skipped means another run
// held the lock; NoDue means nothing was inside the window.
type RunReport struct {
	Skipped bool   `json:"skipped"`
	NoDue   bool   `json:"no_due"`
	RowID   int    `json:"row_id,omitempty"`
	Thread  bool   `json:"thread,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

// Coordinator runs one publish pass: take the lock, select the due row,
// dispatch to the single or thread publisher, release the lock. It is the
// only component that decides whether a run happens at all.
type Coordinator struct {
	store     RowStore
	selector  *schedule.Selector
	publisher *Publisher
	lock      Locker
	listCache ListCache

	creds    platform.Credentials
	lockWait time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewCoordinator(
	store RowStore,
	selector *schedule.Selector,
	publisher *Publisher,
	lock Locker,
	listCache ListCache,
	creds platform.Credentials,
	lockWait time.Duration,
	logger *log.Logger,
) *Coordinator {
	if lockWait <= 0 {
		lockWait = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		store:     store,
		selector:  selector,
		publisher: publisher,
		lock:      lock,
		listCache: listCache,
		creds:     creds,
		lockWait:  lockWait,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one publish pass. The lock is released on every exit path;
// errors after acquisition still unwind through the deferred release.
func (c *Coordinator) Run(ctx context.Context) (*RunReport, error) {
	release, ok, err := c.lock.Acquire(ctx, c.lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		// Normal outcome: another run is in progress.
		c.logger.Printf("coordinator: run lock busy, skipping")
		metrics.IncRunSkippedLockBusy()
		return &RunReport{Skipped: true}, nil
	}
	defer release()

	if !c.creds.Complete() {
		return nil, fmt.Errorf("%w: platform credentials incomplete", ErrBadConfig)
	}

	rows, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	due := c.selector.SelectNext(rows, c.now())
	if due == nil {
		return &RunReport{NoDue: true}, nil
	}

	report := &RunReport{RowID: due.Post.ID}
	defer c.invalidateListCache(ctx)

	if due.ThreadGroup != "" {
		report.Thread = true
		report.GroupID = due.ThreadGroup
		c.logger.Printf("coordinator: publishing thread group %q starting at row %d", due.ThreadGroup, due.Post.ID)
		if err := c.publisher.PublishThread(ctx, due.ThreadGroup, rows); err != nil {
			return report, err
		}
		return report, nil
	}

	c.logger.Printf("coordinator: publishing row %d", due.Post.ID)
	if err := c.publisher.PublishSingle(ctx, due.Post); err != nil {
		return report, err
	}
	return report, nil
}

// Preview reports the next due row without taking the lock or publishing.
func (c *Coordinator) Preview(ctx context.Context) (*schedule.Due, error) {
	rows, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return c.selector.SelectNext(rows, c.now()), nil
}

func (c *Coordinator) invalidateListCache(ctx context.Context) {
	if c.listCache == nil {
		return
	}
	setKey := cache.PostListKeysSetKey()
	keys, err := c.listCache.SMembers(ctx, setKey)
	if err == nil && len(keys) > 0 {
		_ = c.listCache.Del(ctx, keys...)
	}
	_ = c.listCache.Del(ctx, setKey)
}
