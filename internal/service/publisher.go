package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"post_scheduler/internal/charcount"
	"post_scheduler/internal/kafka"
	"post_scheduler/internal/metrics"
	"post_scheduler/internal/models"
	"post_scheduler/internal/platform"
)

// LimitPolicy decides what happens to a row whose content exceeds the plan's
// character limit.
type LimitPolicy struct {
	Enforce      bool
	MaxLength    int
	SkipOnExceed bool // false: exceeding is fatal for the whole run
}

// Publisher owns the per-row publish state machine:
// pending -> posting -> posted | failed. Both the single-row and the
// thread-group paths live here; they share the validation, media and
// bookkeeping steps.
type Publisher struct {
	store    RowStore
	events   EventStore
	client   platform.Client
	resolver *MediaResolver

	limit       LimitPolicy
	eventsTopic string
	paceDelay   time.Duration
	logger      *log.Logger
}

func NewPublisher(
	store RowStore,
	events EventStore,
	client platform.Client,
	resolver *MediaResolver,
	limit LimitPolicy,
	eventsTopic string,
	paceDelay time.Duration,
	logger *log.Logger,
) *Publisher {
	if limit.MaxLength <= 0 {
		limit.MaxLength = 280
	}
	if paceDelay <= 0 {
		paceDelay = 1 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	if resolver == nil {
		resolver = NewMediaResolver(0, logger)
	}

	return &Publisher{
		store:       store,
		events:      events,
		client:      client,
		resolver:    resolver,
		limit:       limit,
		eventsTopic: eventsTopic,
		paceDelay:   paceDelay,
		logger:      logger,
	}
}

// PublishSingle publishes one non-grouped row. A returned error aborts the
// run; validation failures that the policy allows are absorbed after the row
// has been marked failed.
func (p *Publisher) PublishSingle(ctx context.Context, row *models.Post) error {
	start := time.Now()

	if row.Content == "" {
		p.failRow(ctx, row, KindContentEmpty, "content empty")
		return nil
	}

	if err := p.store.UpdateStatus(ctx, row.ID, models.StatusPosting); err != nil {
		return fmt.Errorf("mark row %d posting: %w", row.ID, err)
	}

	if over, err := p.checkLimit(ctx, row); over {
		return err
	}

	mediaIDs := p.uploadMedia(ctx, row)

	res, err := p.client.PublishPost(ctx, row.Content, "", mediaIDs)
	if err != nil {
		detail := errDetail(err)
		p.failRow(ctx, row, KindAPI, detail)
		return &PublishError{RowID: row.ID, Kind: KindAPI, Detail: detail, Err: err}
	}

	p.recordSuccess(ctx, row, res.URL)
	metrics.IncPostPublished("single")
	metrics.ObservePublishDuration(time.Since(start))

	if row.ReplyLink != "" {
		p.postReplyLink(ctx, row.ReplyLink, res.ID)
	}

	return nil
}

// PublishThread publishes every not-yet-posted member of a thread group in
// row order as a reply chain. The first publish failure stops the group
// (fail-fast); later members keep their pending status.
func (p *Publisher) PublishThread(ctx context.Context, groupID string, rows []*models.Post) error {
	members := make([]*models.Post, 0)
	for _, row := range rows {
		if row.ThreadGroup != groupID {
			continue
		}
		switch row.EffectiveStatus() {
		case models.StatusPosted, models.StatusPosting:
			continue
		}
		members = append(members, row)
	}
	if len(members) == 0 {
		return nil
	}

	var (
		previousPostID string
		lastPostID     string
		published      int
	)

	for i, row := range members {
		if row.Content == "" {
			p.failRow(ctx, row, KindContentEmpty, "content empty")
			continue
		}

		if err := p.store.UpdateStatus(ctx, row.ID, models.StatusPosting); err != nil {
			return fmt.Errorf("mark row %d posting: %w", row.ID, err)
		}

		if p.limit.Enforce && charcount.Count(row.Content) > p.limit.MaxLength {
			p.failRow(ctx, row, KindLengthExceeded, lengthDetail(row.Content, p.limit.MaxLength))
			if p.limit.SkipOnExceed {
				// Inside a group the skip policy moves on to the next member.
				continue
			}
			return &PublishError{RowID: row.ID, Kind: KindLengthExceeded, Detail: "length exceeded"}
		}

		mediaIDs := p.uploadMedia(ctx, row)

		start := time.Now()
		res, err := p.client.PublishPost(ctx, row.Content, previousPostID, mediaIDs)
		if err != nil {
			detail := errDetail(err)
			p.failRow(ctx, row, KindAPI, detail)
			return &PublishError{RowID: row.ID, Kind: KindAPI, Detail: detail, Err: err}
		}

		p.recordSuccess(ctx, row, res.URL)
		metrics.IncPostPublished("thread")
		metrics.ObservePublishDuration(time.Since(start))

		previousPostID = res.ID
		lastPostID = res.ID
		published++

		if i < len(members)-1 {
			// Pacing between consecutive posts; the platform rate-limits
			// rapid reply chains.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.paceDelay):
			}
		}
	}

	metrics.ObserveThreadLength(published)

	if link := members[0].ReplyLink; link != "" && published > 0 {
		p.postReplyLink(ctx, link, lastPostID)
	}

	return nil
}

// checkLimit applies the character-limit policy to a single row. It returns
// over=true when the row was rejected; err is non-nil only when the policy
// makes that fatal for the run.
func (p *Publisher) checkLimit(ctx context.Context, row *models.Post) (over bool, err error) {
	if !p.limit.Enforce {
		return false, nil
	}
	if charcount.Count(row.Content) <= p.limit.MaxLength {
		return false, nil
	}

	p.failRow(ctx, row, KindLengthExceeded, lengthDetail(row.Content, p.limit.MaxLength))
	if p.limit.SkipOnExceed {
		return true, nil
	}
	return true, &PublishError{RowID: row.ID, Kind: KindLengthExceeded, Detail: "length exceeded"}
}

// uploadMedia resolves and uploads the row's attachments. A failed upload
// drops that medium and the post proceeds with the rest.
func (p *Publisher) uploadMedia(ctx context.Context, row *models.Post) []string {
	refs, err := p.store.MediaRefs(ctx, row.ID)
	if err != nil {
		p.logger.Printf("publish: row %d: read media refs: %v", row.ID, err)
		return nil
	}
	if len(refs) == 0 {
		return nil
	}

	blobs := p.resolver.Resolve(ctx, refs)

	ids := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		id, err := p.client.UploadMedia(ctx, blob.Data, blob.Mime)
		if err != nil {
			p.logger.Printf("publish: row %d: media upload failed, dropping: %v", row.ID, err)
			metrics.IncMediaUploadDropped()
			continue
		}
		ids = append(ids, id)
	}

	return ids
}

// postReplyLink publishes the trailing link as a reply under the given post.
// Best effort: a failure is logged and never changes the row's outcome.
func (p *Publisher) postReplyLink(ctx context.Context, link, replyToID string) {
	if _, err := p.client.PublishPost(ctx, link, replyToID, nil); err != nil {
		p.logger.Printf("publish: reply link under %s failed: %v", replyToID, err)
		return
	}
	metrics.IncPostPublished("reply_link")
}

func (p *Publisher) recordSuccess(ctx context.Context, row *models.Post, url string) {
	if err := p.store.SetResult(ctx, row.ID, url); err != nil {
		p.logger.Printf("publish: row %d: write result: %v", row.ID, err)
	}
	if err := p.store.UpdateStatus(ctx, row.ID, models.StatusPosted); err != nil {
		p.logger.Printf("publish: row %d: mark posted: %v", row.ID, err)
	}
	row.Status = models.StatusPosted
	row.Result = url

	p.appendEvent(ctx, row, models.StatusPosted, url, "")
}

// failRow records a terminal failure in both the status and the shared
// result column.
func (p *Publisher) failRow(ctx context.Context, row *models.Post, kind, detail string) {
	if err := p.store.UpdateStatus(ctx, row.ID, models.StatusFailed); err != nil {
		p.logger.Printf("publish: row %d: mark failed: %v", row.ID, err)
	}
	if err := p.store.SetResult(ctx, row.ID, detail); err != nil {
		p.logger.Printf("publish: row %d: write failure detail: %v", row.ID, err)
	}
	row.Status = models.StatusFailed
	row.Result = detail

	metrics.IncPostFailed(kind)
	p.appendEvent(ctx, row, models.StatusFailed, "", detail)
}

// appendEvent stores the outcome in the event outbox. Best effort: the run
// never fails because telemetry could not be written.
func (p *Publisher) appendEvent(ctx context.Context, row *models.Post, status, url, detail string) {
	if p.events == nil || p.eventsTopic == "" {
		return
	}

	payload, err := json.Marshal(kafka.PostEventMessage{
		PostID:      row.ID,
		Status:      status,
		URL:         url,
		Detail:      detail,
		ThreadGroup: row.ThreadGroup,
		At:          time.Now().UTC(),
	})
	if err != nil {
		p.logger.Printf("publish: row %d: marshal event: %v", row.ID, err)
		return
	}

	ev := &models.PostEvent{Topic: p.eventsTopic, Payload: payload}
	if err := p.events.Append(ctx, ev); err != nil {
		p.logger.Printf("publish: row %d: append event: %v", row.ID, err)
	}
}

func lengthDetail(content string, max int) string {
	return "length exceeded: " + strconv.Itoa(charcount.Count(content)) + " > " + strconv.Itoa(max)
}

func errDetail(err error) string {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("api status %d: %s", apiErr.Status, apiErr.Detail)
	}
	return err.Error()
}
