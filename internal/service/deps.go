package service

import (
	"context"

	"post_scheduler/internal/models"
)

// RowStore is the slice of the repository the publishing services need.
type RowStore interface {
	List(ctx context.Context) ([]*models.Post, error)
	Create(ctx context.Context, p *models.Post) error
	UpdateStatus(ctx context.Context, id int, status string) error
	SetResult(ctx context.Context, id int, result string) error
	MediaRefs(ctx context.Context, postID int) ([]*models.MediaRef, error)
	AddMediaRef(ctx context.Context, m *models.MediaRef) error
	ListPostedForRefresh(ctx context.Context, limit int) ([]*models.Post, error)
	UpdateEngagement(ctx context.Context, id, likes, reposts, replies int) error
}

// EventStore appends publish-outcome events to the outbox.
type EventStore interface {
	Append(ctx context.Context, ev *models.PostEvent) error
}

// ListCache invalidates cached list responses after row mutations.
type ListCache interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
}
