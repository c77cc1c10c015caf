package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"post_scheduler/internal/cache"
	"post_scheduler/internal/kafka"
	"post_scheduler/internal/models"
)

var ErrInvalidRequest = errors.New("invalid post request")

// Intake creates rows from the authoring surfaces (HTTP and the requests
// topic). Rows enter as pending; scheduling decides everything else later.
type Intake struct {
	store     RowStore
	listCache ListCache
	logger    *log.Logger
}

func NewIntake(store RowStore, listCache ListCache, logger *log.Logger) *Intake {
	if logger == nil {
		logger = log.Default()
	}
	return &Intake{store: store, listCache: listCache, logger: logger}
}

// CreatePost stores one authored row plus its media references.
func (s *Intake) CreatePost(ctx context.Context, p *models.Post, mediaURLs []string) error {
	if p == nil {
		return fmt.Errorf("%w: post is nil", ErrInvalidRequest)
	}
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if p.DateRaw == "" {
		return fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if len(mediaURLs) > models.MaxMediaPerPost {
		return fmt.Errorf("%w: at most %d media refs", ErrInvalidRequest, models.MaxMediaPerPost)
	}

	if err := s.store.Create(ctx, p); err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	for i, url := range mediaURLs {
		if url == "" {
			continue
		}
		ref := &models.MediaRef{PostID: p.ID, Position: i, URL: url}
		if err := s.store.AddMediaRef(ctx, ref); err != nil {
			// The row exists; a broken ref is logged, not rolled back.
			s.logger.Printf("intake: post %d: add media ref %d: %v", p.ID, i, err)
		}
	}

	s.invalidateListCache(ctx)
	return nil
}

// ProcessPostRequest implements kafka.RequestProcessor.
func (s *Intake) ProcessPostRequest(ctx context.Context, message []byte) error {
	var req kafka.PostRequestMessage
	if err := json.Unmarshal(message, &req); err != nil {
		return fmt.Errorf("unmarshal post request: %w", err)
	}

	return s.CreatePost(ctx, req.ToPost(), req.MediaURLs)
}

func (s *Intake) invalidateListCache(ctx context.Context) {
	if s.listCache == nil {
		return
	}
	setKey := cache.PostListKeysSetKey()
	keys, err := s.listCache.SMembers(ctx, setKey)
	if err == nil && len(keys) > 0 {
		_ = s.listCache.Del(ctx, keys...)
	}
	_ = s.listCache.Del(ctx, setKey)
}
