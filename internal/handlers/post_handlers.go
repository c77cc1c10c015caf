package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"post_scheduler/internal/cache"
	"post_scheduler/internal/metrics"
	"post_scheduler/internal/models"
	"post_scheduler/internal/schedule"
	"post_scheduler/internal/service"
)

// PublishService is the slice of the coordinator the handlers need.
type PublishService interface {
	Run(ctx context.Context) (*service.RunReport, error)
	Preview(ctx context.Context) (*schedule.Due, error)
}

// AuthoringService creates rows out of HTTP requests.
type AuthoringService interface {
	CreatePost(ctx context.Context, p *models.Post, mediaURLs []string) error
}

// PostLister is the read side of the post store.
type PostLister interface {
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Post, int, error)
}

type PostHandler struct {
	publish PublishService
	intake  AuthoringService
	lister  PostLister
	cache   cache.Cache
	ttl     time.Duration
}

func NewPostHandler(
	publish PublishService,
	intake AuthoringService,
	lister PostLister,
	c cache.Cache,
	ttl time.Duration,
) *PostHandler {
	return &PostHandler{
		publish: publish,
		intake:  intake,
		lister:  lister,
		cache:   c,
		ttl:     ttl,
	}
}

type createPostRequest struct {
	Content     string   `json:"content"`
	Date        string   `json:"date"`
	Hour        string   `json:"hour"`
	Minute      string   `json:"minute"`
	ThreadGroup string   `json:"thread_group"`
	ReplyLink   string   `json:"reply_link"`
	MediaURLs   []string `json:"media_urls"`
}

// POST /api/posts
// 201: { "id": int, "status": "pending" }
// 400: invalid input
// 500: internal error
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	p := &models.Post{
		Content:     req.Content,
		DateRaw:     req.Date,
		HourRaw:     req.Hour,
		MinuteRaw:   req.Minute,
		ThreadGroup: req.ThreadGroup,
		ReplyLink:   req.ReplyLink,
	}

	if err := h.intake.CreatePost(r.Context(), p, req.MediaURLs); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     p.ID,
		"status": models.StatusPending,
	})
}

// GET /api/posts?status=&limit=&offset=
// 200: { "posts": [...], "pagination": {...} }
// 400: invalid params
// 500: internal error
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", models.StatusPending, models.StatusPosting, models.StatusPosted, models.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit := 50
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		n, err := strconv.Atoi(limitRaw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	offset := 0
	if offsetRaw := strings.TrimSpace(r.URL.Query().Get("offset")); offsetRaw != "" {
		n, err := strconv.Atoi(offsetRaw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	// 1) cache lookup
	var cacheKey string
	if h.cache != nil {
		cacheKey = cache.PostListKey(status, limit, offset)
		if b, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	// 2) DB
	posts, total, err := h.lister.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := models.PostListResponse{
		Posts:      make([]models.PostItemResponse, 0, len(posts)),
		Pagination: models.Pagination{Total: total, Limit: limit},
	}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, models.PostItemResponse{
			ID:          p.ID,
			Content:     p.Content,
			ThreadGroup: p.ThreadGroup,
			Status:      p.EffectiveStatus(),
			Result:      p.Result,
			Likes:       p.Likes,
			Reposts:     p.Reposts,
			Replies:     p.Replies,
			CreatedAt:   p.CreatedAt,
			RefreshedAt: p.RefreshedAt,
		})
	}

	b, _ := json.Marshal(resp)

	// 3) cache store + remember key in set for invalidation
	if h.cache != nil {
		_ = h.cache.Set(r.Context(), cacheKey, b, h.ttl)

		setKey := cache.PostListKeysSetKey()
		_ = h.cache.SAdd(r.Context(), setKey, cacheKey)
		_ = h.cache.Expire(r.Context(), setKey, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, b)
}

// POST /api/publish/run
// 200: run report (skipped / no_due / published row)
// 500: configuration error
// 502: the platform rejected the publish
func (h *PostHandler) RunPublish(w http.ResponseWriter, r *http.Request) {
	report, err := h.publish.Run(r.Context())
	if err != nil {
		var pubErr *service.PublishError
		switch {
		case errors.As(err, &pubErr):
			body := map[string]any{
				"error":  pubErr.Detail,
				"kind":   pubErr.Kind,
				"row_id": pubErr.RowID,
			}
			writeJSON(w, http.StatusBadGateway, body)
		case errors.Is(err, service.ErrBadConfig):
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GET /api/publish/next
// 200: { "due": bool, ... }
// 500: internal error
func (h *PostHandler) NextDue(w http.ResponseWriter, r *http.Request) {
	due, err := h.publish.Preview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if due == nil {
		writeJSON(w, http.StatusOK, models.NextDueResponse{Due: false})
		return
	}

	at := due.ScheduledAt
	writeJSON(w, http.StatusOK, models.NextDueResponse{
		Due:         true,
		ID:          due.Post.ID,
		Content:     due.Post.Content,
		ScheduledAt: &at,
		ThreadGroup: due.ThreadGroup,
		ReplyLink:   due.ReplyLink,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Reject a second JSON object in the body.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("only one JSON object is allowed")
	}

	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
