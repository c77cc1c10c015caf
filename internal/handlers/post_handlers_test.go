package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"post_scheduler/internal/models"
	"post_scheduler/internal/schedule"
	"post_scheduler/internal/service"

	"github.com/go-chi/chi/v5"
)

type fakePublish struct {
	report *service.RunReport
	runErr error
	due    *schedule.Due
}

func (f *fakePublish) Run(ctx context.Context) (*service.RunReport, error) {
	return f.report, f.runErr
}

func (f *fakePublish) Preview(ctx context.Context) (*schedule.Due, error) {
	return f.due, nil
}

type fakeIntake struct {
	created *models.Post
	media   []string
	err     error
}

func (f *fakeIntake) CreatePost(ctx context.Context, p *models.Post, mediaURLs []string) error {
	if f.err != nil {
		return f.err
	}
	p.ID = 42
	f.created = p
	f.media = mediaURLs
	return nil
}

type fakeLister struct {
	posts []*models.Post
	total int
}

func (f *fakeLister) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Post, int, error) {
	return f.posts, f.total, nil
}

func newTestRouter(p *fakePublish, in *fakeIntake, l *fakeLister) http.Handler {
	h := NewPostHandler(p, in, l, nil, time.Minute)
	r := chi.NewRouter()
	RegisterPostRoutes(r, h)
	return r
}

func TestCreatePost(t *testing.T) {
	in := &fakeIntake{}
	r := newTestRouter(&fakePublish{}, in, &fakeLister{})

	body := `{"content":"hello","date":"2026-09-01","hour":"10","minute":"30","media_urls":["https://example.com/a.png"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if in.created == nil || in.created.Content != "hello" || in.created.DateRaw != "2026-09-01" {
		t.Errorf("created = %+v", in.created)
	}
	if len(in.media) != 1 {
		t.Errorf("media = %v, want one url", in.media)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != models.StatusPending {
		t.Errorf("status field = %v, want pending", resp["status"])
	}
}

func TestCreatePostInvalid(t *testing.T) {
	in := &fakeIntake{err: service.ErrInvalidRequest}
	r := newTestRouter(&fakePublish{}, in, &fakeLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":""}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreatePostBadJSON(t *testing.T) {
	r := newTestRouter(&fakePublish{}, &fakeIntake{}, &fakeLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListPosts(t *testing.T) {
	l := &fakeLister{
		posts: []*models.Post{
			{ID: 1, Content: "a", CreatedAt: time.Now()},
			{ID: 2, Content: "b", Status: models.StatusPosted, Result: "https://x.com/u/status/p1", CreatedAt: time.Now()},
		},
		total: 2,
	}
	r := newTestRouter(&fakePublish{}, &fakeIntake{}, l)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?status=&limit=10", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var resp models.PostListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Posts) != 2 || resp.Pagination.Total != 2 {
		t.Errorf("resp = %+v", resp)
	}
	// A blank status cell is reported as pending.
	if resp.Posts[0].Status != models.StatusPending {
		t.Errorf("first status = %q, want pending", resp.Posts[0].Status)
	}
}

func TestListPostsBadParams(t *testing.T) {
	r := newTestRouter(&fakePublish{}, &fakeIntake{}, &fakeLister{})

	for _, url := range []string{
		"/api/posts?status=bogus",
		"/api/posts?limit=0",
		"/api/posts?limit=x",
		"/api/posts?offset=-1",
	} {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestRunPublish(t *testing.T) {
	p := &fakePublish{report: &service.RunReport{RowID: 7}}
	r := newTestRouter(p, &fakeIntake{}, &fakeLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/publish/run", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var report service.RunReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.RowID != 7 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunPublishPlatformFailure(t *testing.T) {
	p := &fakePublish{
		report: &service.RunReport{RowID: 7},
		runErr: &service.PublishError{RowID: 7, Kind: service.KindAPI, Detail: "duplicate"},
	}
	r := newTestRouter(p, &fakeIntake{}, &fakeLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/publish/run", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502; body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "duplicate") {
		t.Errorf("body = %s, want failure detail", w.Body.String())
	}
}

func TestNextDue(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	p := &fakePublish{due: &schedule.Due{
		Post:        &models.Post{ID: 3, Content: "soon"},
		ScheduledAt: at,
		ThreadGroup: "g",
	}}
	r := newTestRouter(p, &fakeIntake{}, &fakeLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/publish/next", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp models.NextDueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Due || resp.ID != 3 || resp.ThreadGroup != "g" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ScheduledAt == nil || !resp.ScheduledAt.Equal(at) {
		t.Errorf("scheduled_at = %v, want %v", resp.ScheduledAt, at)
	}
}

func TestNextDueEmpty(t *testing.T) {
	r := newTestRouter(&fakePublish{}, &fakeIntake{}, &fakeLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/publish/next", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp models.NextDueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Due {
		t.Errorf("due = true, want false")
	}
}
