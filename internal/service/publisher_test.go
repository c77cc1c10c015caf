package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"post_scheduler/internal/models"
	"post_scheduler/internal/platform"
)

type fakeStore struct {
	rows    []*models.Post
	status  map[int]string
	results map[int]string
	media   map[int][]*models.MediaRef
	created []*models.Post
}

func newFakeStore(rows ...*models.Post) *fakeStore {
	return &fakeStore{
		rows:    rows,
		status:  make(map[int]string),
		results: make(map[int]string),
		media:   make(map[int][]*models.MediaRef),
	}
}

func (s *fakeStore) List(ctx context.Context) ([]*models.Post, error) { return s.rows, nil }

func (s *fakeStore) Create(ctx context.Context, p *models.Post) error {
	p.ID = len(s.created) + 1000
	s.created = append(s.created, p)
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id int, status string) error {
	s.status[id] = status
	return nil
}

func (s *fakeStore) SetResult(ctx context.Context, id int, result string) error {
	s.results[id] = result
	return nil
}

func (s *fakeStore) MediaRefs(ctx context.Context, postID int) ([]*models.MediaRef, error) {
	return s.media[postID], nil
}

func (s *fakeStore) AddMediaRef(ctx context.Context, m *models.MediaRef) error {
	s.media[m.PostID] = append(s.media[m.PostID], m)
	return nil
}

func (s *fakeStore) ListPostedForRefresh(ctx context.Context, limit int) ([]*models.Post, error) {
	out := make([]*models.Post, 0)
	for _, p := range s.rows {
		if p.Status == models.StatusPosted && p.Result != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateEngagement(ctx context.Context, id, likes, reposts, replies int) error {
	for _, p := range s.rows {
		if p.ID == id {
			p.Likes, p.Reposts, p.Replies = likes, reposts, replies
		}
	}
	return nil
}

type publishCall struct {
	text     string
	replyTo  string
	mediaIDs []string
}

type fakeClient struct {
	calls   []publishCall
	failAt  map[int]error // publish call index -> error
	uploads int
	failUp  error
	engage  map[string]*platform.Engagement
}

func (c *fakeClient) PublishPost(ctx context.Context, text, replyToID string, mediaIDs []string) (*platform.PostResult, error) {
	idx := len(c.calls)
	c.calls = append(c.calls, publishCall{text: text, replyTo: replyToID, mediaIDs: mediaIDs})
	if err, ok := c.failAt[idx]; ok {
		return nil, err
	}
	id := fmt.Sprintf("p%d", idx+1)
	return &platform.PostResult{ID: id, URL: "https://x.com/u/status/" + id}, nil
}

func (c *fakeClient) UploadMedia(ctx context.Context, data []byte, mime string) (string, error) {
	c.uploads++
	if c.failUp != nil {
		return "", c.failUp
	}
	return fmt.Sprintf("m%d", c.uploads), nil
}

func (c *fakeClient) GetEngagement(ctx context.Context, postID string) (*platform.Engagement, error) {
	if e, ok := c.engage[postID]; ok {
		return e, nil
	}
	return nil, errors.New("unknown post")
}

type fakeEvents struct {
	events []*models.PostEvent
}

func (e *fakeEvents) Append(ctx context.Context, ev *models.PostEvent) error {
	e.events = append(e.events, ev)
	return nil
}

func newTestPublisher(store *fakeStore, client *fakeClient, events *fakeEvents, limit LimitPolicy) *Publisher {
	return NewPublisher(store, events, client, nil, limit, "post_events", time.Millisecond, nil)
}

func TestPublishSingleSuccess(t *testing.T) {
	row := &models.Post{ID: 1, Content: "hello world"}
	store := newFakeStore(row)
	client := &fakeClient{}
	events := &fakeEvents{}
	p := newTestPublisher(store, client, events, LimitPolicy{})

	if err := p.PublishSingle(context.Background(), row); err != nil {
		t.Fatalf("PublishSingle: %v", err)
	}

	if got := store.status[1]; got != models.StatusPosted {
		t.Errorf("status = %q, want posted", got)
	}
	if got := store.results[1]; !strings.HasPrefix(got, "https://") {
		t.Errorf("result = %q, want URL", got)
	}
	if len(client.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(client.calls))
	}
	if client.calls[0].replyTo != "" {
		t.Errorf("replyTo = %q, want empty", client.calls[0].replyTo)
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want 1", len(events.events))
	}
}

func TestPublishSingleEmptyContent(t *testing.T) {
	row := &models.Post{ID: 2, Content: ""}
	store := newFakeStore(row)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishSingle(context.Background(), row); err != nil {
		t.Fatalf("PublishSingle: %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("publish calls = %d, want 0", len(client.calls))
	}
	if got := store.status[2]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if got := store.results[2]; got != "content empty" {
		t.Errorf("result = %q, want content empty", got)
	}
}

func TestPublishSingleLengthExceededFatal(t *testing.T) {
	row := &models.Post{ID: 3, Content: "this is far too long"}
	store := newFakeStore(row)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{Enforce: true, MaxLength: 5})

	err := p.PublishSingle(context.Background(), row)
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if pubErr.Kind != KindLengthExceeded {
		t.Errorf("kind = %q, want %q", pubErr.Kind, KindLengthExceeded)
	}
	if len(client.calls) != 0 {
		t.Errorf("publish calls = %d, want 0", len(client.calls))
	}
	if got := store.status[3]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
}

func TestPublishSingleLengthExceededSkip(t *testing.T) {
	row := &models.Post{ID: 4, Content: "also much too long"}
	store := newFakeStore(row)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{Enforce: true, MaxLength: 5, SkipOnExceed: true})

	if err := p.PublishSingle(context.Background(), row); err != nil {
		t.Fatalf("PublishSingle: %v", err)
	}
	if got := store.status[4]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if len(client.calls) != 0 {
		t.Errorf("publish calls = %d, want 0", len(client.calls))
	}
}

func TestPublishSingleAPIError(t *testing.T) {
	row := &models.Post{ID: 5, Content: "hello"}
	store := newFakeStore(row)
	client := &fakeClient{failAt: map[int]error{0: &platform.APIError{Status: 403, Detail: "duplicate"}}}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	err := p.PublishSingle(context.Background(), row)
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if pubErr.Kind != KindAPI {
		t.Errorf("kind = %q, want %q", pubErr.Kind, KindAPI)
	}
	if got := store.status[5]; got != models.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if got := store.results[5]; !strings.Contains(got, "403") {
		t.Errorf("result = %q, want api status detail", got)
	}
}

func TestPublishSingleReplyLink(t *testing.T) {
	row := &models.Post{ID: 6, Content: "read this", ReplyLink: "https://example.com/article"}
	store := newFakeStore(row)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishSingle(context.Background(), row); err != nil {
		t.Fatalf("PublishSingle: %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("publish calls = %d, want 2", len(client.calls))
	}
	if client.calls[1].text != row.ReplyLink {
		t.Errorf("reply text = %q, want %q", client.calls[1].text, row.ReplyLink)
	}
	if client.calls[1].replyTo != "p1" {
		t.Errorf("reply replyTo = %q, want p1", client.calls[1].replyTo)
	}
	// The main row stays posted even though a second post went out.
	if got := store.status[6]; got != models.StatusPosted {
		t.Errorf("status = %q, want posted", got)
	}
}

func TestPublishSingleMediaUploadDropped(t *testing.T) {
	row := &models.Post{ID: 7, Content: "with media"}
	store := newFakeStore(row)
	store.media[7] = []*models.MediaRef{{PostID: 7, Data: []byte{1, 2}, Mime: "image/png"}}
	client := &fakeClient{failUp: errors.New("upload broken")}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishSingle(context.Background(), row); err != nil {
		t.Fatalf("PublishSingle: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(client.calls))
	}
	if len(client.calls[0].mediaIDs) != 0 {
		t.Errorf("mediaIDs = %v, want none after dropped upload", client.calls[0].mediaIDs)
	}
	if got := store.status[7]; got != models.StatusPosted {
		t.Errorf("status = %q, want posted", got)
	}
}

func TestPublishThreadReplyChain(t *testing.T) {
	rows := []*models.Post{
		{ID: 10, Content: "one", ThreadGroup: "g"},
		{ID: 11, Content: "two", ThreadGroup: "g"},
		{ID: 12, Content: "unrelated"},
		{ID: 13, Content: "three", ThreadGroup: "g"},
	}
	store := newFakeStore(rows...)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishThread(context.Background(), "g", rows); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}

	if len(client.calls) != 3 {
		t.Fatalf("publish calls = %d, want 3", len(client.calls))
	}
	if client.calls[0].replyTo != "" {
		t.Errorf("first replyTo = %q, want empty", client.calls[0].replyTo)
	}
	if client.calls[1].replyTo != "p1" {
		t.Errorf("second replyTo = %q, want p1", client.calls[1].replyTo)
	}
	if client.calls[2].replyTo != "p2" {
		t.Errorf("third replyTo = %q, want p2", client.calls[2].replyTo)
	}
	for _, id := range []int{10, 11, 13} {
		if got := store.status[id]; got != models.StatusPosted {
			t.Errorf("row %d status = %q, want posted", id, got)
		}
	}
	if _, touched := store.status[12]; touched {
		t.Errorf("row 12 outside the group was touched")
	}
}

func TestPublishThreadFailFast(t *testing.T) {
	rows := []*models.Post{
		{ID: 20, Content: "one", ThreadGroup: "g"},
		{ID: 21, Content: "two", ThreadGroup: "g"},
		{ID: 22, Content: "three", ThreadGroup: "g"},
	}
	store := newFakeStore(rows...)
	client := &fakeClient{failAt: map[int]error{1: errors.New("rate limited")}}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	err := p.PublishThread(context.Background(), "g", rows)
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if pubErr.RowID != 21 {
		t.Errorf("failed row = %d, want 21", pubErr.RowID)
	}

	if got := store.status[20]; got != models.StatusPosted {
		t.Errorf("row 20 status = %q, want posted", got)
	}
	if got := store.status[21]; got != models.StatusFailed {
		t.Errorf("row 21 status = %q, want failed", got)
	}
	// The later member keeps its pending status untouched.
	if _, touched := store.status[22]; touched {
		t.Errorf("row 22 was touched after the fail-fast stop")
	}
}

func TestPublishThreadSkipsPostedMembers(t *testing.T) {
	rows := []*models.Post{
		{ID: 30, Content: "one", ThreadGroup: "g", Status: models.StatusPosted, Result: "https://x.com/u/status/old"},
		{ID: 31, Content: "two", ThreadGroup: "g"},
	}
	store := newFakeStore(rows...)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishThread(context.Background(), "g", rows); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(client.calls))
	}
	if client.calls[0].text != "two" {
		t.Errorf("published text = %q, want two", client.calls[0].text)
	}
}

func TestPublishThreadEmptyMemberContinues(t *testing.T) {
	rows := []*models.Post{
		{ID: 40, Content: "", ThreadGroup: "g"},
		{ID: 41, Content: "two", ThreadGroup: "g"},
	}
	store := newFakeStore(rows...)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishThread(context.Background(), "g", rows); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}
	if got := store.status[40]; got != models.StatusFailed {
		t.Errorf("row 40 status = %q, want failed", got)
	}
	if got := store.status[41]; got != models.StatusPosted {
		t.Errorf("row 41 status = %q, want posted", got)
	}
}

func TestPublishThreadReplyLinkUnderLastPost(t *testing.T) {
	rows := []*models.Post{
		{ID: 50, Content: "one", ThreadGroup: "g", ReplyLink: "https://example.com/src"},
		{ID: 51, Content: "two", ThreadGroup: "g"},
	}
	store := newFakeStore(rows...)
	client := &fakeClient{}
	p := newTestPublisher(store, client, &fakeEvents{}, LimitPolicy{})

	if err := p.PublishThread(context.Background(), "g", rows); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}
	if len(client.calls) != 3 {
		t.Fatalf("publish calls = %d, want 3", len(client.calls))
	}
	last := client.calls[2]
	if last.text != "https://example.com/src" {
		t.Errorf("link text = %q", last.text)
	}
	if last.replyTo != "p2" {
		t.Errorf("link replyTo = %q, want p2 (last thread post)", last.replyTo)
	}
}
