package service

import (
	"context"
	"errors"
	"testing"

	"post_scheduler/internal/models"
)

func TestIntakeCreatePost(t *testing.T) {
	store := newFakeStore()
	in := NewIntake(store, nil, nil)

	p := &models.Post{Content: "hello", DateRaw: "2026-09-01"}
	if err := in.CreatePost(context.Background(), p, []string{"https://example.com/a.png"}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID == 0 {
		t.Errorf("post id not assigned")
	}
	if len(store.media[p.ID]) != 1 {
		t.Errorf("media refs = %d, want 1", len(store.media[p.ID]))
	}
}

func TestIntakeCreatePostValidation(t *testing.T) {
	store := newFakeStore()
	in := NewIntake(store, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		post  *models.Post
		media []string
	}{
		{"nil post", nil, nil},
		{"empty content", &models.Post{DateRaw: "2026-09-01"}, nil},
		{"missing date", &models.Post{Content: "hi"}, nil},
		{"too many media", &models.Post{Content: "hi", DateRaw: "2026-09-01"},
			[]string{"a", "b", "c", "d", "e"}},
	}
	for _, tc := range cases {
		err := in.CreatePost(ctx, tc.post, tc.media)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", tc.name, err)
		}
	}
	if len(store.created) != 0 {
		t.Errorf("created %d rows, want 0", len(store.created))
	}
}

func TestIntakeProcessPostRequest(t *testing.T) {
	store := newFakeStore()
	in := NewIntake(store, nil, nil)

	msg := []byte(`{"content":"from kafka","date":"2026-09-02","hour":"9","minute":"30","thread_group":"g1"}`)
	if err := in.ProcessPostRequest(context.Background(), msg); err != nil {
		t.Fatalf("ProcessPostRequest: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(store.created))
	}
	got := store.created[0]
	if got.Content != "from kafka" || got.DateRaw != "2026-09-02" || got.ThreadGroup != "g1" {
		t.Errorf("stored row = %+v", got)
	}
}

func TestIntakeProcessPostRequestMalformed(t *testing.T) {
	in := NewIntake(newFakeStore(), nil, nil)

	if err := in.ProcessPostRequest(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatalf("want error for malformed payload")
	}
	if err := in.ProcessPostRequest(context.Background(), []byte(`{"content":""}`)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest for empty content")
	}
}
