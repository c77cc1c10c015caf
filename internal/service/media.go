package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"post_scheduler/internal/models"
)

// Blob is one resolved attachment ready for upload.
type Blob struct {
	Data []byte
	Mime string
}

// MediaResolver turns media references into blobs. Inline bytes win over the
// URL; a URL ref is fetched over HTTP. Resolution failures drop the medium,
// they never fail the whole post.
type MediaResolver struct {
	http   *http.Client
	logger *log.Logger
}

func NewMediaResolver(timeout time.Duration, logger *log.Logger) *MediaResolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MediaResolver{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Resolve returns the blobs of up to MaxMediaPerPost refs, in ref order.
// Unresolvable refs are logged and skipped.
func (r *MediaResolver) Resolve(ctx context.Context, refs []*models.MediaRef) []Blob {
	if len(refs) > models.MaxMediaPerPost {
		refs = refs[:models.MaxMediaPerPost]
	}

	blobs := make([]Blob, 0, len(refs))
	for _, ref := range refs {
		if len(ref.Data) > 0 {
			blobs = append(blobs, Blob{Data: ref.Data, Mime: ref.Mime})
			continue
		}
		if ref.URL == "" {
			continue
		}

		blob, err := r.fetch(ctx, ref.URL)
		if err != nil {
			r.logger.Printf("media: drop ref %d/%d: %v", ref.PostID, ref.Position, err)
			continue
		}
		if blob.Mime == "" {
			blob.Mime = ref.Mime
		}
		blobs = append(blobs, blob)
	}

	return blobs
}

func (r *MediaResolver) fetch(ctx context.Context, url string) (Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Blob{}, fmt.Errorf("build media request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return Blob{}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Blob{}, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	// 10 MiB guard; the platform rejects anything bigger anyway.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Blob{}, fmt.Errorf("read media body: %w", err)
	}
	if len(data) == 0 {
		return Blob{}, fmt.Errorf("media body is empty")
	}

	return Blob{Data: data, Mime: resp.Header.Get("Content-Type")}, nil
}
