// Package platform talks to the social platform's HTTP API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Credentials are the four opaque secrets the platform hands out for an app.
// They are validated for presence only; the token exchange is the platform's
// concern.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessSecret != ""
}

type PostResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Engagement struct {
	Likes   int `json:"like_count"`
	Reposts int `json:"repost_count"`
	Replies int `json:"reply_count"`
}

// APIError is a classified non-2xx response from the platform.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api: status %d: %s", e.Status, e.Detail)
}

// Client is the consumed surface of the platform API.
type Client interface {
	PublishPost(ctx context.Context, text, replyToID string, mediaIDs []string) (*PostResult, error)
	UploadMedia(ctx context.Context, data []byte, mime string) (string, error)
	GetEngagement(ctx context.Context, postID string) (*Engagement, error)
}

// HTTPClient implements Client against a configured base URL.
type HTTPClient struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

func NewHTTPClient(baseURL string, creds Credentials, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	Text      string   `json:"text"`
	ReplyToID string   `json:"reply_to_id,omitempty"`
	MediaIDs  []string `json:"media_ids,omitempty"`
}

func (c *HTTPClient) PublishPost(ctx context.Context, text, replyToID string, mediaIDs []string) (*PostResult, error) {
	body, err := json.Marshal(publishRequest{Text: text, ReplyToID: replyToID, MediaIDs: mediaIDs})
	if err != nil {
		return nil, fmt.Errorf("marshal publish request: %w", err)
	}

	var res PostResult
	if err := c.doJSON(ctx, http.MethodPost, "/2/posts", "application/json", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, fmt.Errorf("publish response has no post id")
	}
	return &res, nil
}

func (c *HTTPClient) UploadMedia(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media data is empty")
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	var res struct {
		MediaID string `json:"media_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/2/media/upload", mime, bytes.NewReader(data), &res); err != nil {
		return "", err
	}
	if res.MediaID == "" {
		return "", fmt.Errorf("upload response has no media id")
	}
	return res.MediaID, nil
}

func (c *HTTPClient) GetEngagement(ctx context.Context, postID string) (*Engagement, error) {
	if postID == "" {
		return nil, fmt.Errorf("post id is empty")
	}

	var res Engagement
	if err := c.doJSON(ctx, http.MethodGet, "/2/posts/"+postID+"/metrics", "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode response %s %s: %w", method, path, err)
	}
	return nil
}

func errorDetail(raw []byte) string {
	var x struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &x); err == nil {
		if x.Detail != "" {
			return x.Detail
		}
		if x.Error != "" {
			return x.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
