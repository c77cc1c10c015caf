package models

import "time"

type PostItemResponse struct {
	ID          int        `json:"id"`
	Content     string     `json:"content"`
	ThreadGroup string     `json:"thread_group,omitempty"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Likes       int        `json:"likes"`
	Reposts     int        `json:"reposts"`
	Replies     int        `json:"replies"`
	CreatedAt   time.Time  `json:"created_at"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

type Pagination struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
}

type PostListResponse struct {
	Posts      []PostItemResponse `json:"posts"`
	Pagination Pagination         `json:"pagination"`
}

// NextDueResponse is the read-only preview of the next publishable row.
type NextDueResponse struct {
	Due         bool       `json:"due"`
	ID          int        `json:"id,omitempty"`
	Content     string     `json:"content,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ThreadGroup string     `json:"thread_group,omitempty"`
	ReplyLink   string     `json:"reply_link,omitempty"`
}
