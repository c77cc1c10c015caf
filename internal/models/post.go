package models

import "time"

const (
	StatusPending = "pending"
	StatusPosting = "posting"
	StatusPosted  = "posted"
	StatusFailed  = "failed"
)

// Post is one schedulable row. Row order (id ascending) is significant:
// it defines both the scan order and the publish order inside a thread group.
type Post struct {
	ID      int    `db:"id"`
	Content string `db:"content"`

	// Loosely-typed schedule cells, kept as authored. The date cell may hold
	// an ISO date, a free-form date string or a sheet serial number; hour and
	// minute may be blank.
	DateRaw   string `db:"post_date"`
	HourRaw   string `db:"post_hour"`
	MinuteRaw string `db:"post_minute"`

	ThreadGroup string `db:"thread_group"`
	ReplyLink   string `db:"reply_link"`

	// Status is the authoritative outcome signal. Result shares one column
	// between the success URL and the failure detail, so a non-empty Result
	// alone does not mean success.
	Status string `db:"status"`
	Result string `db:"result"`

	Likes       int        `db:"likes"`
	Reposts     int        `db:"reposts"`
	Replies     int        `db:"replies"`
	RefreshedAt *time.Time `db:"refreshed_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EffectiveStatus treats a blank status cell as pending.
func (p *Post) EffectiveStatus() string {
	if p.Status == "" {
		return StatusPending
	}
	return p.Status
}

// MediaRef points at one attachment of a post. Inline data wins over the URL
// when both are present; at most four refs per post are honored.
type MediaRef struct {
	PostID   int    `db:"post_id"`
	Position int    `db:"position"`
	URL      string `db:"url"`
	Data     []byte `db:"data"`
	Mime     string `db:"mime"`
}

const MaxMediaPerPost = 4
