package kafka

import (
	"time"

	"post_scheduler/internal/models"
)

// PostRequestMessage is the authoring payload accepted from the requests
// topic. It carries the same loosely-typed schedule cells as the HTTP
// authoring surface; schedule validation happens at selection time, not here.
type PostRequestMessage struct {
	Content     string   `json:"content"`
	Date        string   `json:"date"`
	Hour        string   `json:"hour"`
	Minute      string   `json:"minute"`
	ThreadGroup string   `json:"thread_group,omitempty"`
	ReplyLink   string   `json:"reply_link,omitempty"`
	MediaURLs   []string `json:"media_urls,omitempty"`
}

func (m *PostRequestMessage) ToPost() *models.Post {
	return &models.Post{
		Content:     m.Content,
		DateRaw:     m.Date,
		HourRaw:     m.Hour,
		MinuteRaw:   m.Minute,
		ThreadGroup: m.ThreadGroup,
		ReplyLink:   m.ReplyLink,
	}
}

// PostEventMessage is the payload of one publish-outcome event on the events
// topic.
type PostEventMessage struct {
	PostID      int       `json:"post_id"`
	Status      string    `json:"status"`
	URL         string    `json:"url,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	ThreadGroup string    `json:"thread_group,omitempty"`
	At          time.Time `json:"at"`
}
