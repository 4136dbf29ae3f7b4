package models

import "time"

// PublishStatus is the state of one publishing attempt.
type PublishStatus string

const (
	PublishPending    PublishStatus = "pending"
	PublishPublishing PublishStatus = "publishing"
	PublishPublished  PublishStatus = "published"
	PublishFailed     PublishStatus = "failed"
)

// Valid reports whether s is a known publish state.
func (s PublishStatus) Valid() bool {
	switch s {
	case PublishPending, PublishPublishing, PublishPublished, PublishFailed:
		return true
	}
	return false
}

// Publish records one attempt to push a post to an external site.
// PublishedAt is set only together with a valid PublishedURL and
// Status == published.
type Publish struct {
	ID           string        `json:"id"`
	PostID       string        `json:"post_id"`
	SiteID       string        `json:"site_id"`
	Status       PublishStatus `json:"status"`
	PublishedURL string        `json:"published_url,omitempty"`
	PublishedAt  *time.Time    `json:"published_at,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
