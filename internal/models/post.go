package models

import "time"

// Status is the lifecycle stage of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusOutline   Status = "outline"
	StatusWriting   Status = "writing"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Statuses lists every valid lifecycle stage.
var Statuses = []Status{
	StatusDraft,
	StatusOutline,
	StatusWriting,
	StatusReview,
	StatusPublished,
	StatusArchived,
}

// Valid reports whether s is one of the defined lifecycle stages.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// PostSettings carries the generation preferences attached to a post.
type PostSettings struct {
	Tone     string `json:"tone,omitempty"`
	Audience string `json:"audience,omitempty"`
	Language string `json:"language,omitempty"`
}

// Post is the root content entity. Version increments on every status
// write and backs the optimistic concurrency check.
type Post struct {
	ID            string       `json:"id"`
	OrgID         string       `json:"org_id"`
	Title         string       `json:"title"`
	Slug          string       `json:"slug,omitempty"`
	Status        Status       `json:"status"`
	TargetKeyword string       `json:"target_keyword,omitempty"`
	WordCount     int          `json:"word_count"`
	SeoScore      *float64     `json:"seo_score,omitempty"`
	Settings      PostSettings `json:"settings"`
	Version       int64        `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
