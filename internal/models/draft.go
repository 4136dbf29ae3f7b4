package models

import "time"

// Citation is a source reference embedded in a draft.
type Citation struct {
	Text        string `json:"text"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title,omitempty"`
	Position    int    `json:"position"`
}

// Draft is one versioned content body for a post. Version is monotonic
// per post and exactly one draft per post has IsCurrent set.
type Draft struct {
	PostID    string     `json:"post_id"`
	Version   int        `json:"version"`
	Content   string     `json:"content"`
	WordCount int        `json:"word_count"`
	IsCurrent bool       `json:"is_current"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
