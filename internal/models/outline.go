package models

import "time"

// OutlineSection is one heading in an outline. Level follows HTML
// heading depth (1 for H1, 2 for H2, 3 for H3).
type OutlineSection struct {
	Level       int      `json:"level"`
	Title       string   `json:"title"`
	TargetWords int      `json:"target_words"`
	Body        string   `json:"body,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// SameStructure reports whether two sections agree on everything except
// body content. Used to decide whether an edit to a locked outline is
// structural.
func (s OutlineSection) SameStructure(other OutlineSection) bool {
	if s.Level != other.Level || s.Title != other.Title || s.TargetWords != other.TargetWords {
		return false
	}
	if len(s.Keywords) != len(other.Keywords) {
		return false
	}
	for i, kw := range s.Keywords {
		if other.Keywords[i] != kw {
			return false
		}
	}
	return true
}

// Outline is the section structure for a post. Once Locked is true the
// ordered section sequence is frozen; only section bodies may change.
type Outline struct {
	PostID     string           `json:"post_id"`
	Sections   []OutlineSection `json:"sections"`
	TotalWords int              `json:"total_words"`
	Locked     bool             `json:"locked"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Empty reports whether the outline has no sections.
func (o *Outline) Empty() bool {
	return o == nil || len(o.Sections) == 0
}
