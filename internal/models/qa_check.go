package models

import "time"

// CheckType names a QA check run against a draft.
type CheckType string

const (
	CheckSEO         CheckType = "seo"
	CheckReadability CheckType = "readability"
	CheckFactCheck   CheckType = "fact_check"
	CheckGrammar     CheckType = "grammar"
	CheckTone        CheckType = "tone"
	CheckLinks       CheckType = "links"
)

// CheckTypes lists every known check type.
var CheckTypes = []CheckType{
	CheckSEO,
	CheckReadability,
	CheckFactCheck,
	CheckGrammar,
	CheckTone,
	CheckLinks,
}

// Valid reports whether t is a known check type.
func (t CheckType) Valid() bool {
	for _, known := range CheckTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CheckStatus is the outcome of a QA check.
type CheckStatus string

const (
	CheckPending CheckStatus = "pending"
	CheckPass    CheckStatus = "pass"
	CheckFail    CheckStatus = "fail"
	CheckWarning CheckStatus = "warning"
)

// Valid reports whether s is a known check outcome.
func (s CheckStatus) Valid() bool {
	switch s {
	case CheckPending, CheckPass, CheckFail, CheckWarning:
		return true
	}
	return false
}

// Gating reports whether the outcome satisfies the publish gate.
// Pending and fail both block.
func (s CheckStatus) Gating() bool {
	return s == CheckPass || s == CheckWarning
}

// QaIssue is a single finding reported by a check.
type QaIssue struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
}

// QaCheck is the latest result of one check type against one draft
// version. Results for prior draft versions never gate publishing.
type QaCheck struct {
	PostID       string      `json:"post_id"`
	DraftVersion int         `json:"draft_version"`
	Type         CheckType   `json:"check_type"`
	Status       CheckStatus `json:"status"`
	Score        float64     `json:"score"`
	Issues       []QaIssue   `json:"issues,omitempty"`
	CheckedAt    time.Time   `json:"checked_at"`
}
