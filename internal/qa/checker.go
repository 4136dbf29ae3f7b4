package qa

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/inklift/inklift/internal/models"
)

// Checker runs the heuristic QA checks the service computes itself.
// External workers report fact_check, grammar and tone results over
// the API instead.
type Checker struct {
	policy Policy
}

// NewChecker builds a checker for the given policy.
func NewChecker(policy Policy) *Checker {
	return &Checker{policy: policy}
}

// Policy returns the checker's active policy.
func (c *Checker) Policy() Policy {
	return c.policy
}

// Run executes every check the checker knows how to compute and
// returns one result per check type.
func (c *Checker) Run(post *models.Post, draft *models.Draft) []*models.QaCheck {
	return []*models.QaCheck{
		c.CheckSEO(post, draft),
		c.CheckReadability(draft),
		c.CheckLinks(draft),
	}
}

// CheckSEO scores title shape, keyword presence and keyword density.
// Starts at 100 and deducts per finding; pass at 80, warning at 60.
func (c *Checker) CheckSEO(post *models.Post, draft *models.Draft) *models.QaCheck {
	score := 100.0
	var issues []models.QaIssue
	t := c.policy.Thresholds

	titleLen := len(post.Title)
	if titleLen < t.TitleMinLength {
		score -= 15
		issues = append(issues, models.QaIssue{
			Type:     "title_length",
			Message:  fmt.Sprintf("title is %d characters, below the %d minimum", titleLen, t.TitleMinLength),
			Severity: "warning",
		})
	} else if titleLen > t.TitleMaxLength {
		score -= 10
		issues = append(issues, models.QaIssue{
			Type:     "title_length",
			Message:  fmt.Sprintf("title is %d characters, above the %d maximum", titleLen, t.TitleMaxLength),
			Severity: "warning",
		})
	}

	keyword := strings.ToLower(post.TargetKeyword)
	text := strings.ToLower(plainText(draft.Content))
	words := strings.Fields(text)

	if keyword != "" {
		if !strings.Contains(strings.ToLower(post.Title), keyword) {
			score -= 25
			issues = append(issues, models.QaIssue{
				Type:     "keyword_missing",
				Message:  fmt.Sprintf("target keyword %q not found in title", post.TargetKeyword),
				Severity: "error",
				Location: "title",
			})
		}

		density := keywordDensity(words, keyword)
		switch {
		case density < t.KeywordDensityMin:
			score -= 20
			issues = append(issues, models.QaIssue{
				Type:     "keyword_density",
				Message:  fmt.Sprintf("keyword density %.2f%% is below the %.2f%% minimum", density, t.KeywordDensityMin),
				Severity: "warning",
				Location: "body",
			})
		case density > t.KeywordDensityMax:
			score -= 20
			issues = append(issues, models.QaIssue{
				Type:     "keyword_density",
				Message:  fmt.Sprintf("keyword density %.2f%% is above the %.2f%% maximum", density, t.KeywordDensityMax),
				Severity: "warning",
				Location: "body",
			})
		}
	}

	if len(words) < t.MinWordCount {
		score -= 20
		issues = append(issues, models.QaIssue{
			Type:     "word_count",
			Message:  fmt.Sprintf("draft has %d words, below the %d minimum", len(words), t.MinWordCount),
			Severity: "warning",
			Location: "body",
		})
	}

	return c.result(models.CheckSEO, draft, score, issues)
}

// CheckReadability scores a Flesch reading-ease approximation.
func (c *Checker) CheckReadability(draft *models.Draft) *models.QaCheck {
	text := plainText(draft.Content)
	words := strings.Fields(text)
	sentences := countSentences(text)
	var issues []models.QaIssue

	if len(words) == 0 || sentences == 0 {
		issues = append(issues, models.QaIssue{
			Type:     "empty_content",
			Message:  "draft has no readable content",
			Severity: "error",
		})
		return c.result(models.CheckReadability, draft, 0, issues)
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	flesch := 206.835 - 1.015*(float64(len(words))/float64(sentences)) - 84.6*(float64(syllables)/float64(len(words)))
	if flesch < 0 {
		flesch = 0
	}
	if flesch > 100 {
		flesch = 100
	}

	score := 100.0
	if flesch < c.policy.Thresholds.MinFlesch {
		// Linear falloff below the target ease.
		score = 50 + flesch/c.policy.Thresholds.MinFlesch*30
		issues = append(issues, models.QaIssue{
			Type:     "reading_ease",
			Message:  fmt.Sprintf("Flesch reading ease %.1f is below the %.1f target", flesch, c.policy.Thresholds.MinFlesch),
			Severity: "warning",
		})
	}

	avgSentence := float64(len(words)) / float64(sentences)
	if avgSentence > 25 {
		score -= 10
		issues = append(issues, models.QaIssue{
			Type:     "sentence_length",
			Message:  fmt.Sprintf("average sentence length is %.1f words; aim for 25 or fewer", avgSentence),
			Severity: "info",
		})
	}

	return c.result(models.CheckReadability, draft, score, issues)
}

// CheckLinks inspects anchors in HTML content. Plain-text drafts pass
// trivially.
func (c *Checker) CheckLinks(draft *models.Draft) *models.QaCheck {
	score := 100.0
	var issues []models.QaIssue

	if strings.Contains(draft.Content, "<") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(draft.Content))
		if err != nil {
			issues = append(issues, models.QaIssue{
				Type:     "parse_error",
				Message:  fmt.Sprintf("could not parse draft HTML: %v", err),
				Severity: "error",
			})
			return c.result(models.CheckLinks, draft, 0, issues)
		}

		doc.Find("a").Each(func(i int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" || href == "#" {
				score -= 15
				issues = append(issues, models.QaIssue{
					Type:     "empty_href",
					Message:  fmt.Sprintf("anchor %d has no destination", i+1),
					Severity: "error",
					Location: fmt.Sprintf("a[%d]", i),
				})
				return
			}
			if strings.TrimSpace(sel.Text()) == "" {
				score -= 10
				issues = append(issues, models.QaIssue{
					Type:     "empty_anchor_text",
					Message:  fmt.Sprintf("anchor to %s has no link text", href),
					Severity: "warning",
					Location: fmt.Sprintf("a[%d]", i),
				})
			}
		})
	}

	return c.result(models.CheckLinks, draft, score, issues)
}

func (c *Checker) result(checkType models.CheckType, draft *models.Draft, score float64, issues []models.QaIssue) *models.QaCheck {
	if score < 0 {
		score = 0
	}
	return &models.QaCheck{
		PostID:       draft.PostID,
		DraftVersion: draft.Version,
		Type:         checkType,
		Status:       StatusForScore(score),
		Score:        score,
		Issues:       issues,
	}
}

// StatusForScore maps a 0-100 score onto a check outcome: pass at 80,
// warning at 60, fail below.
func StatusForScore(score float64) models.CheckStatus {
	switch {
	case score >= 80:
		return models.CheckPass
	case score >= 60:
		return models.CheckWarning
	default:
		return models.CheckFail
	}
}

// CountWords counts whitespace-separated words in content, stripping
// markup first.
func CountWords(content string) int {
	return len(strings.Fields(plainText(content)))
}

// plainText strips HTML when the content looks like markup.
func plainText(content string) string {
	if !strings.Contains(content, "<") {
		return content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return doc.Text()
}

func keywordDensity(words []string, keyword string) float64 {
	if len(words) == 0 {
		return 0
	}
	count := 0
	for _, w := range words {
		if strings.Trim(w, ".,!?;:()\"'") == keyword {
			count++
		}
	}
	return float64(count) / float64(len(words)) * 100
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}

// countSyllables estimates syllables by counting vowel groups.
func countSyllables(word string) int {
	word = strings.ToLower(strings.Trim(word, ".,!?;:()\"'"))
	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
