package qa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inklift/inklift/internal/models"
)

func testPost(keyword string) *models.Post {
	return &models.Post{
		ID:            "post-1",
		Title:         "How To Grow Tomatoes At Home This Year",
		TargetKeyword: keyword,
	}
}

func testDraft(content string) *models.Draft {
	return &models.Draft{
		PostID:  "post-1",
		Version: 1,
		Content: content,
	}
}

func TestStatusForScore(t *testing.T) {
	tests := []struct {
		score    float64
		expected models.CheckStatus
	}{
		{100, models.CheckPass},
		{80, models.CheckPass},
		{79.9, models.CheckWarning},
		{60, models.CheckWarning},
		{59.9, models.CheckFail},
		{0, models.CheckFail},
	}
	for _, tt := range tests {
		if got := StatusForScore(tt.score); got != tt.expected {
			t.Errorf("StatusForScore(%v) = %q, want %q", tt.score, got, tt.expected)
		}
	}
}

func TestCheckSEOKeywordMissingFromTitle(t *testing.T) {
	c := NewChecker(DefaultPolicy())
	post := testPost("kubernetes")

	content := strings.Repeat("Text about growing vegetables in the garden. ", 50)
	check := c.CheckSEO(post, testDraft(content))

	found := false
	for _, issue := range check.Issues {
		if issue.Type == "keyword_missing" {
			found = true
		}
	}
	if !found {
		t.Error("expected a keyword_missing issue when keyword absent from title")
	}
	if check.Score >= 80 {
		t.Errorf("expected a deducted score, got %v", check.Score)
	}
	if check.Type != models.CheckSEO {
		t.Errorf("unexpected check type %q", check.Type)
	}
}

func TestCheckSEOHappyPath(t *testing.T) {
	c := NewChecker(DefaultPolicy())
	post := testPost("tomatoes")

	// ~1% keyword density over 400 words.
	var b strings.Builder
	for i := 0; i < 100; i++ {
		if i%20 == 0 {
			b.WriteString("tomatoes need care and sun all summer. ")
		} else {
			b.WriteString("The garden rewards patience and steady watering habits. ")
		}
	}
	check := c.CheckSEO(post, testDraft(b.String()))

	if check.Status != models.CheckPass {
		t.Errorf("expected pass, got %q (score %v, issues %v)", check.Status, check.Score, check.Issues)
	}
}

func TestCheckReadabilityEmptyDraft(t *testing.T) {
	c := NewChecker(DefaultPolicy())
	check := c.CheckReadability(testDraft(""))

	if check.Status != models.CheckFail {
		t.Errorf("expected fail for empty draft, got %q", check.Status)
	}
	if check.Score != 0 {
		t.Errorf("expected score 0, got %v", check.Score)
	}
}

func TestCheckReadabilitySimpleProse(t *testing.T) {
	c := NewChecker(DefaultPolicy())
	content := strings.Repeat("The cat sat on the mat. The dog ran to the park. ", 20)
	check := c.CheckReadability(testDraft(content))

	if check.Status != models.CheckPass {
		t.Errorf("expected pass for simple prose, got %q (score %v)", check.Status, check.Score)
	}
}

func TestCheckLinks(t *testing.T) {
	c := NewChecker(DefaultPolicy())

	plain := c.CheckLinks(testDraft("No markup here at all."))
	if plain.Status != models.CheckPass {
		t.Errorf("expected pass for plain text, got %q", plain.Status)
	}

	good := c.CheckLinks(testDraft(`<p>See <a href="https://example.com">the guide</a>.</p>`))
	if good.Status != models.CheckPass {
		t.Errorf("expected pass for valid anchors, got %q", good.Status)
	}

	bad := c.CheckLinks(testDraft(`<p><a href="#">click</a> and <a href="https://example.com"></a> and <a>nothing</a></p>`))
	if bad.Status == models.CheckPass {
		t.Errorf("expected deductions for broken anchors, got pass (score %v)", bad.Score)
	}
	if len(bad.Issues) != 3 {
		t.Errorf("expected 3 issues, got %d: %v", len(bad.Issues), bad.Issues)
	}
}

func TestCountWords(t *testing.T) {
	if got := CountWords("one two three"); got != 3 {
		t.Errorf("CountWords plain = %d, want 3", got)
	}
	if got := CountWords("<p>one <strong>two</strong> three</p>"); got != 3 {
		t.Errorf("CountWords html = %d, want 3", got)
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `required_checks: [seo, readability, grammar]
thresholds:
  min_flesch: 50
  keyword_density_min: 1.0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if len(policy.RequiredChecks) != 3 {
		t.Errorf("expected 3 required checks, got %d", len(policy.RequiredChecks))
	}
	if policy.RequiredChecks[2] != models.CheckGrammar {
		t.Errorf("expected grammar third, got %q", policy.RequiredChecks[2])
	}
	if policy.Thresholds.MinFlesch != 50 {
		t.Errorf("expected min_flesch 50, got %v", policy.Thresholds.MinFlesch)
	}
	// Unset thresholds keep defaults.
	if policy.Thresholds.KeywordDensityMax != 2.5 {
		t.Errorf("expected default keyword_density_max 2.5, got %v", policy.Thresholds.KeywordDensityMax)
	}
}

func TestLoadPolicyUnknownCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("required_checks: [vibes]\n"), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Error("expected error for unknown check type")
	}
}
