package qa

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inklift/inklift/internal/models"
)

// Thresholds tunes the heuristic checks.
type Thresholds struct {
	MinFlesch         float64 `yaml:"min_flesch"`
	KeywordDensityMin float64 `yaml:"keyword_density_min"`
	KeywordDensityMax float64 `yaml:"keyword_density_max"`
	TitleMinLength    int     `yaml:"title_min_length"`
	TitleMaxLength    int     `yaml:"title_max_length"`
	MinWordCount      int     `yaml:"min_word_count"`
}

// Policy declares which check types gate publishing and with what
// thresholds.
type Policy struct {
	RequiredChecks []models.CheckType `yaml:"required_checks"`
	Thresholds     Thresholds         `yaml:"thresholds"`
}

// DefaultPolicy gates on the three checks the service can compute
// itself.
func DefaultPolicy() Policy {
	return Policy{
		RequiredChecks: []models.CheckType{
			models.CheckSEO,
			models.CheckReadability,
			models.CheckLinks,
		},
		Thresholds: Thresholds{
			MinFlesch:         60,
			KeywordDensityMin: 0.5,
			KeywordDensityMax: 2.5,
			TitleMinLength:    30,
			TitleMaxLength:    60,
			MinWordCount:      300,
		},
	}
}

// LoadPolicy reads a policy file, filling unset thresholds from the
// defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	for _, check := range policy.RequiredChecks {
		if !check.Valid() {
			return Policy{}, fmt.Errorf("unknown check type %q in policy", check)
		}
	}
	if len(policy.RequiredChecks) == 0 {
		return Policy{}, fmt.Errorf("policy requires at least one check type")
	}
	return policy, nil
}
