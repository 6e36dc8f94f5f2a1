package reconciler

import (
	"fmt"

	"statement-reconciliation/internal/finder"
	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/scorer"

	"github.com/shopspring/decimal"
)

// Config holds every tunable of the reconciliation service. Thresholds and
// tolerances default to the values the matching rules were specified with
// and are expected to be dialed in per deployment.
type Config struct {
	// AutoConfirmThreshold is the minimum confidence for creating a match
	// directly in confirmed status without human review
	AutoConfirmThreshold float64

	// SuggestThreshold is the minimum confidence for surfacing a match as a
	// suggestion; below it the line gets an issue instead
	SuggestThreshold float64

	// VarianceEpsilon is the absolute net-variance tolerance for a full
	// sign-off; zero demands exact reconciliation
	VarianceEpsilon decimal.Decimal

	// MatchableTypes is the capability descriptor: line types the finder
	// will attempt to match. Lines of other types go straight to an issue.
	MatchableTypes []models.LineType

	Finder finder.Config
	Scorer scorer.Config
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		AutoConfirmThreshold: 0.95,
		SuggestThreshold:     0.5,
		VarianceEpsilon:      decimal.Zero,
		MatchableTypes:       models.AllLineTypes(),
		Finder:               finder.DefaultConfig(),
		Scorer:               scorer.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AutoConfirmThreshold < 0 || c.AutoConfirmThreshold > 1 {
		return fmt.Errorf("auto-confirm threshold %f out of range [0,1]", c.AutoConfirmThreshold)
	}
	if c.SuggestThreshold < 0 || c.SuggestThreshold > 1 {
		return fmt.Errorf("suggest threshold %f out of range [0,1]", c.SuggestThreshold)
	}
	if c.SuggestThreshold > c.AutoConfirmThreshold {
		return fmt.Errorf("suggest threshold %f exceeds auto-confirm threshold %f",
			c.SuggestThreshold, c.AutoConfirmThreshold)
	}
	if c.VarianceEpsilon.IsNegative() {
		return fmt.Errorf("variance epsilon cannot be negative")
	}
	if len(c.MatchableTypes) == 0 {
		return fmt.Errorf("at least one matchable line type is required")
	}
	for _, t := range c.MatchableTypes {
		if !t.IsValid() {
			return fmt.Errorf("invalid matchable line type: %s", t)
		}
	}
	if err := c.Finder.Validate(); err != nil {
		return fmt.Errorf("finder: %w", err)
	}
	if err := c.Scorer.Validate(); err != nil {
		return fmt.Errorf("scorer: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	cp := *c
	cp.MatchableTypes = append([]models.LineType(nil), c.MatchableTypes...)
	return &cp
}

// IsMatchable reports whether the capability descriptor covers the line type
func (c *Config) IsMatchable(t models.LineType) bool {
	for _, mt := range c.MatchableTypes {
		if mt == t {
			return true
		}
	}
	return false
}
