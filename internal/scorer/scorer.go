// Package scorer ranks candidate groups for a statement line. Scoring is a
// deterministic function of document-number similarity, amount delta, date
// delta and group cardinality: equal inputs always produce the same ranked
// output, which is what makes recompute idempotent.
package scorer

import (
	"fmt"
	"sort"
	"time"

	"statement-reconciliation/internal/finder"
	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ScoredCandidate is one ranked (candidate group, confidence, match type)
// tuple.
type ScoredCandidate struct {
	Group         finder.CandidateGroup
	MatchType     models.MatchType
	Confidence    float64
	DocSimilarity float64
	AmountDelta   decimal.Decimal
	DateDelta     time.Duration
}

// Config holds the scoring weights and penalties
type Config struct {
	DocWeight    float64
	AmountWeight float64
	DateWeight   float64
	// CardinalityPenalty is subtracted once per extra record in a split group
	CardinalityPenalty float64
	// AmountTolerance and DateWindowDays scale the delta components; they
	// mirror the finder's search bounds.
	AmountTolerance decimal.Decimal
	DateWindowDays  int
}

// DefaultConfig returns the default scoring parameters
func DefaultConfig() Config {
	return Config{
		DocWeight:          0.5,
		AmountWeight:       0.3,
		DateWeight:         0.2,
		CardinalityPenalty: 0.05,
		AmountTolerance:    decimal.NewFromFloat(0.01),
		DateWindowDays:     5,
	}
}

// Validate validates the scorer configuration
func (c Config) Validate() error {
	if c.DocWeight < 0 || c.AmountWeight < 0 || c.DateWeight < 0 {
		return fmt.Errorf("scoring weights cannot be negative")
	}
	total := c.DocWeight + c.AmountWeight + c.DateWeight
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %f", total)
	}
	if c.CardinalityPenalty < 0 {
		return fmt.Errorf("cardinality penalty cannot be negative")
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative")
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date window cannot be negative")
	}
	return nil
}

// Scorer computes confidence scores for candidate groups
type Scorer struct {
	config Config
}

// New creates a Scorer with the given configuration
func New(config Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scorer configuration: %w", err)
	}
	return &Scorer{config: config}, nil
}

// Rank scores every candidate group and returns them highest confidence
// first. Ties break by smaller cardinality, then smaller amount delta, then
// earliest record creation, so re-runs reproduce the same order exactly.
func (s *Scorer) Rank(line *models.StatementLine, groups []finder.CandidateGroup) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(groups))
	for _, group := range groups {
		scored = append(scored, s.score(line, group))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Group.Records) != len(b.Group.Records) {
			return len(a.Group.Records) < len(b.Group.Records)
		}
		if !a.AmountDelta.Equal(b.AmountDelta) {
			return a.AmountDelta.LessThan(b.AmountDelta)
		}
		ca, cb := earliestCreation(a.Group), earliestCreation(b.Group)
		if !ca.Equal(cb) {
			return ca.Before(cb)
		}
		return firstRecordID(a.Group) < firstRecordID(b.Group)
	})

	return scored
}

func (s *Scorer) score(line *models.StatementLine, group finder.CandidateGroup) ScoredCandidate {
	docScore := s.docSimilarity(line, group)
	amountDelta := group.Sum().Sub(line.Amount).Abs()
	amountScore := s.amountScore(amountDelta)
	dateDelta := s.dateDelta(line, group)
	dateScore := s.dateScore(dateDelta)

	// An exact document and amount match identifies the counterpart on its
	// own; date drift between posting and statement does not dilute it.
	if docScore == 1.0 && amountDelta.IsZero() && group.Tier != finder.TierAggregate {
		dateScore = 1.0
	}

	confidence := docScore*s.config.DocWeight +
		amountScore*s.config.AmountWeight +
		dateScore*s.config.DateWeight

	if extra := len(group.Records) - 1; extra > 0 {
		confidence -= float64(extra) * s.config.CardinalityPenalty
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return ScoredCandidate{
		Group:         group,
		MatchType:     group.Tier.MatchType(),
		Confidence:    confidence,
		DocSimilarity: docScore,
		AmountDelta:   amountDelta,
		DateDelta:     dateDelta,
	}
}

// docSimilarity returns the best normalized document similarity across the
// group's records: exact normalized equality is 1.0, otherwise a
// Levenshtein ratio.
func (s *Scorer) docSimilarity(line *models.StatementLine, group finder.CandidateGroup) float64 {
	best := 0.0
	for _, rec := range group.Records {
		recNorm := normalizer.NormalizeDocNumber(rec.DocNumber)
		if recNorm == line.DocNumberNorm && line.DocNumberNorm != "" {
			return 1.0
		}
		ratio := levenshtein.RatioForStrings(
			[]rune(line.DocNumberNorm),
			[]rune(recNorm),
			levenshtein.DefaultOptions)
		if ratio > best {
			best = ratio
		}
	}
	return best
}

// amountScore decays linearly from 1.0 at zero delta to 0.0 at the tolerance
// bound.
func (s *Scorer) amountScore(delta decimal.Decimal) float64 {
	if delta.IsZero() {
		return 1.0
	}
	if s.config.AmountTolerance.IsZero() {
		return 0.0
	}
	ratio, _ := delta.Div(s.config.AmountTolerance).Float64()
	if ratio >= 1.0 {
		return 0.0
	}
	return 1.0 - ratio
}

// dateDelta is the largest date distance between the line and the group's
// records; for a split, every record must sit near the line date.
func (s *Scorer) dateDelta(line *models.StatementLine, group finder.CandidateGroup) time.Duration {
	var worst time.Duration
	for _, rec := range group.Records {
		d := line.TxnDate.Sub(rec.Date)
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}

// dateScore decays linearly from 1.0 at zero delta to 0.0 at the window edge
func (s *Scorer) dateScore(delta time.Duration) float64 {
	if delta == 0 {
		return 1.0
	}
	if s.config.DateWindowDays == 0 {
		return 0.0
	}
	window := time.Duration(s.config.DateWindowDays) * 24 * time.Hour
	ratio := float64(delta) / float64(window)
	if ratio >= 1.0 {
		return 0.0
	}
	return 1.0 - ratio
}

func earliestCreation(group finder.CandidateGroup) time.Time {
	earliest := group.Records[0].CreatedAt
	for _, rec := range group.Records[1:] {
		if rec.CreatedAt.Before(earliest) {
			earliest = rec.CreatedAt
		}
	}
	return earliest
}

func firstRecordID(group finder.CandidateGroup) string {
	return group.Records[0].ID.String()
}
