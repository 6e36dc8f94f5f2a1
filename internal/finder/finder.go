// Package finder implements tiered candidate search: given a statement line
// it asks the ledger store for plausible counterpart records using
// progressively looser filters. An empty result is an expected outcome, not
// an error; the orchestrator turns exhausted tiers into issues.
package finder

import (
	"context"
	"fmt"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store"

	"github.com/shopspring/decimal"
)

// Tier identifies one candidate-search strategy, widest-first
type Tier int

const (
	// TierExact requires exact document number, exact amount, same currency
	TierExact Tier = iota + 1
	// TierAmountTolerant requires exact document number, amount within
	// tolerance, same currency
	TierAmountTolerant
	// TierFuzzyDate drops the document-number requirement; amount within
	// tolerance and date within the configured window, same currency
	TierFuzzyDate
	// TierAggregate searches for a bounded subset of unmatched records whose
	// amounts sum to the line amount within tolerance
	TierAggregate
)

// String returns the string representation of Tier
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierAmountTolerant:
		return "amount-tolerant"
	case TierFuzzyDate:
		return "fuzzy-date"
	case TierAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// MatchType maps the tier onto the match type a successful candidate from it
// produces.
func (t Tier) MatchType() models.MatchType {
	switch t {
	case TierExact:
		return models.MatchExact
	case TierAmountTolerant:
		return models.MatchAmountTolerant
	case TierFuzzyDate:
		return models.MatchFuzzyDate
	case TierAggregate:
		return models.MatchSplit
	default:
		return models.MatchFuzzyDate
	}
}

// FirstTier and LastTier bound the tier sequence for iteration
const (
	FirstTier = TierExact
	LastTier  = TierAggregate
)

// Scope restricts candidate search to a vendor and optionally a company
type Scope struct {
	VendorRef  string
	CompanyRef string
}

// CandidateGroup is one possible counterpart for a line: a single record for
// tiers 1-3, a record subset for the aggregate tier. Records keep store
// order (creation time, then ID) so results are reproducible.
type CandidateGroup struct {
	Tier    Tier
	Records []*models.LedgerRecord
}

// Sum returns the total amount of the group's records
func (g CandidateGroup) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range g.Records {
		total = total.Add(rec.Amount)
	}
	return total
}

// Config holds the finder's search parameters
type Config struct {
	// AmountTolerance is the absolute amount tolerance in currency units
	AmountTolerance decimal.Decimal
	// DateWindowDays bounds the transaction-date distance for fuzzy tiers
	DateWindowDays int
	// MaxSplitRecords bounds the subset size for aggregate matches
	MaxSplitRecords int
	// CandidatePoolLimit caps the records considered by the aggregate tier
	CandidatePoolLimit int
	// MaxGroups caps the candidate groups returned per tier
	MaxGroups int
}

// DefaultConfig returns the default finder parameters
func DefaultConfig() Config {
	return Config{
		AmountTolerance:    decimal.NewFromFloat(0.01),
		DateWindowDays:     5,
		MaxSplitRecords:    5,
		CandidatePoolLimit: 50,
		MaxGroups:          10,
	}
}

// Validate validates the finder configuration
func (c Config) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative")
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date window cannot be negative")
	}
	if c.MaxSplitRecords < 2 {
		return fmt.Errorf("max split records must be at least 2")
	}
	if c.CandidatePoolLimit <= 0 {
		return fmt.Errorf("candidate pool limit must be positive")
	}
	if c.MaxGroups <= 0 {
		return fmt.Errorf("max groups must be positive")
	}
	return nil
}

// Finder performs tiered candidate search against a ledger reader
type Finder struct {
	ledger store.LedgerReader
	config Config
}

// New creates a Finder over the given ledger reader
func New(ledger store.LedgerReader, config Config) (*Finder, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid finder configuration: %w", err)
	}
	return &Finder{ledger: ledger, config: config}, nil
}

// FindTier returns the candidate groups one tier produces for the line.
// Callers walk tiers in order and stop at the first tier whose candidates
// yield an accepted match.
func (f *Finder) FindTier(ctx context.Context, line *models.StatementLine, scope Scope, tier Tier) ([]CandidateGroup, error) {
	switch tier {
	case TierExact:
		return f.findExact(ctx, line, scope)
	case TierAmountTolerant:
		return f.findAmountTolerant(ctx, line, scope)
	case TierFuzzyDate:
		return f.findFuzzyDate(ctx, line, scope)
	case TierAggregate:
		return f.findAggregate(ctx, line, scope)
	default:
		return nil, fmt.Errorf("unknown candidate tier %d", tier)
	}
}

// HasSameDocOtherCurrency reports whether ledger records with the line's
// document number exist in a different currency. The orchestrator uses this
// to type exhausted lines as currency mismatches instead of missing records.
func (f *Finder) HasSameDocOtherCurrency(ctx context.Context, line *models.StatementLine, scope Scope) (bool, error) {
	records, err := f.ledger.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:     scope.VendorRef,
		CompanyRef:    scope.CompanyRef,
		DocNumberNorm: line.DocNumberNorm,
		Limit:         f.config.CandidatePoolLimit,
	})
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Currency != line.Currency {
			return true, nil
		}
	}
	return false, nil
}

func (f *Finder) findExact(ctx context.Context, line *models.StatementLine, scope Scope) ([]CandidateGroup, error) {
	records, err := f.ledger.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:      scope.VendorRef,
		CompanyRef:     scope.CompanyRef,
		DocNumberNorm:  line.DocNumberNorm,
		Currency:       line.Currency,
		AmountMin:      &line.Amount,
		AmountMax:      &line.Amount,
		ExcludeMatched: true,
		Limit:          f.config.MaxGroups,
	})
	if err != nil {
		return nil, err
	}
	return singletonGroups(TierExact, records), nil
}

func (f *Finder) findAmountTolerant(ctx context.Context, line *models.StatementLine, scope Scope) ([]CandidateGroup, error) {
	min := line.Amount.Sub(f.config.AmountTolerance)
	max := line.Amount.Add(f.config.AmountTolerance)
	records, err := f.ledger.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:      scope.VendorRef,
		CompanyRef:     scope.CompanyRef,
		DocNumberNorm:  line.DocNumberNorm,
		Currency:       line.Currency,
		AmountMin:      &min,
		AmountMax:      &max,
		ExcludeMatched: true,
		Limit:          f.config.MaxGroups,
	})
	if err != nil {
		return nil, err
	}
	return singletonGroups(TierAmountTolerant, records), nil
}

func (f *Finder) findFuzzyDate(ctx context.Context, line *models.StatementLine, scope Scope) ([]CandidateGroup, error) {
	min := line.Amount.Sub(f.config.AmountTolerance)
	max := line.Amount.Add(f.config.AmountTolerance)
	from, to := f.dateWindow(line.TxnDate)
	records, err := f.ledger.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:      scope.VendorRef,
		CompanyRef:     scope.CompanyRef,
		Currency:       line.Currency,
		AmountMin:      &min,
		AmountMax:      &max,
		DateFrom:       &from,
		DateTo:         &to,
		ExcludeMatched: true,
		Limit:          f.config.MaxGroups,
	})
	if err != nil {
		return nil, err
	}
	return singletonGroups(TierFuzzyDate, records), nil
}

// findAggregate searches for record subsets summing to the line amount. The
// pool is bounded and walked in creation order, so the same data always
// yields the same groups in the same order.
func (f *Finder) findAggregate(ctx context.Context, line *models.StatementLine, scope Scope) ([]CandidateGroup, error) {
	from, to := f.dateWindow(line.TxnDate)
	pool, err := f.ledger.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:      scope.VendorRef,
		CompanyRef:     scope.CompanyRef,
		Currency:       line.Currency,
		DateFrom:       &from,
		DateTo:         &to,
		ExcludeMatched: true,
		Limit:          f.config.CandidatePoolLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) < 2 {
		return nil, nil
	}

	search := &subsetSearch{
		pool:      pool,
		target:    line.Amount,
		tolerance: f.config.AmountTolerance,
		maxSize:   f.config.MaxSplitRecords,
		maxGroups: f.config.MaxGroups,
		budget:    subsetSearchBudget,
	}
	subsets := search.run()

	groups := make([]CandidateGroup, 0, len(subsets))
	for _, subset := range subsets {
		groups = append(groups, CandidateGroup{Tier: TierAggregate, Records: subset})
	}
	return groups, nil
}

func (f *Finder) dateWindow(center time.Time) (time.Time, time.Time) {
	window := time.Duration(f.config.DateWindowDays) * 24 * time.Hour
	return center.Add(-window), center.Add(window)
}

func singletonGroups(tier Tier, records []*models.LedgerRecord) []CandidateGroup {
	groups := make([]CandidateGroup, 0, len(records))
	for _, rec := range records {
		groups = append(groups, CandidateGroup{Tier: tier, Records: []*models.LedgerRecord{rec}})
	}
	return groups
}
