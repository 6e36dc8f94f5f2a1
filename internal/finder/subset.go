package finder

import (
	"statement-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// subsetSearchBudget caps the number of partial combinations examined per
// line so a pathological pool cannot stall a recompute pass.
const subsetSearchBudget = 20000

// subsetSearch finds subsets of 2..maxSize pool records whose amounts sum to
// target within tolerance. The pool arrives in creation order and the walk
// is depth-first in index order, so output order is deterministic.
type subsetSearch struct {
	pool      []*models.LedgerRecord
	target    decimal.Decimal
	tolerance decimal.Decimal
	maxSize   int
	maxGroups int
	budget    int

	current []*models.LedgerRecord
	found   [][]*models.LedgerRecord
}

func (s *subsetSearch) run() [][]*models.LedgerRecord {
	s.walk(0, decimal.Zero)
	return s.found
}

func (s *subsetSearch) walk(start int, sum decimal.Decimal) {
	if len(s.found) >= s.maxGroups || s.budget <= 0 {
		return
	}

	if len(s.current) >= 2 && models.CompareAmountsWithTolerance(sum, s.target, s.tolerance) {
		subset := make([]*models.LedgerRecord, len(s.current))
		copy(subset, s.current)
		s.found = append(s.found, subset)
		// A matching subset is not extended further; smaller subsets are
		// preferred by the scorer's cardinality penalty anyway.
		return
	}

	if len(s.current) >= s.maxSize {
		return
	}

	for i := start; i < len(s.pool); i++ {
		if len(s.found) >= s.maxGroups || s.budget <= 0 {
			return
		}
		s.budget--
		s.current = append(s.current, s.pool[i])
		s.walk(i+1, sum.Add(s.pool[i].Amount))
		s.current = s.current[:len(s.current)-1]
	}
}
