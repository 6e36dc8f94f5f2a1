package finder

import (
	"testing"
	"time"

	"statement-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func poolOf(amounts ...string) []*models.LedgerRecord {
	pool := make([]*models.LedgerRecord, len(amounts))
	for i, a := range amounts {
		pool[i] = testRecord("INV-"+a, a, testDate.Add(time.Duration(i)*time.Minute))
	}
	return pool
}

func runSubsetSearch(pool []*models.LedgerRecord, target string, maxSize, maxGroups int) [][]*models.LedgerRecord {
	s := &subsetSearch{
		pool:      pool,
		target:    decimal.RequireFromString(target),
		tolerance: decimal.NewFromFloat(0.01),
		maxSize:   maxSize,
		maxGroups: maxGroups,
		budget:    subsetSearchBudget,
	}
	return s.run()
}

func TestSubsetSearch_FindsPair(t *testing.T) {
	pool := poolOf("150.00", "100.00", "999.00")
	found := runSubsetSearch(pool, "250.00", 5, 10)

	if len(found) != 1 {
		t.Fatalf("expected 1 subset, got %d", len(found))
	}
	if len(found[0]) != 2 {
		t.Fatalf("expected a pair, got %d records", len(found[0]))
	}
}

func TestSubsetSearch_FindsTriple(t *testing.T) {
	pool := poolOf("100.00", "80.00", "70.00")
	found := runSubsetSearch(pool, "250.00", 5, 10)

	if len(found) != 1 {
		t.Fatalf("expected 1 subset, got %d", len(found))
	}
	if len(found[0]) != 3 {
		t.Fatalf("expected a triple, got %d records", len(found[0]))
	}
}

func TestSubsetSearch_WithinTolerance(t *testing.T) {
	pool := poolOf("150.00", "100.01")
	found := runSubsetSearch(pool, "250.00", 5, 10)

	if len(found) != 1 {
		t.Fatalf("expected the tolerance to admit the pair, got %d subsets", len(found))
	}
}

func TestSubsetSearch_NoSolution(t *testing.T) {
	pool := poolOf("10.00", "20.00", "30.00")
	found := runSubsetSearch(pool, "250.00", 5, 10)

	if len(found) != 0 {
		t.Errorf("expected no subsets, got %d", len(found))
	}
}

func TestSubsetSearch_RespectsMaxSize(t *testing.T) {
	pool := poolOf("100.00", "60.00", "50.00", "40.00")
	found := runSubsetSearch(pool, "250.00", 2, 10)

	for _, subset := range found {
		if len(subset) > 2 {
			t.Errorf("subset of %d records exceeds max size 2", len(subset))
		}
	}
	if len(found) != 0 {
		t.Errorf("no pair sums to 250.00, got %d subsets", len(found))
	}
}

func TestSubsetSearch_RespectsMaxGroups(t *testing.T) {
	// Every pair of a 50 and a 200 sums to 250
	pool := poolOf("50.00", "50.00", "50.00", "200.00", "200.00", "200.00")
	found := runSubsetSearch(pool, "250.00", 5, 2)

	if len(found) != 2 {
		t.Errorf("expected the group cap to stop the search at 2, got %d", len(found))
	}
}

func TestSubsetSearch_Deterministic(t *testing.T) {
	pool := poolOf("150.00", "100.00", "50.00", "200.00", "25.00")

	first := runSubsetSearch(pool, "250.00", 5, 10)
	second := runSubsetSearch(pool, "250.00", 5, 10)

	if len(first) != len(second) {
		t.Fatalf("runs differ in subset count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("subset %d differs in size between runs", i)
		}
		for j := range first[i] {
			if first[i][j].ID != second[i][j].ID {
				t.Errorf("subset %d record %d differs between runs", i, j)
			}
		}
	}
}

func TestSubsetSearch_BudgetStopsSearch(t *testing.T) {
	pool := poolOf("1.00", "2.00", "3.00", "4.00", "5.00", "6.00", "7.00", "8.00")
	s := &subsetSearch{
		pool:      pool,
		target:    decimal.RequireFromString("999.00"),
		tolerance: decimal.NewFromFloat(0.01),
		maxSize:   8,
		maxGroups: 10,
		budget:    5,
	}
	found := s.run()

	if len(found) != 0 {
		t.Errorf("expected no subsets under an exhausted budget, got %d", len(found))
	}
	if s.budget > 0 {
		t.Errorf("expected the budget to be spent, have %d left", s.budget)
	}
}
