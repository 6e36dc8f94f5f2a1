package reconciler

import (
	"context"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VarianceBreakdown is the variance picture of a statement at a point in
// time. NetVariance is the opening balance plus every outstanding line
// amount; a statement reconciles when it falls within the epsilon.
type VarianceBreakdown struct {
	StatementID      uuid.UUID       `json:"statementId"`
	OpeningBalance   decimal.Decimal `json:"openingBalance"`
	TotalMatched     decimal.Decimal `json:"totalMatched"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	NetVariance      decimal.Decimal `json:"netVariance"`
	TotalLines       int             `json:"totalLines"`
	MatchedLines     int             `json:"matchedLines"`
	OutstandingLines int             `json:"outstandingLines"`
	ResolvedLines    int             `json:"resolvedLines"`
	OpenIssues       int             `json:"openIssues"`
}

// ComputeVariance computes the current variance breakdown of a statement.
// Read-only; callable in any statement status.
func (s *Service) ComputeVariance(ctx context.Context, statementID uuid.UUID) (*VarianceBreakdown, error) {
	return s.computeVariance(ctx, s.store, statementID)
}

// computeVariance runs against an explicit store handle so the sign-off gate
// can evaluate it inside its own transaction.
func (s *Service) computeVariance(ctx context.Context, st store.Store, statementID uuid.UUID) (*VarianceBreakdown, error) {
	stmt, err := st.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	lines, err := st.ListLines(ctx, statementID)
	if err != nil {
		return nil, err
	}
	openIssues, err := st.ListIssues(ctx, statementID, models.IssueOpen)
	if err != nil {
		return nil, err
	}

	breakdown := &VarianceBreakdown{
		StatementID:      statementID,
		OpeningBalance:   stmt.OpeningBalance,
		TotalMatched:     decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalLines:       len(lines),
		OpenIssues:       len(openIssues),
	}

	for _, line := range lines {
		switch {
		case line.Status == models.LineMatched:
			breakdown.TotalMatched = breakdown.TotalMatched.Add(line.Amount)
			breakdown.MatchedLines++
		case line.Status == models.LineResolved:
			breakdown.ResolvedLines++
		case line.IsOutstanding():
			breakdown.TotalOutstanding = breakdown.TotalOutstanding.Add(line.Amount)
			breakdown.OutstandingLines++
		}
	}

	breakdown.NetVariance = stmt.OpeningBalance.Add(breakdown.TotalOutstanding)
	return breakdown, nil
}
