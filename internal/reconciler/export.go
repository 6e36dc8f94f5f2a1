package reconciler

import (
	"context"
	"time"

	"statement-reconciliation/internal/models"

	"github.com/google/uuid"
)

// ExportLine is one statement line in an export, joined with whatever match
// or issue currently explains it.
type ExportLine struct {
	Line *models.StatementLine `json:"line"`
	// Match is the confirmed match when one exists, otherwise the best
	// still-open suggestion
	Match *models.Match `json:"match,omitempty"`
	Issue *models.Issue `json:"issue,omitempty"`
}

// Export is a point-in-time snapshot of a statement's reconciliation state,
// suitable for serialization to an auditor or a downstream system.
type Export struct {
	Statement        *models.Statement         `json:"statement"`
	Variance         *VarianceBreakdown        `json:"variance"`
	Lines            []ExportLine              `json:"lines"`
	Acknowledgements []*models.Acknowledgement `json:"acknowledgements,omitempty"`
	GeneratedAt      time.Time                 `json:"generatedAt"`
}

// ExportReconciliation assembles the full reconciliation snapshot for a
// statement. Read-only; callable in any statement status, including after
// sign-off for audit.
func (s *Service) ExportReconciliation(ctx context.Context, statementID uuid.UUID) (*Export, error) {
	st, err := s.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.computeVariance(ctx, s.store, statementID)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.ListLines(ctx, statementID)
	if err != nil {
		return nil, err
	}
	acks, err := s.store.ListAcknowledgements(ctx, statementID)
	if err != nil {
		return nil, err
	}

	export := &Export{
		Statement:        st,
		Variance:         breakdown,
		Lines:            make([]ExportLine, 0, len(lines)),
		Acknowledgements: acks,
		GeneratedAt:      time.Now().UTC(),
	}

	for _, line := range lines {
		row := ExportLine{Line: line}

		match, err := s.store.FindConfirmedMatchForLine(ctx, line.ID)
		if err != nil {
			return nil, err
		}
		if match == nil {
			match, err = s.bestOpenSuggestion(ctx, line.ID)
			if err != nil {
				return nil, err
			}
		}
		row.Match = match

		issue, err := s.store.FindOpenIssueForLine(ctx, line.ID)
		if err != nil {
			return nil, err
		}
		row.Issue = issue

		export.Lines = append(export.Lines, row)
	}

	return export, nil
}

func (s *Service) bestOpenSuggestion(ctx context.Context, lineID uuid.UUID) (*models.Match, error) {
	matches, err := s.store.ListMatchesForLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	var best *models.Match
	for _, m := range matches {
		if m.Status != models.MatchSuggested {
			continue
		}
		if best == nil || m.Confidence > best.Confidence {
			best = m
		}
	}
	return best, nil
}
