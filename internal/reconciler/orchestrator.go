package reconciler

import (
	"context"
	"time"

	"statement-reconciliation/internal/finder"
	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/scorer"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"
	"statement-reconciliation/pkg/logger"

	"github.com/google/uuid"
)

// RecomputeResult summarizes one recompute pass over a statement
type RecomputeResult struct {
	StatementID        uuid.UUID         `json:"statementId"`
	LinesProcessed     int               `json:"linesProcessed"`
	MatchesCreated     int               `json:"matchesCreated"`
	SuggestionsCreated int               `json:"suggestionsCreated"`
	IssuesCreated      int               `json:"issuesCreated"`
	LinesSkipped       int               `json:"linesSkipped"`
	// LineErrors records per-line failures; a failing line aborts only its
	// own processing for this pass, never the whole statement.
	LineErrors map[uuid.UUID]string `json:"lineErrors,omitempty"`
	Elapsed    time.Duration        `json:"elapsed"`
}

// Recompute runs the multi-pass matching orchestrator over every line of the
// statement still in extracted or disputed status. It is idempotent: with no
// intervening writes, a second run creates no new matches or issues and
// churns no statuses. Already-matched and resolved lines are never touched.
func (s *Service) Recompute(ctx context.Context, statementID uuid.UUID) (*RecomputeResult, error) {
	st, err := s.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if st.Status == models.StatementSignedOff {
		return nil, apperrors.TransitionError("statement", statementID,
			models.StatementSignedOff.String(), models.StatementOpen.String())
	}

	lines, err := s.store.ListLines(ctx, statementID, models.LineExtracted, models.LineDisputed)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithComponent("orchestrator").WithField("statement_id", statementID.String())
	progress := logger.NewRecomputeProgress(log, statementID.String(), int64(len(lines)))

	scope := finder.Scope{VendorRef: st.VendorRef, CompanyRef: st.CompanyRef}
	result := &RecomputeResult{StatementID: statementID, LineErrors: make(map[uuid.UUID]string)}

	for _, line := range lines {
		outcome, err := s.processLine(ctx, line, scope)
		result.LinesProcessed++
		if err != nil {
			if apperrors.IsRetryable(err) {
				// Lost a race against a manual action on this line; the
				// winner's state stands and the next recompute revisits it.
				result.LinesSkipped++
				progress.LineSkipped()
				continue
			}
			log.WithError(err).WithField("line_id", line.ID.String()).Error("Line processing failed")
			result.LineErrors[line.ID] = err.Error()
			progress.LineSkipped()
			continue
		}
		switch outcome {
		case outcomeConfirmed:
			result.MatchesCreated++
			progress.LineMatched()
		case outcomeSuggested:
			result.SuggestionsCreated++
			progress.LineMatched()
		case outcomeIssued:
			result.IssuesCreated++
			progress.LineIssued()
		default:
			progress.LineSkipped()
		}
	}

	result.Elapsed = progress.Finish()

	if err := s.refreshStatementStatus(ctx, statementID); err != nil {
		log.WithError(err).Warn("Failed to refresh statement status after recompute")
	}

	if len(result.LineErrors) == 0 {
		result.LineErrors = nil
	}
	return result, nil
}

type lineOutcome int

const (
	outcomeNone lineOutcome = iota
	outcomeConfirmed
	outcomeSuggested
	outcomeIssued
)

// processLine walks the candidate tiers for one line. The first tier whose
// top candidate clears a threshold decides the line's fate for this pass;
// a tier whose candidates all score below the suggest threshold does not
// stop the walk, and a line no tier can place gets an issue.
func (s *Service) processLine(ctx context.Context, line *models.StatementLine, scope finder.Scope) (lineOutcome, error) {
	if !s.config.IsMatchable(line.Type) {
		created, err := s.ensureIssue(ctx, line, models.IssueMissingRecord,
			"line type "+line.Type.String()+" is not matchable in this deployment")
		if err != nil {
			return outcomeNone, err
		}
		if created {
			return outcomeIssued, nil
		}
		return outcomeNone, nil
	}

	for tier := finder.FirstTier; tier <= finder.LastTier; tier++ {
		groups, err := s.finder.FindTier(ctx, line, scope, tier)
		if err != nil {
			return outcomeNone, err
		}
		if len(groups) == 0 {
			continue
		}

		ranked := s.scorer.Rank(line, groups)
		top := ranked[0]

		if top.Confidence >= s.config.AutoConfirmThreshold {
			if err := s.commitMatch(ctx, line, top, models.MatchConfirmed, ""); err != nil {
				return outcomeNone, err
			}
			return outcomeConfirmed, nil
		}
		if top.Confidence >= s.config.SuggestThreshold {
			created, err := s.suggestMatch(ctx, line, top)
			if err != nil {
				return outcomeNone, err
			}
			if created {
				return outcomeSuggested, nil
			}
			return outcomeNone, nil
		}
		// None of this tier's candidates are credible; a later, looser
		// tier may still find a good group.
	}

	return s.issueForExhaustedLine(ctx, line, scope)
}

// commitMatch atomically re-checks exclusivity, transitions the line and
// writes the match. status is confirmed for auto-confirmed and manual
// matches, suggested otherwise.
func (s *Service) commitMatch(ctx context.Context, line *models.StatementLine, cand scorer.ScoredCandidate, status models.MatchStatus, actor string) error {
	recordIDs := make([]uuid.UUID, len(cand.Group.Records))
	for i, rec := range cand.Group.Records {
		recordIDs[i] = rec.ID
	}

	return s.store.Atomically(ctx, func(tx store.Store) error {
		existing, err := tx.FindConfirmedMatchForLine(ctx, line.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.AlreadyMatchedError(line.ID, existing.ID)
		}

		if status == models.MatchConfirmed {
			if err := ensureRecordsFree(ctx, tx, recordIDs); err != nil {
				return err
			}
			if err := tx.UpdateLineStatus(ctx, line.ID, line.Status, line.Version, models.LineMatched); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		match := &models.Match{
			ID:              uuid.New(),
			StatementID:     line.StatementID,
			LineIDs:         []uuid.UUID{line.ID},
			LedgerRecordIDs: recordIDs,
			Type:            cand.MatchType,
			Confidence:      cand.Confidence,
			Status:          status,
			ActorRef:        actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.CreateMatch(ctx, match)
	})
}

// suggestMatch records a suggested match unless an identical suggestion
// already exists, which keeps recompute idempotent.
func (s *Service) suggestMatch(ctx context.Context, line *models.StatementLine, cand scorer.ScoredCandidate) (bool, error) {
	recordIDs := make([]uuid.UUID, len(cand.Group.Records))
	for i, rec := range cand.Group.Records {
		recordIDs[i] = rec.ID
	}

	existing, err := s.store.ListMatchesForLine(ctx, line.ID)
	if err != nil {
		return false, err
	}
	for _, m := range existing {
		if m.Status == models.MatchSuggested && sameRecordSet(m.LedgerRecordIDs, recordIDs) {
			return false, nil
		}
	}

	return true, s.commitMatch(ctx, line, cand, models.MatchSuggested, "")
}

// issueForExhaustedLine creates or reuses an open issue for a line every
// tier failed, typing it by what the ledger does hold.
func (s *Service) issueForExhaustedLine(ctx context.Context, line *models.StatementLine, scope finder.Scope) (lineOutcome, error) {
	issueType := models.IssueMissingRecord
	description := "no matching ledger record found after all passes"

	otherCurrency, err := s.finder.HasSameDocOtherCurrency(ctx, line, scope)
	if err != nil {
		return outcomeNone, err
	}
	if otherCurrency {
		issueType = models.IssueCurrencyMismatch
		description = "ledger records with this document number exist in a different currency"
	} else {
		dup, err := s.docAlreadyMatchedOnStatement(ctx, line)
		if err != nil {
			return outcomeNone, err
		}
		if dup {
			issueType = models.IssueDuplicate
			description = "another line on this statement already matched this document number"
		}
	}

	created, err := s.ensureIssue(ctx, line, issueType, description)
	if err != nil {
		return outcomeNone, err
	}
	if created {
		return outcomeIssued, nil
	}
	return outcomeNone, nil
}

// ensureIssue opens an issue for the line unless one is already open, and
// moves an extracted line to disputed. Returns whether a new issue was
// created.
func (s *Service) ensureIssue(ctx context.Context, line *models.StatementLine, issueType models.IssueType, description string) (bool, error) {
	open, err := s.store.FindOpenIssueForLine(ctx, line.ID)
	if err != nil {
		return false, err
	}
	if open != nil {
		return false, nil
	}

	created := false
	err = s.store.Atomically(ctx, func(tx store.Store) error {
		if line.Status == models.LineExtracted {
			if err := tx.UpdateLineStatus(ctx, line.ID, line.Status, line.Version, models.LineDisputed); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		issue := &models.Issue{
			ID:          uuid.New(),
			StatementID: line.StatementID,
			LineID:      line.ID,
			Type:        issueType,
			Description: description,
			Status:      models.IssueOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateIssue(ctx, issue); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// docAlreadyMatchedOnStatement reports whether another line of the same
// statement with the same normalized document number already carries a
// confirmed match.
func (s *Service) docAlreadyMatchedOnStatement(ctx context.Context, line *models.StatementLine) (bool, error) {
	if line.DocNumberNorm == "" {
		return false, nil
	}
	siblings, err := s.store.ListLines(ctx, line.StatementID, models.LineMatched)
	if err != nil {
		return false, err
	}
	for _, sib := range siblings {
		if sib.ID != line.ID && sib.DocNumberNorm == line.DocNumberNorm {
			return true, nil
		}
	}
	return false, nil
}

// refreshStatementStatus flips the statement between open and reconciled
// from the current variance and issue state. It never touches signed_off; a
// lost race here is benign since the next mutation refreshes again.
func (s *Service) refreshStatementStatus(ctx context.Context, statementID uuid.UUID) error {
	breakdown, err := s.computeVariance(ctx, s.store, statementID)
	if err != nil {
		return err
	}
	openIssues, err := s.store.ListIssues(ctx, statementID, models.IssueOpen)
	if err != nil {
		return err
	}

	st, err := s.store.GetStatement(ctx, statementID)
	if err != nil {
		return err
	}
	if st.Status == models.StatementSignedOff {
		return nil
	}

	reconciled := breakdown.NetVariance.Abs().LessThanOrEqual(s.config.VarianceEpsilon) && len(openIssues) == 0
	switch {
	case reconciled && st.Status == models.StatementOpen:
		err = s.store.UpdateStatementStatus(ctx, statementID, models.StatementOpen, models.StatementReconciled)
	case !reconciled && st.Status == models.StatementReconciled:
		err = s.store.UpdateStatementStatus(ctx, statementID, models.StatementReconciled, models.StatementOpen)
	default:
		return nil
	}
	if err != nil && apperrors.IsRetryable(err) {
		return nil
	}
	return err
}

func sameRecordSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
