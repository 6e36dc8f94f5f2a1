package reconciler

import (
	"context"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"
	"statement-reconciliation/pkg/logger"

	"github.com/google/uuid"
)

// ManualMatchRequest describes a match an operator asserts by hand
type ManualMatchRequest struct {
	LineID          uuid.UUID   `json:"lineId"`
	LedgerRecordIDs []uuid.UUID `json:"ledgerRecordIds"`
	ActorRef        string      `json:"actorRef"`
}

// CreateManualMatch creates a confirmed match between one line and one or
// more ledger records on the operator's authority. No confidence gate
// applies, but exclusivity still does: the line must not already carry a
// confirmed match, and the records must be free.
func (s *Service) CreateManualMatch(ctx context.Context, req ManualMatchRequest) (*models.Match, error) {
	if req.LineID == uuid.Nil {
		return nil, apperrors.ValidationError("lineId", "", "line ID is required")
	}
	if len(req.LedgerRecordIDs) == 0 {
		return nil, apperrors.ValidationError("ledgerRecordIds", "", "at least one ledger record is required")
	}
	if req.ActorRef == "" {
		return nil, apperrors.ValidationError("actorRef", "", "actor reference is required")
	}
	seen := make(map[uuid.UUID]bool, len(req.LedgerRecordIDs))
	for _, id := range req.LedgerRecordIDs {
		if id == uuid.Nil {
			return nil, apperrors.ValidationError("ledgerRecordIds", "", "ledger record ID cannot be empty")
		}
		if seen[id] {
			return nil, apperrors.ValidationError("ledgerRecordIds", id.String(), "duplicate ledger record ID")
		}
		seen[id] = true
	}

	var match *models.Match
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		line, err := tx.GetLine(ctx, req.LineID)
		if err != nil {
			return err
		}
		st, err := tx.GetStatement(ctx, line.StatementID)
		if err != nil {
			return err
		}
		if st.Status == models.StatementSignedOff {
			return apperrors.TransitionError("statement", st.ID,
				models.StatementSignedOff.String(), models.StatementOpen.String())
		}

		existing, err := tx.FindConfirmedMatchForLine(ctx, line.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.AlreadyMatchedError(line.ID, existing.ID)
		}

		records, err := tx.GetLedgerRecords(ctx, req.LedgerRecordIDs)
		if err != nil {
			return err
		}
		if len(records) != len(req.LedgerRecordIDs) {
			return apperrors.NotFoundError("ledger record", missingRecordID(req.LedgerRecordIDs, records))
		}
		if err := ensureRecordsFree(ctx, tx, req.LedgerRecordIDs); err != nil {
			return err
		}

		if err := tx.UpdateLineStatus(ctx, line.ID, line.Status, line.Version, models.LineMatched); err != nil {
			return err
		}

		now := time.Now().UTC()
		match = &models.Match{
			ID:              uuid.New(),
			StatementID:     line.StatementID,
			LineIDs:         []uuid.UUID{line.ID},
			LedgerRecordIDs: append([]uuid.UUID(nil), req.LedgerRecordIDs...),
			Type:            models.MatchManual,
			Confidence:      1.0,
			Status:          models.MatchConfirmed,
			ActorRef:        req.ActorRef,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.CreateMatch(ctx, match)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithComponent("matches").WithFields(logger.Fields{
		"match_id": match.ID.String(),
		"line_id":  req.LineID.String(),
		"actor":    req.ActorRef,
	}).Info("Manual match created")

	if err := s.refreshStatementStatus(ctx, match.StatementID); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh statement status after manual match")
	}
	return match, nil
}

// ConfirmMatch promotes a suggested match to confirmed and moves its line to
// matched. Confirming an already-confirmed match is an error, as is
// confirming when a competing confirmed match won the line or any of the
// records first. A signed-off statement accepts no confirmations.
func (s *Service) ConfirmMatch(ctx context.Context, matchID uuid.UUID, actor string) (*models.Match, error) {
	if actor == "" {
		return nil, apperrors.ValidationError("actorRef", "", "actor reference is required")
	}

	var confirmed *models.Match
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		match, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchSuggested {
			return apperrors.TransitionError("match", matchID,
				match.Status.String(), models.MatchConfirmed.String())
		}

		st, err := tx.GetStatement(ctx, match.StatementID)
		if err != nil {
			return err
		}
		if st.Status == models.StatementSignedOff {
			return apperrors.TransitionError("statement", st.ID,
				models.StatementSignedOff.String(), models.StatementOpen.String())
		}

		lineID := match.LineIDs[0]
		line, err := tx.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		winner, err := tx.FindConfirmedMatchForLine(ctx, lineID)
		if err != nil {
			return err
		}
		if winner != nil {
			return apperrors.AlreadyMatchedError(lineID, winner.ID)
		}
		if err := ensureRecordsFree(ctx, tx, match.LedgerRecordIDs); err != nil {
			return err
		}

		if err := tx.UpdateLineStatus(ctx, lineID, line.Status, line.Version, models.LineMatched); err != nil {
			return err
		}
		if err := tx.UpdateMatchStatus(ctx, matchID, models.MatchSuggested, models.MatchConfirmed, "", actor); err != nil {
			return err
		}
		confirmed, err = tx.GetMatch(ctx, matchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.refreshStatementStatus(ctx, confirmed.StatementID); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh statement status after confirm")
	}
	return confirmed, nil
}

// RejectMatch declines a match. Rejecting a suggestion just marks it; the
// line keeps its status. Rejecting a confirmed match also returns the line
// to extracted so the next recompute can pick it up again. A signed-off
// statement accepts no rejections.
func (s *Service) RejectMatch(ctx context.Context, matchID uuid.UUID, reason, actor string) (*models.Match, error) {
	if actor == "" {
		return nil, apperrors.ValidationError("actorRef", "", "actor reference is required")
	}

	var rejected *models.Match
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		match, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if match.Status == models.MatchRejected {
			return apperrors.TransitionError("match", matchID,
				match.Status.String(), models.MatchRejected.String())
		}

		st, err := tx.GetStatement(ctx, match.StatementID)
		if err != nil {
			return err
		}
		if st.Status == models.StatementSignedOff {
			return apperrors.TransitionError("statement", st.ID,
				models.StatementSignedOff.String(), models.StatementOpen.String())
		}

		if match.Status == models.MatchConfirmed {
			lineID := match.LineIDs[0]
			line, err := tx.GetLine(ctx, lineID)
			if err != nil {
				return err
			}
			if line.Status == models.LineMatched {
				if err := tx.UpdateLineStatus(ctx, lineID, line.Status, line.Version, models.LineExtracted); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateMatchStatus(ctx, matchID, match.Status, models.MatchRejected, reason, actor); err != nil {
			return err
		}
		rejected, err = tx.GetMatch(ctx, matchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.refreshStatementStatus(ctx, rejected.StatementID); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh statement status after reject")
	}
	return rejected, nil
}

// ensureRecordsFree checks that no confirmed match already books any of the
// given ledger records. Suggested matches do not book records; only a
// confirmation takes them off the table.
func ensureRecordsFree(ctx context.Context, tx store.Store, recordIDs []uuid.UUID) error {
	for _, recID := range recordIDs {
		taken, err := tx.FindConfirmedMatchForRecord(ctx, recID)
		if err != nil {
			return err
		}
		if taken != nil {
			return apperrors.RecordAlreadyMatchedError(recID, taken.ID)
		}
	}
	return nil
}

func missingRecordID(wanted []uuid.UUID, got []*models.LedgerRecord) uuid.UUID {
	found := make(map[uuid.UUID]bool, len(got))
	for _, rec := range got {
		found[rec.ID] = true
	}
	for _, id := range wanted {
		if !found[id] {
			return id
		}
	}
	return uuid.Nil
}
