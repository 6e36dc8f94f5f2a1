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

// SignOffRequest asks to close out a statement
type SignOffRequest struct {
	StatementID uuid.UUID      `json:"statementId"`
	ActorRef    string         `json:"actorRef"`
	Type        models.AckType `json:"type"`
	Notes       string         `json:"notes,omitempty"`
}

// SignOff closes a statement and records an immutable acknowledgement. The
// gates are checked inside one transaction so no mutation can slip in
// between the check and the status flip:
//
//   - a full sign-off demands net variance within the epsilon
//   - any open issue blocks both full and partial sign-off
//
// A partial sign-off accepts a residual variance; the acknowledgement
// records which kind was used.
func (s *Service) SignOff(ctx context.Context, req SignOffRequest) (*models.Acknowledgement, error) {
	if req.ActorRef == "" {
		return nil, apperrors.ValidationError("actorRef", "", "actor reference is required")
	}
	if !req.Type.IsValid() {
		return nil, apperrors.ValidationError("type", req.Type.String(), "unknown acknowledgement type")
	}

	var ack *models.Acknowledgement
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		st, err := tx.GetStatement(ctx, req.StatementID)
		if err != nil {
			return err
		}
		if st.Status == models.StatementSignedOff {
			return apperrors.TransitionError("statement", st.ID,
				models.StatementSignedOff.String(), models.StatementSignedOff.String())
		}

		breakdown, err := s.computeVariance(ctx, tx, req.StatementID)
		if err != nil {
			return err
		}
		if req.Type == models.AckFull && breakdown.NetVariance.Abs().GreaterThan(s.config.VarianceEpsilon) {
			return apperrors.VarianceNotZeroError(req.StatementID, breakdown.NetVariance.String())
		}
		if breakdown.OpenIssues > 0 {
			return apperrors.OpenIssuesRemainError(req.StatementID, breakdown.OpenIssues)
		}

		if err := tx.UpdateStatementStatus(ctx, req.StatementID, st.Status, models.StatementSignedOff); err != nil {
			return err
		}

		ack = &models.Acknowledgement{
			ID:          uuid.New(),
			StatementID: req.StatementID,
			ActorRef:    req.ActorRef,
			Type:        req.Type,
			Notes:       req.Notes,
			SignedAt:    time.Now().UTC(),
		}
		return tx.CreateAcknowledgement(ctx, ack)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithComponent("signoff").WithFields(logger.Fields{
		"statement_id": req.StatementID.String(),
		"actor":        req.ActorRef,
		"type":         req.Type.String(),
	}).Info("Statement signed off")
	return ack, nil
}
