package reconciler

import (
	"context"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"

	"github.com/google/uuid"
)

// ResolveIssue closes an open issue with the operator's notes. When the
// issue's line sits in disputed with no confirmed match, resolving the last
// open issue also moves the line to resolved, taking it out of the
// outstanding set. A line that was matched in the meantime is left alone.
func (s *Service) ResolveIssue(ctx context.Context, issueID uuid.UUID, notes, actor string) (*models.Issue, error) {
	if actor == "" {
		return nil, apperrors.ValidationError("actorRef", "", "actor reference is required")
	}

	var resolved *models.Issue
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		issue, err := tx.GetIssue(ctx, issueID)
		if err != nil {
			return err
		}
		if issue.Status != models.IssueOpen {
			return apperrors.IssueNotOpenError(issueID, issue.Status.String())
		}

		if err := tx.ResolveIssue(ctx, issueID, notes, actor); err != nil {
			return err
		}

		line, err := tx.GetLine(ctx, issue.LineID)
		if err != nil {
			return err
		}
		if line.Status == models.LineDisputed {
			remaining, err := tx.FindOpenIssueForLine(ctx, line.ID)
			if err != nil {
				return err
			}
			confirmed, err := tx.FindConfirmedMatchForLine(ctx, line.ID)
			if err != nil {
				return err
			}
			if remaining == nil && confirmed == nil {
				if err := tx.UpdateLineStatus(ctx, line.ID, line.Status, line.Version, models.LineResolved); err != nil {
					return err
				}
			}
		}

		resolved, err = tx.GetIssue(ctx, issueID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.refreshStatementStatus(ctx, resolved.StatementID); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh statement status after issue resolution")
	}
	return resolved, nil
}

// DisputeLine raises a manual issue against a line, moving an extracted line
// to disputed. Used when an operator spots a problem the matcher did not.
// A signed-off statement accepts no new disputes.
func (s *Service) DisputeLine(ctx context.Context, lineID uuid.UUID, issueType models.IssueType, description string) (*models.Issue, error) {
	if !issueType.IsValid() {
		return nil, apperrors.ValidationError("type", issueType.String(), "unknown issue type")
	}
	if description == "" {
		return nil, apperrors.ValidationError("description", "", "description is required")
	}

	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	var issue *models.Issue
	err = s.store.Atomically(ctx, func(tx store.Store) error {
		st, err := tx.GetStatement(ctx, line.StatementID)
		if err != nil {
			return err
		}
		if st.Status == models.StatementSignedOff {
			return apperrors.TransitionError("statement", st.ID,
				models.StatementSignedOff.String(), models.StatementOpen.String())
		}

		// Extracted and resolved lines move to disputed. A matched line
		// keeps its status and match; moving it to disputed goes through
		// match rejection, not through a raised issue.
		if line.Status == models.LineExtracted || line.Status == models.LineResolved {
			if err := tx.UpdateLineStatus(ctx, lineID, line.Status, line.Version, models.LineDisputed); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		issue = &models.Issue{
			ID:          uuid.New(),
			StatementID: line.StatementID,
			LineID:      lineID,
			Type:        issueType,
			Description: description,
			Status:      models.IssueOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.CreateIssue(ctx, issue)
	})
	if err != nil {
		return nil, err
	}

	if err := s.refreshStatementStatus(ctx, line.StatementID); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh statement status after dispute")
	}
	return issue, nil
}
