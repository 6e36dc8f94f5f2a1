package server

import (
	"net/http"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/reconciler"
	apperrors "statement-reconciliation/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid id",
			"code":  apperrors.CodeValidationFailed,
		})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) recompute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := s.service.Recompute(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) variance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	breakdown, err := s.service.ComputeVariance(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) export(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	export, err := s.service.ExportReconciliation(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, export)
}

type signOffBody struct {
	ActorRef string `json:"actorRef"`
	Type     string `json:"type"`
	Notes    string `json:"notes"`
}

func (s *Server) signOff(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body signOffBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	ack, err := s.service.SignOff(c.Request.Context(), reconciler.SignOffRequest{
		StatementID: id,
		ActorRef:    body.ActorRef,
		Type:        models.AckType(body.Type),
		Notes:       body.Notes,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ack)
}

type manualMatchBody struct {
	LineID          string   `json:"lineId"`
	LedgerRecordIDs []string `json:"ledgerRecordIds"`
	ActorRef        string   `json:"actorRef"`
}

func (s *Server) createManualMatch(c *gin.Context) {
	var body manualMatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	lineID, err := uuid.Parse(body.LineID)
	if err != nil {
		s.respondError(c, apperrors.ValidationError("lineId", body.LineID, "invalid UUID"))
		return
	}
	recordIDs := make([]uuid.UUID, 0, len(body.LedgerRecordIDs))
	for _, raw := range body.LedgerRecordIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(c, apperrors.ValidationError("ledgerRecordIds", raw, "invalid UUID"))
			return
		}
		recordIDs = append(recordIDs, id)
	}

	match, err := s.service.CreateManualMatch(c.Request.Context(), reconciler.ManualMatchRequest{
		LineID:          lineID,
		LedgerRecordIDs: recordIDs,
		ActorRef:        body.ActorRef,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

type actorBody struct {
	ActorRef string `json:"actorRef"`
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
}

func (s *Server) confirmMatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	match, err := s.service.ConfirmMatch(c.Request.Context(), id, body.ActorRef)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (s *Server) rejectMatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	match, err := s.service.RejectMatch(c.Request.Context(), id, body.Reason, body.ActorRef)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (s *Server) resolveIssue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	issue, err := s.service.ResolveIssue(c.Request.Context(), id, body.Notes, body.ActorRef)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

type disputeBody struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (s *Server) disputeLine(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body disputeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.ValidationError("body", "", "invalid JSON body"))
		return
	}
	issue, err := s.service.DisputeLine(c.Request.Context(), id, models.IssueType(body.Type), body.Description)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}
