package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchType represents the matching strategy that produced a Match
type MatchType string

const (
	// MatchExact means the document number, amount and currency all matched exactly
	MatchExact MatchType = "exact"
	// MatchAmountTolerant means the document number matched and the amount was
	// within the configured tolerance
	MatchAmountTolerant MatchType = "amount-tolerant"
	// MatchFuzzyDate means no document-number match; amount and date proximity
	// carried the match
	MatchFuzzyDate MatchType = "fuzzy-date"
	// MatchSplit means a subset of ledger records sums to the line amount
	MatchSplit MatchType = "split"
	// MatchManual means a human created the match directly, bypassing scoring
	MatchManual MatchType = "manual"
)

// String returns the string representation of MatchType
func (t MatchType) String() string {
	return string(t)
}

// IsValid checks if the match type is a known value
func (t MatchType) IsValid() bool {
	switch t {
	case MatchExact, MatchAmountTolerant, MatchFuzzyDate, MatchSplit, MatchManual:
		return true
	}
	return false
}

// MatchStatus represents the lifecycle state of a Match
type MatchStatus string

const (
	// MatchSuggested means the match awaits human confirmation
	MatchSuggested MatchStatus = "suggested"
	// MatchConfirmed means the match is accepted; its lines are matched
	MatchConfirmed MatchStatus = "confirmed"
	// MatchRejected means the match was declined; it is kept for audit
	MatchRejected MatchStatus = "rejected"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the match status is a known value
func (s MatchStatus) IsValid() bool {
	return s == MatchSuggested || s == MatchConfirmed || s == MatchRejected
}

// Match represents a proposed or confirmed link between statement lines and
// ledger records. Matches are never deleted; rejection is a status transition.
type Match struct {
	ID              uuid.UUID   `json:"id"`
	StatementID     uuid.UUID   `json:"statementId"`
	LineIDs         []uuid.UUID `json:"lineIds"`
	LedgerRecordIDs []uuid.UUID `json:"ledgerRecordIds"`
	Type            MatchType   `json:"type"`
	Confidence      float64     `json:"confidence"`
	Status          MatchStatus `json:"status"`
	// RejectReason records why a rejected match was declined
	RejectReason string    `json:"rejectReason,omitempty"`
	ActorRef     string    `json:"actorRef,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate performs basic validation on the Match
func (m *Match) Validate() error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("match ID cannot be empty")
	}
	if m.StatementID == uuid.Nil {
		return fmt.Errorf("match statement reference cannot be empty")
	}
	if len(m.LineIDs) == 0 {
		return fmt.Errorf("match must reference at least one statement line")
	}
	if len(m.LedgerRecordIDs) == 0 {
		return fmt.Errorf("match must reference at least one ledger record")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid match type: %s", m.Type)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("invalid match status: %s", m.Status)
	}
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("match confidence %f out of range [0,1]", m.Confidence)
	}
	return nil
}

// References reports whether the match references the given line
func (m *Match) References(lineID uuid.UUID) bool {
	for _, id := range m.LineIDs {
		if id == lineID {
			return true
		}
	}
	return false
}

// Books reports whether the match references the given ledger record
func (m *Match) Books(recordID uuid.UUID) bool {
	for _, id := range m.LedgerRecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// String returns a string representation of the Match
func (m *Match) String() string {
	return fmt.Sprintf("Match{ID: %s, Type: %s, Confidence: %.2f, Status: %s, Lines: %d, Records: %d}",
		m.ID, m.Type, m.Confidence, m.Status, len(m.LineIDs), len(m.LedgerRecordIDs))
}

// IssueType classifies the discrepancy an Issue tracks
type IssueType string

const (
	IssueAmountMismatch   IssueType = "amount_mismatch"
	IssueMissingRecord    IssueType = "missing_record"
	IssueCurrencyMismatch IssueType = "currency_mismatch"
	IssueDuplicate        IssueType = "duplicate"
)

// String returns the string representation of IssueType
func (t IssueType) String() string {
	return string(t)
}

// IsValid checks if the issue type is a known value
func (t IssueType) IsValid() bool {
	switch t {
	case IssueAmountMismatch, IssueMissingRecord, IssueCurrencyMismatch, IssueDuplicate:
		return true
	}
	return false
}

// IssueStatus represents the lifecycle state of an Issue
type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

// String returns the string representation of IssueStatus
func (s IssueStatus) String() string {
	return string(s)
}

// IsValid checks if the issue status is a known value
func (s IssueStatus) IsValid() bool {
	return s == IssueOpen || s == IssueResolved
}

// Issue represents a flagged discrepancy on a statement line that needs a
// human decision. Issues are closed, never deleted.
type Issue struct {
	ID              uuid.UUID   `json:"id"`
	StatementID     uuid.UUID   `json:"statementId"`
	LineID          uuid.UUID   `json:"lineId"`
	Type            IssueType   `json:"type"`
	Description     string      `json:"description"`
	Status          IssueStatus `json:"status"`
	ResolutionNotes string      `json:"resolutionNotes,omitempty"`
	ResolvedBy      string      `json:"resolvedBy,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Validate performs basic validation on the Issue
func (i *Issue) Validate() error {
	if i.ID == uuid.Nil {
		return fmt.Errorf("issue ID cannot be empty")
	}
	if i.StatementID == uuid.Nil {
		return fmt.Errorf("issue statement reference cannot be empty")
	}
	if i.LineID == uuid.Nil {
		return fmt.Errorf("issue line reference cannot be empty")
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.Type)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid issue status: %s", i.Status)
	}
	return nil
}

// String returns a string representation of the Issue
func (i *Issue) String() string {
	return fmt.Sprintf("Issue{ID: %s, Type: %s, Status: %s, Line: %s}",
		i.ID, i.Type, i.Status, i.LineID)
}

// AckType classifies an Acknowledgement
type AckType string

const (
	// AckFull asserts zero variance at sign-off time
	AckFull AckType = "full"
	// AckPartial records acceptance of a known, non-zero variance
	AckPartial AckType = "partial"
)

// String returns the string representation of AckType
func (t AckType) String() string {
	return string(t)
}

// IsValid checks if the acknowledgement type is a known value
func (t AckType) IsValid() bool {
	return t == AckFull || t == AckPartial
}

// Acknowledgement is an immutable sign-off record: a named actor accepted the
// statement's variance at a point in time. Never mutated or deleted.
type Acknowledgement struct {
	ID          uuid.UUID `json:"id"`
	StatementID uuid.UUID `json:"statementId"`
	ActorRef    string    `json:"actorRef"`
	Type        AckType   `json:"type"`
	Notes       string    `json:"notes,omitempty"`
	SignedAt    time.Time `json:"signedAt"`
}

// Validate performs basic validation on the Acknowledgement
func (a *Acknowledgement) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("acknowledgement ID cannot be empty")
	}
	if a.StatementID == uuid.Nil {
		return fmt.Errorf("acknowledgement statement reference cannot be empty")
	}
	if strings.TrimSpace(a.ActorRef) == "" {
		return fmt.Errorf("acknowledgement actor reference cannot be empty")
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid acknowledgement type: %s", a.Type)
	}
	if a.SignedAt.IsZero() {
		return fmt.Errorf("acknowledgement timestamp cannot be zero")
	}
	return nil
}

// String returns a string representation of the Acknowledgement
func (a *Acknowledgement) String() string {
	return fmt.Sprintf("Acknowledgement{ID: %s, Statement: %s, Actor: %s, Type: %s}",
		a.ID, a.StatementID, a.ActorRef, a.Type)
}
