// Package store defines the persistence contracts the reconciliation core
// consumes. The core never talks to a database directly: it filters, inserts
// and conditionally updates rows through these interfaces.
//
// Conditional updates are the single concurrency primitive. Every mutating
// method that takes a from-status (and, for lines, a from-version) performs a
// compare-and-swap: the write succeeds only if the row still carries the
// state the caller read. A failed swap surfaces as a
// ConcurrentModificationError, never as a silent overwrite.
package store

import (
	"context"
	"time"

	"statement-reconciliation/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CandidateFilter scopes a ledger-record candidate query. Zero-valued fields
// are not applied. Results are ordered by record creation time, then ID, so
// candidate order is reproducible across runs.
type CandidateFilter struct {
	VendorRef  string
	CompanyRef string

	// DocNumberNorm filters on the normalized document number
	DocNumberNorm string

	Currency string

	// AmountMin/AmountMax bound the record amount inclusively
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal

	// DateFrom/DateTo bound the record date inclusively
	DateFrom *time.Time
	DateTo   *time.Time

	// ExcludeMatched drops records already referenced by a confirmed match
	ExcludeMatched bool

	// Limit caps the result size; zero means no cap
	Limit int
}

// LedgerReader is the read-only view of the internal ledger. The core never
// mutates ledger records.
type LedgerReader interface {
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*models.LedgerRecord, error)
	GetLedgerRecords(ctx context.Context, ids []uuid.UUID) ([]*models.LedgerRecord, error)
}

// Store is the transactional write interface over the entities the core
// owns: statements, lines, matches, issues and acknowledgements.
type Store interface {
	LedgerReader

	// Statements

	GetStatement(ctx context.Context, id uuid.UUID) (*models.Statement, error)
	CreateStatement(ctx context.Context, st *models.Statement) error
	// UpdateStatementStatus swaps the statement status; fails with a
	// ConcurrentModificationError if the current status is not from.
	UpdateStatementStatus(ctx context.Context, id uuid.UUID, from, to models.StatementStatus) error

	// Statement lines

	GetLine(ctx context.Context, id uuid.UUID) (*models.StatementLine, error)
	CreateLine(ctx context.Context, line *models.StatementLine) error
	// ListLines returns the statement's lines, ordered by creation time then
	// ID. With statuses given, only lines in one of those statuses return.
	ListLines(ctx context.Context, statementID uuid.UUID, statuses ...models.LineStatus) ([]*models.StatementLine, error)
	// UpdateLineStatus is the per-line compare-and-swap: the write succeeds
	// only if the line still carries fromStatus and fromVersion, and bumps
	// the version.
	UpdateLineStatus(ctx context.Context, lineID uuid.UUID, fromStatus models.LineStatus, fromVersion int64, to models.LineStatus) error

	// Matches

	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	CreateMatch(ctx context.Context, m *models.Match) error
	ListMatches(ctx context.Context, statementID uuid.UUID, statuses ...models.MatchStatus) ([]*models.Match, error)
	// FindConfirmedMatchForLine returns the confirmed match referencing the
	// line, or nil when none exists.
	FindConfirmedMatchForLine(ctx context.Context, lineID uuid.UUID) (*models.Match, error)
	// FindConfirmedMatchForRecord returns the confirmed match booking the
	// ledger record, or nil when the record is free.
	FindConfirmedMatchForRecord(ctx context.Context, recordID uuid.UUID) (*models.Match, error)
	// ListMatchesForLine returns all matches referencing the line, newest first.
	ListMatchesForLine(ctx context.Context, lineID uuid.UUID) ([]*models.Match, error)
	// UpdateMatchStatus swaps the match status with reason and actor recorded;
	// fails with a ConcurrentModificationError if the current status is not from.
	UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, from, to models.MatchStatus, reason, actor string) error

	// Issues

	GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
	ListIssues(ctx context.Context, statementID uuid.UUID, statuses ...models.IssueStatus) ([]*models.Issue, error)
	// FindOpenIssueForLine returns the line's open issue, or nil when none.
	FindOpenIssueForLine(ctx context.Context, lineID uuid.UUID) (*models.Issue, error)
	// ResolveIssue swaps the issue from open to resolved, recording notes and
	// actor; fails with a ConcurrentModificationError when the issue is no
	// longer open.
	ResolveIssue(ctx context.Context, issueID uuid.UUID, notes, actor string) error

	// Acknowledgements

	CreateAcknowledgement(ctx context.Context, ack *models.Acknowledgement) error
	ListAcknowledgements(ctx context.Context, statementID uuid.UUID) ([]*models.Acknowledgement, error)

	// Atomically runs fn within one atomic scope: every read fn performs
	// reflects committed state, and its writes commit together or not at
	// all. The sign-off gate runs its check-then-act inside this scope.
	Atomically(ctx context.Context, fn func(tx Store) error) error
}
