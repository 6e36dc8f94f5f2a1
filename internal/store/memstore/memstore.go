// Package memstore provides an in-memory Store implementation with the same
// conditional-update semantics as the production store. It backs tests and
// the CLI demo fixtures.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"

	"github.com/google/uuid"
)

// Memstore is a mutex-guarded in-memory store. All entities are stored by
// value copy so callers never alias internal state.
type Memstore struct {
	mu sync.Mutex
	st *state
}

// state holds the tables. Methods on state assume the caller holds the lock.
type state struct {
	statements map[uuid.UUID]*models.Statement
	lines      map[uuid.UUID]*models.StatementLine
	matches    map[uuid.UUID]*models.Match
	issues     map[uuid.UUID]*models.Issue
	acks       map[uuid.UUID]*models.Acknowledgement
	ledger     map[uuid.UUID]*models.LedgerRecord
}

var _ store.Store = (*Memstore)(nil)

// New creates an empty Memstore
func New() *Memstore {
	return &Memstore{st: newState()}
}

func newState() *state {
	return &state{
		statements: make(map[uuid.UUID]*models.Statement),
		lines:      make(map[uuid.UUID]*models.StatementLine),
		matches:    make(map[uuid.UUID]*models.Match),
		issues:     make(map[uuid.UUID]*models.Issue),
		acks:       make(map[uuid.UUID]*models.Acknowledgement),
		ledger:     make(map[uuid.UUID]*models.LedgerRecord),
	}
}

// AddLedgerRecord seeds a ledger record. The ledger is read-only from the
// core's perspective; seeding stands in for the external ledger store.
func (m *Memstore) AddLedgerRecord(rec *models.LedgerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.st.ledger[rec.ID] = &cp
}

// Store interface: locked wrappers around state methods

func (m *Memstore) GetStatement(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getStatement(id)
}

func (m *Memstore) CreateStatement(ctx context.Context, st *models.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createStatement(st)
}

func (m *Memstore) UpdateStatementStatus(ctx context.Context, id uuid.UUID, from, to models.StatementStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateStatementStatus(id, from, to)
}

func (m *Memstore) GetLine(ctx context.Context, id uuid.UUID) (*models.StatementLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getLine(id)
}

func (m *Memstore) CreateLine(ctx context.Context, line *models.StatementLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createLine(line)
}

func (m *Memstore) ListLines(ctx context.Context, statementID uuid.UUID, statuses ...models.LineStatus) ([]*models.StatementLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listLines(statementID, statuses...)
}

func (m *Memstore) UpdateLineStatus(ctx context.Context, lineID uuid.UUID, fromStatus models.LineStatus, fromVersion int64, to models.LineStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateLineStatus(lineID, fromStatus, fromVersion, to)
}

func (m *Memstore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getMatch(id)
}

func (m *Memstore) CreateMatch(ctx context.Context, match *models.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createMatch(match)
}

func (m *Memstore) ListMatches(ctx context.Context, statementID uuid.UUID, statuses ...models.MatchStatus) ([]*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listMatches(statementID, statuses...)
}

func (m *Memstore) FindConfirmedMatchForLine(ctx context.Context, lineID uuid.UUID) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findConfirmedMatchForLine(lineID)
}

func (m *Memstore) FindConfirmedMatchForRecord(ctx context.Context, recordID uuid.UUID) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findConfirmedMatchForRecord(recordID)
}

func (m *Memstore) ListMatchesForLine(ctx context.Context, lineID uuid.UUID) ([]*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listMatchesForLine(lineID)
}

func (m *Memstore) UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, from, to models.MatchStatus, reason, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateMatchStatus(matchID, from, to, reason, actor)
}

func (m *Memstore) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getIssue(id)
}

func (m *Memstore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createIssue(issue)
}

func (m *Memstore) ListIssues(ctx context.Context, statementID uuid.UUID, statuses ...models.IssueStatus) ([]*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listIssues(statementID, statuses...)
}

func (m *Memstore) FindOpenIssueForLine(ctx context.Context, lineID uuid.UUID) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findOpenIssueForLine(lineID)
}

func (m *Memstore) ResolveIssue(ctx context.Context, issueID uuid.UUID, notes, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.resolveIssue(issueID, notes, actor)
}

func (m *Memstore) CreateAcknowledgement(ctx context.Context, ack *models.Acknowledgement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAcknowledgement(ack)
}

func (m *Memstore) ListAcknowledgements(ctx context.Context, statementID uuid.UUID) ([]*models.Acknowledgement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listAcknowledgements(statementID)
}

func (m *Memstore) FindCandidates(ctx context.Context, filter store.CandidateFilter) ([]*models.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.findCandidates(filter)
}

func (m *Memstore) GetLedgerRecords(ctx context.Context, ids []uuid.UUID) ([]*models.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getLedgerRecords(ids)
}

// Atomically holds the store lock for the whole closure. The state is
// snapshotted first so a failing closure leaves no partial writes behind.
func (m *Memstore) Atomically(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txStore{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txStore exposes state inside an Atomically scope. The outer call holds the
// lock, so methods go straight to state.
type txStore struct {
	st *state
}

func (t *txStore) GetStatement(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	return t.st.getStatement(id)
}

func (t *txStore) CreateStatement(ctx context.Context, st *models.Statement) error {
	return t.st.createStatement(st)
}

func (t *txStore) UpdateStatementStatus(ctx context.Context, id uuid.UUID, from, to models.StatementStatus) error {
	return t.st.updateStatementStatus(id, from, to)
}

func (t *txStore) GetLine(ctx context.Context, id uuid.UUID) (*models.StatementLine, error) {
	return t.st.getLine(id)
}

func (t *txStore) CreateLine(ctx context.Context, line *models.StatementLine) error {
	return t.st.createLine(line)
}

func (t *txStore) ListLines(ctx context.Context, statementID uuid.UUID, statuses ...models.LineStatus) ([]*models.StatementLine, error) {
	return t.st.listLines(statementID, statuses...)
}

func (t *txStore) UpdateLineStatus(ctx context.Context, lineID uuid.UUID, fromStatus models.LineStatus, fromVersion int64, to models.LineStatus) error {
	return t.st.updateLineStatus(lineID, fromStatus, fromVersion, to)
}

func (t *txStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return t.st.getMatch(id)
}

func (t *txStore) CreateMatch(ctx context.Context, match *models.Match) error {
	return t.st.createMatch(match)
}

func (t *txStore) ListMatches(ctx context.Context, statementID uuid.UUID, statuses ...models.MatchStatus) ([]*models.Match, error) {
	return t.st.listMatches(statementID, statuses...)
}

func (t *txStore) FindConfirmedMatchForLine(ctx context.Context, lineID uuid.UUID) (*models.Match, error) {
	return t.st.findConfirmedMatchForLine(lineID)
}

func (t *txStore) FindConfirmedMatchForRecord(ctx context.Context, recordID uuid.UUID) (*models.Match, error) {
	return t.st.findConfirmedMatchForRecord(recordID)
}

func (t *txStore) ListMatchesForLine(ctx context.Context, lineID uuid.UUID) ([]*models.Match, error) {
	return t.st.listMatchesForLine(lineID)
}

func (t *txStore) UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, from, to models.MatchStatus, reason, actor string) error {
	return t.st.updateMatchStatus(matchID, from, to, reason, actor)
}

func (t *txStore) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	return t.st.getIssue(id)
}

func (t *txStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	return t.st.createIssue(issue)
}

func (t *txStore) ListIssues(ctx context.Context, statementID uuid.UUID, statuses ...models.IssueStatus) ([]*models.Issue, error) {
	return t.st.listIssues(statementID, statuses...)
}

func (t *txStore) FindOpenIssueForLine(ctx context.Context, lineID uuid.UUID) (*models.Issue, error) {
	return t.st.findOpenIssueForLine(lineID)
}

func (t *txStore) ResolveIssue(ctx context.Context, issueID uuid.UUID, notes, actor string) error {
	return t.st.resolveIssue(issueID, notes, actor)
}

func (t *txStore) CreateAcknowledgement(ctx context.Context, ack *models.Acknowledgement) error {
	return t.st.createAcknowledgement(ack)
}

func (t *txStore) ListAcknowledgements(ctx context.Context, statementID uuid.UUID) ([]*models.Acknowledgement, error) {
	return t.st.listAcknowledgements(statementID)
}

func (t *txStore) FindCandidates(ctx context.Context, filter store.CandidateFilter) ([]*models.LedgerRecord, error) {
	return t.st.findCandidates(filter)
}

func (t *txStore) GetLedgerRecords(ctx context.Context, ids []uuid.UUID) ([]*models.LedgerRecord, error) {
	return t.st.getLedgerRecords(ids)
}

// Atomically on a txStore runs the closure in the already-held scope
func (t *txStore) Atomically(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// state methods

func (s *state) getStatement(id uuid.UUID) (*models.Statement, error) {
	st, ok := s.statements[id]
	if !ok {
		return nil, apperrors.NotFoundError("statement", id)
	}
	cp := *st
	return &cp, nil
}

func (s *state) createStatement(st *models.Statement) error {
	if err := st.Validate(); err != nil {
		return apperrors.ValidationError("statement", st.ID.String(), err.Error())
	}
	cp := *st
	s.statements[st.ID] = &cp
	return nil
}

func (s *state) updateStatementStatus(id uuid.UUID, from, to models.StatementStatus) error {
	st, ok := s.statements[id]
	if !ok {
		return apperrors.NotFoundError("statement", id)
	}
	if !from.CanTransitionTo(to) {
		return apperrors.TransitionError("statement", id, from.String(), to.String())
	}
	if st.Status != from {
		return apperrors.ConcurrentModificationError("statement", id)
	}
	st.Status = to
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *state) getLine(id uuid.UUID) (*models.StatementLine, error) {
	line, ok := s.lines[id]
	if !ok {
		return nil, apperrors.NotFoundError("statement line", id)
	}
	cp := *line
	return &cp, nil
}

func (s *state) createLine(line *models.StatementLine) error {
	if err := line.Validate(); err != nil {
		return apperrors.ValidationError("statement line", line.ID.String(), err.Error())
	}
	if _, ok := s.statements[line.StatementID]; !ok {
		return apperrors.NotFoundError("statement", line.StatementID)
	}
	cp := *line
	s.lines[line.ID] = &cp
	return nil
}

func (s *state) listLines(statementID uuid.UUID, statuses ...models.LineStatus) ([]*models.StatementLine, error) {
	var out []*models.StatementLine
	for _, line := range s.lines {
		if line.StatementID != statementID {
			continue
		}
		if len(statuses) > 0 && !containsLineStatus(statuses, line.Status) {
			continue
		}
		cp := *line
		out = append(out, &cp)
	}
	sortByCreation(out, func(l *models.StatementLine) (time.Time, uuid.UUID) { return l.CreatedAt, l.ID })
	return out, nil
}

func (s *state) updateLineStatus(lineID uuid.UUID, fromStatus models.LineStatus, fromVersion int64, to models.LineStatus) error {
	line, ok := s.lines[lineID]
	if !ok {
		return apperrors.NotFoundError("statement line", lineID)
	}
	if !fromStatus.CanTransitionTo(to) {
		return apperrors.TransitionError("statement line", lineID, fromStatus.String(), to.String())
	}
	if line.Status != fromStatus || line.Version != fromVersion {
		return apperrors.ConcurrentModificationError("statement line", lineID)
	}
	line.Status = to
	line.Version++
	line.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *state) getMatch(id uuid.UUID) (*models.Match, error) {
	m, ok := s.matches[id]
	if !ok {
		return nil, apperrors.NotFoundError("match", id)
	}
	return copyMatch(m), nil
}

func (s *state) createMatch(m *models.Match) error {
	if err := m.Validate(); err != nil {
		return apperrors.ValidationError("match", m.ID.String(), err.Error())
	}
	s.matches[m.ID] = copyMatch(m)
	return nil
}

func (s *state) listMatches(statementID uuid.UUID, statuses ...models.MatchStatus) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range s.matches {
		if m.StatementID != statementID {
			continue
		}
		if len(statuses) > 0 && !containsMatchStatus(statuses, m.Status) {
			continue
		}
		out = append(out, copyMatch(m))
	}
	sortByCreation(out, func(m *models.Match) (time.Time, uuid.UUID) { return m.CreatedAt, m.ID })
	return out, nil
}

func (s *state) findConfirmedMatchForLine(lineID uuid.UUID) (*models.Match, error) {
	for _, m := range s.matches {
		if m.Status == models.MatchConfirmed && m.References(lineID) {
			return copyMatch(m), nil
		}
	}
	return nil, nil
}

func (s *state) findConfirmedMatchForRecord(recordID uuid.UUID) (*models.Match, error) {
	for _, m := range s.matches {
		if m.Status == models.MatchConfirmed && m.Books(recordID) {
			return copyMatch(m), nil
		}
	}
	return nil, nil
}

func (s *state) listMatchesForLine(lineID uuid.UUID) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range s.matches {
		if m.References(lineID) {
			out = append(out, copyMatch(m))
		}
	}
	sortByCreation(out, func(m *models.Match) (time.Time, uuid.UUID) { return m.CreatedAt, m.ID })
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *state) updateMatchStatus(matchID uuid.UUID, from, to models.MatchStatus, reason, actor string) error {
	m, ok := s.matches[matchID]
	if !ok {
		return apperrors.NotFoundError("match", matchID)
	}
	if m.Status != from {
		return apperrors.ConcurrentModificationError("match", matchID)
	}
	m.Status = to
	if reason != "" {
		m.RejectReason = reason
	}
	if actor != "" {
		m.ActorRef = actor
	}
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *state) getIssue(id uuid.UUID) (*models.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, apperrors.NotFoundError("issue", id)
	}
	cp := *issue
	return &cp, nil
}

func (s *state) createIssue(issue *models.Issue) error {
	if err := issue.Validate(); err != nil {
		return apperrors.ValidationError("issue", issue.ID.String(), err.Error())
	}
	cp := *issue
	s.issues[issue.ID] = &cp
	return nil
}

func (s *state) listIssues(statementID uuid.UUID, statuses ...models.IssueStatus) ([]*models.Issue, error) {
	var out []*models.Issue
	for _, issue := range s.issues {
		if issue.StatementID != statementID {
			continue
		}
		if len(statuses) > 0 && !containsIssueStatus(statuses, issue.Status) {
			continue
		}
		cp := *issue
		out = append(out, &cp)
	}
	sortByCreation(out, func(i *models.Issue) (time.Time, uuid.UUID) { return i.CreatedAt, i.ID })
	return out, nil
}

func (s *state) findOpenIssueForLine(lineID uuid.UUID) (*models.Issue, error) {
	for _, issue := range s.issues {
		if issue.LineID == lineID && issue.Status == models.IssueOpen {
			cp := *issue
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *state) resolveIssue(issueID uuid.UUID, notes, actor string) error {
	issue, ok := s.issues[issueID]
	if !ok {
		return apperrors.NotFoundError("issue", issueID)
	}
	if issue.Status != models.IssueOpen {
		return apperrors.ConcurrentModificationError("issue", issueID)
	}
	issue.Status = models.IssueResolved
	issue.ResolutionNotes = notes
	issue.ResolvedBy = actor
	issue.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *state) createAcknowledgement(ack *models.Acknowledgement) error {
	if err := ack.Validate(); err != nil {
		return apperrors.ValidationError("acknowledgement", ack.ID.String(), err.Error())
	}
	cp := *ack
	s.acks[ack.ID] = &cp
	return nil
}

func (s *state) listAcknowledgements(statementID uuid.UUID) ([]*models.Acknowledgement, error) {
	var out []*models.Acknowledgement
	for _, ack := range s.acks {
		if ack.StatementID == statementID {
			cp := *ack
			out = append(out, &cp)
		}
	}
	sortByCreation(out, func(a *models.Acknowledgement) (time.Time, uuid.UUID) { return a.SignedAt, a.ID })
	return out, nil
}

func (s *state) findCandidates(filter store.CandidateFilter) ([]*models.LedgerRecord, error) {
	matched := make(map[uuid.UUID]bool)
	if filter.ExcludeMatched {
		for _, m := range s.matches {
			if m.Status != models.MatchConfirmed {
				continue
			}
			for _, recID := range m.LedgerRecordIDs {
				matched[recID] = true
			}
		}
	}

	var out []*models.LedgerRecord
	for _, rec := range s.ledger {
		if filter.VendorRef != "" && rec.VendorRef != filter.VendorRef {
			continue
		}
		if filter.CompanyRef != "" && rec.CompanyRef != filter.CompanyRef {
			continue
		}
		if filter.DocNumberNorm != "" && normalizeDoc(rec.DocNumber) != filter.DocNumberNorm {
			continue
		}
		if filter.Currency != "" && rec.Currency != filter.Currency {
			continue
		}
		if filter.AmountMin != nil && rec.Amount.LessThan(*filter.AmountMin) {
			continue
		}
		if filter.AmountMax != nil && rec.Amount.GreaterThan(*filter.AmountMax) {
			continue
		}
		if filter.DateFrom != nil && rec.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && rec.Date.After(*filter.DateTo) {
			continue
		}
		if matched[rec.ID] {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sortByCreation(out, func(r *models.LedgerRecord) (time.Time, uuid.UUID) { return r.CreatedAt, r.ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *state) getLedgerRecords(ids []uuid.UUID) ([]*models.LedgerRecord, error) {
	out := make([]*models.LedgerRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.ledger[id]
		if !ok {
			return nil, apperrors.NotFoundError("ledger record", id)
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *state) clone() *state {
	next := newState()
	for id, st := range s.statements {
		cp := *st
		next.statements[id] = &cp
	}
	for id, line := range s.lines {
		cp := *line
		next.lines[id] = &cp
	}
	for id, m := range s.matches {
		next.matches[id] = copyMatch(m)
	}
	for id, issue := range s.issues {
		cp := *issue
		next.issues[id] = &cp
	}
	for id, ack := range s.acks {
		cp := *ack
		next.acks[id] = &cp
	}
	for id, rec := range s.ledger {
		cp := *rec
		next.ledger[id] = &cp
	}
	return next
}

// helpers

func copyMatch(m *models.Match) *models.Match {
	cp := *m
	cp.LineIDs = append([]uuid.UUID(nil), m.LineIDs...)
	cp.LedgerRecordIDs = append([]uuid.UUID(nil), m.LedgerRecordIDs...)
	return &cp
}

func containsLineStatus(statuses []models.LineStatus, s models.LineStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func containsMatchStatus(statuses []models.MatchStatus, s models.MatchStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func containsIssueStatus(statuses []models.IssueStatus, s models.IssueStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func sortByCreation[T any](items []T, key func(T) (time.Time, uuid.UUID)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi.String() < idj.String()
	})
}

// normalizeDoc mirrors the normalizer's document-number shadow so candidate
// doc filters behave the same in memory as in SQL (where the normalized
// column is stored).
func normalizeDoc(doc string) string {
	return normalizer.NormalizeDocNumber(doc)
}
