package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func seedStatement(t *testing.T, ms *Memstore) *models.Statement {
	t.Helper()
	now := time.Now().UTC()
	st := &models.Statement{
		ID:             uuid.New(),
		VendorRef:      "vendor-1",
		CompanyRef:     "company-1",
		TenantRef:      "tenant-1",
		PeriodStart:    testDate.AddDate(0, -1, 0),
		PeriodEnd:      testDate,
		Status:         models.StatementOpen,
		OpeningBalance: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ms.CreateStatement(context.Background(), st); err != nil {
		t.Fatalf("CreateStatement() error = %v", err)
	}
	return st
}

func seedLine(t *testing.T, ms *Memstore, statementID uuid.UUID, doc, amount string) *models.StatementLine {
	t.Helper()
	now := time.Now().UTC()
	line := &models.StatementLine{
		ID:            uuid.New(),
		StatementID:   statementID,
		DocNumber:     doc,
		DocNumberNorm: doc,
		TxnDate:       testDate,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "USD",
		Type:          models.LineTypeInvoice,
		Status:        models.LineExtracted,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ms.CreateLine(context.Background(), line); err != nil {
		t.Fatalf("CreateLine() error = %v", err)
	}
	return line
}

func TestUpdateLineStatus_CAS(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	if err := ms.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineMatched); err != nil {
		t.Fatalf("UpdateLineStatus() error = %v", err)
	}

	got, err := ms.GetLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("GetLine() error = %v", err)
	}
	if got.Status != models.LineMatched {
		t.Errorf("Status = %s, want matched", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestUpdateLineStatus_StaleVersionConflicts(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	if err := ms.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineDisputed); err != nil {
		t.Fatalf("first update error = %v", err)
	}

	// Second writer still believes version 1
	err := ms.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineMatched)
	if !apperrors.HasCode(err, apperrors.CodeConcurrentModification) {
		t.Errorf("expected concurrent modification, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("expected the conflict to be retryable")
	}
}

func TestUpdateLineStatus_InvalidTransition(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")

	err := ms.UpdateLineStatus(context.Background(), line.ID, models.LineExtracted, 1, models.LineResolved)
	if !apperrors.HasCode(err, apperrors.CodeBadTransition) {
		t.Errorf("expected bad transition, got %v", err)
	}
}

func TestUpdateStatementStatus_CAS(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	ctx := context.Background()

	if err := ms.UpdateStatementStatus(ctx, st.ID, models.StatementOpen, models.StatementReconciled); err != nil {
		t.Fatalf("UpdateStatementStatus() error = %v", err)
	}

	err := ms.UpdateStatementStatus(ctx, st.ID, models.StatementOpen, models.StatementReconciled)
	if !apperrors.HasCode(err, apperrors.CodeConcurrentModification) {
		t.Errorf("expected concurrent modification for a stale status, got %v", err)
	}

	err = ms.UpdateStatementStatus(ctx, st.ID, models.StatementSignedOff, models.StatementOpen)
	if !apperrors.HasCode(err, apperrors.CodeBadTransition) {
		t.Errorf("expected bad transition out of signed_off, got %v", err)
	}
}

func TestGetLine_ReturnsCopy(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	first, _ := ms.GetLine(ctx, line.ID)
	first.Status = models.LineResolved
	first.DocNumber = "tampered"

	second, _ := ms.GetLine(ctx, line.ID)
	if second.Status != models.LineExtracted || second.DocNumber != "INV-1" {
		t.Error("mutating a returned line leaked into the store")
	}
}

func TestAtomically_RollsBackOnError(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := ms.Atomically(ctx, func(tx store.Store) error {
		if err := tx.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineDisputed); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the closure error back, got %v", err)
	}

	got, _ := ms.GetLine(ctx, line.ID)
	if got.Status != models.LineExtracted || got.Version != 1 {
		t.Errorf("expected the write rolled back, got status %s version %d", got.Status, got.Version)
	}
}

func TestAtomically_CommitsOnSuccess(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	err := ms.Atomically(ctx, func(tx store.Store) error {
		return tx.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineDisputed)
	})
	if err != nil {
		t.Fatalf("Atomically() error = %v", err)
	}

	got, _ := ms.GetLine(ctx, line.ID)
	if got.Status != models.LineDisputed {
		t.Errorf("Status = %s, want disputed", got.Status)
	}
}

func TestAtomically_Nested(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	err := ms.Atomically(ctx, func(tx store.Store) error {
		return tx.Atomically(ctx, func(inner store.Store) error {
			return inner.UpdateLineStatus(ctx, line.ID, models.LineExtracted, 1, models.LineDisputed)
		})
	})
	if err != nil {
		t.Fatalf("nested Atomically() error = %v", err)
	}

	got, _ := ms.GetLine(ctx, line.ID)
	if got.Status != models.LineDisputed {
		t.Errorf("Status = %s, want disputed", got.Status)
	}
}

func seedMatch(t *testing.T, ms *Memstore, statementID, lineID uuid.UUID, status models.MatchStatus, createdAt time.Time) *models.Match {
	t.Helper()
	m := &models.Match{
		ID:              uuid.New(),
		StatementID:     statementID,
		LineIDs:         []uuid.UUID{lineID},
		LedgerRecordIDs: []uuid.UUID{uuid.New()},
		Type:            models.MatchExact,
		Confidence:      0.9,
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := ms.CreateMatch(context.Background(), m); err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	return m
}

func TestFindConfirmedMatchForLine(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	got, err := ms.FindConfirmedMatchForLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("FindConfirmedMatchForLine() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil with no matches, got %v", got)
	}

	seedMatch(t, ms, st.ID, line.ID, models.MatchSuggested, time.Now())
	confirmed := seedMatch(t, ms, st.ID, line.ID, models.MatchConfirmed, time.Now())

	got, err = ms.FindConfirmedMatchForLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("FindConfirmedMatchForLine() error = %v", err)
	}
	if got == nil || got.ID != confirmed.ID {
		t.Errorf("expected the confirmed match, got %v", got)
	}
}

func TestFindConfirmedMatchForRecord(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	suggested := seedMatch(t, ms, st.ID, line.ID, models.MatchSuggested, time.Now())
	confirmed := seedMatch(t, ms, st.ID, line.ID, models.MatchConfirmed, time.Now())

	// A suggestion does not book its record
	got, err := ms.FindConfirmedMatchForRecord(ctx, suggested.LedgerRecordIDs[0])
	if err != nil {
		t.Fatalf("FindConfirmedMatchForRecord() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a suggestion's record, got %v", got)
	}

	got, err = ms.FindConfirmedMatchForRecord(ctx, confirmed.LedgerRecordIDs[0])
	if err != nil {
		t.Fatalf("FindConfirmedMatchForRecord() error = %v", err)
	}
	if got == nil || got.ID != confirmed.ID {
		t.Errorf("expected the confirmed match, got %v", got)
	}
}

func TestListMatchesForLine_NewestFirst(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	base := time.Now().UTC()

	older := seedMatch(t, ms, st.ID, line.ID, models.MatchRejected, base.Add(-time.Hour))
	newer := seedMatch(t, ms, st.ID, line.ID, models.MatchSuggested, base)

	got, err := ms.ListMatchesForLine(context.Background(), line.ID)
	if err != nil {
		t.Fatalf("ListMatchesForLine() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Error("expected newest match first")
	}
}

func TestUpdateMatchStatus_Conflict(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	m := seedMatch(t, ms, st.ID, line.ID, models.MatchSuggested, time.Now())
	ctx := context.Background()

	if err := ms.UpdateMatchStatus(ctx, m.ID, models.MatchSuggested, models.MatchConfirmed, "", "alice"); err != nil {
		t.Fatalf("UpdateMatchStatus() error = %v", err)
	}

	err := ms.UpdateMatchStatus(ctx, m.ID, models.MatchSuggested, models.MatchRejected, "late", "bob")
	if !apperrors.HasCode(err, apperrors.CodeConcurrentModification) {
		t.Errorf("expected concurrent modification, got %v", err)
	}

	got, _ := ms.GetMatch(ctx, m.ID)
	if got.Status != models.MatchConfirmed || got.ActorRef != "alice" {
		t.Errorf("expected the first write to stand, got %s by %s", got.Status, got.ActorRef)
	}
}

func TestResolveIssue(t *testing.T) {
	ms := New()
	st := seedStatement(t, ms)
	line := seedLine(t, ms, st.ID, "INV-1", "100.00")
	ctx := context.Background()

	issue := &models.Issue{
		ID:          uuid.New(),
		StatementID: st.ID,
		LineID:      line.ID,
		Type:        models.IssueMissingRecord,
		Description: "no counterpart",
		Status:      models.IssueOpen,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := ms.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}

	open, err := ms.FindOpenIssueForLine(ctx, line.ID)
	if err != nil || open == nil {
		t.Fatalf("FindOpenIssueForLine() = %v, %v", open, err)
	}

	if err := ms.ResolveIssue(ctx, issue.ID, "verified manually", "alice"); err != nil {
		t.Fatalf("ResolveIssue() error = %v", err)
	}

	got, _ := ms.GetIssue(ctx, issue.ID)
	if got.Status != models.IssueResolved || got.ResolutionNotes != "verified manually" || got.ResolvedBy != "alice" {
		t.Errorf("unexpected resolved issue: %+v", got)
	}

	open, _ = ms.FindOpenIssueForLine(ctx, line.ID)
	if open != nil {
		t.Error("expected no open issue after resolution")
	}

	err = ms.ResolveIssue(ctx, issue.ID, "again", "bob")
	if !apperrors.HasCode(err, apperrors.CodeConcurrentModification) {
		t.Errorf("expected conflict resolving twice, got %v", err)
	}
}

func TestFindCandidates_Filters(t *testing.T) {
	ms := New()
	ctx := context.Background()

	add := func(doc, amount, currency string, date time.Time) *models.LedgerRecord {
		rec := &models.LedgerRecord{
			ID:         uuid.New(),
			DocNumber:  doc,
			Date:       date,
			Amount:     decimal.RequireFromString(amount),
			Currency:   currency,
			VendorRef:  "vendor-1",
			CompanyRef: "company-1",
			CreatedAt:  time.Now(),
		}
		ms.AddLedgerRecord(rec)
		return rec
	}

	want := add("INV-100", "250.00", "USD", testDate)
	add("INV-100", "250.00", "EUR", testDate)
	add("INV-100", "400.00", "USD", testDate)
	add("INV-100", "250.00", "USD", testDate.AddDate(0, 0, 30))

	min := decimal.RequireFromString("250.00")
	max := decimal.RequireFromString("250.00")
	from := testDate.AddDate(0, 0, -5)
	to := testDate.AddDate(0, 0, 5)

	got, err := ms.FindCandidates(ctx, store.CandidateFilter{
		VendorRef:     "vendor-1",
		CompanyRef:    "company-1",
		DocNumberNorm: "100",
		Currency:      "USD",
		AmountMin:     &min,
		AmountMax:     &max,
		DateFrom:      &from,
		DateTo:        &to,
	})
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != want.ID {
		t.Fatalf("expected exactly the matching record, got %d records", len(got))
	}
}

func TestFindCandidates_Limit(t *testing.T) {
	ms := New()
	for i := 0; i < 10; i++ {
		ms.AddLedgerRecord(&models.LedgerRecord{
			ID:        uuid.New(),
			DocNumber: "INV-1",
			Date:      testDate,
			Amount:    decimal.NewFromInt(int64(i)),
			Currency:  "USD",
			VendorRef: "vendor-1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}

	got, err := ms.FindCandidates(context.Background(), store.CandidateFilter{VendorRef: "vendor-1", Limit: 3})
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected the limit applied, got %d records", len(got))
	}
}

func TestGetLedgerRecords_PreservesOrder(t *testing.T) {
	ms := New()
	a := &models.LedgerRecord{ID: uuid.New(), DocNumber: "A", Date: testDate, Amount: decimal.NewFromInt(1), Currency: "USD", VendorRef: "v", CreatedAt: time.Now()}
	b := &models.LedgerRecord{ID: uuid.New(), DocNumber: "B", Date: testDate, Amount: decimal.NewFromInt(2), Currency: "USD", VendorRef: "v", CreatedAt: time.Now()}
	ms.AddLedgerRecord(a)
	ms.AddLedgerRecord(b)

	got, err := ms.GetLedgerRecords(context.Background(), []uuid.UUID{b.ID, a.ID})
	if err != nil {
		t.Fatalf("GetLedgerRecords() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Error("expected records in request order")
	}

	_, err = ms.GetLedgerRecords(context.Background(), []uuid.UUID{uuid.New()})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected not found for an unknown record, got %v", err)
	}
}
