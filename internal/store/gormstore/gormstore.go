// Package gormstore implements the store contracts on MySQL via gorm.
//
// The compare-and-swap semantics map to conditional UPDATE statements whose
// WHERE clause names the status (and version) the caller read; zero rows
// affected means the row moved underneath the caller and surfaces as a
// ConcurrentModificationError. Atomically wraps gorm transactions and takes
// FOR UPDATE row locks on reads inside the transaction, so the sign-off
// gate's check-then-act cannot race line mutations.
package gormstore

import (
	"context"
	"errors"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"
	"statement-reconciliation/internal/store"
	apperrors "statement-reconciliation/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements store.Store on a gorm DB handle
type GormStore struct {
	db *gorm.DB
	// inTx marks a handle scoped to an open transaction; reads then take
	// row locks.
	inTx bool
}

var _ store.Store = (*GormStore)(nil)

// Open connects to MySQL and returns a store
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperrors.StorageError("open database", err)
	}
	return &GormStore{db: db}, nil
}

// NewWithDB wraps an existing gorm handle; used by tests and callers that
// manage the connection themselves.
func NewWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the schema for the tables the core owns.
// The ledger_records table belongs to the ledger service; it is migrated
// here only for local development setups.
func (g *GormStore) AutoMigrate() error {
	err := g.db.AutoMigrate(
		&statementRow{},
		&lineRow{},
		&matchRow{},
		&matchLineRow{},
		&matchRecordRow{},
		&issueRow{},
		&ackRow{},
		&ledgerRecordRow{},
	)
	if err != nil {
		return apperrors.StorageError("migrate schema", err)
	}
	return nil
}

// reader returns a query handle, locking rows when inside a transaction
func (g *GormStore) reader(ctx context.Context) *gorm.DB {
	db := g.db.WithContext(ctx)
	if g.inTx {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// Statements

func (g *GormStore) GetStatement(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	var row statementRow
	err := g.reader(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("statement", id)
	}
	if err != nil {
		return nil, apperrors.StorageError("get statement", err)
	}
	return rowToStatement(&row)
}

func (g *GormStore) CreateStatement(ctx context.Context, st *models.Statement) error {
	if err := st.Validate(); err != nil {
		return apperrors.ValidationError("statement", st.ID.String(), err.Error())
	}
	if err := g.db.WithContext(ctx).Create(statementToRow(st)).Error; err != nil {
		return apperrors.StorageError("create statement", err)
	}
	return nil
}

func (g *GormStore) UpdateStatementStatus(ctx context.Context, id uuid.UUID, from, to models.StatementStatus) error {
	if !from.CanTransitionTo(to) {
		return apperrors.TransitionError("statement", id, from.String(), to.String())
	}
	res := g.db.WithContext(ctx).Model(&statementRow{}).
		Where("id = ? AND status = ?", id.String(), from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return apperrors.StorageError("update statement status", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetStatement(ctx, id); err != nil {
			return err
		}
		return apperrors.ConcurrentModificationError("statement", id)
	}
	return nil
}

// Statement lines

func (g *GormStore) GetLine(ctx context.Context, id uuid.UUID) (*models.StatementLine, error) {
	var row lineRow
	err := g.reader(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("statement line", id)
	}
	if err != nil {
		return nil, apperrors.StorageError("get line", err)
	}
	return rowToLine(&row)
}

func (g *GormStore) CreateLine(ctx context.Context, line *models.StatementLine) error {
	if err := line.Validate(); err != nil {
		return apperrors.ValidationError("statement line", line.ID.String(), err.Error())
	}
	if err := g.db.WithContext(ctx).Create(lineToRow(line)).Error; err != nil {
		return apperrors.StorageError("create line", err)
	}
	return nil
}

func (g *GormStore) ListLines(ctx context.Context, statementID uuid.UUID, statuses ...models.LineStatus) ([]*models.StatementLine, error) {
	q := g.reader(ctx).Where("statement_id = ?", statementID.String())
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var rows []lineRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.StorageError("list lines", err)
	}
	out := make([]*models.StatementLine, 0, len(rows))
	for i := range rows {
		line, err := rowToLine(&rows[i])
		if err != nil {
			return nil, apperrors.StorageError("decode line", err)
		}
		out = append(out, line)
	}
	return out, nil
}

func (g *GormStore) UpdateLineStatus(ctx context.Context, lineID uuid.UUID, fromStatus models.LineStatus, fromVersion int64, to models.LineStatus) error {
	if !fromStatus.CanTransitionTo(to) {
		return apperrors.TransitionError("statement line", lineID, fromStatus.String(), to.String())
	}
	res := g.db.WithContext(ctx).Model(&lineRow{}).
		Where("id = ? AND status = ? AND version = ?", lineID.String(), fromStatus.String(), fromVersion).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return apperrors.StorageError("update line status", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetLine(ctx, lineID); err != nil {
			return err
		}
		return apperrors.ConcurrentModificationError("statement line", lineID)
	}
	return nil
}

// Matches

func (g *GormStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var row matchRow
	err := g.reader(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("match", id)
	}
	if err != nil {
		return nil, apperrors.StorageError("get match", err)
	}
	return g.hydrateMatch(ctx, &row)
}

func (g *GormStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if err := m.Validate(); err != nil {
		return apperrors.ValidationError("match", m.ID.String(), err.Error())
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&matchRow{
			ID:           m.ID.String(),
			StatementID:  m.StatementID.String(),
			MatchType:    m.Type.String(),
			Confidence:   m.Confidence,
			Status:       m.Status.String(),
			RejectReason: m.RejectReason,
			ActorRef:     m.ActorRef,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		for i, lineID := range m.LineIDs {
			if err := tx.Create(&matchLineRow{MatchID: m.ID.String(), LineID: lineID.String(), Position: i}).Error; err != nil {
				return err
			}
		}
		for i, recID := range m.LedgerRecordIDs {
			if err := tx.Create(&matchRecordRow{MatchID: m.ID.String(), LedgerRecordID: recID.String(), Position: i}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.StorageError("create match", err)
	}
	return nil
}

func (g *GormStore) ListMatches(ctx context.Context, statementID uuid.UUID, statuses ...models.MatchStatus) ([]*models.Match, error) {
	q := g.reader(ctx).Where("statement_id = ?", statementID.String())
	if len(statuses) > 0 {
		q = q.Where("status IN ?", matchStatusStrings(statuses))
	}
	var rows []matchRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.StorageError("list matches", err)
	}
	return g.hydrateMatches(ctx, rows)
}

func (g *GormStore) FindConfirmedMatchForLine(ctx context.Context, lineID uuid.UUID) (*models.Match, error) {
	var rows []matchRow
	err := g.reader(ctx).
		Joins("JOIN match_lines ml ON ml.match_id = matches.id").
		Where("ml.line_id = ? AND matches.status = ?", lineID.String(), models.MatchConfirmed.String()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("find confirmed match", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return g.hydrateMatch(ctx, &rows[0])
}

func (g *GormStore) FindConfirmedMatchForRecord(ctx context.Context, recordID uuid.UUID) (*models.Match, error) {
	var rows []matchRow
	err := g.reader(ctx).
		Joins("JOIN match_records mr ON mr.match_id = matches.id").
		Where("mr.ledger_record_id = ? AND matches.status = ?", recordID.String(), models.MatchConfirmed.String()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("find confirmed match for record", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return g.hydrateMatch(ctx, &rows[0])
}

func (g *GormStore) ListMatchesForLine(ctx context.Context, lineID uuid.UUID) ([]*models.Match, error) {
	var rows []matchRow
	err := g.reader(ctx).
		Joins("JOIN match_lines ml ON ml.match_id = matches.id").
		Where("ml.line_id = ?", lineID.String()).
		Order("matches.created_at DESC, matches.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("list matches for line", err)
	}
	return g.hydrateMatches(ctx, rows)
}

func (g *GormStore) UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, from, to models.MatchStatus, reason, actor string) error {
	updates := map[string]interface{}{
		"status":     to.String(),
		"updated_at": time.Now().UTC(),
	}
	if reason != "" {
		updates["reject_reason"] = reason
	}
	if actor != "" {
		updates["actor_ref"] = actor
	}
	res := g.db.WithContext(ctx).Model(&matchRow{}).
		Where("id = ? AND status = ?", matchID.String(), from.String()).
		Updates(updates)
	if res.Error != nil {
		return apperrors.StorageError("update match status", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetMatch(ctx, matchID); err != nil {
			return err
		}
		return apperrors.ConcurrentModificationError("match", matchID)
	}
	return nil
}

func (g *GormStore) hydrateMatches(ctx context.Context, rows []matchRow) ([]*models.Match, error) {
	out := make([]*models.Match, 0, len(rows))
	for i := range rows {
		m, err := g.hydrateMatch(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *GormStore) hydrateMatch(ctx context.Context, row *matchRow) (*models.Match, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, apperrors.StorageError("decode match", err)
	}
	stID, err := uuid.Parse(row.StatementID)
	if err != nil {
		return nil, apperrors.StorageError("decode match", err)
	}

	var lineRefs []matchLineRow
	if err := g.db.WithContext(ctx).Where("match_id = ?", row.ID).Order("position ASC").Find(&lineRefs).Error; err != nil {
		return nil, apperrors.StorageError("load match lines", err)
	}
	var recRefs []matchRecordRow
	if err := g.db.WithContext(ctx).Where("match_id = ?", row.ID).Order("position ASC").Find(&recRefs).Error; err != nil {
		return nil, apperrors.StorageError("load match records", err)
	}

	m := &models.Match{
		ID:           id,
		StatementID:  stID,
		Type:         models.MatchType(row.MatchType),
		Confidence:   row.Confidence,
		Status:       models.MatchStatus(row.Status),
		RejectReason: row.RejectReason,
		ActorRef:     row.ActorRef,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	for _, ref := range lineRefs {
		lineID, err := uuid.Parse(ref.LineID)
		if err != nil {
			return nil, apperrors.StorageError("decode match line ref", err)
		}
		m.LineIDs = append(m.LineIDs, lineID)
	}
	for _, ref := range recRefs {
		recID, err := uuid.Parse(ref.LedgerRecordID)
		if err != nil {
			return nil, apperrors.StorageError("decode match record ref", err)
		}
		m.LedgerRecordIDs = append(m.LedgerRecordIDs, recID)
	}
	return m, m.Validate()
}

// Issues

func (g *GormStore) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var row issueRow
	err := g.reader(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("issue", id)
	}
	if err != nil {
		return nil, apperrors.StorageError("get issue", err)
	}
	return rowToIssue(&row)
}

func (g *GormStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if err := issue.Validate(); err != nil {
		return apperrors.ValidationError("issue", issue.ID.String(), err.Error())
	}
	row := &issueRow{
		ID:              issue.ID.String(),
		StatementID:     issue.StatementID.String(),
		LineID:          issue.LineID.String(),
		IssueType:       issue.Type.String(),
		Description:     issue.Description,
		Status:          issue.Status.String(),
		ResolutionNotes: issue.ResolutionNotes,
		ResolvedBy:      issue.ResolvedBy,
		CreatedAt:       issue.CreatedAt,
		UpdatedAt:       issue.UpdatedAt,
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.StorageError("create issue", err)
	}
	return nil
}

func (g *GormStore) ListIssues(ctx context.Context, statementID uuid.UUID, statuses ...models.IssueStatus) ([]*models.Issue, error) {
	q := g.reader(ctx).Where("statement_id = ?", statementID.String())
	if len(statuses) > 0 {
		q = q.Where("status IN ?", issueStatusStrings(statuses))
	}
	var rows []issueRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.StorageError("list issues", err)
	}
	out := make([]*models.Issue, 0, len(rows))
	for i := range rows {
		issue, err := rowToIssue(&rows[i])
		if err != nil {
			return nil, apperrors.StorageError("decode issue", err)
		}
		out = append(out, issue)
	}
	return out, nil
}

func (g *GormStore) FindOpenIssueForLine(ctx context.Context, lineID uuid.UUID) (*models.Issue, error) {
	var rows []issueRow
	err := g.reader(ctx).
		Where("line_id = ? AND status = ?", lineID.String(), models.IssueOpen.String()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("find open issue", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToIssue(&rows[0])
}

func (g *GormStore) ResolveIssue(ctx context.Context, issueID uuid.UUID, notes, actor string) error {
	res := g.db.WithContext(ctx).Model(&issueRow{}).
		Where("id = ? AND status = ?", issueID.String(), models.IssueOpen.String()).
		Updates(map[string]interface{}{
			"status":           models.IssueResolved.String(),
			"resolution_notes": notes,
			"resolved_by":      actor,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return apperrors.StorageError("resolve issue", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetIssue(ctx, issueID); err != nil {
			return err
		}
		return apperrors.ConcurrentModificationError("issue", issueID)
	}
	return nil
}

// Acknowledgements

func (g *GormStore) CreateAcknowledgement(ctx context.Context, ack *models.Acknowledgement) error {
	if err := ack.Validate(); err != nil {
		return apperrors.ValidationError("acknowledgement", ack.ID.String(), err.Error())
	}
	row := &ackRow{
		ID:          ack.ID.String(),
		StatementID: ack.StatementID.String(),
		ActorRef:    ack.ActorRef,
		AckType:     ack.Type.String(),
		Notes:       ack.Notes,
		SignedAt:    ack.SignedAt,
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.StorageError("create acknowledgement", err)
	}
	return nil
}

func (g *GormStore) ListAcknowledgements(ctx context.Context, statementID uuid.UUID) ([]*models.Acknowledgement, error) {
	var rows []ackRow
	err := g.reader(ctx).
		Where("statement_id = ?", statementID.String()).
		Order("signed_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StorageError("list acknowledgements", err)
	}
	out := make([]*models.Acknowledgement, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, apperrors.StorageError("decode acknowledgement", err)
		}
		stID, err := uuid.Parse(row.StatementID)
		if err != nil {
			return nil, apperrors.StorageError("decode acknowledgement", err)
		}
		out = append(out, &models.Acknowledgement{
			ID:          id,
			StatementID: stID,
			ActorRef:    row.ActorRef,
			Type:        models.AckType(row.AckType),
			Notes:       row.Notes,
			SignedAt:    row.SignedAt,
		})
	}
	return out, nil
}

// Ledger

func (g *GormStore) FindCandidates(ctx context.Context, filter store.CandidateFilter) ([]*models.LedgerRecord, error) {
	q := g.db.WithContext(ctx).Model(&ledgerRecordRow{})
	if filter.VendorRef != "" {
		q = q.Where("vendor_ref = ?", filter.VendorRef)
	}
	if filter.CompanyRef != "" {
		q = q.Where("company_ref = ?", filter.CompanyRef)
	}
	if filter.DocNumberNorm != "" {
		q = q.Where("doc_number_norm = ?", filter.DocNumberNorm)
	}
	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}
	if filter.AmountMin != nil {
		q = q.Where("amount >= ?", *filter.AmountMin)
	}
	if filter.AmountMax != nil {
		q = q.Where("amount <= ?", *filter.AmountMax)
	}
	if filter.DateFrom != nil {
		q = q.Where("record_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("record_date <= ?", *filter.DateTo)
	}
	if filter.ExcludeMatched {
		q = q.Where("NOT EXISTS (SELECT 1 FROM match_records mr JOIN matches m ON m.id = mr.match_id WHERE mr.ledger_record_id = ledger_records.id AND m.status = ?)",
			models.MatchConfirmed.String())
	}
	q = q.Order("created_at ASC, id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []ledgerRecordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.StorageError("find candidates", err)
	}
	out := make([]*models.LedgerRecord, 0, len(rows))
	for i := range rows {
		rec, err := rowToLedgerRecord(&rows[i])
		if err != nil {
			return nil, apperrors.StorageError("decode ledger record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *GormStore) GetLedgerRecords(ctx context.Context, ids []uuid.UUID) ([]*models.LedgerRecord, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	var rows []ledgerRecordRow
	if err := g.db.WithContext(ctx).Where("id IN ?", strIDs).Find(&rows).Error; err != nil {
		return nil, apperrors.StorageError("get ledger records", err)
	}
	byID := make(map[string]*ledgerRecordRow, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	out := make([]*models.LedgerRecord, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id.String()]
		if !ok {
			return nil, apperrors.NotFoundError("ledger record", id)
		}
		rec, err := rowToLedgerRecord(row)
		if err != nil {
			return nil, apperrors.StorageError("decode ledger record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateLedgerRecord inserts a ledger record, used by seeding and ingest.
// Not part of the Store interface since the reconciliation operations only
// ever read the ledger.
func (g *GormStore) CreateLedgerRecord(ctx context.Context, rec *models.LedgerRecord) error {
	if err := rec.Validate(); err != nil {
		return apperrors.ValidationError("ledgerRecord", rec.ID.String(), err.Error())
	}
	row := &ledgerRecordRow{
		ID:            rec.ID.String(),
		DocNumber:     rec.DocNumber,
		DocNumberNorm: normalizer.NormalizeDocNumber(rec.DocNumber),
		Date:          rec.Date,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		VendorRef:     rec.VendorRef,
		CompanyRef:    rec.CompanyRef,
		CreatedAt:     rec.CreatedAt,
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.StorageError("create ledger record", err)
	}
	return nil
}

// Atomically runs fn inside one database transaction; reads through the
// transactional handle take FOR UPDATE locks.
func (g *GormStore) Atomically(ctx context.Context, fn func(tx store.Store) error) error {
	if g.inTx {
		return fn(g)
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

// helpers

func statusStrings(statuses []models.LineStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}

func matchStatusStrings(statuses []models.MatchStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}

func issueStatusStrings(statuses []models.IssueStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
