package gormstore

import (
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row types. Amounts are stored as DECIMAL(20,4); IDs as CHAR(36).

type statementRow struct {
	ID             string          `gorm:"column:id;primaryKey;type:char(36)"`
	VendorRef      string          `gorm:"column:vendor_ref;index"`
	CompanyRef     string          `gorm:"column:company_ref"`
	TenantRef      string          `gorm:"column:tenant_ref;index"`
	PeriodStart    time.Time       `gorm:"column:period_start"`
	PeriodEnd      time.Time       `gorm:"column:period_end"`
	Status         string          `gorm:"column:status;index"`
	OpeningBalance decimal.Decimal `gorm:"column:opening_balance;type:decimal(20,4)"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (statementRow) TableName() string { return "statements" }

type lineRow struct {
	ID            string          `gorm:"column:id;primaryKey;type:char(36)"`
	StatementID   string          `gorm:"column:statement_id;index;type:char(36)"`
	DocNumber     string          `gorm:"column:doc_number"`
	DocNumberNorm string          `gorm:"column:doc_number_norm;index"`
	TxnDate       time.Time       `gorm:"column:txn_date"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,4)"`
	Currency      string          `gorm:"column:currency;type:char(3)"`
	LineType      string          `gorm:"column:line_type"`
	Status        string          `gorm:"column:status;index"`
	Version       int64           `gorm:"column:version"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (lineRow) TableName() string { return "statement_lines" }

type matchRow struct {
	ID           string    `gorm:"column:id;primaryKey;type:char(36)"`
	StatementID  string    `gorm:"column:statement_id;index;type:char(36)"`
	MatchType    string    `gorm:"column:match_type"`
	Confidence   float64   `gorm:"column:confidence"`
	Status       string    `gorm:"column:status;index"`
	RejectReason string    `gorm:"column:reject_reason"`
	ActorRef     string    `gorm:"column:actor_ref"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (matchRow) TableName() string { return "matches" }

// matchLineRow and matchRecordRow are the ordered join tables for a match's
// line and ledger-record references.
type matchLineRow struct {
	MatchID  string `gorm:"column:match_id;primaryKey;type:char(36)"`
	LineID   string `gorm:"column:line_id;primaryKey;index;type:char(36)"`
	Position int    `gorm:"column:position"`
}

func (matchLineRow) TableName() string { return "match_lines" }

type matchRecordRow struct {
	MatchID        string `gorm:"column:match_id;primaryKey;type:char(36)"`
	LedgerRecordID string `gorm:"column:ledger_record_id;primaryKey;index;type:char(36)"`
	Position       int    `gorm:"column:position"`
}

func (matchRecordRow) TableName() string { return "match_records" }

type issueRow struct {
	ID              string    `gorm:"column:id;primaryKey;type:char(36)"`
	StatementID     string    `gorm:"column:statement_id;index;type:char(36)"`
	LineID          string    `gorm:"column:line_id;index;type:char(36)"`
	IssueType       string    `gorm:"column:issue_type"`
	Description     string    `gorm:"column:description"`
	Status          string    `gorm:"column:status;index"`
	ResolutionNotes string    `gorm:"column:resolution_notes"`
	ResolvedBy      string    `gorm:"column:resolved_by"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (issueRow) TableName() string { return "issues" }

type ackRow struct {
	ID          string    `gorm:"column:id;primaryKey;type:char(36)"`
	StatementID string    `gorm:"column:statement_id;index;type:char(36)"`
	ActorRef    string    `gorm:"column:actor_ref"`
	AckType     string    `gorm:"column:ack_type"`
	Notes       string    `gorm:"column:notes"`
	SignedAt    time.Time `gorm:"column:signed_at"`
}

func (ackRow) TableName() string { return "acknowledgements" }

type ledgerRecordRow struct {
	ID            string          `gorm:"column:id;primaryKey;type:char(36)"`
	DocNumber     string          `gorm:"column:doc_number"`
	DocNumberNorm string          `gorm:"column:doc_number_norm;index"`
	Date          time.Time       `gorm:"column:record_date"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,4)"`
	Currency      string          `gorm:"column:currency;type:char(3)"`
	VendorRef     string          `gorm:"column:vendor_ref;index"`
	CompanyRef    string          `gorm:"column:company_ref;index"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
}

func (ledgerRecordRow) TableName() string { return "ledger_records" }

// Conversions

func statementToRow(st *models.Statement) *statementRow {
	return &statementRow{
		ID:             st.ID.String(),
		VendorRef:      st.VendorRef,
		CompanyRef:     st.CompanyRef,
		TenantRef:      st.TenantRef,
		PeriodStart:    st.PeriodStart,
		PeriodEnd:      st.PeriodEnd,
		Status:         st.Status.String(),
		OpeningBalance: st.OpeningBalance,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}

func rowToStatement(r *statementRow) (*models.Statement, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	st := &models.Statement{
		ID:             id,
		VendorRef:      r.VendorRef,
		CompanyRef:     r.CompanyRef,
		TenantRef:      r.TenantRef,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		Status:         models.StatementStatus(r.Status),
		OpeningBalance: r.OpeningBalance,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	return st, st.Validate()
}

func lineToRow(l *models.StatementLine) *lineRow {
	norm := l.DocNumberNorm
	if norm == "" {
		norm = normalizer.NormalizeDocNumber(l.DocNumber)
	}
	return &lineRow{
		ID:            l.ID.String(),
		StatementID:   l.StatementID.String(),
		DocNumber:     l.DocNumber,
		DocNumberNorm: norm,
		TxnDate:       l.TxnDate,
		Amount:        l.Amount,
		Currency:      l.Currency,
		LineType:      l.Type.String(),
		Status:        l.Status.String(),
		Version:       l.Version,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func rowToLine(r *lineRow) (*models.StatementLine, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	stID, err := uuid.Parse(r.StatementID)
	if err != nil {
		return nil, err
	}
	line := &models.StatementLine{
		ID:            id,
		StatementID:   stID,
		DocNumber:     r.DocNumber,
		DocNumberNorm: r.DocNumberNorm,
		TxnDate:       r.TxnDate,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Type:          models.LineType(r.LineType),
		Status:        models.LineStatus(r.Status),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	return line, line.Validate()
}

func rowToIssue(r *issueRow) (*models.Issue, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	stID, err := uuid.Parse(r.StatementID)
	if err != nil {
		return nil, err
	}
	lineID, err := uuid.Parse(r.LineID)
	if err != nil {
		return nil, err
	}
	issue := &models.Issue{
		ID:              id,
		StatementID:     stID,
		LineID:          lineID,
		Type:            models.IssueType(r.IssueType),
		Description:     r.Description,
		Status:          models.IssueStatus(r.Status),
		ResolutionNotes: r.ResolutionNotes,
		ResolvedBy:      r.ResolvedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	return issue, issue.Validate()
}

func rowToLedgerRecord(r *ledgerRecordRow) (*models.LedgerRecord, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	rec := &models.LedgerRecord{
		ID:         id,
		DocNumber:  r.DocNumber,
		Date:       r.Date,
		Amount:     r.Amount,
		Currency:   r.Currency,
		VendorRef:  r.VendorRef,
		CompanyRef: r.CompanyRef,
		CreatedAt:  r.CreatedAt,
	}
	return rec, rec.Validate()
}
