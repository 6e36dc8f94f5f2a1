// Package models defines the entity records of the reconciliation core:
// statements, statement lines, ledger records, matches, issues and
// acknowledgements, together with their status enums and validation rules.
//
// Every status is an exhaustive typed enum; unknown values are rejected at
// the boundary instead of being carried through. Amounts are always
// decimal.Decimal, never floats.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatementStatus represents the lifecycle state of a Statement
type StatementStatus string

const (
	// StatementOpen means the statement still carries unreconciled variance
	StatementOpen StatementStatus = "open"
	// StatementReconciled means variance is zero and no issues remain open
	StatementReconciled StatementStatus = "reconciled"
	// StatementSignedOff is terminal; an acknowledgement has been recorded
	StatementSignedOff StatementStatus = "signed_off"
)

// String returns the string representation of StatementStatus
func (s StatementStatus) String() string {
	return string(s)
}

// IsValid checks if the statement status is a known value
func (s StatementStatus) IsValid() bool {
	return s == StatementOpen || s == StatementReconciled || s == StatementSignedOff
}

// CanTransitionTo reports whether the status may move to the target status.
// signed_off is terminal: once acknowledged, a statement never reopens.
func (s StatementStatus) CanTransitionTo(target StatementStatus) bool {
	if !target.IsValid() || s == target {
		return false
	}
	switch s {
	case StatementOpen:
		return target == StatementReconciled || target == StatementSignedOff
	case StatementReconciled:
		return target == StatementOpen || target == StatementSignedOff
	case StatementSignedOff:
		return false
	}
	return false
}

// LineStatus represents the lifecycle state of a StatementLine
type LineStatus string

const (
	// LineExtracted is the initial state of an ingested line
	LineExtracted LineStatus = "extracted"
	// LineMatched means a confirmed Match references the line
	LineMatched LineStatus = "matched"
	// LineDisputed means an open Issue tracks the line
	LineDisputed LineStatus = "disputed"
	// LineResolved means the line's dispute was closed with a recorded decision
	LineResolved LineStatus = "resolved"
)

// String returns the string representation of LineStatus
func (s LineStatus) String() string {
	return string(s)
}

// IsValid checks if the line status is a known value
func (s LineStatus) IsValid() bool {
	switch s {
	case LineExtracted, LineMatched, LineDisputed, LineResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether the line status may move to the target.
// Transitions are monotonic within a cycle: a line never jumps from
// extracted straight to resolved, and a matched line only leaves matched
// when its confirmed match is rejected.
func (s LineStatus) CanTransitionTo(target LineStatus) bool {
	if !target.IsValid() || s == target {
		return false
	}
	switch s {
	case LineExtracted:
		return target == LineMatched || target == LineDisputed
	case LineMatched:
		return target == LineDisputed || target == LineExtracted
	case LineDisputed:
		return target == LineResolved || target == LineMatched
	case LineResolved:
		return target == LineDisputed
	}
	return false
}

// LineType represents the kind of entry a statement line records
type LineType string

const (
	LineTypeInvoice    LineType = "invoice"
	LineTypeCreditNote LineType = "credit_note"
	LineTypePayment    LineType = "payment"
	LineTypeAdjustment LineType = "adjustment"
)

// String returns the string representation of LineType
func (t LineType) String() string {
	return string(t)
}

// IsValid checks if the line type is a known value
func (t LineType) IsValid() bool {
	switch t {
	case LineTypeInvoice, LineTypeCreditNote, LineTypePayment, LineTypeAdjustment:
		return true
	}
	return false
}

// AllLineTypes lists every known line type in declaration order
func AllLineTypes() []LineType {
	return []LineType{LineTypeInvoice, LineTypeCreditNote, LineTypePayment, LineTypeAdjustment}
}

// Statement represents one reconciliation case for a vendor, company and period
type Statement struct {
	ID             uuid.UUID       `json:"id"`
	VendorRef      string          `json:"vendorRef"`
	CompanyRef     string          `json:"companyRef"`
	TenantRef      string          `json:"tenantRef"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	Status         StatementStatus `json:"status"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Validate performs basic validation on the Statement
func (s *Statement) Validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("statement ID cannot be empty")
	}
	if strings.TrimSpace(s.VendorRef) == "" {
		return fmt.Errorf("statement vendor reference cannot be empty")
	}
	if strings.TrimSpace(s.TenantRef) == "" {
		return fmt.Errorf("statement tenant reference cannot be empty")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid statement status: %s", s.Status)
	}
	if s.PeriodStart.IsZero() || s.PeriodEnd.IsZero() {
		return fmt.Errorf("statement period cannot be zero")
	}
	if s.PeriodEnd.Before(s.PeriodStart) {
		return fmt.Errorf("statement period end %s is before period start %s",
			s.PeriodEnd.Format("2006-01-02"), s.PeriodStart.Format("2006-01-02"))
	}
	return nil
}

// String returns a string representation of the Statement
func (s *Statement) String() string {
	return fmt.Sprintf("Statement{ID: %s, Vendor: %s, Period: %s..%s, Status: %s}",
		s.ID, s.VendorRef,
		s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02"), s.Status)
}

// StatementLine represents one row extracted from a vendor statement
type StatementLine struct {
	ID          uuid.UUID `json:"id"`
	StatementID uuid.UUID `json:"statementId"`
	DocNumber   string    `json:"docNumber"`
	// DocNumberNorm is the normalized shadow of DocNumber used for matching;
	// the original vendor-assigned text is preserved in DocNumber.
	DocNumberNorm string          `json:"docNumberNorm"`
	TxnDate       time.Time       `json:"txnDate"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Type          LineType        `json:"type"`
	Status        LineStatus      `json:"status"`
	// Version is the optimistic-concurrency token; every conditional status
	// update names the version it read.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate performs basic validation on the StatementLine
func (l *StatementLine) Validate() error {
	if l.ID == uuid.Nil {
		return fmt.Errorf("line ID cannot be empty")
	}
	if l.StatementID == uuid.Nil {
		return fmt.Errorf("line statement reference cannot be empty")
	}
	if l.TxnDate.IsZero() {
		return fmt.Errorf("line transaction date cannot be zero")
	}
	if !ValidCurrencyCode(l.Currency) {
		return fmt.Errorf("invalid currency code: %q", l.Currency)
	}
	if !l.Type.IsValid() {
		return fmt.Errorf("invalid line type: %s", l.Type)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("invalid line status: %s", l.Status)
	}
	if l.Version < 1 {
		return fmt.Errorf("line version must be at least 1, got %d", l.Version)
	}
	return nil
}

// String returns a string representation of the StatementLine
func (l *StatementLine) String() string {
	return fmt.Sprintf("StatementLine{ID: %s, Doc: %s, Amount: %s %s, Status: %s}",
		l.ID, l.DocNumber, l.Amount.String(), l.Currency, l.Status)
}

// IsOutstanding reports whether the line still contributes to variance.
// Matched and resolved lines are considered reconciled.
func (l *StatementLine) IsOutstanding() bool {
	return l.Status == LineExtracted || l.Status == LineDisputed
}

// MarshalJSON implements custom JSON marshaling for StatementLine
func (l *StatementLine) MarshalJSON() ([]byte, error) {
	type Alias StatementLine
	return json.Marshal(&struct {
		Amount  string `json:"amount"`
		TxnDate string `json:"txnDate"`
		*Alias
	}{
		Amount:  l.Amount.String(),
		TxnDate: l.TxnDate.Format("2006-01-02"),
		Alias:   (*Alias)(l),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for StatementLine
func (l *StatementLine) UnmarshalJSON(data []byte) error {
	type Alias StatementLine
	aux := &struct {
		Amount  string `json:"amount"`
		TxnDate string `json:"txnDate"`
		*Alias
	}{
		Alias: (*Alias)(l),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	l.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	l.TxnDate, err = time.Parse("2006-01-02", aux.TxnDate)
	if err != nil {
		l.TxnDate, err = time.Parse(time.RFC3339, aux.TxnDate)
	}
	if err != nil {
		return fmt.Errorf("invalid transaction date format: %w", err)
	}

	return nil
}

// LedgerRecord represents an internal financial record usable as a match
// candidate. Records are owned by the ledger store; the core only reads them.
type LedgerRecord struct {
	ID         uuid.UUID       `json:"id"`
	DocNumber  string          `json:"docNumber"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	VendorRef  string          `json:"vendorRef"`
	CompanyRef string          `json:"companyRef"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Validate performs basic validation on the LedgerRecord
func (r *LedgerRecord) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("ledger record ID cannot be empty")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("ledger record date cannot be zero")
	}
	if !ValidCurrencyCode(r.Currency) {
		return fmt.Errorf("invalid currency code: %q", r.Currency)
	}
	if strings.TrimSpace(r.VendorRef) == "" {
		return fmt.Errorf("ledger record vendor reference cannot be empty")
	}
	return nil
}

// String returns a string representation of the LedgerRecord
func (r *LedgerRecord) String() string {
	return fmt.Sprintf("LedgerRecord{ID: %s, Doc: %s, Amount: %s %s}",
		r.ID, r.DocNumber, r.Amount.String(), r.Currency)
}

// ValidCurrencyCode checks that a currency code has the ISO 4217 alpha shape:
// exactly three uppercase ASCII letters.
func ValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// CompareDatesWithTolerance compares two dates within a day tolerance
func CompareDatesWithTolerance(a, b time.Time, toleranceDays int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceDays)*24*time.Hour
}
