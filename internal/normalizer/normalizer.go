// Package normalizer maps already-extracted raw statement fields into
// canonical StatementLine records. It is a pure mapping layer: no I/O, no
// store access, deterministic output for equal input.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"statement-reconciliation/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawLine carries the fields an upstream extractor produced for one
// statement row, before any cleanup.
type RawLine struct {
	StatementID uuid.UUID
	DocNumber   string
	Date        string
	Amount      string
	Currency    string
	LineType    string
}

// Common date layouts seen on vendor statements
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Vendor prefixes stripped from the normalized document-number shadow.
// The original text is always preserved on the line.
var docPrefixes = []string{"INV", "REF", "DOC", "TXN"}

// NormalizeLine maps raw extracted fields into a canonical StatementLine in
// status extracted. The returned line has a fresh identifier; validation
// failures are reported as plain errors for the ingestion layer to classify.
func NormalizeLine(raw RawLine) (*models.StatementLine, error) {
	if raw.StatementID == uuid.Nil {
		return nil, fmt.Errorf("raw line has no statement reference")
	}

	doc := strings.TrimSpace(raw.DocNumber)
	if doc == "" {
		return nil, fmt.Errorf("raw line document number cannot be empty")
	}

	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw.Amount, err)
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", raw.Date, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if !models.ValidCurrencyCode(currency) {
		return nil, fmt.Errorf("invalid currency code %q", raw.Currency)
	}

	lineType, err := ParseLineType(raw.LineType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	line := &models.StatementLine{
		ID:            uuid.New(),
		StatementID:   raw.StatementID,
		DocNumber:     doc,
		DocNumberNorm: NormalizeDocNumber(doc),
		TxnDate:       date,
		Amount:        amount,
		Currency:      currency,
		Type:          lineType,
		Status:        models.LineExtracted,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := line.Validate(); err != nil {
		return nil, fmt.Errorf("normalized line invalid: %w", err)
	}
	return line, nil
}

// ParseAmount parses a signed decimal amount, tolerating currency symbols,
// thousands separators and accounting-style parentheses for negatives.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	for _, sym := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate attempts the common statement date layouts in order
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q: %w", s, lastErr)
}

// ParseLineType maps line-type synonyms onto the canonical enum
func ParseLineType(s string) (models.LineType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INVOICE", "INV", "BILL":
		return models.LineTypeInvoice, nil
	case "CREDIT_NOTE", "CREDIT-NOTE", "CREDITNOTE", "CN", "CREDIT":
		return models.LineTypeCreditNote, nil
	case "PAYMENT", "PMT", "PAY", "REMITTANCE":
		return models.LineTypePayment, nil
	case "ADJUSTMENT", "ADJ":
		return models.LineTypeAdjustment, nil
	default:
		return "", fmt.Errorf("unknown line type %q", s)
	}
}

// NormalizeDocNumber uppercases, trims and strips common vendor prefixes so
// "inv-100", "INV100" and "100" compare equal during matching.
func NormalizeDocNumber(doc string) string {
	normalized := strings.ToUpper(strings.TrimSpace(doc))
	for _, prefix := range docPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimPrefix(normalized, prefix)
			normalized = strings.TrimLeft(normalized, "-_:. ")
			break
		}
	}
	normalized = strings.ReplaceAll(normalized, " ", "")
	return normalized
}
