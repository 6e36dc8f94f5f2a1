package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestStatementStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    StatementStatus
		to      StatementStatus
		allowed bool
	}{
		{StatementOpen, StatementReconciled, true},
		{StatementOpen, StatementSignedOff, true},
		{StatementReconciled, StatementOpen, true},
		{StatementReconciled, StatementSignedOff, true},
		{StatementSignedOff, StatementOpen, false},
		{StatementSignedOff, StatementReconciled, false},
		{StatementOpen, StatementOpen, false},
		{StatementOpen, "bogus", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestLineStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    LineStatus
		to      LineStatus
		allowed bool
	}{
		{LineExtracted, LineMatched, true},
		{LineExtracted, LineDisputed, true},
		{LineExtracted, LineResolved, false},
		{LineMatched, LineDisputed, true},
		{LineMatched, LineExtracted, true},
		{LineMatched, LineResolved, false},
		{LineDisputed, LineResolved, true},
		{LineDisputed, LineMatched, true},
		{LineDisputed, LineExtracted, false},
		{LineResolved, LineDisputed, true},
		{LineResolved, LineMatched, false},
		{LineResolved, LineExtracted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestLineType_IsValid(t *testing.T) {
	tests := []struct {
		lineType LineType
		valid    bool
	}{
		{LineTypeInvoice, true},
		{LineTypeCreditNote, true},
		{LineTypePayment, true},
		{LineTypeAdjustment, true},
		{"INVOICE", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.lineType), func(t *testing.T) {
			if got := tt.lineType.IsValid(); got != tt.valid {
				t.Errorf("LineType.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func validLine() *StatementLine {
	return &StatementLine{
		ID:            uuid.New(),
		StatementID:   uuid.New(),
		DocNumber:     "INV-1001",
		DocNumberNorm: "1001",
		TxnDate:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromFloat(250.00),
		Currency:      "USD",
		Type:          LineTypeInvoice,
		Status:        LineExtracted,
		Version:       1,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestStatementLine_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*StatementLine)
		wantError bool
	}{
		{"valid line", func(l *StatementLine) {}, false},
		{"missing ID", func(l *StatementLine) { l.ID = uuid.Nil }, true},
		{"missing statement", func(l *StatementLine) { l.StatementID = uuid.Nil }, true},
		{"bad currency", func(l *StatementLine) { l.Currency = "usd" }, true},
		{"bad type", func(l *StatementLine) { l.Type = "receipt" }, true},
		{"bad status", func(l *StatementLine) { l.Status = "pending" }, true},
		{"zero version", func(l *StatementLine) { l.Version = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := validLine()
			tt.mutate(line)
			err := line.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestStatementLine_IsOutstanding(t *testing.T) {
	tests := []struct {
		status      LineStatus
		outstanding bool
	}{
		{LineExtracted, true},
		{LineDisputed, true},
		{LineMatched, false},
		{LineResolved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			line := validLine()
			line.Status = tt.status
			if got := line.IsOutstanding(); got != tt.outstanding {
				t.Errorf("IsOutstanding() = %v, want %v", got, tt.outstanding)
			}
		})
	}
}

func TestStatementLine_MarshalJSON_AmountAsString(t *testing.T) {
	line := validLine()
	line.Amount = decimal.RequireFromString("1234.56")

	data, err := json.Marshal(line)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"amount":"1234.56"`) {
		t.Errorf("expected amount serialized as string, got %s", data)
	}
}

func TestValidCurrencyCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"USD", true},
		{"EUR", true},
		{"usd", false},
		{"US", false},
		{"USDX", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ValidCurrencyCode(tt.code); got != tt.valid {
				t.Errorf("ValidCurrencyCode(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestCompareAmountsWithTolerance(t *testing.T) {
	tol := decimal.NewFromFloat(0.01)

	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"identical", "100.00", "100.00", true},
		{"within tolerance", "100.00", "100.01", true},
		{"at boundary", "100.00", "99.99", true},
		{"beyond tolerance", "100.00", "100.02", false},
		{"negative amounts", "-50.00", "-50.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := decimal.RequireFromString(tt.a)
			b := decimal.RequireFromString(tt.b)
			if got := CompareAmountsWithTolerance(a, b, tol); got != tt.equal {
				t.Errorf("CompareAmountsWithTolerance(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestCompareDatesWithTolerance(t *testing.T) {
	base := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		other  time.Time
		days   int
		within bool
	}{
		{"same day", base, 5, true},
		{"five days later", base.AddDate(0, 0, 5), 5, true},
		{"five days earlier", base.AddDate(0, 0, -5), 5, true},
		{"six days later", base.AddDate(0, 0, 6), 5, false},
		{"zero window same day", base, 0, true},
		{"zero window next day", base.AddDate(0, 0, 1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareDatesWithTolerance(base, tt.other, tt.days); got != tt.within {
				t.Errorf("CompareDatesWithTolerance() = %v, want %v", got, tt.within)
			}
		})
	}
}

func TestMatch_Validate(t *testing.T) {
	valid := func() *Match {
		return &Match{
			ID:              uuid.New(),
			StatementID:     uuid.New(),
			LineIDs:         []uuid.UUID{uuid.New()},
			LedgerRecordIDs: []uuid.UUID{uuid.New()},
			Type:            MatchExact,
			Confidence:      1.0,
			Status:          MatchConfirmed,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Match)
		wantError bool
	}{
		{"valid match", func(m *Match) {}, false},
		{"no lines", func(m *Match) { m.LineIDs = nil }, true},
		{"no records", func(m *Match) { m.LedgerRecordIDs = nil }, true},
		{"bad type", func(m *Match) { m.Type = "guess" }, true},
		{"bad status", func(m *Match) { m.Status = "maybe" }, true},
		{"confidence above one", func(m *Match) { m.Confidence = 1.2 }, true},
		{"negative confidence", func(m *Match) { m.Confidence = -0.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			err := m.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
