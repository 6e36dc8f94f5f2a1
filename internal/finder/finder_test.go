package finder

import (
	"context"
	"testing"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"
	"statement-reconciliation/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func testRecord(doc, amount string, date time.Time) *models.LedgerRecord {
	return &models.LedgerRecord{
		ID:         uuid.New(),
		DocNumber:  doc,
		Date:       date,
		Amount:     decimal.RequireFromString(amount),
		Currency:   "USD",
		VendorRef:  "vendor-1",
		CompanyRef: "company-1",
		CreatedAt:  time.Now(),
	}
}

func testLine(doc, amount string) *models.StatementLine {
	return &models.StatementLine{
		ID:            uuid.New(),
		StatementID:   uuid.New(),
		DocNumber:     doc,
		DocNumberNorm: normalizer.NormalizeDocNumber(doc),
		TxnDate:       testDate,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "USD",
		Type:          models.LineTypeInvoice,
		Status:        models.LineExtracted,
		Version:       1,
	}
}

func testScope() Scope {
	return Scope{VendorRef: "vendor-1", CompanyRef: "company-1"}
}

func newFinder(t *testing.T, ms *memstore.Memstore) *Finder {
	t.Helper()
	f, err := New(ms, DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestFindTier_Exact(t *testing.T) {
	ms := memstore.New()
	want := testRecord("INV-100", "250.00", testDate)
	ms.AddLedgerRecord(want)
	ms.AddLedgerRecord(testRecord("INV-100", "251.00", testDate))
	ms.AddLedgerRecord(testRecord("INV-200", "250.00", testDate))

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierExact)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Tier != TierExact {
		t.Errorf("Tier = %s, want exact", groups[0].Tier)
	}
	if len(groups[0].Records) != 1 || groups[0].Records[0].ID != want.ID {
		t.Errorf("expected the exact record, got %v", groups[0].Records)
	}
}

func TestFindTier_ExactMatchesNormalizedDoc(t *testing.T) {
	ms := memstore.New()
	want := testRecord("inv100", "250.00", testDate)
	ms.AddLedgerRecord(want)

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierExact)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected normalized doc forms to match, got %d groups", len(groups))
	}
}

func TestFindTier_AmountTolerant(t *testing.T) {
	ms := memstore.New()
	within := testRecord("INV-100", "250.01", testDate)
	ms.AddLedgerRecord(within)
	ms.AddLedgerRecord(testRecord("INV-100", "250.02", testDate))

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierAmountTolerant)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected only the record within tolerance, got %d groups", len(groups))
	}
	if groups[0].Records[0].ID != within.ID {
		t.Errorf("expected record %s, got %s", within.ID, groups[0].Records[0].ID)
	}
}

func TestFindTier_FuzzyDate(t *testing.T) {
	ms := memstore.New()
	inWindow := testRecord("PAY-900", "250.00", testDate.AddDate(0, 0, 3))
	ms.AddLedgerRecord(inWindow)
	ms.AddLedgerRecord(testRecord("PAY-901", "250.00", testDate.AddDate(0, 0, 6)))
	ms.AddLedgerRecord(testRecord("PAY-902", "99.00", testDate))

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierFuzzyDate)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected only the in-window record, got %d groups", len(groups))
	}
	if groups[0].Records[0].ID != inWindow.ID {
		t.Errorf("expected record %s, got %s", inWindow.ID, groups[0].Records[0].ID)
	}
}

func TestFindTier_Aggregate(t *testing.T) {
	ms := memstore.New()
	a := testRecord("INV-101", "150.00", testDate)
	b := testRecord("INV-102", "100.00", testDate.AddDate(0, 0, 1))
	ms.AddLedgerRecord(a)
	ms.AddLedgerRecord(b)
	ms.AddLedgerRecord(testRecord("INV-103", "999.00", testDate))

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierAggregate)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 aggregate group, got %d", len(groups))
	}
	group := groups[0]
	if group.Tier != TierAggregate {
		t.Errorf("Tier = %s, want aggregate", group.Tier)
	}
	if len(group.Records) != 2 {
		t.Fatalf("expected a 2-record subset, got %d", len(group.Records))
	}
	if !group.Sum().Equal(decimal.RequireFromString("250.00")) {
		t.Errorf("Sum() = %s, want 250.00", group.Sum())
	}
}

func TestFindTier_AggregateNeedsTwoRecords(t *testing.T) {
	ms := memstore.New()
	ms.AddLedgerRecord(testRecord("INV-101", "250.00", testDate))

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierAggregate)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups from a single-record pool, got %d", len(groups))
	}
}

func TestFindTier_ExcludesConfirmedRecords(t *testing.T) {
	ms := memstore.New()
	taken := testRecord("INV-100", "250.00", testDate)
	ms.AddLedgerRecord(taken)

	ctx := context.Background()
	match := &models.Match{
		ID:              uuid.New(),
		StatementID:     uuid.New(),
		LineIDs:         []uuid.UUID{uuid.New()},
		LedgerRecordIDs: []uuid.UUID{taken.ID},
		Type:            models.MatchExact,
		Confidence:      1.0,
		Status:          models.MatchConfirmed,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := ms.CreateMatch(ctx, match); err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	f := newFinder(t, ms)
	groups, err := f.FindTier(ctx, testLine("INV-100", "250.00"), testScope(), TierExact)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected confirmed record excluded, got %d groups", len(groups))
	}
}

func TestFindTier_ScopesByVendor(t *testing.T) {
	ms := memstore.New()
	other := testRecord("INV-100", "250.00", testDate)
	other.VendorRef = "vendor-2"
	ms.AddLedgerRecord(other)

	f := newFinder(t, ms)
	groups, err := f.FindTier(context.Background(), testLine("INV-100", "250.00"), testScope(), TierExact)
	if err != nil {
		t.Fatalf("FindTier() error = %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no cross-vendor candidates, got %d groups", len(groups))
	}
}

func TestHasSameDocOtherCurrency(t *testing.T) {
	ms := memstore.New()
	eur := testRecord("INV-100", "250.00", testDate)
	eur.Currency = "EUR"
	ms.AddLedgerRecord(eur)

	f := newFinder(t, ms)
	got, err := f.HasSameDocOtherCurrency(context.Background(), testLine("INV-100", "250.00"), testScope())
	if err != nil {
		t.Fatalf("HasSameDocOtherCurrency() error = %v", err)
	}
	if !got {
		t.Error("expected a same-doc other-currency record to be reported")
	}

	got, err = f.HasSameDocOtherCurrency(context.Background(), testLine("INV-999", "250.00"), testScope())
	if err != nil {
		t.Fatalf("HasSameDocOtherCurrency() error = %v", err)
	}
	if got {
		t.Error("expected no report for an unknown document number")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"negative tolerance", func(c *Config) { c.AmountTolerance = decimal.NewFromFloat(-0.01) }, true},
		{"negative window", func(c *Config) { c.DateWindowDays = -1 }, true},
		{"split bound too small", func(c *Config) { c.MaxSplitRecords = 1 }, true},
		{"zero pool limit", func(c *Config) { c.CandidatePoolLimit = 0 }, true},
		{"zero max groups", func(c *Config) { c.MaxGroups = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestTier_MatchType(t *testing.T) {
	tests := []struct {
		tier Tier
		want models.MatchType
	}{
		{TierExact, models.MatchExact},
		{TierAmountTolerant, models.MatchAmountTolerant},
		{TierFuzzyDate, models.MatchFuzzyDate},
		{TierAggregate, models.MatchSplit},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			if got := tt.tier.MatchType(); got != tt.want {
				t.Errorf("MatchType() = %s, want %s", got, tt.want)
			}
		})
	}
}
