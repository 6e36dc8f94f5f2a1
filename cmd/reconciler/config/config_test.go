package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const sampleDataset = `{
  "statements": [
    {
      "id": "11111111-1111-1111-1111-111111111111",
      "vendorRef": "acme",
      "companyRef": "us-east",
      "tenantRef": "tenant-1",
      "periodStart": "2026-02-01",
      "periodEnd": "2026-02-28",
      "openingBalance": "10.00",
      "lines": [
        {"docNumber": "INV-100", "date": "2026-02-10", "amount": "$1,250.00", "currency": "USD", "type": "invoice"},
        {"docNumber": "CN-7", "date": "2026-02-12", "amount": "(40.00)", "currency": "USD", "type": "credit_note"}
      ]
    }
  ],
  "ledgerRecords": [
    {"docNumber": "INV-100", "date": "2026-02-10", "amount": "1250.00", "currency": "USD", "vendorRef": "acme", "companyRef": "us-east"}
  ]
}`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	return path
}

func TestSeedMemstore(t *testing.T) {
	ms := memstore.New()
	path := writeDataset(t, sampleDataset)

	if err := SeedMemstore(context.Background(), ms, path); err != nil {
		t.Fatalf("SeedMemstore() error = %v", err)
	}

	ctx := context.Background()
	st, err := ms.GetStatement(ctx, mustParse(t, "11111111-1111-1111-1111-111111111111"))
	if err != nil {
		t.Fatalf("GetStatement() error = %v", err)
	}
	if st.VendorRef != "acme" || st.Status != models.StatementOpen {
		t.Errorf("unexpected statement: %+v", st)
	}
	if !st.OpeningBalance.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("OpeningBalance = %s, want 10.00", st.OpeningBalance)
	}

	lines, err := ms.ListLines(ctx, st.ID)
	if err != nil {
		t.Fatalf("ListLines() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	byDoc := make(map[string]*models.StatementLine)
	for _, l := range lines {
		byDoc[l.DocNumber] = l
	}
	inv := byDoc["INV-100"]
	if inv == nil {
		t.Fatal("expected line INV-100")
	}
	if !inv.Amount.Equal(decimal.RequireFromString("1250.00")) {
		t.Errorf("invoice amount = %s, want 1250.00", inv.Amount)
	}
	cn := byDoc["CN-7"]
	if cn == nil {
		t.Fatal("expected line CN-7")
	}
	if !cn.Amount.Equal(decimal.RequireFromString("-40.00")) {
		t.Errorf("credit note amount = %s, want -40.00", cn.Amount)
	}
	if cn.Type != models.LineTypeCreditNote {
		t.Errorf("credit note type = %s", cn.Type)
	}
}

func TestSeedMemstore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"statements": [`},
		{"bad amount", `{"statements": [{"periodStart": "2026-02-01", "periodEnd": "2026-02-28",
			"lines": [{"docNumber": "X", "date": "2026-02-10", "amount": "abc", "currency": "USD", "type": "invoice"}]}]}`},
		{"bad date", `{"ledgerRecords": [{"docNumber": "X", "date": "February 10", "amount": "1.00", "currency": "USD"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := memstore.New()
			path := writeDataset(t, tt.content)
			if err := SeedMemstore(context.Background(), ms, path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSeedMemstore_MissingFile(t *testing.T) {
	ms := memstore.New()
	if err := SeedMemstore(context.Background(), ms, filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestBuildService_Overrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("auto-confirm-threshold", 0.9)
	viper.Set("suggest-threshold", 0.4)
	viper.Set("date-window", 10)
	viper.Set("amount-tolerance", "0.05")
	viper.Set("variance-epsilon", "0.02")

	svc, err := BuildService(memstore.New())
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	cfg := svc.Config()
	if cfg.AutoConfirmThreshold != 0.9 {
		t.Errorf("AutoConfirmThreshold = %f, want 0.9", cfg.AutoConfirmThreshold)
	}
	if cfg.SuggestThreshold != 0.4 {
		t.Errorf("SuggestThreshold = %f, want 0.4", cfg.SuggestThreshold)
	}
	if cfg.Finder.DateWindowDays != 10 || cfg.Scorer.DateWindowDays != 10 {
		t.Errorf("date window not applied to both finder and scorer")
	}
	if !cfg.Finder.AmountTolerance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("AmountTolerance = %s, want 0.05", cfg.Finder.AmountTolerance)
	}
	if !cfg.VarianceEpsilon.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("VarianceEpsilon = %s, want 0.02", cfg.VarianceEpsilon)
	}
}

func TestBuildService_BadTolerance(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("amount-tolerance", "lots")
	if _, err := BuildService(memstore.New()); err == nil {
		t.Error("expected an error for a malformed tolerance")
	}
}

func TestBuildStore_DefaultsToMemstore(t *testing.T) {
	t.Cleanup(viper.Reset)
	st, err := BuildStore(context.Background())
	if err != nil {
		t.Fatalf("BuildStore() error = %v", err)
	}
	if _, ok := st.(*memstore.Memstore); !ok {
		t.Errorf("expected an in-memory store, got %T", st)
	}
}

func mustParse(t *testing.T, raw string) uuid.UUID {
	t.Helper()
	parsed, err := uuid.Parse(raw)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	return parsed
}
