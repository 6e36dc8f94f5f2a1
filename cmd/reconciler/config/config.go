// Package config wires stores and services for the CLI from viper settings
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/normalizer"
	"statement-reconciliation/internal/reconciler"
	"statement-reconciliation/internal/store"
	"statement-reconciliation/internal/store/gormstore"
	"statement-reconciliation/internal/store/memstore"
	"statement-reconciliation/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Dataset is the JSON seed format for the in-memory store. It exists so the
// CLI can be exercised end to end without a database.
type Dataset struct {
	Statements    []DatasetStatement    `json:"statements"`
	LedgerRecords []DatasetLedgerRecord `json:"ledgerRecords"`
}

// DatasetStatement is one statement with its raw lines as extracted
type DatasetStatement struct {
	ID             string        `json:"id"`
	VendorRef      string        `json:"vendorRef"`
	CompanyRef     string        `json:"companyRef"`
	TenantRef      string        `json:"tenantRef"`
	PeriodStart    string        `json:"periodStart"`
	PeriodEnd      string        `json:"periodEnd"`
	OpeningBalance string        `json:"openingBalance"`
	Lines          []DatasetLine `json:"lines"`
}

// DatasetLine carries unparsed line fields straight off an extraction
type DatasetLine struct {
	DocNumber string `json:"docNumber"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Type      string `json:"type"`
}

// DatasetLedgerRecord is one internal ledger record
type DatasetLedgerRecord struct {
	ID         string `json:"id"`
	DocNumber  string `json:"docNumber"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	VendorRef  string `json:"vendorRef"`
	CompanyRef string `json:"companyRef"`
}

// BuildStore creates the store named by the configuration: a MySQL-backed
// store when a DSN is set, otherwise an in-memory store seeded from the
// dataset file if one is given.
func BuildStore(ctx context.Context) (store.Store, error) {
	if dsn := viper.GetString("dsn"); dsn != "" {
		gs, err := gormstore.Open(dsn)
		if err != nil {
			return nil, err
		}
		if err := gs.AutoMigrate(); err != nil {
			return nil, err
		}
		return gs, nil
	}

	ms := memstore.New()
	if path := viper.GetString("dataset"); path != "" {
		if err := SeedMemstore(ctx, ms, path); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

// BuildService creates the reconciliation service over the given store,
// applying any threshold overrides from the configuration.
func BuildService(st store.Store) (*reconciler.Service, error) {
	cfg := reconciler.DefaultConfig()

	if viper.IsSet("auto-confirm-threshold") {
		cfg.AutoConfirmThreshold = viper.GetFloat64("auto-confirm-threshold")
	}
	if viper.IsSet("suggest-threshold") {
		cfg.SuggestThreshold = viper.GetFloat64("suggest-threshold")
	}
	if viper.IsSet("date-window") {
		cfg.Finder.DateWindowDays = viper.GetInt("date-window")
		cfg.Scorer.DateWindowDays = cfg.Finder.DateWindowDays
	}
	if viper.IsSet("amount-tolerance") {
		tol, err := decimal.NewFromString(viper.GetString("amount-tolerance"))
		if err != nil {
			return nil, fmt.Errorf("invalid amount tolerance: %w", err)
		}
		cfg.Finder.AmountTolerance = tol
		cfg.Scorer.AmountTolerance = tol
	}
	if viper.IsSet("variance-epsilon") {
		eps, err := decimal.NewFromString(viper.GetString("variance-epsilon"))
		if err != nil {
			return nil, fmt.Errorf("invalid variance epsilon: %w", err)
		}
		cfg.VarianceEpsilon = eps
	}

	return reconciler.NewService(st, cfg, logger.GetGlobalLogger())
}

// SeedMemstore loads a JSON dataset file into the in-memory store
func SeedMemstore(ctx context.Context, ms *memstore.Memstore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return fmt.Errorf("parsing dataset: %w", err)
	}

	for _, rec := range ds.LedgerRecords {
		parsed, err := datasetRecord(rec)
		if err != nil {
			return fmt.Errorf("ledger record %q: %w", rec.DocNumber, err)
		}
		ms.AddLedgerRecord(parsed)
	}

	for _, stmt := range ds.Statements {
		parsed, err := datasetStatement(stmt)
		if err != nil {
			return fmt.Errorf("statement %q: %w", stmt.ID, err)
		}
		if err := ms.CreateStatement(ctx, parsed); err != nil {
			return err
		}
		for i, raw := range stmt.Lines {
			line, err := normalizer.NormalizeLine(normalizer.RawLine{
				StatementID: parsed.ID,
				DocNumber:   raw.DocNumber,
				Date:        raw.Date,
				Amount:      raw.Amount,
				Currency:    raw.Currency,
				LineType:    raw.Type,
			})
			if err != nil {
				return fmt.Errorf("statement %q line %d: %w", stmt.ID, i, err)
			}
			if err := ms.CreateLine(ctx, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func datasetStatement(ds DatasetStatement) (*models.Statement, error) {
	id, err := parseOrNewID(ds.ID)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse("2006-01-02", ds.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("period start: %w", err)
	}
	end, err := time.Parse("2006-01-02", ds.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("period end: %w", err)
	}
	opening := decimal.Zero
	if ds.OpeningBalance != "" {
		opening, err = decimal.NewFromString(ds.OpeningBalance)
		if err != nil {
			return nil, fmt.Errorf("opening balance: %w", err)
		}
	}
	now := time.Now().UTC()
	return &models.Statement{
		ID:             id,
		VendorRef:      ds.VendorRef,
		CompanyRef:     ds.CompanyRef,
		TenantRef:      ds.TenantRef,
		PeriodStart:    start,
		PeriodEnd:      end,
		Status:         models.StatementOpen,
		OpeningBalance: opening,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func datasetRecord(dr DatasetLedgerRecord) (*models.LedgerRecord, error) {
	id, err := parseOrNewID(dr.ID)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse("2006-01-02", dr.Date)
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	amount, err := decimal.NewFromString(dr.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &models.LedgerRecord{
		ID:         id,
		DocNumber:  dr.DocNumber,
		Date:       date,
		Amount:     amount,
		Currency:   dr.Currency,
		VendorRef:  dr.VendorRef,
		CompanyRef: dr.CompanyRef,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func parseOrNewID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}
