// Package reconciler is the core of the statement reconciliation system. It
// coordinates the multi-pass matching orchestrator, the variance calculator,
// the dispute state machine and the sign-off gate over a transactional
// store.
//
// Every mutating operation goes through the store's conditional-update
// primitive, so two actors can never confirm competing matches for the same
// line: whichever commits first wins and the loser surfaces a retryable
// conflict.
package reconciler

import (
	"fmt"

	"statement-reconciliation/internal/finder"
	"statement-reconciliation/internal/scorer"
	"statement-reconciliation/internal/store"
	"statement-reconciliation/pkg/logger"
)

// Service exposes the reconciliation operations over a store
type Service struct {
	store  store.Store
	finder *finder.Finder
	scorer *scorer.Scorer
	config *Config
	logger logger.Logger
}

// NewService creates a reconciliation service. A nil config uses defaults;
// a nil logger uses the global instance.
func NewService(st store.Store, config *Config, log logger.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	f, err := finder.New(st, config.Finder)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(config.Scorer)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:  st,
		finder: f,
		scorer: sc,
		config: config.Clone(),
		logger: log,
	}, nil
}

// Config returns a copy of the service configuration
func (s *Service) Config() *Config {
	return s.config.Clone()
}
