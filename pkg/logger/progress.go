package logger

import (
	"sync"
	"time"
)

// RecomputeProgress tracks a recompute pass over a statement's lines. The
// pass can be long on large statements, so progress is logged at intervals
// rather than per line.
type RecomputeProgress struct {
	logger      Logger
	statementID string
	total       int64

	mu             sync.Mutex
	processed      int64
	matchesCreated int64
	issuesCreated  int64
	skipped        int64
	startTime      time.Time
	lastLogTime    time.Time
	logInterval    time.Duration
}

// NewRecomputeProgress creates a progress tracker for one recompute pass
func NewRecomputeProgress(log Logger, statementID string, total int64) *RecomputeProgress {
	if log == nil {
		log = GetGlobalLogger()
	}
	now := time.Now()
	p := &RecomputeProgress{
		logger:      log.WithComponent("progress").WithField("statement_id", statementID),
		statementID: statementID,
		total:       total,
		startTime:   now,
		lastLogTime: now,
		logInterval: 5 * time.Second,
	}
	p.logger.WithField("total_lines", total).Info("Starting recompute")
	return p
}

// LineMatched records a processed line that produced a match
func (p *RecomputeProgress) LineMatched() {
	p.step(func() { p.matchesCreated++ })
}

// LineIssued records a processed line that produced or reused an issue
func (p *RecomputeProgress) LineIssued() {
	p.step(func() { p.issuesCreated++ })
}

// LineSkipped records a line lost to a concurrent mutation or left untouched
func (p *RecomputeProgress) LineSkipped() {
	p.step(func() { p.skipped++ })
}

func (p *RecomputeProgress) step(record func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	record()

	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logLocked(now)
		p.lastLogTime = now
	}
}

// Finish logs the final counts and returns the elapsed duration
func (p *RecomputeProgress) Finish() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	p.logger.WithFields(Fields{
		"processed": p.processed,
		"matches":   p.matchesCreated,
		"issues":    p.issuesCreated,
		"skipped":   p.skipped,
		"elapsed":   elapsed.String(),
	}).Info("Recompute finished")
	return elapsed
}

func (p *RecomputeProgress) logLocked(now time.Time) {
	fields := Fields{
		"processed": p.processed,
		"matches":   p.matchesCreated,
		"issues":    p.issuesCreated,
		"skipped":   p.skipped,
		"elapsed":   now.Sub(p.startTime).String(),
	}
	if p.total > 0 {
		fields["percent"] = float64(p.processed) / float64(p.total) * 100.0
	}
	p.logger.WithFields(fields).Info("Recompute progress")
}
