package health

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultCheckTimeout bounds each individual check.
const DefaultCheckTimeout = 30 * time.Second

// Manager runs a set of preflight checks and aggregates the results.
type Manager struct {
	logger       *zap.Logger
	checkers     map[string]Checker
	checkTimeout time.Duration
}

// NewManager creates a new preflight manager.
func NewManager(logger *zap.Logger, checkTimeout time.Duration) *Manager {
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}
	return &Manager{
		logger:       logger,
		checkers:     make(map[string]Checker),
		checkTimeout: checkTimeout,
	}
}

// Register adds checkers. A checker with the same name as an existing
// one replaces it.
func (m *Manager) Register(checkers ...Checker) {
	for _, c := range checkers {
		m.checkers[c.Name()] = c
	}
}

// CheckAll runs the registered checks one after another in name order
// and returns their results in that order.
func (m *Manager) CheckAll(ctx context.Context) []CheckResult {
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		results = append(results, m.runCheck(ctx, m.checkers[name]))
	}
	return results
}

// Run runs every check and returns a *PreflightError naming the ones
// that failed.
func (m *Manager) Run(ctx context.Context) error {
	var failed []CheckResult
	for _, r := range m.CheckAll(ctx) {
		if r.Status == StatusOK {
			m.logger.Debug("Preflight check passed",
				zap.String("check", r.Name),
				zap.String("message", r.Message),
				zap.Duration("duration", r.Duration))
			continue
		}
		m.logger.Error("Preflight check failed",
			zap.String("check", r.Name),
			zap.String("message", r.Message))
		failed = append(failed, r)
	}

	if len(failed) > 0 {
		return &PreflightError{Failed: failed}
	}
	return nil
}

func (m *Manager) runCheck(ctx context.Context, checker Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	return checker.Check(checkCtx)
}
