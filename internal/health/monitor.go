// Package health turns raw host samples into stable, categorized verdicts.
// A Monitor owns the hysteresis windows, the log analyzer and the durable
// error store, runs the fixed category checks in priority order and merges
// them into one overall status. Evaluation is request-driven: a status
// query triggers at most one full pass, memoized for a short TTL.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/hysteresis"
	"github.com/MacRimi/proxmon/internal/logscan"
	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/storage"
	"github.com/MacRimi/proxmon/internal/storage/sqlite"
	"github.com/MacRimi/proxmon/internal/types"
)

// Categories is the fixed category set, in priority order for summary
// selection. GetDetailedStatus always returns exactly these keys.
var Categories = []string{
	"services",
	"storage",
	"disks",
	"vms",
	"network",
	"cpu",
	"memory",
	"logs",
	"updates",
	"security",
}

// checkTimeout bounds one category check including its probes.
const checkTimeout = 15 * time.Second

// Monitor is the health aggregator. One long-lived instance owns all
// mutable evaluation state (sample windows, memo caches); safe for
// concurrent use.
type Monitor struct {
	cfg      *config.Config
	provider probe.Provider
	store    storage.Store
	eval     *hysteresis.Evaluator
	logs     *logscan.Analyzer
	logger   *slog.Logger
	cache    *resultCache
	now      func() time.Time
}

// New creates a monitor. The store may be nil: persistence degrades to
// per-cycle (non-durable) behavior, which keeps the dashboard working when
// the database is unavailable.
func New(cfg *config.Config, provider probe.Provider, store storage.Store, logger *slog.Logger) *Monitor {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		provider: provider,
		store:    store,
		eval:     hysteresis.New(cfg.Thresholds.MaxWindow),
		logs:     logscan.New(nil),
		logger:   logger.With("component", "health"),
		cache:    newResultCache(time.Now),
		now:      time.Now,
	}
}

// SetClock overrides the monitor's clock. Tests only.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
	m.cache.now = now
}

// GetOverallStatus returns the header-level verdict, served from the
// aggregate memo within its TTL.
func (m *Monitor) GetOverallStatus(ctx context.Context) (*types.OverallStatus, error) {
	detailed, err := m.GetDetailedStatus(ctx)
	if err != nil {
		return nil, err
	}

	overall := &types.OverallStatus{
		Status:    detailed.Overall,
		Summary:   detailed.Summary,
		Timestamp: detailed.Timestamp,
	}
	for _, result := range detailed.Details {
		switch result.Status {
		case types.StatusCritical:
			overall.CriticalCount++
		case types.StatusWarning:
			overall.WarningCount++
		default:
			overall.OKCount++
		}
	}
	return overall, nil
}

// GetDetailedStatus returns the full per-category breakdown, recomputing at
// most once per aggregate TTL. Concurrent callers share one evaluation.
func (m *Monitor) GetDetailedStatus(ctx context.Context) (*types.DetailedStatus, error) {
	value, err := m.cache.get("overall", m.cfg.Cache.Overall, func() (any, error) {
		return m.evaluate(ctx), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.DetailedStatus), nil
}

// AcknowledgeError marks an error acknowledged. Idempotent; a missing key
// succeeds. The aggregate memo is invalidated so the next status request
// reflects the acknowledgement.
func (m *Monitor) AcknowledgeError(ctx context.Context, errorKey string) error {
	if m.store == nil {
		return fmt.Errorf("error store unavailable")
	}
	if err := m.store.AcknowledgeError(ctx, errorKey); err != nil {
		return err
	}
	m.cache.invalidate("overall")
	return nil
}

// GetActiveErrors lists unresolved error records, optionally filtered by
// category.
func (m *Monitor) GetActiveErrors(ctx context.Context, category string) ([]*types.ErrorRecord, error) {
	if m.store == nil {
		return nil, fmt.Errorf("error store unavailable")
	}
	return m.store.GetActiveErrors(ctx, category)
}

// GetRecentEvents returns the newest audit events, newest first.
func (m *Monitor) GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	if m.store == nil {
		return nil, fmt.Errorf("error store unavailable")
	}
	return m.store.GetRecentEvents(ctx, limit)
}

// Cleanup runs one retention pass over the error store.
func (m *Monitor) Cleanup(ctx context.Context) (*sqlite.CleanupStats, error) {
	if m.store == nil {
		return nil, fmt.Errorf("error store unavailable")
	}
	return m.store.CleanupOldErrors(ctx, m.cfg.Retention)
}

// evaluate runs every category check and merges the results. Individual
// check failures degrade to UNKNOWN; evaluation itself never fails.
func (m *Monitor) evaluate(ctx context.Context) *types.DetailedStatus {
	details := make(map[string]types.CategoryResult, len(Categories))
	for _, category := range Categories {
		details[category] = m.runCheck(ctx, category)
	}

	// Opportunistic retention pass, at most once per hour, off the request
	// path.
	m.maybeCleanup()

	overall, summary := m.merge(details)
	return &types.DetailedStatus{
		Overall:   overall,
		Summary:   summary,
		Details:   details,
		Timestamp: m.now(),
	}
}

// runCheck dispatches one category under a timeout, converting panics and
// errors into an UNKNOWN result rather than propagating.
func (m *Monitor) runCheck(ctx context.Context, category string) (result types.CategoryResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("check panicked", "category", category, "panic", r)
			result = types.CategoryResult{
				Status: types.StatusUnknown,
				Reason: fmt.Sprintf("%s check failed: %v", category, r),
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	switch category {
	case "services":
		return m.checkServices(ctx)
	case "storage":
		return m.checkStorage(ctx)
	case "disks":
		return m.checkDisks(ctx)
	case "vms":
		return m.checkVMs(ctx)
	case "network":
		return m.checkNetwork(ctx)
	case "cpu":
		return m.checkCPU(ctx)
	case "memory":
		return m.checkMemory(ctx)
	case "logs":
		return m.checkLogs(ctx)
	case "updates":
		return m.checkUpdates(ctx)
	case "security":
		return m.checkSecurity(ctx)
	default:
		return types.CategoryResult{
			Status: types.StatusUnknown,
			Reason: fmt.Sprintf("%s check failed: unknown category", category),
		}
	}
}

// merge applies the overall rule: CRITICAL if any category is CRITICAL,
// else WARNING if any is WARNING, else OK. The summary joins up to three
// reasons from the highest severity tier present; INFO reasons surface only
// when nothing is degraded.
func (m *Monitor) merge(details map[string]types.CategoryResult) (types.Status, string) {
	overall := types.StatusOK
	for _, result := range details {
		if result.Status == types.StatusCritical {
			overall = types.StatusCritical
			break
		}
		if result.Status == types.StatusWarning {
			overall = types.StatusWarning
		}
	}

	tier := overall
	if overall == types.StatusOK {
		tier = types.StatusInfo
	}
	var reasons []string
	for _, category := range Categories {
		result := details[category]
		if result.Status == tier && result.Reason != "" {
			reasons = append(reasons, result.Reason)
			if len(reasons) == 3 {
				break
			}
		}
	}

	if len(reasons) == 0 {
		return overall, "all checks passed"
	}
	return overall, strings.Join(reasons, "; ")
}

// recordError persists a detection, degrading gracefully: a store failure
// is logged and the issue is treated as non-persistent for this cycle.
func (m *Monitor) recordError(ctx context.Context, key, category string, severity types.Severity, reason string, details map[string]any) {
	if m.store == nil {
		return
	}
	if _, err := m.store.RecordError(ctx, key, category, severity, reason, details); err != nil {
		m.logger.Warn("store unavailable, error not persisted", "error_key", key, "err", err)
	}
}

// resolveError clears a persisted detection; a store failure is logged.
func (m *Monitor) resolveError(ctx context.Context, key, reason string) {
	if m.store == nil {
		return
	}
	if err := m.store.ResolveError(ctx, key, reason); err != nil {
		m.logger.Warn("store unavailable, error not resolved", "error_key", key, "err", err)
	}
}

// maybeCleanup runs the retention pass at most once per hour, in the
// background so a slow cleanup never delays a status response.
func (m *Monitor) maybeCleanup() {
	if m.store == nil {
		return
	}
	_, _ = m.cache.get("cleanup", time.Hour, func() (any, error) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			stats, err := m.store.CleanupOldErrors(ctx, m.cfg.Retention)
			if err != nil {
				m.logger.Warn("retention cleanup failed", "err", err)
				return
			}
			if stats.ResolvedDeleted+stats.AutoResolved+stats.EventsDeleted > 0 {
				m.logger.Info("retention cleanup",
					"resolved_deleted", stats.ResolvedDeleted,
					"auto_resolved", stats.AutoResolved,
					"events_deleted", stats.EventsDeleted)
			}
		}()
		return struct{}{}, nil
	})
}
