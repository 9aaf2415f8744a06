package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacRimi/proxmon/internal/logscan"
	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/types"
)

// checkLogs scans the journal windows through the pattern analyzer on the
// log TTL (rescanning the journal is the most expensive probe). Critical
// patterns and cascades persist, keyed on the normalized pattern hash, so
// a recurring fault stays one record no matter how many lines it emits.
func (m *Monitor) checkLogs(ctx context.Context) types.CategoryResult {
	value, err := m.cache.get("logs", m.cfg.Cache.Logs, func() (any, error) {
		recent, previous, err := m.provider.LogWindows(ctx)
		if err != nil {
			return nil, err
		}
		analysis := m.logs.Analyze(recent, previous)
		m.persistFindings(ctx, analysis)
		return analysis, nil
	})
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return notApplicable("journal not available")
		}
		return unknownResult("logs", err)
	}

	analysis := value.(logscan.Result)
	result := types.CategoryResult{
		Status: analysis.Status,
		Reason: analysis.Reason,
		Metrics: map[string]any{
			"findings": len(analysis.Findings),
		},
	}
	if len(analysis.Findings) > 0 {
		details := make(map[string]any, len(analysis.Findings))
		for _, finding := range analysis.Findings {
			details[finding.Hash] = map[string]any{
				"kind":    string(finding.Kind),
				"pattern": finding.Pattern,
				"recent":  finding.RecentCount,
			}
		}
		result.Details = details
	}
	return result
}

// persistFindings records each finding under a kind-specific key.
func (m *Monitor) persistFindings(ctx context.Context, analysis logscan.Result) {
	for _, finding := range analysis.Findings {
		var key string
		switch finding.Kind {
		case logscan.FindingUniqueCritical:
			key = "log_critical_" + finding.Hash
		case logscan.FindingCascade:
			key = "log_cascade_" + finding.Hash
		case logscan.FindingSpike:
			key = "log_spike_" + finding.Hash
		default:
			continue
		}
		m.recordError(ctx, key, "logs", finding.Severity,
			reasonForFinding(finding),
			map[string]any{
				"pattern":        finding.Pattern,
				"kind":           string(finding.Kind),
				"recent_count":   finding.RecentCount,
				"previous_count": finding.PreviousCount,
				"representative": finding.Representative,
			})
	}
}

func reasonForFinding(finding logscan.Finding) string {
	switch finding.Kind {
	case logscan.FindingUniqueCritical:
		return fmt.Sprintf("critical log entry: %s", finding.Representative)
	case logscan.FindingCascade:
		return fmt.Sprintf("error cascade: %d occurrences of %q", finding.RecentCount, finding.Pattern)
	default:
		return fmt.Sprintf("error spike: %q went from %d to %d occurrences",
			finding.Pattern, finding.PreviousCount, finding.RecentCount)
	}
}
