package logscan

import (
	"fmt"
	"sort"

	"github.com/MacRimi/proxmon/internal/types"
)

const (
	// cascadeThreshold is the per-pattern occurrence count in the current
	// window that constitutes a cascade.
	cascadeThreshold = 10

	// spikeMinCount and spikeFactor define a spike: at least spikeMinCount
	// recent occurrences AND at least spikeFactor times the previous
	// window's count. A pattern absent from the previous window spikes at
	// spikeMinCount occurrences.
	spikeMinCount = 3
	spikeFactor   = 3
)

// FindingKind classifies why a pattern contributed to the verdict.
type FindingKind string

const (
	FindingUniqueCritical FindingKind = "unique_critical"
	FindingCascade        FindingKind = "cascade"
	FindingSpike          FindingKind = "spike"
)

// Finding is one pattern that contributed to the verdict.
type Finding struct {
	Kind           FindingKind    `json:"kind"`
	Pattern        string         `json:"pattern"`
	Hash           string         `json:"hash"`
	Severity       types.Severity `json:"severity"`
	RecentCount    int            `json:"recent_count"`
	PreviousCount  int            `json:"previous_count"`
	Representative string         `json:"representative,omitempty"`
}

// Result is the analyzer's verdict for one scan cycle: at most one
// WARNING/CRITICAL status regardless of how many patterns fired. The health
// layer caches it for the log check interval to bound re-scan cost.
type Result struct {
	Status   types.Status `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Findings []Finding    `json:"findings,omitempty"`
}

// Analyzer groups classified lines by normalized pattern and detects
// cascades, spikes and unique critical lines. Stateless; safe for
// concurrent use once constructed.
type Analyzer struct {
	rules *RuleSet
}

// New creates an analyzer. A nil rules argument uses DefaultRules.
func New(rules *RuleSet) *Analyzer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Analyzer{rules: rules}
}

// Rules exposes the active rule table (for config-driven extension).
func (a *Analyzer) Rules() *RuleSet { return a.rules }

type patternStats struct {
	pattern        string
	severity       types.Severity
	recent         int
	previous       int
	representative string
}

// Analyze evaluates the current trailing window against the immediately
// preceding one. Priority: unique critical > cascade > spike > OK.
func (a *Analyzer) Analyze(recentLines, previousLines []string) Result {
	stats := make(map[string]*patternStats)

	for _, line := range recentLines {
		severity, ok := a.rules.Classify(line)
		if !ok {
			continue
		}
		pattern := Normalize(line)
		ps := stats[pattern]
		if ps == nil {
			ps = &patternStats{pattern: pattern, severity: severity, representative: truncateLine(line)}
			stats[pattern] = ps
		}
		ps.recent++
		// A pattern seen at both severities (fallback vs. table match on
		// variant lines) keeps the worse one.
		if severity == types.SeverityCritical {
			ps.severity = types.SeverityCritical
		}
	}

	for _, line := range previousLines {
		if _, ok := a.rules.Classify(line); !ok {
			continue
		}
		pattern := Normalize(line)
		if ps := stats[pattern]; ps != nil {
			ps.previous++
		}
	}

	var findings []Finding
	for _, ps := range stats {
		switch {
		case ps.severity == types.SeverityCritical:
			findings = append(findings, Finding{
				Kind:           FindingUniqueCritical,
				Pattern:        ps.pattern,
				Hash:           PatternHash(ps.pattern),
				Severity:       types.SeverityCritical,
				RecentCount:    ps.recent,
				PreviousCount:  ps.previous,
				Representative: ps.representative,
			})
		case ps.recent >= cascadeThreshold:
			findings = append(findings, Finding{
				Kind:           FindingCascade,
				Pattern:        ps.pattern,
				Hash:           PatternHash(ps.pattern),
				Severity:       ps.severity,
				RecentCount:    ps.recent,
				PreviousCount:  ps.previous,
				Representative: ps.representative,
			})
		case ps.recent >= spikeMinCount && ps.recent >= spikeFactor*ps.previous:
			findings = append(findings, Finding{
				Kind:           FindingSpike,
				Pattern:        ps.pattern,
				Hash:           PatternHash(ps.pattern),
				Severity:       types.SeverityWarning,
				RecentCount:    ps.recent,
				PreviousCount:  ps.previous,
				Representative: ps.representative,
			})
		}
	}

	if len(findings) == 0 {
		return Result{Status: types.StatusOK}
	}

	// Deterministic ordering: kind priority, then recent count desc,
	// then pattern.
	sort.Slice(findings, func(i, j int) bool {
		pi, pj := kindPriority(findings[i].Kind), kindPriority(findings[j].Kind)
		if pi != pj {
			return pi > pj
		}
		if findings[i].RecentCount != findings[j].RecentCount {
			return findings[i].RecentCount > findings[j].RecentCount
		}
		return findings[i].Pattern < findings[j].Pattern
	})

	top := findings[0]
	result := Result{Findings: findings}
	switch top.Kind {
	case FindingUniqueCritical:
		result.Status = types.StatusCritical
		result.Reason = fmt.Sprintf("critical log entry: %s", top.Representative)
	case FindingCascade:
		// Critical-classified patterns already took the unique-critical
		// branch, so a cascade verdict is always WARNING.
		result.Status = types.StatusWarning
		result.Reason = fmt.Sprintf("error cascade: %d occurrences of %q", top.RecentCount, top.Pattern)
	case FindingSpike:
		result.Status = types.StatusWarning
		result.Reason = fmt.Sprintf("error spike: %q went from %d to %d occurrences",
			top.Pattern, top.PreviousCount, top.RecentCount)
	}
	return result
}

func kindPriority(k FindingKind) int {
	switch k {
	case FindingUniqueCritical:
		return 3
	case FindingCascade:
		return 2
	case FindingSpike:
		return 1
	default:
		return 0
	}
}

// truncateLine bounds representative lines included in reasons.
func truncateLine(line string) string {
	const max = 120
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
