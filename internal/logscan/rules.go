// Package logscan classifies and normalizes raw syslog/journal lines and
// detects cascades and spikes of repeated error patterns. Classification is
// driven by an ordered rule table so new patterns can be added and tested
// in isolation.
package logscan

import (
	"regexp"
	"strings"

	"github.com/MacRimi/proxmon/internal/types"
)

// Rule maps a compiled pattern to the severity its matches carry. Rules are
// evaluated in table order; the first match wins within each tier.
type Rule struct {
	Pattern  *regexp.Regexp
	Severity types.Severity
	Label    string
}

// RuleSet is the full ordered classification table: benign allow-patterns
// first, then critical rules, then warning rules, then keyword fallbacks.
type RuleSet struct {
	Benign   []*regexp.Regexp
	Critical []Rule
	Warning  []Rule
}

// DefaultRules returns the built-in classification table.
//
// The tiers encode operational judgment about Proxmox hosts: kernel-level
// faults (panic, OOM, read-only remounts, md/RAID failures, MCE, segfaults)
// are critical; transient I/O and unit failures are warnings; routine
// chatter (ACPI noise, audit lines, firewall drops) is benign and filtered
// before any keyword matching.
func DefaultRules() *RuleSet {
	return &RuleSet{
		Benign: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ACPI[:\s]`),
			regexp.MustCompile(`(?i)audit\[\d*\]|audit:`),
			regexp.MustCompile(`(?i)\bUFW BLOCK\b|firewall.*drop`),
			regexp.MustCompile(`(?i)martian (source|destination)`),
			regexp.MustCompile(`(?i)perf: interrupt took too long`),
			regexp.MustCompile(`(?i)systemd(-logind)?\[\d+\]: (New|Removed) session`),
			regexp.MustCompile(`(?i)error response from daemon.*No such container`),
			regexp.MustCompile(`(?i)dhcp(ack|request|offer|discover)`),
		},
		Critical: []Rule{
			{regexp.MustCompile(`(?i)kernel panic`), types.SeverityCritical, "kernel_panic"},
			{regexp.MustCompile(`(?i)out of memory|oom-?kill|killed process`), types.SeverityCritical, "oom_kill"},
			{regexp.MustCompile(`(?i)remount(ing|ed)? .*read-?only|filesystem.*read-?only`), types.SeverityCritical, "fs_readonly"},
			{regexp.MustCompile(`(?i)md(/|\d).*(fail|fault|degraded)|raid.*(fail|degraded)`), types.SeverityCritical, "raid_failure"},
			{regexp.MustCompile(`(?i)(ext4|xfs|btrfs|zfs).*(corrupt|error count|bad block)`), types.SeverityCritical, "fs_corruption"},
			{regexp.MustCompile(`(?i)mce:|machine check (error|event)|hardware error`), types.SeverityCritical, "hardware_mce"},
			{regexp.MustCompile(`(?i)segfault at [0-9a-f]+`), types.SeverityCritical, "segfault"},
		},
		Warning: []Rule{
			{regexp.MustCompile(`(?i)i/o error|blk_update_request.*error`), types.SeverityWarning, "io_error"},
			{regexp.MustCompile(`(?i)task .* blocked for more than \d+ seconds|task hung`), types.SeverityWarning, "task_hung"},
			{regexp.MustCompile(`(?i)(unit|service) .*(entered failed state|failed with result)`), types.SeverityWarning, "service_failed"},
			{regexp.MustCompile(`(?i)(ata|sd[a-z]+|nvme\d+).*(offline|link down|reset)`), types.SeverityWarning, "disk_offline"},
		},
	}
}

// Classify assigns a severity to a raw line, or ok=false when the line is
// benign noise. Precedence: benign allow-patterns, then the critical table,
// then the warning table, then substring fallbacks. Bare "warning"/"warn"
// tokens deliberately classify as noise: syslog is full of them and they
// carry no signal on their own.
func (rs *RuleSet) Classify(line string) (types.Severity, bool) {
	for _, re := range rs.Benign {
		if re.MatchString(line) {
			return "", false
		}
	}
	for _, rule := range rs.Critical {
		if rule.Pattern.MatchString(line) {
			return types.SeverityCritical, true
		}
	}
	for _, rule := range rs.Warning {
		if rule.Pattern.MatchString(line) {
			return types.SeverityWarning, true
		}
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "critical"),
		strings.Contains(lower, "fatal"),
		strings.Contains(lower, "panic"):
		return types.SeverityCritical, true
	case strings.Contains(lower, "error"),
		strings.Contains(lower, "fail"):
		return types.SeverityWarning, true
	}
	return "", false
}
