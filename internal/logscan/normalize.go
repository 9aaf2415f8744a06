package logscan

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxPatternLength bounds normalized patterns so pathological lines cannot
// bloat the per-pattern counting maps.
const maxPatternLength = 150

// Pre-compiled normalization patterns, applied in order. Compiling on every
// line would dominate the scan cost.
var (
	// "Jun  1 12:03:44 pve pvedaemon[1234]:" / ISO timestamps
	syslogPrefixRegex = regexp.MustCompile(`^[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s+\S+\s+\S+?(\[\d+\])?:\s*`)
	isoTimestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?([+-]\d{2}:?\d{2}|Z)?`)
	dateRegex         = regexp.MustCompile(`\b\d{4}[-/]\d{2}[-/]\d{2}\b`)
	timeRegex         = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)

	pidRegex     = regexp.MustCompile(`\[\d+\]|\bpid[=:\s]\d+`)
	numIDRegex   = regexp.MustCompile(`\b\d{3,6}\b`)
	devPathRegex = regexp.MustCompile(`/dev/\S+`)
	fsPathRegex  = regexp.MustCompile(`(/[\w.\-]+){2,}/?`)
	hexRegex     = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b|\b[0-9a-fA-F]{8,}\b`)
	uuidRegex    = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	keyValRegex  = regexp.MustCompile(`\b(id|uuid|guid|hash|key|session)=[\w\-:.]+`)
	spaceRegex   = regexp.MustCompile(`\s+`)
)

// Normalize reduces a raw log line to a stable recurring-fault pattern: two
// lines describing the same fault but differing in PID, timestamp or VM ID
// must normalize to the same string. Variable tokens are replaced with
// placeholders and the result is truncated to a bounded length.
func Normalize(line string) string {
	s := syslogPrefixRegex.ReplaceAllString(line, "")
	s = isoTimestampRegex.ReplaceAllString(s, "<ts>")
	s = dateRegex.ReplaceAllString(s, "<date>")
	s = timeRegex.ReplaceAllString(s, "<time>")
	s = uuidRegex.ReplaceAllString(s, "<uuid>")
	s = keyValRegex.ReplaceAllString(s, "${1}=<id>")
	s = pidRegex.ReplaceAllString(s, "<pid>")
	s = devPathRegex.ReplaceAllString(s, "<dev>")
	s = fsPathRegex.ReplaceAllString(s, "<path>")
	s = hexRegex.ReplaceAllString(s, "<hex>")
	s = numIDRegex.ReplaceAllString(s, "<n>")
	s = spaceRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > maxPatternLength {
		cut := maxPatternLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// PatternHash returns a short stable hash of a normalized pattern, used to
// build dedupe keys like "log_critical_<hash>".
func PatternHash(pattern string) string {
	h := fnv.New32a()
	h.Write([]byte(pattern))
	return fmt.Sprintf("%08x", h.Sum32())
}
