// Package policy holds the gates the routing engine consults before any
// provider runs: privacy (with redaction), rate limiting (with a circuit
// breaker), per-port kill-switches, and the process-wide assist toggle.
package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/itori-ai/aiengine/internal/port"
)

// PrivacyPolicy is the privacy surface the routing engine consults: which
// providers may see a payload, how hard to scrub it first, and the scrub
// itself. Privacy is the shipped implementation; tests substitute doubles.
type PrivacyPolicy interface {
	Allows(p port.ProviderID, level port.PrivacyLevel) bool
	LevelFor(level port.PrivacyLevel, provider port.ProviderID) RedactionLevel
	Redact(input []byte, level RedactionLevel) ([]byte, Report, error)
}

// Privacy decides which providers may see a payload at a given privacy
// level, and how hard to scrub the payload before it leaves the engine.
type Privacy struct{}

// Allows reports whether a provider may serve a request at the given level.
//
//	onDeviceOnly  only on-device backends (foundation, embedded, fallback)
//	sensitive     everything except bring-your-own remote endpoints
//	normal        every provider
func (Privacy) Allows(p port.ProviderID, level port.PrivacyLevel) bool {
	switch level {
	case port.PrivacyOnDeviceOnly:
		return p == port.ProviderOnDeviceFoundation ||
			p == port.ProviderLocalEmbedded ||
			p == port.ProviderFallbackHeuristic
	case port.PrivacySensitive:
		return p != port.ProviderBringYourOwn
	default:
		return true
	}
}

// RedactionLevel selects how many PII patterns the scrubber applies.
type RedactionLevel string

const (
	RedactLight      RedactionLevel = "light"
	RedactModerate   RedactionLevel = "moderate"
	RedactAggressive RedactionLevel = "aggressive"
)

// LevelFor returns the redaction level for one (port, privacy, provider)
// combination. Anything bound for a bring-your-own endpoint is scrubbed
// aggressively no matter what the port declares.
func (Privacy) LevelFor(level port.PrivacyLevel, provider port.ProviderID) RedactionLevel {
	if provider == port.ProviderBringYourOwn {
		return RedactAggressive
	}
	switch level {
	case port.PrivacyOnDeviceOnly:
		return RedactAggressive
	case port.PrivacySensitive:
		return RedactModerate
	default:
		return RedactLight
	}
}

// Redact applies the package scrubber; it satisfies PrivacyPolicy.
func (Privacy) Redact(input []byte, level RedactionLevel) ([]byte, Report, error) {
	return Redact(input, level)
}

// Report summarizes what redaction removed. It is safe to log: counts and
// sizes only, never the matched text.
type Report struct {
	// BytesRedacted is the total size of all matched spans.
	BytesRedacted int

	// PatternCounts maps pattern name to match count.
	PatternCounts map[string]int
}

// Redacted reports whether anything was removed.
func (r Report) Redacted() bool { return r.BytesRedacted > 0 }

// Summary renders the report for diagnostic notes, stable across runs.
func (r Report) Summary() string {
	if !r.Redacted() {
		return "none"
	}
	names := make([]string, 0, len(r.PatternCounts))
	for n := range r.PatternCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%d", n, r.PatternCounts[n])
	}
	return out
}

// piiPattern is one scrubbing rule. Replacement tokens are chosen so no
// pattern matches them, which makes redaction idempotent.
type piiPattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
	minLevel    RedactionLevel
}

var piiPatterns = []piiPattern{
	{
		name:        "email",
		re:          regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: "<email>",
		minLevel:    RedactLight,
	},
	{
		name:        "phone",
		re:          regexp.MustCompile(`(?:\+?\d{1,2}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
		replacement: "<phone>",
		minLevel:    RedactLight,
	},
	{
		name:        "ssn",
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "<ssn>",
		minLevel:    RedactLight,
	},
	{
		name:        "card",
		re:          regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`),
		replacement: "<card>",
		minLevel:    RedactLight,
	},
	{
		name:        "studentID",
		re:          regexp.MustCompile(`(?i)\bstudent\s*id\s*[:#]?\s*[A-Za-z0-9-]{5,12}`),
		replacement: "<studentID>",
		minLevel:    RedactModerate,
	},
	{
		name:        "studentID",
		re:          regexp.MustCompile(`\b[A-Z]\d{8}\b`),
		replacement: "<studentID>",
		minLevel:    RedactModerate,
	},
	{
		name:        "address",
		re:          regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z ]*\s(?:st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|ct|court|way)\b\.?`),
		replacement: "<address>",
		minLevel:    RedactAggressive,
	},
	{
		name:        "dob",
		re:          regexp.MustCompile(`(?i)\b(?:dob|date of birth|born(?:\s+on)?)\s*[:]?\s*\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`),
		replacement: "<dob>",
		minLevel:    RedactAggressive,
	},
}

func levelRank(l RedactionLevel) int {
	switch l {
	case RedactAggressive:
		return 2
	case RedactModerate:
		return 1
	default:
		return 0
	}
}

// Redact scrubs PII from every string value in a JSON payload. Structure,
// keys and non-string values pass through untouched, so the result still
// satisfies the port's input schema. Redaction is idempotent: scrubbing an
// already-scrubbed payload is a no-op.
func Redact(input []byte, level RedactionLevel) ([]byte, Report, error) {
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return nil, Report{}, fmt.Errorf("redact: %w", err)
	}

	report := Report{PatternCounts: map[string]int{}}
	scrubbed := redactValue(v, level, &report)

	out, err := json.Marshal(scrubbed)
	if err != nil {
		return nil, Report{}, fmt.Errorf("redact: %w", err)
	}
	if len(report.PatternCounts) == 0 {
		report.PatternCounts = nil
	}
	return out, report, nil
}

func redactValue(v any, level RedactionLevel, report *Report) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = redactValue(e, level, report)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = redactValue(e, level, report)
		}
		return t
	case string:
		return redactString(t, level, report)
	default:
		return v
	}
}

func redactString(s string, level RedactionLevel, report *Report) string {
	for _, p := range piiPatterns {
		if levelRank(p.minLevel) > levelRank(level) {
			continue
		}
		s = p.re.ReplaceAllStringFunc(s, func(match string) string {
			report.BytesRedacted += len(match)
			report.PatternCounts[p.name]++
			return p.replacement
		})
	}
	return s
}
