// Package security keeps secrets out of logs and throttles gateway callers.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// ServiceRedactor is the AppContext key of the process-wide *Redactor.
const ServiceRedactor = "security.redactor"

// RedactPlaceholder replaces redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|apikey|credential|dsn)`)

// Rule rewrites every match of Pattern with Replacement. Replacement may
// reference capture groups with $1 syntax.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Redactor replaces secret values in strings and maps. It combines pattern
// rules for known key formats with literal values registered at runtime,
// such as API keys read from the environment. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	rules    []Rule
	literals []string
}

// NewRedactor creates a Redactor with DefaultRules and the given literals.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{rules: DefaultRules()}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// AddRule appends a pattern rule.
func (r *Redactor) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// AddLiteral registers a secret value to redact wherever it appears.
// Empty and duplicate values are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.literals {
		if l == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	rules, literals := r.rules, r.literals
	r.mu.RUnlock()

	// Literals first: a runtime key may not match any pattern.
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, rule := range rules {
		s = rule.Pattern.ReplaceAllString(s, rule.Replacement)
	}
	return s
}

// RedactMap redacts m in place. String values under secret-looking keys are
// replaced outright; every other string is passed through Redact. Nested
// maps and slices are walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	}
	return v
}

// DefaultRules covers the key formats replypass handles: Google AI keys,
// OpenAI keys, bearer tokens and passwords embedded in connection URLs.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`), RedactPlaceholder},
		{regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`), RedactPlaceholder},
		{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/\-]{16,}=*`), "${1}" + RedactPlaceholder},
		{regexp.MustCompile(`(://[^:/@\s]*:)[^@/\s]+@`), "${1}" + RedactPlaceholder + "@"},
		{regexp.MustCompile(`(?i)(password=)\S+`), "${1}" + RedactPlaceholder},
	}
}
