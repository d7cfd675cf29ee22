// Package redact scrubs secrets from captured text before it is persisted.
//
// The snapshot engine runs every captured command string through Redact
// before storage; this is mandatory for any externally observable text.
package redact

import (
	"fmt"
	"regexp"
)

// defaultPatterns cover common credential shapes: API keys, tokens,
// passwords, cloud keys, and connection strings with embedded credentials.
var defaultPatterns = []string{
	`(?i)(api[_-]?key|apikey)\s*[=:]\s*\S+`,
	`(?i)(secret[_-]?key|secretkey)\s*[=:]\s*\S+`,
	`(?i)(access[_-]?token|accesstoken)\s*[=:]\s*\S+`,
	`(?i)(auth[_-]?token|authtoken)\s*[=:]\s*\S+`,
	`(?i)bearer\s+[a-zA-Z0-9._-]+`,
	`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`,
	`(?i)aws[_-]?(access[_-]?key[_-]?id|secret[_-]?access[_-]?key)\s*[=:]\s*\S+`,
	`AKIA[0-9A-Z]{16}`,
	`gh[pousr]_[A-Za-z0-9_]{36,}`,
	`glpat-[A-Za-z0-9_-]{20,}`,
	`(?i)(private[_-]?key|privatekey)\s*[=:]\s*\S+`,
	`(?i)(client[_-]?secret|clientsecret)\s*[=:]\s*\S+`,
	`(?i)(postgres|mysql|mongodb|redis)://[^:\s]+:[^@\s]+@`,
	`-----BEGIN\s+(RSA|DSA|EC|OPENSSH)\s+PRIVATE\s+KEY-----`,
	`(?i)export\s+\w*(key|token|secret|password|credential)\w*\s*=\s*\S+`,
}

const defaultReplacement = "[REDACTED]"

// Redactor replaces text matching any of its patterns with a placeholder.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// New builds a redactor from the default pattern set plus any extra
// patterns from configuration.
func New(extraPatterns []string) (*Redactor, error) {
	r := &Redactor{replacement: defaultReplacement}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact returns text with all matches replaced, and the number of
// replacements made.
func (r *Redactor) Redact(text string) (string, int) {
	count := 0
	for _, re := range r.patterns {
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		count += len(matches)
		text = re.ReplaceAllString(text, r.replacement)
	}
	return text, count
}
