// Package intent decides whether a free-text reply confirms an appointment.
package intent

import (
	"strings"
	"unicode/utf8"
)

// Config controls the classifier. Keywords are compared lower-cased.
type Config struct {
	Keywords []string
	// Replies shorter than MaxFuzzyLength runes match on a keyword substring.
	MaxFuzzyLength int
}

// Classifier matches confirmation keywords in inbound replies.
type Classifier struct {
	keywords       []string
	maxFuzzyLength int
}

// New builds a classifier. Blank keywords are dropped.
func New(cfg Config) *Classifier {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Classifier{keywords: keywords, maxFuzzyLength: cfg.MaxFuzzyLength}
}

// IsConfirmation reports whether text expresses intent to confirm.
func (c *Classifier) IsConfirmation(text string) bool {
	if c == nil {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	short := utf8.RuneCountInString(normalized) < c.maxFuzzyLength
	for _, k := range c.keywords {
		if normalized == k || strings.HasPrefix(normalized, k+" ") {
			return true
		}
		if short && strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the configured keywords.
func (c *Classifier) Keywords() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keywords...)
}
