package client

import "regexp"

// SiteClassifier decides whether a hostname looks like a development or
// staging environment. The flag is informational for the licensing server;
// it never changes local behavior.
type SiteClassifier interface {
	IsDevelopment(host string) bool
}

// PatternClassifier classifies hostnames against a fixed policy table of
// local and private patterns.
type PatternClassifier struct {
	patterns []*regexp.Regexp
}

var devPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.local$`),
	regexp.MustCompile(`\.test$`),
	regexp.MustCompile(`\.localhost$`),
	regexp.MustCompile(`\.dev$`),
	regexp.MustCompile(`\.staging\.`),
	regexp.MustCompile(`\.development\.`),
	regexp.MustCompile(`^localhost`),
	regexp.MustCompile(`\.example\.`),
	regexp.MustCompile(`\.invalid$`),
	regexp.MustCompile(`^127\.\d+\.\d+\.\d+$`),
	regexp.MustCompile(`^192\.168\.`),
	regexp.MustCompile(`^10\.`),
	regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[0-1])\.`),
}

// NewPatternClassifier returns the default classifier
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{patterns: devPatterns}
}

// IsDevelopment reports whether host matches any development pattern.
// An empty host is treated as production.
func (p *PatternClassifier) IsDevelopment(host string) bool {
	if host == "" {
		return false
	}
	for _, pattern := range p.patterns {
		if pattern.MatchString(host) {
			return true
		}
	}
	return false
}
