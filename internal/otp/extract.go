// Package otp pulls one-time codes out of unstructured email text.
package otp

import (
	"regexp"
	"strings"
)

const (
	MinLength = 4
	MaxLength = 8
)

// patterns are tried in order; an earlier pattern wins even when a later one
// matches earlier in the text.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{6}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
	regexp.MustCompile(`\b\d{8}\b`),
	regexp.MustCompile(`(?i)verification code:?\s*(\d{4,8})`),
	regexp.MustCompile(`(?i)your code:?\s*(\d{4,8})`),
	regexp.MustCompile(`(?i)otp:?\s*(\d{4,8})`),
	regexp.MustCompile(`(?i)pin:?\s*(\d{4,8})`),
}

// Extract returns the first candidate code found in text.
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range patterns {
		for _, m := range re.FindAllString(text, -1) {
			code := digitsOnly(m)
			if Valid(code) {
				return code, true
			}
		}
	}
	return "", false
}

// Valid reports whether s looks like an OTP: only digits, 4 to 8 of them.
func Valid(s string) bool {
	if len(s) < MinLength || len(s) > MaxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
