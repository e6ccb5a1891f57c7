package utils

import (
	"strings"
	"unicode"
)

// NormalizePhone trims the input, drops whitespace and common separators and
// makes sure the number carries a leading "+". It is idempotent.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}

// IsE164 checks a normalized phone: "+" followed by 8..15 digits.
func IsE164(phone string) bool {
	if !strings.HasPrefix(phone, "+") {
		return false
	}
	digits := phone[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PhoneTail returns the last n digits, used for placeholder usernames and logs.
func PhoneTail(phone string, n int) string {
	if len(phone) <= n {
		return strings.TrimPrefix(phone, "+")
	}
	return phone[len(phone)-n:]
}
