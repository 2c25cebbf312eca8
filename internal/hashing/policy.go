package hashing

import (
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	// MinPasswordScore is the lowest acceptable EvaluatePassword score.
	MinPasswordScore = 3
)

type PasswordStrength struct {
	Score      int      `json:"score"`
	Acceptable bool     `json:"acceptable"`
	Feedback   []string `json:"feedback,omitempty"`
}

// EvaluatePassword scores a candidate password from 0 to 5: one point each
// for minimum length, an upper-case letter, a lower-case letter, a digit and
// a symbol. Length is mandatory; the character classes are not.
func EvaluatePassword(password string) PasswordStrength {
	var s PasswordStrength

	length := utf8.RuneCountInString(password)
	if length >= MinPasswordLength {
		s.Score++
	} else {
		s.Feedback = append(s.Feedback, "use at least 8 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	for _, c := range []struct {
		ok   bool
		hint string
	}{
		{upper, "add an upper-case letter"},
		{lower, "add a lower-case letter"},
		{digit, "add a digit"},
		{symbol, "add a symbol"},
	} {
		if c.ok {
			s.Score++
		} else {
			s.Feedback = append(s.Feedback, c.hint)
		}
	}

	s.Acceptable = length >= MinPasswordLength && length <= MaxPasswordLength && s.Score >= MinPasswordScore
	if length > MaxPasswordLength {
		s.Feedback = append(s.Feedback, "use at most 128 characters")
	}
	return s
}
