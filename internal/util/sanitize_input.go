package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// UnknownIP is recorded when no usable client address is available.
const UnknownIP = "unknown"

// NormalizeEmail lower-cases and trims an address. Every email lookup and
// throttle key goes through here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// NormalizeIP returns the canonical client address. The connection address
// (as rewritten by the RealIP middleware) wins; a client supplied address is
// only used when the connection address is unusable. UnknownIP is returned
// when neither parses.
func NormalizeIP(remoteAddr, claimed string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	if ip := net.ParseIP(strings.TrimSpace(claimed)); ip != nil {
		return ip.String()
	}
	return UnknownIP
}

// TokenFingerprint is a short, non-reversible tag for log lines that need to
// correlate a secret token without printing it.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

// MaxUserAgentLength caps persisted user agents, in bytes.
const MaxUserAgentLength = 512

// TruncateUserAgent caps user agent strings before they are persisted. The
// cut falls on a rune boundary and invalid UTF-8 is replaced, so the result
// is always valid UTF-8.
func TruncateUserAgent(ua string) string {
	ua = strings.ToValidUTF8(strings.TrimSpace(ua), "\uFFFD")
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := MaxUserAgentLength
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
