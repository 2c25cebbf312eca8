package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("owner@bistro.example"))
	assert.False(t, ValidEmail("Owner <owner@bistro.example>"))
	assert.False(t, ValidEmail("not-an-email"))
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		claimed    string
		want       string
	}{
		{"connection address wins over claimed", "10.0.0.1:5555", "203.0.113.7", "10.0.0.1"},
		{"remote without port", "192.0.2.4", "", "192.0.2.4"},
		{"ipv6 remote", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"claimed used when remote unusable", "pipe", "203.0.113.7", "203.0.113.7"},
		{"nothing usable", "pipe", "garbage", UnknownIP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIP(tt.remoteAddr, tt.claimed))
		})
	}
}

func TestTokenFingerprintIsShortAndStable(t *testing.T) {
	fp := TokenFingerprint("secret-token")
	assert.Len(t, fp, 8)
	assert.Equal(t, fp, TokenFingerprint("secret-token"))
	assert.NotContains(t, fp, "secret")
}

func TestTruncateUserAgent(t *testing.T) {
	assert.Len(t, TruncateUserAgent(strings.Repeat("a", 2000)), MaxUserAgentLength)
	assert.Equal(t, "Mozilla", TruncateUserAgent(" Mozilla "))
}

func TestTruncateUserAgentKeepsRunesWhole(t *testing.T) {
	// 511 ASCII bytes followed by a 3-byte rune straddles the limit.
	ua := strings.Repeat("a", MaxUserAgentLength-1) + "€€"
	got := TruncateUserAgent(ua)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", MaxUserAgentLength-1), got)

	got = TruncateUserAgent("Mozilla\xff/5.0")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "Mozilla\uFFFD/5.0", got)
}
