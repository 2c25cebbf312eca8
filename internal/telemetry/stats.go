// Package telemetry derives security statistics from login attempts. Every
// function here is pure over its inputs.
package telemetry

import (
	"math"
	"time"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/models"
)

const (
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"

	DefaultWindow = Window24h

	// An IP with this many failures in the window counts as suspicious.
	SuspiciousFailureThreshold = 3
	// An IP with this many failures in the window counts as blocked.
	BlockedFailureThreshold = 10
)

var windows = map[string]time.Duration{
	Window24h: 24 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
	Window30d: 30 * 24 * time.Hour,
}

// ParseWindow maps a window name to its length. An empty name selects the
// default window.
func ParseWindow(name string) (string, time.Duration, error) {
	if name == "" {
		name = DefaultWindow
	}
	d, ok := windows[name]
	if !ok {
		return "", 0, autherr.Newf(autherr.InvalidInput, "unknown window %q", name)
	}
	return name, d, nil
}

// FailuresByIP counts failed attempts per IP address.
func FailuresByIP(attempts []models.LoginAttempt) map[string]int {
	counts := make(map[string]int)
	for _, a := range attempts {
		if !a.Success {
			counts[a.IPAddress]++
		}
	}
	return counts
}

// SuspiciousIPs is the number of distinct IPs with at least
// SuspiciousFailureThreshold failures.
func SuspiciousIPs(attempts []models.LoginAttempt) int {
	return countAtLeast(FailuresByIP(attempts), SuspiciousFailureThreshold)
}

// BlockedIPs is the number of distinct IPs with at least
// BlockedFailureThreshold failures.
func BlockedIPs(attempts []models.LoginAttempt) int {
	return countAtLeast(FailuresByIP(attempts), BlockedFailureThreshold)
}

func countAtLeast(counts map[string]int, threshold int) int {
	n := 0
	for _, c := range counts {
		if c >= threshold {
			n++
		}
	}
	return n
}

// SuccessRate is the percentage of successful attempts rounded to two
// decimals; zero when there were no attempts.
func SuccessRate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(successes)/float64(total)*10000) / 100
}

// ComputeStats aggregates attempts that fall inside [from, to].
func ComputeStats(window string, from, to time.Time, attempts []models.LoginAttempt, activeSessions int) models.SecurityStats {
	stats := models.SecurityStats{
		Window:         window,
		From:           from,
		To:             to,
		ActiveSessions: activeSessions,
	}

	inWindow := make([]models.LoginAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.CreatedAt.Before(from) || a.CreatedAt.After(to) {
			continue
		}
		inWindow = append(inWindow, a)
		if a.Success {
			stats.SuccessfulAttempts++
		} else {
			stats.FailedAttempts++
		}
	}

	stats.TotalAttempts = len(inWindow)
	stats.SuccessRate = SuccessRate(stats.SuccessfulAttempts, stats.TotalAttempts)
	stats.SuspiciousActivity = SuspiciousIPs(inWindow)
	stats.BlockedIPs = BlockedIPs(inWindow)
	return stats
}
