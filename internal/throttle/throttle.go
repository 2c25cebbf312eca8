// Package throttle enforces the per-identity login lockout.
//
// Every allowed check reserves one attempt by incrementing the failure
// counter up front; a successful login clears it. Concurrent requests for
// the same identity therefore cannot pass the threshold: once the counter
// holds MaxFailures reservations the next check locks the identity.
package throttle

import (
	"context"
	"math"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"

	"github.com/filecoin-project/go-clock"
)

// stateTTL bounds how long an idle counter is retained.
const stateTTL = 24 * time.Hour

type Policy struct {
	MaxFailures     int
	LockoutDuration time.Duration
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the remaining lock up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

type Outcome struct {
	FailedCount int
	// Locked is true when this failure started a lockout.
	Locked bool
}

// Store holds ThrottleState. Reserve and Record must each be atomic per key.
type Store interface {
	Reserve(ctx context.Context, key string, now time.Time, p Policy) (Decision, error)
	Record(ctx context.Context, key string, success bool, now time.Time, p Policy) (Outcome, error)
	State(ctx context.Context, key string, now time.Time) (models.ThrottleState, error)
}

type Throttle struct {
	store  Store
	policy Policy
	clock  clock.Clock
}

func New(store Store, cfg *config.Config, clk clock.Clock) *Throttle {
	return NewWithPolicy(store, Policy{
		MaxFailures:     cfg.Throttle.MaxFailures,
		LockoutDuration: cfg.Throttle.LockoutDuration,
	}, clk)
}

func NewWithPolicy(store Store, p Policy, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle{store: store, policy: p, clock: clk}
}

func Key(identity string) string {
	return util.NormalizeEmail(identity)
}

// Check runs before credentials are verified. A denied decision means the
// credentials must not be checked at all.
func (t *Throttle) Check(ctx context.Context, identity string) (Decision, error) {
	return t.store.Reserve(ctx, Key(identity), t.clock.Now(), t.policy)
}

// RecordAttempt settles the reservation taken by Check.
func (t *Throttle) RecordAttempt(ctx context.Context, identity string, success bool) (Outcome, error) {
	return t.store.Record(ctx, Key(identity), success, t.clock.Now(), t.policy)
}

func (t *Throttle) State(ctx context.Context, identity string) (models.ThrottleState, error) {
	return t.store.State(ctx, Key(identity), t.clock.Now())
}

func (t *Throttle) Policy() Policy {
	return t.policy
}
