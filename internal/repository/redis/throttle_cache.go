package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/throttle"
	"admin-auth-service/internal/util"
)

const (
	throttlePrefix = "admin_auth:throttle:"
	cooldownPrefix = "admin_auth:reset_cooldown:"

	// throttleStateTTL bounds how long an idle counter survives.
	throttleStateTTL = 24 * time.Hour
)

// reserveScript takes one attempt for KEYS[1]. Returns {allowed, retry_ms}.
var reserveScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local max = tonumber(ARGV[2])
	local lockout = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'count', 'locked_until')
	local count = tonumber(state[1]) or 0
	local locked_until = tonumber(state[2]) or 0

	if locked_until > now then
		return {0, locked_until - now}
	end
	if locked_until > 0 then
		count = 0
		redis.call('HDEL', key, 'locked_until')
	end
	if count >= max then
		redis.call('HSET', key, 'count', count, 'locked_until', now + lockout)
		redis.call('PEXPIRE', key, math.max(ttl, lockout))
		return {0, lockout}
	end

	redis.call('HSET', key, 'count', count + 1)
	redis.call('PEXPIRE', key, ttl)
	return {1, 0}
`)

// recordScript settles a reservation. Returns {failed_count, locked_now}.
var recordScript = goredis.NewScript(`
	local key = KEYS[1]
	if ARGV[1] == '1' then
		redis.call('DEL', key)
		return {0, 0}
	end

	local now = tonumber(ARGV[2])
	local max = tonumber(ARGV[3])
	local lockout = tonumber(ARGV[4])
	local ttl = tonumber(ARGV[5])

	if redis.call('EXISTS', key) == 0 then
		return {0, 0}
	end
	local state = redis.call('HMGET', key, 'count', 'locked_until')
	local count = tonumber(state[1]) or 0
	local locked_until = tonumber(state[2]) or 0

	if locked_until > now then
		return {count, 0}
	end
	if count >= max then
		redis.call('HSET', key, 'locked_until', now + lockout)
		redis.call('PEXPIRE', key, math.max(ttl, lockout))
		return {count, 1}
	end
	return {count, 0}
`)

// ThrottleCache is the shared throttle.Store used when more than one
// replica serves logins.
type ThrottleCache struct {
	client *client.RedisClient
}

func NewThrottleCache(client *client.RedisClient) *ThrottleCache {
	return &ThrottleCache{client: client}
}

func (c *ThrottleCache) Reserve(ctx context.Context, key string, now time.Time, p throttle.Policy) (throttle.Decision, error) {
	res, err := c.client.RunScript(ctx, reserveScript, []string{throttlePrefix + key},
		now.UnixMilli(), p.MaxFailures, p.LockoutDuration.Milliseconds(), throttleStateTTL.Milliseconds())
	if err != nil {
		util.Error("Failed to reserve login attempt", zap.Error(err))
		return throttle.Decision{}, fmt.Errorf("failed to reserve login attempt: %w", err)
	}
	if len(res) != 2 {
		return throttle.Decision{}, fmt.Errorf("unexpected result format from reserve script")
	}

	if res[0] == 1 {
		return throttle.Decision{Allowed: true}, nil
	}
	return throttle.Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

func (c *ThrottleCache) Record(ctx context.Context, key string, success bool, now time.Time, p throttle.Policy) (throttle.Outcome, error) {
	flag := "0"
	if success {
		flag = "1"
	}
	res, err := c.client.RunScript(ctx, recordScript, []string{throttlePrefix + key},
		flag, now.UnixMilli(), p.MaxFailures, p.LockoutDuration.Milliseconds(), throttleStateTTL.Milliseconds())
	if err != nil {
		util.Error("Failed to record login attempt", zap.Error(err))
		return throttle.Outcome{}, fmt.Errorf("failed to record login attempt: %w", err)
	}
	if len(res) != 2 {
		return throttle.Outcome{}, fmt.Errorf("unexpected result format from record script")
	}

	return throttle.Outcome{FailedCount: int(res[0]), Locked: res[1] == 1}, nil
}

func (c *ThrottleCache) State(ctx context.Context, key string, now time.Time) (models.ThrottleState, error) {
	vals, err := c.client.Client.HMGet(ctx, throttlePrefix+key, "count", "locked_until").Result()
	if err != nil {
		return models.ThrottleState{}, fmt.Errorf("failed to read throttle state: %w", err)
	}

	var st models.ThrottleState
	if s, ok := vals[0].(string); ok {
		st.FailedCount, _ = strconv.Atoi(s)
	}
	if s, ok := vals[1].(string); ok {
		ms, _ := strconv.ParseInt(s, 10, 64)
		if until := time.UnixMilli(ms).UTC(); now.Before(until) {
			st.LockedUntil = &until
		}
	}
	return st, nil
}

// CooldownCache implements throttle.Cooldown with SET NX PX so every replica
// shares the same window.
type CooldownCache struct {
	client *client.RedisClient
}

func NewCooldownCache(client *client.RedisClient) *CooldownCache {
	return &CooldownCache{client: client}
}

func (c *CooldownCache) Acquire(ctx context.Context, key string, period time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, cooldownPrefix+key, "1", period)
	if err != nil {
		util.Error("Failed to set reset cooldown", zap.Error(err))
		return false, fmt.Errorf("failed to set reset cooldown: %w", err)
	}
	return ok, nil
}
