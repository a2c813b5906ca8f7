package limiters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultGuardPrefix = "gcl"

// guardLua applies one outcome to a lockout ledger.
// KEYS[1] = ledger key
// ARGV = nowMs, outcome, maxFailures, windowMs, lockMs
// Returns {allowed, failures, lockedUntilMs}.
var guardLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local f = redis.call('HMGET', KEYS[1], 'failures', 'first', 'locked_until')
local failures = tonumber(f[1]) or 0
local first = tonumber(f[2]) or 0
local locked = tonumber(f[3]) or 0

if locked > now then
  return {0, failures, locked}
end
if locked > 0 or (first > 0 and now - first >= tonumber(ARGV[4])) then
  redis.call('DEL', KEYS[1])
  failures = 0
  first = 0
  locked = 0
end

if ARGV[2] == 'success' then
  redis.call('DEL', KEYS[1])
  return {1, 0, 0}
end
if ARGV[2] ~= 'failure' then
  return {1, failures, 0}
end

failures = failures + 1
if first == 0 then
  first = now
end
if failures >= tonumber(ARGV[3]) then
  locked = now + tonumber(ARGV[5])
end
redis.call('HSET', KEYS[1], 'failures', tostring(failures), 'first', tostring(first), 'locked_until', tostring(locked))

local ttl = first + tonumber(ARGV[4]) - now
if locked - now > ttl then
  ttl = locked - now
end
if ttl < 1 then
  ttl = 1
end
redis.call('PEXPIRE', KEYS[1], tostring(math.floor(ttl)))

if locked > 0 then
  return {0, failures, locked}
end
return {1, failures, 0}
`)

// RedisGuard keeps lockout ledgers in Redis hashes.
type RedisGuard struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisGuard(redisClient redis.UniversalClient, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = defaultGuardPrefix
	}
	return &RedisGuard{redis: redisClient, prefix: prefix}
}

func (g *RedisGuard) CheckAndRecord(ctx context.Context, subject, class string, outcome Outcome, policy LockoutPolicy, now time.Time) (Decision, error) {
	if err := policy.validate(); err != nil {
		return Decision{}, err
	}

	res, err := guardLua.Run(ctx, g.redis,
		[]string{ledgerKey(g.prefix, subject, class)},
		now.UnixMilli(),
		outcome.String(),
		policy.MaxFailures,
		policy.Window.Milliseconds(),
		policy.LockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script result", ErrGuardUnavailable)
	}

	if res[0] == 0 {
		return lockedDecision(int(res[1]), time.UnixMilli(res[2]), now), nil
	}
	return Decision{Allowed: true, Failures: int(res[1])}, nil
}

func (g *RedisGuard) State(ctx context.Context, subject, class string) (LockoutState, bool, error) {
	fields, err := g.redis.HGetAll(ctx, ledgerKey(g.prefix, subject, class)).Result()
	if err != nil {
		return LockoutState{}, false, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if len(fields) == 0 {
		return LockoutState{}, false, nil
	}

	failures, err1 := strconv.Atoi(fields["failures"])
	first, err2 := strconv.ParseInt(fields["first"], 10, 64)
	locked, err3 := strconv.ParseInt(fields["locked_until"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return LockoutState{}, false, fmt.Errorf("%w: corrupt ledger", ErrGuardUnavailable)
	}

	st := LockoutState{Failures: failures}
	if first > 0 {
		st.FirstFailureAt = time.UnixMilli(first)
	}
	if locked > 0 {
		st.LockedUntil = time.UnixMilli(locked)
	}
	return st, true, nil
}

func (g *RedisGuard) Reset(ctx context.Context, subject, class string) error {
	if err := g.redis.Del(ctx, ledgerKey(g.prefix, subject, class)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	return nil
}
