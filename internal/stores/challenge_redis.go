package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultChallengePrefix = "gcc"

// putChallengeLua replaces the record unless the prior instance is inside
// the resend cooldown.
// KEYS[1] = record key
// ARGV = id, subject, channel, hash, issuedAtMs, expiresAtMs, maxAttempts,
//
//	cooldownMs, ttlMs, nowMs
var putChallengeLua = redis.NewScript(`
local cooldown = tonumber(ARGV[8])
if cooldown > 0 then
  local prev = redis.call('HGET', KEYS[1], 'iat')
  if prev then
    local elapsed = tonumber(ARGV[10]) - tonumber(prev)
    if elapsed < cooldown then
      return {'cooldown', cooldown - elapsed}
    end
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'sub', ARGV[2], 'ch', ARGV[3], 'sh', ARGV[4],
  'iat', ARGV[5], 'exp', ARGV[6], 'att', '0', 'max', ARGV[7], 'st', '1')
redis.call('PEXPIRE', KEYS[1], ARGV[9])
return {'ok', 0}
`)

// reserveChallengeLua counts one attempt against an issued record.
// KEYS[1] = record key
// ARGV[1] = nowMs
var reserveChallengeLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'st', 'exp', 'att', 'max')
if not f[1] then
  return {'not_found'}
end
local st = tonumber(f[1])
if st == 2 then
  return {'not_found'}
elseif st == 3 then
  return {'expired'}
elseif st == 4 then
  return {'locked'}
end
if tonumber(ARGV[1]) > tonumber(f[2]) then
  redis.call('HSET', KEYS[1], 'st', '3')
  return {'expired'}
end
if tonumber(f[3]) >= tonumber(f[4]) then
  redis.call('HSET', KEYS[1], 'st', '4')
  return {'locked'}
end
redis.call('HINCRBY', KEYS[1], 'att', 1)
local r = redis.call('HMGET', KEYS[1], 'id', 'sub', 'ch', 'sh', 'iat', 'exp', 'att', 'max')
return {'ok', r[1], r[2], r[3], r[4], r[5], r[6], r[7], r[8]}
`)

// consumeChallengeLua marks a specific instance consumed.
// KEYS[1] = record key
// ARGV[1] = instance id, ARGV[2] = nowMs
var consumeChallengeLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'id', 'st', 'exp')
if not f[1] or f[1] ~= ARGV[1] or tonumber(f[2]) ~= 1 then
  return 'not_found'
end
if tonumber(ARGV[2]) > tonumber(f[3]) then
  redis.call('HSET', KEYS[1], 'st', '3')
  return 'expired'
end
redis.call('HSET', KEYS[1], 'st', '2')
return 'ok'
`)

// burnChallengeLua locks an issued record.
// KEYS[1] = record key
// ARGV[1] = nowMs
var burnChallengeLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'st', 'exp')
if not f[1] or tonumber(f[1]) ~= 1 then
  return 0
end
if tonumber(ARGV[1]) > tonumber(f[2]) then
  redis.call('HSET', KEYS[1], 'st', '3')
  return 0
end
redis.call('HSET', KEYS[1], 'st', '4')
return 1
`)

// RedisChallengeStore keeps each challenge in a Redis hash.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisChallengeStore(redisClient redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &RedisChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisChallengeStore) key(subject, channel string) string {
	return challengeKey(s.prefix, subject, channel)
}

func (s *RedisChallengeStore) Put(ctx context.Context, rec *ChallengeRecord, opts PutOptions) error {
	if rec == nil || rec.Subject == "" || rec.Channel == "" {
		return errors.New("invalid challenge record")
	}

	res, err := putChallengeLua.Run(ctx, s.redis,
		[]string{s.key(rec.Subject, rec.Channel)},
		rec.ID,
		rec.Subject,
		rec.Channel,
		string(rec.SecretHash[:]),
		rec.IssuedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		rec.MaxAttempts,
		opts.Cooldown.Milliseconds(),
		recordTTL(rec, opts).Milliseconds(),
		opts.Now.UnixMilli(),
	).Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	if len(res) == 2 && res[0] == "cooldown" {
		wait, _ := res[1].(int64)
		return &CooldownError{RetryAfter: time.Duration(wait) * time.Millisecond}
	}

	rec.Attempts = 0
	rec.State = StateIssued
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, subject, channel string) (*ChallengeRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(subject, channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrChallengeNotFound
	}

	rec, err := decodeChallengeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return rec, nil
}

func (s *RedisChallengeStore) Reserve(ctx context.Context, subject, channel string, now time.Time) (*ChallengeRecord, error) {
	key := s.key(subject, channel)

	res, err := reserveChallengeLua.Run(ctx, s.redis, []string{key}, now.UnixMilli()).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty script result", ErrChallengeUnavailable)
	}

	switch res[0] {
	case "ok":
	case "not_found":
		return nil, ErrChallengeNotFound
	case "expired":
		return nil, ErrChallengeExpired
	case "locked":
		return nil, ErrChallengeLocked
	default:
		return nil, fmt.Errorf("%w: unexpected script status %v", ErrChallengeUnavailable, res[0])
	}

	if len(res) != 9 {
		return nil, fmt.Errorf("%w: short script result", ErrChallengeUnavailable)
	}

	fields := make(map[string]string, 9)
	for i, name := range []string{"id", "sub", "ch", "sh", "iat", "exp", "att", "max"} {
		v, _ := res[i+1].(string)
		fields[name] = v
	}
	fields["st"] = strconv.Itoa(int(StateIssued))

	rec, err := decodeChallengeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return rec, nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, subject, channel, id string, now time.Time) error {
	status, err := consumeChallengeLua.Run(ctx, s.redis, []string{s.key(subject, channel)}, id, now.UnixMilli()).Text()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	switch status {
	case "ok":
		return nil
	case "expired":
		return ErrChallengeExpired
	default:
		return ErrChallengeNotFound
	}
}

func (s *RedisChallengeStore) Burn(ctx context.Context, subject, channel string, now time.Time) (bool, error) {
	n, err := burnChallengeLua.Run(ctx, s.redis, []string{s.key(subject, channel)}, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return n == 1, nil
}

func decodeChallengeFields(fields map[string]string) (*ChallengeRecord, error) {
	rec := &ChallengeRecord{
		ID:      fields["id"],
		Subject: fields["sub"],
		Channel: fields["ch"],
	}

	if sh := fields["sh"]; len(sh) == len(rec.SecretHash) {
		copy(rec.SecretHash[:], sh)
	} else if sh != "" {
		return nil, errors.New("invalid challenge secret hash")
	}

	ints := make(map[string]int64, 5)
	for _, name := range []string{"iat", "exp", "att", "max", "st"} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid challenge field %s", name)
		}
		ints[name] = v
	}

	rec.IssuedAt = time.UnixMilli(ints["iat"])
	rec.ExpiresAt = time.UnixMilli(ints["exp"])
	rec.Attempts = int(ints["att"])
	rec.MaxAttempts = int(ints["max"])
	rec.State = State(ints["st"])
	return rec, nil
}
