package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// scripterStub answers every script invocation with one canned reply, and
// records the key and arguments of the last call.
type scripterStub struct {
	reply interface{}
	err   error

	lastKeys []string
	lastArgs []interface{}
}

func (s *scripterStub) run(keys []string, args []interface{}) *redis.Cmd {
	s.lastKeys = keys
	s.lastArgs = args
	return redis.NewCmdResult(s.reply, s.err)
}

func (s *scripterStub) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.run(keys, args)
}

func (s *scripterStub) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.run(keys, args)
}

func (s *scripterStub) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.run(keys, args)
}

func (s *scripterStub) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.run(keys, args)
}

func (s *scripterStub) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (s *scripterStub) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestConsumeRateLimit_ReportsCountAndRetryAfter(t *testing.T) {
	stub := &scripterStub{reply: []interface{}{int64(3), int64(30500)}}
	limiter := NewRedisRateLimiter(stub, "giglane:rate_limit")

	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "top_up", "user-1", 5, time.Minute)
	if err != nil {
		t.Fatalf("expected the hit to be counted, got %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	if retryAfter != 31 {
		t.Fatalf("expected retry-after rounded up to 31s, got %d", retryAfter)
	}
	if len(stub.lastKeys) != 1 || stub.lastKeys[0] != "giglane:rate_limit:top_up:user-1" {
		t.Fatalf("unexpected limiter key: %v", stub.lastKeys)
	}
	if len(stub.lastArgs) != 1 || stub.lastArgs[0] != int64(60000) {
		t.Fatalf("expected a 60000ms window argument, got %v", stub.lastArgs)
	}
}

func TestConsumeRateLimit_ScopeWindowOverride(t *testing.T) {
	stub := &scripterStub{reply: []interface{}{int64(1), int64(-1)}}
	limiter := NewRedisRateLimiter(stub, "")
	limiter.SetScopeWindow("payout", 5*time.Minute)

	_, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "payout", "user-2", 3, time.Minute)
	if err != nil {
		t.Fatalf("expected the hit to be counted, got %v", err)
	}
	if len(stub.lastArgs) != 1 || stub.lastArgs[0] != int64(300000) {
		t.Fatalf("expected the payout scope to run a 300000ms window, got %v", stub.lastArgs)
	}
	// PTTL -1 (no expiry yet) falls back to the full window.
	if retryAfter != 300 {
		t.Fatalf("expected retry-after of the full window, got %d", retryAfter)
	}
}

func TestConsumeRateLimit_DisabledInputs(t *testing.T) {
	stub := &scripterStub{reply: []interface{}{int64(1), int64(1000)}}
	limiter := NewRedisRateLimiter(stub, "")

	for name, call := range map[string]func() (int, int, error){
		"zero limit":    func() (int, int, error) { return limiter.ConsumeRateLimit(context.Background(), "top_up", "u", 0, time.Minute) },
		"blank scope":   func() (int, int, error) { return limiter.ConsumeRateLimit(context.Background(), "  ", "u", 5, time.Minute) },
		"blank subject": func() (int, int, error) { return limiter.ConsumeRateLimit(context.Background(), "top_up", "", 5, time.Minute) },
	} {
		count, retryAfter, err := call()
		if count != 0 || retryAfter != 0 || err != nil {
			t.Fatalf("%s: expected the limiter to decline, got count=%d retry=%d err=%v", name, count, retryAfter, err)
		}
	}
	if stub.lastKeys != nil {
		t.Fatal("declined calls must not reach redis")
	}
}

func TestConsumeRateLimit_MalformedReplyFailsOpenInService(t *testing.T) {
	svc := NewService(newWalletRepoStub(testUser()), &processorStub{}, "USD", walletLimits(), nil)
	svc.SetRateLimiter(NewRedisRateLimiter(&scripterStub{reply: "not-a-pair"}, ""))

	if err := svc.consumeRateLimit(context.Background(), "top_up", uuid.New(), 5); err != nil {
		t.Fatalf("a limiter error must fail open, got %v", err)
	}
}

func TestConsumeRateLimit_ExceededLimitRejected(t *testing.T) {
	svc := NewService(newWalletRepoStub(testUser()), &processorStub{}, "USD", walletLimits(), nil)
	svc.SetRateLimiter(NewRedisRateLimiter(&scripterStub{reply: []interface{}{int64(6), int64(12000)}}, ""))

	if err := svc.consumeRateLimit(context.Background(), "top_up", uuid.New(), 5); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited above the limit, got %v", err)
	}
}
