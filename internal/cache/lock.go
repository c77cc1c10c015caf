package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is the advisory lock around a publish run. At most one run may hold
// it at a time across every instance of the service; a failed acquisition is
// a normal outcome, not an error.
type RunLock struct {
	c        *redis.Client
	key      string
	ttl      time.Duration
	waitStep time.Duration
}

func NewRunLock(c *redis.Client, key string, ttl time.Duration) *RunLock {
	if key == "" {
		key = RunLockKey()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RunLock{
		c:        c,
		key:      key,
		ttl:      ttl,
		waitStep: 250 * time.Millisecond,
	}
}

// Release only deletes the key while it still holds this owner's token, so an
// expired lock re-acquired by another run is never stolen back.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire tries to take the lock, retrying until maxWait elapses. It returns
// the release func and true on success, and (nil, false) when the lock stayed
// busy for the whole window.
func (l *RunLock) Acquire(ctx context.Context, maxWait time.Duration) (func(), bool, error) {
	token, err := randomToken()
	if err != nil {
		return nil, false, fmt.Errorf("lock token: %w", err)
	}

	deadline := time.Now().Add(maxWait)
	for {
		ok, err := l.c.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("acquire run lock: %w", err)
		}
		if ok {
			release := func() {
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.c, []string{l.key}, token).Err()
			}
			return release, true, nil
		}

		if time.Now().After(deadline) {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(l.waitStep):
		}
	}
}

func randomToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
