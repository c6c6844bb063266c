package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	ownerLockKey = "settlement:payout:lock:%s"
	ownerLockTTL = 10 * time.Second
)

// Release only deletes the key when the caller still holds it; an expired
// lock reclaimed by another payout submission stays put.
const ownerLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ownerLock serializes payout submission per owner. The lock covers only the
// in-flight HTTP request, not the payout's lifetime, so the TTL is short and
// a crashed submitter unblocks the owner within seconds.
type ownerLock struct {
	client *redis.Client
	script *redis.Script
}

func newOwnerLock(client *redis.Client) *ownerLock {
	if client == nil {
		return nil
	}
	return &ownerLock{
		client: client,
		script: redis.NewScript(ownerLockReleaseScript),
	}
}

// TryAcquire claims the owner's submission slot. The returned token fences
// the release: only the holder that set the key may delete it.
func (l *ownerLock) TryAcquire(ctx context.Context, ownerID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", false, errors.New("lock owner is empty")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fmt.Sprintf(ownerLockKey, ownerID), token, ownerLockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *ownerLock) Release(ctx context.Context, ownerID, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{fmt.Sprintf(ownerLockKey, ownerID)}, token).Err()
}
