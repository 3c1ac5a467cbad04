package presence

import (
	"chatcore/internal/keyValue"
	"context"
	"fmt"
	"time"
)

const DefaultTTL = 300 * time.Second

// Tracker keeps the online flag of users as expiring keys.
type Tracker struct {
	kv  *keyValue.Store
	ttl time.Duration
}

func New(kv *keyValue.Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{kv: kv, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("user_online:%d", userID)
}

func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

// SetOnline marks the user online, or extends the expiry if already online.
func (t *Tracker) SetOnline(ctx context.Context, userID int64) error {
	return t.kv.Set(ctx, key(userID), "1", t.ttl)
}

func (t *Tracker) SetOffline(ctx context.Context, userID int64) error {
	return t.kv.Del(ctx, key(userID))
}

func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	value, err := t.kv.Get(ctx, key(userID))
	if err != nil {
		return false, err
	}
	return value != "", nil
}
