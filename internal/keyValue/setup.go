package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

// Store is a string key value store with expiry. It is backed by redis, or by
// a local hashmap when running self contained.
type Store struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client

	mutex   sync.RWMutex
	hashmap map[string]Value
	now     func() time.Time
}

// New returns a redis backed store, or a local one when redisClient is nil.
func New(sugar *zap.SugaredLogger, redisClient *redis.Client) *Store {
	return &Store{
		sugar:       sugar,
		redisClient: redisClient,
		hashmap:     make(map[string]Value),
		now:         time.Now,
	}
}

func (s *Store) selfContained() bool {
	return s.redisClient == nil
}

func (s *Store) String() string {
	if s.selfContained() {
		return "keyvalue-local"
	}
	return "keyvalue-redis"
}

// Serve removes expired local keys every minute until ctx is done.
func (s *Store) Serve(ctx context.Context) error {
	if !s.selfContained() {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, v := range s.hashmap {
		if !v.expires.After(now) {
			delete(s.hashmap, key)
		}
	}
}

// Get returns "" for a missing or expired key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.selfContained() {
		s.sugar.Debugf("Getting value of key [%s] from hashmap", key)

		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok || !v.expires.After(s.now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting value of key [%s] from redis", key)

	value, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) GetDel(ctx context.Context, key string) (string, error) {
	if s.selfContained() {
		s.sugar.Debugf("Getting and deleting value of key [%s] from hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		v, ok := s.hashmap[key]
		delete(s.hashmap, key)
		if !ok || !v.expires.After(s.now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting and deleting value of key [%s] from redis", key)

	value, err := s.redisClient.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value string, expires time.Duration) error {
	if s.selfContained() {
		s.sugar.Debugf("Setting value of key [%s] in hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.hashmap[key] = Value{value, s.now().Add(expires)}
		return nil
	}

	s.sugar.Debugf("Setting value of key [%s] in redis", key)
	return s.redisClient.Set(ctx, key, value, expires).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	if s.selfContained() {
		s.sugar.Debugf("Deleting key [%s] from hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.hashmap, key)
		return nil
	}

	s.sugar.Debugf("Deleting key [%s] from redis", key)
	return s.redisClient.Del(ctx, key).Err()
}

// TTL returns the remaining lifetime of a key, 0 if it doesn't exist.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if s.selfContained() {
		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok {
			return 0, nil
		}
		remaining := v.expires.Sub(s.now())
		if remaining < 0 {
			return 0, nil
		}
		return remaining, nil
	}

	ttl, err := s.redisClient.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// redis reports -2 for missing keys and -1 for keys without expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
