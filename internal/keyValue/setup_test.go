package keyValue

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newLocalStore() (*Store, *time.Time) {
	current := time.Unix(1_700_000_000, 0)
	s := New(zap.NewNop().Sugar(), nil)
	s.now = func() time.Time { return current }
	return s, &current
}

func TestSetGet(t *testing.T) {
	s, _ := newLocalStore()
	ctx := context.Background()

	if err := s.Set(ctx, "user_online:1", "1", time.Minute); err != nil {
		t.Fatal(err)
	}

	value, err := s.Get(ctx, "user_online:1")
	if err != nil {
		t.Fatal(err)
	}
	if value != "1" {
		t.Errorf("Expected value 1, got %q", value)
	}

	missing, err := s.Get(ctx, "user_online:2")
	if err != nil {
		t.Fatal(err)
	}
	if missing != "" {
		t.Errorf("Expected empty value for missing key, got %q", missing)
	}
}

func TestExpiry(t *testing.T) {
	s, current := newLocalStore()
	ctx := context.Background()

	if err := s.Set(ctx, "key", "value", 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	*current = current.Add(4 * time.Minute)
	ttl, err := s.TTL(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	if ttl != time.Minute {
		t.Errorf("Expected 1m left, got %s", ttl)
	}

	*current = current.Add(2 * time.Minute)
	value, err := s.Get(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Errorf("Expected expired key to read as empty, got %q", value)
	}

	s.sweep()
	s.mutex.RLock()
	_, stillThere := s.hashmap["key"]
	s.mutex.RUnlock()
	if stillThere {
		t.Error("Expected sweep to remove expired key")
	}
}

func TestGetDelAndDel(t *testing.T) {
	s, _ := newLocalStore()
	ctx := context.Background()

	if err := s.Set(ctx, "session:a", "42", time.Hour); err != nil {
		t.Fatal(err)
	}

	value, err := s.GetDel(ctx, "session:a")
	if err != nil {
		t.Fatal(err)
	}
	if value != "42" {
		t.Errorf("Expected 42, got %q", value)
	}

	value, err = s.GetDel(ctx, "session:a")
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Errorf("Expected second GetDel to return empty, got %q", value)
	}

	if err := s.Set(ctx, "session:b", "43", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Del(ctx, "session:b"); err != nil {
		t.Fatal(err)
	}
	if value, _ := s.Get(ctx, "session:b"); value != "" {
		t.Errorf("Expected deleted key to be empty, got %q", value)
	}
}
