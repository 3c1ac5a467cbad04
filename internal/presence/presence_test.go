package presence_test

import (
	"chatcore/internal/keyValue"
	"chatcore/internal/presence"
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestOnlineOffline(t *testing.T) {
	tracker := presence.New(keyValue.New(zap.NewNop().Sugar(), nil), 0)
	ctx := context.Background()

	if tracker.TTL() != presence.DefaultTTL {
		t.Errorf("Expected default TTL %s, got %s", presence.DefaultTTL, tracker.TTL())
	}

	online, err := tracker.IsOnline(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if online {
		t.Error("Expected unknown user to be offline")
	}

	if err := tracker.SetOnline(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if online, _ := tracker.IsOnline(ctx, 1); !online {
		t.Error("Expected user to be online after SetOnline")
	}

	if err := tracker.SetOffline(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if online, _ := tracker.IsOnline(ctx, 1); online {
		t.Error("Expected user to be offline after SetOffline")
	}
}
