package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/dashbite-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func TestManagerGenerateCheckRevoke(t *testing.T) {
	store := newMockStore()
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if stored := store.data["sess:access-123"]; stored != token {
		t.Fatalf("expected stored token %q, got %q", token, stored)
	}

	ok, err := manager.HasSession(ctx, "access-123")
	if err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}

	if err := manager.Revoke(ctx, "access-123"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, "access-123")
	if err != nil || ok {
		t.Fatalf("expected revoked session, ok=%v err=%v", ok, err)
	}
}

func TestManagerRejectsBlankAccessID(t *testing.T) {
	store := newMockStore()
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}
	ctx := context.Background()

	if _, err := manager.Generate(ctx, " "); err == nil {
		t.Fatal("expected generate error")
	}
	if err := manager.Revoke(ctx, ""); err == nil {
		t.Fatal("expected revoke error")
	}
	if _, err := manager.HasSession(ctx, ""); err == nil {
		t.Fatal("expected has session error")
	}
}

func TestManagerHasSessionPropagatesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("connection reset")
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}

	if _, err := manager.HasSession(context.Background(), "access"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestNewManagerValidatesTTL(t *testing.T) {
	if _, err := NewManager(nil, config.JWTConfig{}); err == nil {
		t.Fatal("expected nil client error")
	}
}
