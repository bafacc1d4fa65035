package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trustgate/config"
	"trustgate/core/store"
)

func newSessionEnv(t *testing.T, ttl, idle time.Duration) (*SessionManager, store.SessionsStore) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:    "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "sessions.db"),
		SessionTTL:  ttl,
		IdleTimeout: idle,
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	sessions := store.NewSessionsStore(db)
	return NewSessionManager(sessions, cfg, nil), sessions
}

func TestSessionCreateAndTouch(t *testing.T) {
	sm, _ := newSessionEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	rec, err := sm.Create(ctx, 1, "alice", "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("empty session id")
	}

	got, res, err := sm.Touch(ctx, rec.ID)
	if err != nil || res != TouchValid {
		t.Fatalf("touch: res=%v err=%v", res, err)
	}
	if got.Username != "alice" || got.UserID != 1 {
		t.Fatalf("wrong record: %+v", got)
	}
	if got.CreatedAt != rec.CreatedAt {
		t.Fatal("CreatedAt changed on touch")
	}
	if !got.LastSeenAt.After(rec.LastSeenAt) {
		t.Fatal("LastSeenAt did not advance")
	}
}

func TestSessionTouchIsMonotonic(t *testing.T) {
	sm, _ := newSessionEnv(t, time.Hour, time.Hour)
	ctx := context.Background()
	rec, _ := sm.Create(ctx, 1, "alice", "10.0.0.1", "agent")

	prev := rec.LastSeenAt
	for i := 0; i < 5; i++ {
		got, res, err := sm.Touch(ctx, rec.ID)
		if err != nil || res != TouchValid {
			t.Fatalf("touch %d: res=%v err=%v", i, res, err)
		}
		if !got.LastSeenAt.After(prev) {
			t.Fatalf("touch %d: LastSeenAt not strictly increasing", i)
		}
		prev = got.LastSeenAt
	}
}

func TestSessionExpiredThenNotFound(t *testing.T) {
	// Negative idle timeout means every touch arrives past the deadline.
	sm, sessions := newSessionEnv(t, time.Hour, -time.Second)
	ctx := context.Background()
	rec, _ := sm.Create(ctx, 1, "alice", "10.0.0.1", "agent")

	_, res, err := sm.Touch(ctx, rec.ID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if res != TouchExpired {
		t.Fatalf("first touch: got %v, want TouchExpired", res)
	}

	_, res, err = sm.Touch(ctx, rec.ID)
	if err != nil {
		t.Fatalf("second touch: %v", err)
	}
	if res != TouchNotFound {
		t.Fatalf("second touch: got %v, want TouchNotFound", res)
	}

	if got, _ := sessions.Get(ctx, rec.ID); got != nil {
		t.Fatal("expired session row still present")
	}
}

func TestSessionInvalidate(t *testing.T) {
	sm, _ := newSessionEnv(t, time.Hour, time.Hour)
	ctx := context.Background()
	rec, _ := sm.Create(ctx, 1, "alice", "10.0.0.1", "agent")

	if err := sm.Invalidate(ctx, rec.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, res, _ := sm.Touch(ctx, rec.ID)
	if res != TouchNotFound {
		t.Fatalf("got %v, want TouchNotFound", res)
	}
	// Idempotent: invalidating again is a no-op.
	if err := sm.Invalidate(ctx, rec.ID); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
}

func TestSessionInvalidateAllForUser(t *testing.T) {
	sm, _ := newSessionEnv(t, time.Hour, time.Hour)
	ctx := context.Background()
	a, _ := sm.Create(ctx, 1, "alice", "10.0.0.1", "agent")
	b, _ := sm.Create(ctx, 1, "alice", "10.0.0.2", "agent")
	c, _ := sm.Create(ctx, 2, "bob", "10.0.0.3", "agent")

	if err := sm.InvalidateAllForUser(ctx, 1); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if _, res, _ := sm.Touch(ctx, a.ID); res != TouchNotFound {
		t.Fatal("alice session a survived")
	}
	if _, res, _ := sm.Touch(ctx, b.ID); res != TouchNotFound {
		t.Fatal("alice session b survived")
	}
	if _, res, _ := sm.Touch(ctx, c.ID); res != TouchValid {
		t.Fatal("bob session was invalidated")
	}
}
