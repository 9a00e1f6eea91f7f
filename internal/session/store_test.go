package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, threshold int, lockout time.Duration) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), threshold, lockout)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestGetOrCreateNewSession(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.CSRFToken == "" {
		t.Fatalf("session missing id or token: %+v", sess)
	}
	if sess.Unlocked {
		t.Fatalf("new session must start locked")
	}

	again, err := store.GetOrCreate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.ID != sess.ID || again.CSRFToken != sess.CSRFToken {
		t.Fatalf("existing session not returned: %+v vs %+v", sess, again)
	}
}

func TestGetOrCreateUnknownIDGetsFreshSession(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)
	sess, err := store.GetOrCreate(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	if sess.ID == "no-such-session" {
		t.Fatalf("unknown id must not be adopted")
	}
}

func TestUnlockResetsFailures(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)
	ctx := context.Background()
	sess, _ := store.GetOrCreate(ctx, "")

	if _, err := store.RecordFailure(ctx, sess.ID); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := store.Unlock(ctx, sess.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	got, _ := store.GetOrCreate(ctx, sess.ID)
	if !got.Unlocked {
		t.Fatalf("session must be unlocked")
	}
	if got.FailedAttempts != 0 {
		t.Fatalf("failures must reset on unlock, got %d", got.FailedAttempts)
	}
}

func TestLockoutAfterThreshold(t *testing.T) {
	store := newTestStore(t, 3, time.Minute)
	ctx := context.Background()
	sess, _ := store.GetOrCreate(ctx, "")

	for i := 0; i < 2; i++ {
		locked, err := store.RecordFailure(ctx, sess.ID)
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if locked {
			t.Fatalf("locked out before threshold at attempt %d", i+1)
		}
	}
	locked, err := store.RecordFailure(ctx, sess.ID)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !locked {
		t.Fatalf("threshold attempt must lock out")
	}

	got, _ := store.GetOrCreate(ctx, sess.ID)
	if !got.LockedOut(time.Now()) {
		t.Fatalf("session must report active lockout")
	}
	if got.LockedOut(time.Now().Add(2 * time.Minute)) {
		t.Fatalf("lockout must expire")
	}
}

func TestRotateCSRF(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)
	ctx := context.Background()
	sess, _ := store.GetOrCreate(ctx, "")

	token, err := store.RotateCSRF(ctx, sess.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if token == "" || token == sess.CSRFToken {
		t.Fatalf("token must change, got %q", token)
	}
	got, _ := store.GetOrCreate(ctx, sess.ID)
	if got.CSRFToken != token {
		t.Fatalf("rotated token not persisted")
	}
}

func TestPurgeDeletesIdleSessions(t *testing.T) {
	store := newTestStore(t, 5, time.Minute)
	ctx := context.Background()

	old, _ := store.GetOrCreate(ctx, "")
	fresh, _ := store.GetOrCreate(ctx, "")

	past := time.Now().Add(-48 * time.Hour).Unix()
	if _, err := store.db.ExecContext(ctx, "UPDATE sessions SET seen_at = ? WHERE id = ?", past, old.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	deleted, err := store.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	got, _ := store.GetOrCreate(ctx, fresh.ID)
	if got.ID != fresh.ID {
		t.Fatalf("fresh session must survive purge")
	}
}
