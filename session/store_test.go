package session

import (
	"context"
	"testing"
	"time"

	"github.com/jmcleod/driftwood/internal/uuid"
)

// storeTests runs the common suite against any Store implementation.
func storeTests(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		sess, err := store.Get(ctx, sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if sess.SID != sid {
			t.Fatalf("got sid %q, want %q", sess.SID, sid)
		}
		if sess.UserID != nil {
			t.Fatal("new session should be anonymous")
		}
		if !sess.ExpiresAt.After(sess.AccessedAt) {
			t.Fatal("expires_at should be after accessed_at")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.Get(ctx, NewSID()); err != ErrNotFound {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("GetExpired", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, -time.Minute); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := store.Get(ctx, sid); err != ErrNotFound {
			t.Fatalf("expired session: got %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateConflictIsNoop", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		// Losing the creation race must not error; caller re-reads.
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create conflict: %v", err)
		}
		if _, err := store.Get(ctx, sid); err != nil {
			t.Fatalf("Get after conflicting create: %v", err)
		}
	})

	t.Run("TouchExtends", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Minute); err != nil {
			t.Fatalf("Create: %v", err)
		}
		before, err := store.Get(ctx, sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if err := store.Touch(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		after, err := store.Get(ctx, sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !after.ExpiresAt.After(before.ExpiresAt) {
			t.Fatal("Touch should extend expiry")
		}
	})

	t.Run("TouchMissingIsNoop", func(t *testing.T) {
		if err := store.Touch(ctx, NewSID(), time.Hour); err != nil {
			t.Fatalf("Touch on missing sid should be a no-op, got %v", err)
		}
	})

	t.Run("UpdateData", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.UpdateData(ctx, sid, map[string]string{"theme": "dark"}, time.Hour); err != nil {
			t.Fatalf("UpdateData: %v", err)
		}
		sess, err := store.Get(ctx, sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if sess.Data["theme"] != "dark" {
			t.Fatalf("got data %v, want theme=dark", sess.Data)
		}
	})

	t.Run("RotateAtomicity", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		userID := uuid.New()
		newSID, err := store.Rotate(ctx, sid, &userID, time.Hour)
		if err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		if newSID == sid {
			t.Fatal("rotation must generate a fresh sid")
		}
		if _, err := store.Get(ctx, sid); err != ErrNotFound {
			t.Fatalf("old sid should be gone, got %v", err)
		}
		sess, err := store.Get(ctx, newSID)
		if err != nil {
			t.Fatalf("Get new sid: %v", err)
		}
		if sess.UserID == nil || *sess.UserID != userID {
			t.Fatalf("rotated session user = %v, want %q", sess.UserID, userID)
		}
	})

	t.Run("RotateMissingOldSID", func(t *testing.T) {
		// The old row may already be reaped; rotation still yields a
		// valid new session.
		userID := uuid.New()
		newSID, err := store.Rotate(ctx, NewSID(), &userID, time.Hour)
		if err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		if _, err := store.Get(ctx, newSID); err != nil {
			t.Fatalf("Get new sid: %v", err)
		}
	})

	t.Run("ClearUser", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		userID := uuid.New()
		authSID, err := store.Rotate(ctx, sid, &userID, time.Hour)
		if err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		if err := store.ClearUser(ctx, authSID, time.Hour); err != nil {
			t.Fatalf("ClearUser: %v", err)
		}
		sess, err := store.Get(ctx, authSID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if sess.UserID != nil {
			t.Fatal("ClearUser should detach the user but keep the sid")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		sid := NewSID()
		if err := store.Create(ctx, sid, time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Delete(ctx, sid); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, sid); err != ErrNotFound {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
		// Deleting again is a no-op.
		if err := store.Delete(ctx, sid); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, NewMemoryStore())
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	live := NewSID()
	dead := NewSID()
	if err := store.Create(ctx, live, time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, dead, -time.Minute); err != nil {
		t.Fatalf("Create: %v", err)
	}

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d sessions, want 1", removed)
	}
	if _, err := store.Get(ctx, live); err != nil {
		t.Fatalf("live session should survive the reap: %v", err)
	}
}

func TestNewSID(t *testing.T) {
	a, b := NewSID(), NewSID()
	if a == b {
		t.Fatal("sids should be unique")
	}
	// 20 bytes base64url without padding is 27 characters.
	if len(a) != 27 {
		t.Fatalf("sid length %d, want 27", len(a))
	}
}
