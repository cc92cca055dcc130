// Package arena holds the shared mutable state behind the live demo
// views: a counter and a set of presence cursors. One mutex-guarded
// handle, passed explicitly to whoever needs it — this pattern is for
// demo state only, never for session or credential state.
package arena

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketState   = []byte("state")
	bucketCursors = []byte("cursors")
	keyCounter    = []byte("counter")
)

// Cursor is one connection's presence marker.
type Cursor struct {
	ConnID    string    `json:"conn_id"`
	Label     string    `json:"label"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Arena is the shared demo state. The counter survives restarts via a
// local bbolt file; cursors are tied to live connections and start empty.
type Arena struct {
	mu      sync.Mutex
	db      *bbolt.DB
	logger  *slog.Logger
	counter int64
	cursors map[string]Cursor
}

// Open loads (or initializes) the arena at path.
func Open(path string, logger *slog.Logger) (*Arena, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening arena db: %w", err)
	}
	a := &Arena{
		db:      db,
		logger:  logger.With("component", "arena"),
		cursors: make(map[string]Cursor),
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketState)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCursors); err != nil {
			return err
		}
		if v := b.Get(keyCounter); len(v) == 8 {
			a.counter = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading arena state: %w", err)
	}
	return a, nil
}

// Close flushes and closes the backing file.
func (a *Arena) Close() error {
	return a.db.Close()
}

// Counter returns the current counter value.
func (a *Arena) Counter() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter
}

// Increment bumps the counter and persists it, returning the new value.
func (a *Arena) Increment() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.counter + 1
	err := a.db.Update(func(tx *bbolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(next))
		return tx.Bucket(bucketState).Put(keyCounter, buf[:])
	})
	if err != nil {
		return a.counter, fmt.Errorf("persisting counter: %w", err)
	}
	a.counter = next
	return next, nil
}

// SetCursor records (or moves) a connection's presence cursor.
func (a *Arena) SetCursor(connID, label string, x, y int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := Cursor{ConnID: connID, Label: label, X: x, Y: y, UpdatedAt: time.Now().UTC()}
	err := a.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCursors).Put([]byte(connID), data)
	})
	if err != nil {
		return fmt.Errorf("persisting cursor: %w", err)
	}
	a.cursors[connID] = c
	return nil
}

// RemoveCursor drops a connection's cursor. Missing cursors are a no-op,
// so a close hook firing after an explicit removal is harmless. A failed
// persistent delete is logged and swallowed: the in-memory map is the
// source of truth for rendering, and cursors never outlive the process.
func (a *Arena) RemoveCursor(connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cursors, connID)
	err := a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Delete([]byte(connID))
	})
	if err != nil {
		a.logger.Error("removing cursor", "conn_id", connID, "error", err)
	}
}

// Cursors returns the current cursors, ordered by connection id so that
// renders of the same state are byte-identical.
func (a *Arena) Cursors() []Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Cursor, 0, len(a.cursors))
	for _, c := range a.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}
