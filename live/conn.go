package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmcleod/driftwood/internal/uuid"
)

// SendFunc transmits one rendered payload to the client. eventID is the
// content hash, which doubles as the resume cursor on reconnect.
type SendFunc func(eventID, payload string) error

// Conn is one open push stream. It is owned by exactly one Serve
// goroutine, which is the only writer; the signal channel is the sole
// cross-goroutine touch point.
type Conn struct {
	ID       string
	SID      string
	UserID   *string
	OpenedAt time.Time

	view View
	send SendFunc

	// signal has capacity 1 and is written with a non-blocking send:
	// signals arriving while a refresh is in flight collapse into one.
	// The engine notifies about current state, it is not an event log.
	signal chan struct{}

	// lastHash is the hash of the most recent transmission, compared only
	// against the immediately following render. Seeded with the client's
	// resume hash so an unchanged reconnect sends nothing.
	lastHash string

	closeOnce sync.Once
}

// NewConn builds a connection for a session subscribed to view.
// resumeHash may be empty (fresh connection, first render always sent).
func NewConn(sid string, userID *string, view View, resumeHash string, send SendFunc) *Conn {
	return &Conn{
		ID:       uuid.New(),
		SID:      sid,
		UserID:   userID,
		OpenedAt: time.Now(),
		view:     view,
		send:     send,
		signal:   make(chan struct{}, 1),
		lastHash: resumeHash,
	}
}

// ViewName returns the subscribed view's name.
func (c *Conn) ViewName() string { return c.view.Name() }

// notify wakes the connection's serve loop. Never blocks: if a signal is
// already pending the new one is dropped, latest state wins.
func (c *Conn) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// refresh re-renders the view and transmits iff the content changed since
// the last transmission on this connection.
func (c *Conn) refresh(ctx context.Context) error {
	content, err := c.view.Render(ctx)
	if err != nil {
		return fmt.Errorf("rendering view %q: %w", c.view.Name(), err)
	}
	hash := ContentHash(content)
	if hash == c.lastHash {
		return nil
	}
	if err := c.send(hash, content); err != nil {
		return fmt.Errorf("transmitting view %q: %w", c.view.Name(), err)
	}
	c.lastHash = hash
	return nil
}

// runCloseHook fires the view's close hook, exactly once even when a
// connection is torn down from more than one path.
func (c *Conn) runCloseHook() {
	c.closeOnce.Do(func() {
		if h, ok := c.view.(CloseHooker); ok {
			h.CloseHook(c.ID)
		}
	})
}
