package live

import (
	"context"
	"log/slog"
)

// Engine fans refresh signals out to open connections and runs the
// per-connection render/diff/transmit loop.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		registry: NewRegistry(),
		logger:   logger.With("component", "live"),
	}
}

// Registry exposes the connection table (for health/metrics surfaces).
func (e *Engine) Registry() *Registry { return e.registry }

// Notify signals every open connection that state may have changed. The
// per-connection slot channel collapses bursts: a connection that is
// mid-refresh observes at most the latest signal. Delivery order across
// connections is not defined; within one connection transmissions are
// ordered because Serve is the single writer.
func (e *Engine) Notify() {
	e.registry.each((*Conn).notify)
}

// Serve registers the connection, performs the initial render, then
// refreshes on every signal until ctx is cancelled or the transport
// fails. Unregistration and the view close hook run on every exit path.
func (e *Engine) Serve(ctx context.Context, c *Conn) error {
	e.registry.Register(c)
	defer func() {
		e.registry.Unregister(c.ID)
		c.runCloseHook()
		e.logger.Debug("connection closed", "conn_id", c.ID, "view", c.ViewName())
	}()

	e.logger.Debug("connection opened", "conn_id", c.ID, "view", c.ViewName(), "sid", c.SID)

	// Initial render. Forced for fresh connections (no hash to compare
	// against); a reconnect that presented the current content hash
	// renders once and transmits nothing.
	if err := c.refresh(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.signal:
			if err := c.refresh(ctx); err != nil {
				return err
			}
		}
	}
}
