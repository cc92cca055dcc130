package web

import (
	"context"
	"strings"

	"github.com/jmcleod/driftwood/arena"
	"github.com/jmcleod/driftwood/live"
)

// counterView renders the shared counter fragment. Identical state
// renders to identical bytes, which is what lets the engine suppress
// duplicate transmissions by content hash.
type counterView struct {
	state *arena.Arena
}

var _ live.View = counterView{}

func (v counterView) Name() string { return "counter" }

func (v counterView) Render(_ context.Context) (string, error) {
	var b strings.Builder
	err := templates.ExecuteTemplate(&b, "counter.html", map[string]any{
		"Count": v.state.Counter(),
	})
	return b.String(), err
}

// presenceView renders the cursor list. Its close hook removes the
// connection's cursor so a vanished client does not linger on screen.
type presenceView struct {
	state *arena.Arena
}

var (
	_ live.View        = presenceView{}
	_ live.CloseHooker = presenceView{}
)

func (v presenceView) Name() string { return "presence" }

func (v presenceView) Render(_ context.Context) (string, error) {
	var b strings.Builder
	err := templates.ExecuteTemplate(&b, "presence.html", map[string]any{
		"Cursors": v.state.Cursors(),
	})
	return b.String(), err
}

func (v presenceView) CloseHook(connID string) {
	v.state.RemoveCursor(connID)
}
