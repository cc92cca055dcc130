// Package live pushes re-rendered HTML fragments to open browser
// connections, transmitting only when the rendered content actually
// changed.
package live

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// View is something a connection can subscribe to. Render returns the
// current HTML for the view; it is called once per refresh signal per
// connection, so it must be cheap and safe to call concurrently.
type View interface {
	Name() string
	Render(ctx context.Context) (string, error)
}

// CloseHooker is an optional View extension. CloseHook fires exactly once
// per connection when that connection closes — the place to drop per-
// connection shared state such as a presence cursor.
type CloseHooker interface {
	CloseHook(connID string)
}

// ContentHash identifies rendered output. A cryptographic digest, because
// "did anything change" is decided solely by comparing hashes: a
// collision would silently suppress a real update.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
