// ABOUTME: Transport abstraction for the realtime push connection.
// ABOUTME: Named topics with join/leave lifecycle, fire-and-forget push, and a presence extension.

package channel

import (
	"context"
	"encoding/json"

	"github.com/driftchat/widgetsync/internal/model"
)

// Transport is a persistent connection supporting named topic subscriptions.
// Joins and leaves resolve to an asynchronous ok/error outcome; Push is
// fire-and-forget. One production implementation exists (the phoenix
// subpackage); tests substitute fakes.
type Transport interface {
	// Connect establishes the underlying connection. Called once at
	// startup; the connection is never recreated.
	Connect(ctx context.Context) error

	// Join subscribes to a topic with the given auth params.
	Join(ctx context.Context, topic string, params map[string]any) error

	// Leave releases a topic subscription.
	Leave(ctx context.Context, topic string) error

	// Push sends a named event on a topic without waiting for a reply.
	Push(topic, event string, payload any) error

	// OnEvent registers the handler for inbound events on a topic, replacing
	// any previous registration for the same topic/event pair.
	OnEvent(topic, event string, fn func(payload json.RawMessage))

	// OnPresenceSync registers a full-snapshot presence callback for a topic.
	OnPresenceSync(topic string, fn func(state model.PresenceState))

	// Close tears the connection down. Must not block on in-flight work.
	Close() error
}
