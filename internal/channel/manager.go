// ABOUTME: Owns the transport connection and the three channel roles: room, lobby, conversation.
// ABOUTME: At most one conversation subscription is ever active; leave always precedes the next join.

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/model"
)

// Wire event names on the conversation and lobby topics.
const (
	eventMessageBroadcast    = "shout"
	eventMessagesSeen        = "messages:seen"
	eventConversationCreated = "conversation:created"
)

// Manager owns channel subscriptions against one transport connection.
// Join and leave failures are logged, never escalated: a dead subscription
// degrades the widget, it does not break it.
type Manager struct {
	transport Transport
	sink      hostbridge.Sink
	accountID string
	logger    *slog.Logger

	mu                sync.Mutex
	lobbyTopic        string
	conversationTopic string
}

// NewManager creates a channel manager. Pass nil logger for default.
func NewManager(transport Transport, sink hostbridge.Sink, accountID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: transport,
		sink:      sink,
		accountID: accountID,
		logger:    logger.With("component", "channel"),
	}
}

// Connect establishes the transport connection. Called once at startup.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}
	return nil
}

// JoinRoom subscribes to the account's availability room and wires its
// presence syncs into onSync.
func (m *Manager) JoinRoom(ctx context.Context, onSync func(model.PresenceState)) {
	topic := "room:" + m.accountID
	m.transport.OnPresenceSync(topic, onSync)
	if err := m.transport.Join(ctx, topic, nil); err != nil {
		m.logger.Warn("failed to join availability room", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("joined availability room", "topic", topic)
}

// JoinLobby subscribes to the customer-keyed lobby, which exists only to
// learn that a conversation has just been created.
func (m *Manager) JoinLobby(ctx context.Context, customerID string, onCreated func()) {
	topic := "conversation:lobby:" + customerID

	m.mu.Lock()
	m.lobbyTopic = topic
	m.mu.Unlock()

	m.transport.OnEvent(topic, eventConversationCreated, func(json.RawMessage) {
		onCreated()
	})
	if err := m.transport.Join(ctx, topic, map[string]any{"customer_id": customerID}); err != nil {
		m.logger.Warn("failed to join lobby", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("joined lobby", "topic", topic)
}

// JoinConversation subscribes to a conversation's realtime channel with the
// customer id as auth context. Any previously joined conversation channel is
// left first, and an active lobby subscription is released: a conversation
// now exists, so the lobby's purpose is served. Emits conversation:join to
// the host page on success.
func (m *Manager) JoinConversation(ctx context.Context, conversationID, customerID string, onMessage func(model.Message)) {
	topic := "conversation:" + conversationID

	m.mu.Lock()
	previous := m.conversationTopic
	lobby := m.lobbyTopic
	m.conversationTopic = topic
	m.lobbyTopic = ""
	m.mu.Unlock()

	if previous != "" && previous != topic {
		if err := m.transport.Leave(ctx, previous); err != nil {
			m.logger.Warn("failed to leave previous conversation", "topic", previous, "error", err)
		}
	}
	if lobby != "" {
		if err := m.transport.Leave(ctx, lobby); err != nil {
			m.logger.Warn("failed to leave lobby", "topic", lobby, "error", err)
		}
	}

	m.transport.OnEvent(topic, eventMessageBroadcast, func(payload json.RawMessage) {
		var msg model.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			m.logger.Warn("dropping undecodable message broadcast", "topic", topic, "error", err)
			return
		}
		onMessage(msg)
	})

	params := map[string]any{"customer_id": customerID}
	if err := m.transport.Join(ctx, topic, params); err != nil {
		m.logger.Warn("failed to join conversation", "topic", topic, "error", err)
		return
	}

	m.logger.Debug("joined conversation", "topic", topic)
	m.sink.Emit(hostbridge.ConversationJoined(conversationID, customerID))
}

// PushMessage broadcasts a message on the active conversation channel.
func (m *Manager) PushMessage(msg model.Message) error {
	topic := m.activeConversation()
	if topic == "" {
		return fmt.Errorf("no active conversation channel")
	}
	return m.transport.Push(topic, eventMessageBroadcast, msg)
}

// PushSeen acknowledges that all messages have been seen.
func (m *Manager) PushSeen() error {
	topic := m.activeConversation()
	if topic == "" {
		return fmt.Errorf("no active conversation channel")
	}
	return m.transport.Push(topic, eventMessagesSeen, struct{}{})
}

// HasConversation reports whether a conversation channel is active.
func (m *Manager) HasConversation() bool {
	return m.activeConversation() != ""
}

// Close releases the active subscriptions and tears down the transport.
// Leave failures are logged only; nothing here blocks teardown.
func (m *Manager) Close() error {
	m.mu.Lock()
	conversation := m.conversationTopic
	lobby := m.lobbyTopic
	m.conversationTopic = ""
	m.lobbyTopic = ""
	m.mu.Unlock()

	ctx := context.Background()
	for _, topic := range []string{conversation, lobby} {
		if topic == "" {
			continue
		}
		if err := m.transport.Leave(ctx, topic); err != nil {
			m.logger.Warn("failed to leave channel during teardown", "topic", topic, "error", err)
		}
	}
	return m.transport.Close()
}

func (m *Manager) activeConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationTopic
}
