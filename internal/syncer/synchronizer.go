// ABOUTME: Establishes the active conversation: identity resolution, discovery, channel handoff.
// ABOUTME: Owns the authoritative decision of which customer/conversation is active.

package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/model"
	"github.com/driftchat/widgetsync/internal/timeline"
)

// Identity resolves the active customer id.
type Identity interface {
	Resolve(ctx context.Context, cachedID string, meta model.CustomerMetadata) (string, error)
}

// Backend is the subset of the API the synchronizer needs.
type Backend interface {
	FetchCustomerConversations(ctx context.Context, customerID string) ([]model.Conversation, error)
	UpdateCustomer(ctx context.Context, customerID string, meta model.CustomerMetadata) (*model.Customer, error)
}

// Channels is the subset of channel management the synchronizer drives.
type Channels interface {
	JoinLobby(ctx context.Context, customerID string, onCreated func())
	JoinConversation(ctx context.Context, conversationID, customerID string, onMessage func(model.Message))
}

// Session is the outcome of initialization. Zero-value fields mean no
// customer or conversation is active yet.
type Session struct {
	CustomerID     string
	ConversationID string
}

// Deps wires a Synchronizer. OnMessage and OnConversation are required;
// Schedule and RunExclusive default to time.AfterFunc and inline execution.
type Deps struct {
	Identity   Identity
	Backend    Backend
	Channels   Channels
	Reconciler *timeline.Reconciler
	Sink       hostbridge.Sink

	Greeting     string
	RefetchDelay time.Duration

	// OnMessage receives inbound conversation broadcasts.
	OnMessage func(model.Message)

	// OnConversation is told whenever a conversation becomes active,
	// including via the delayed lobby re-fetch.
	OnConversation func(conversationID string)

	// Schedule delays a function call; tests substitute a synchronous stub.
	Schedule func(d time.Duration, fn func())

	// RunExclusive re-enters the engine's dispatch loop for work triggered
	// by timers, keeping all state mutation serialized.
	RunExclusive func(fn func())

	Logger *slog.Logger
}

// Synchronizer establishes the active conversation and its message history,
// then hands off to the channel layer for live updates.
type Synchronizer struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a synchronizer from its dependencies.
func New(deps Deps) *Synchronizer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Schedule == nil {
		deps.Schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if deps.RunExclusive == nil {
		deps.RunExclusive = func(fn func()) { fn() }
	}
	return &Synchronizer{
		deps:   deps,
		logger: logger.With("component", "syncer"),
	}
}

// Initialize resolves identity and establishes the conversation state.
// Backend failures are logged, never fatal: the timeline falls back to the
// greeting-only state and the widget stays usable.
func (s *Synchronizer) Initialize(ctx context.Context, cachedID string, meta model.CustomerMetadata) Session {
	customerID, err := s.deps.Identity.Resolve(ctx, cachedID, meta)
	if err != nil {
		s.logger.Warn("identity resolution failed, treating visitor as unseen", "error", err)
		customerID = ""
	}

	if customerID == "" {
		// No customer id to key a lobby on; greeting only, no channels.
		s.deps.Reconciler.Reset(s.deps.Greeting, nil)
		return Session{}
	}

	conversationID := s.syncConversations(ctx, customerID, meta, true)
	return Session{CustomerID: customerID, ConversationID: conversationID}
}

// syncConversations fetches the customer's conversations and installs the
// newest one, or falls back to the greeting-only timeline plus (optionally)
// a lobby subscription. Returns the active conversation id, if any.
func (s *Synchronizer) syncConversations(ctx context.Context, customerID string, meta model.CustomerMetadata, allowLobby bool) string {
	conversations, err := s.deps.Backend.FetchCustomerConversations(ctx, customerID)
	if err != nil {
		s.logger.Warn("conversation fetch failed, falling back to greeting",
			"customer_id", customerID,
			"error", err)
		s.deps.Reconciler.Reset(s.deps.Greeting, nil)
		return ""
	}

	if len(conversations) == 0 {
		s.deps.Reconciler.Reset(s.deps.Greeting, nil)
		if allowLobby {
			s.deps.Channels.JoinLobby(ctx, customerID, func() {
				s.scheduleRefetch(customerID, meta)
			})
		}
		return ""
	}

	// Backend order is most-recent-first; the newest conversation wins.
	conversation := conversations[0]
	s.deps.Reconciler.Reset(s.deps.Greeting, conversation.Messages)
	s.deps.Channels.JoinConversation(ctx, conversation.ID, customerID, s.deps.OnMessage)

	// Propagate the (possibly corrected) identity to the backend.
	if _, err := s.deps.Backend.UpdateCustomer(ctx, customerID, meta); err != nil {
		s.logger.Warn("failed to propagate identity", "customer_id", customerID, "error", err)
	}

	if unseen := s.deps.Reconciler.OldestUnseenAgentMessage(); unseen != nil {
		s.deps.Sink.Emit(hostbridge.MessagesUnseen(*unseen))
	}

	if s.deps.OnConversation != nil {
		s.deps.OnConversation(conversation.ID)
	}
	return conversation.ID
}

// scheduleRefetch re-runs the conversation fetch after the fixed debounce
// delay. The delay tolerates backend read-after-write lag: the creation push
// can arrive before the row is queryable, so an immediate retry would race.
func (s *Synchronizer) scheduleRefetch(customerID string, meta model.CustomerMetadata) {
	s.logger.Debug("conversation created, scheduling re-fetch",
		"customer_id", customerID,
		"delay", s.deps.RefetchDelay)

	s.deps.Schedule(s.deps.RefetchDelay, func() {
		s.deps.RunExclusive(func() {
			// The lobby subscription is still active; no second lobby join.
			s.syncConversations(context.Background(), customerID, meta, false)
		})
	})
}
