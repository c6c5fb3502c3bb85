// ABOUTME: The widget engine: wires identity, sync, channels, timeline, presence and visibility.
// ABOUTME: All state mutation is serialized through one lock, the engine's logical event loop.

package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/driftchat/widgetsync/internal/api"
	"github.com/driftchat/widgetsync/internal/channel"
	"github.com/driftchat/widgetsync/internal/config"
	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/identity"
	"github.com/driftchat/widgetsync/internal/model"
	"github.com/driftchat/widgetsync/internal/presence"
	"github.com/driftchat/widgetsync/internal/syncer"
	"github.com/driftchat/widgetsync/internal/timeline"
	"github.com/driftchat/widgetsync/internal/visibility"
)

// Channels is what the engine needs from the channel layer.
// *channel.Manager is the production implementation.
type Channels interface {
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, onSync func(model.PresenceState))
	JoinLobby(ctx context.Context, customerID string, onCreated func())
	JoinConversation(ctx context.Context, conversationID, customerID string, onMessage func(model.Message))
	PushMessage(msg model.Message) error
	PushSeen() error
	Close() error
}

var _ Channels = (*channel.Manager)(nil)

// Engine is the client-side synchronization engine embedded in the widget.
//
// Concurrency model: cooperative and effectively single-threaded. Every
// entry point — user actions, host commands, inbound channel events, the
// delayed lobby re-fetch — serializes on one lock, which is what makes the
// reconciler's in-place collapse safe without finer-grained coordination.
// The one exception is a send's network round-trip, which runs unlocked and
// is guarded by the in-flight flag instead.
type Engine struct {
	cfg      *config.Config
	backend  api.Backend
	channels Channels
	sink     hostbridge.Sink
	logger   *slog.Logger

	reconciler *timeline.Reconciler
	gate       *visibility.Gate
	tracker    *presence.Tracker
	sync       *syncer.Synchronizer

	// OnScrollToEnd, when set, asks the embedding view to scroll to the
	// newest entry. Presentation is external; this is only a request.
	// The callback must not call back into the engine.
	OnScrollToEnd func()

	mu                   sync.Mutex
	meta                 model.CustomerMetadata
	customerID           string
	conversationID       string
	sendInFlight         bool
	gameMode             bool
	displayNotifications bool
	plan                 string
	closed               bool
}

// New creates an engine from its collaborators. Pass nil logger for default.
func New(cfg *config.Config, backend api.Backend, channels Channels, sink hostbridge.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "widget")

	e := &Engine{
		cfg:        cfg,
		backend:    backend,
		channels:   channels,
		sink:       sink,
		logger:     logger,
		reconciler: timeline.NewReconciler(logger),
		gate:       visibility.NewGate(),
		tracker:    presence.NewTracker(logger),
		meta: model.CustomerMetadata{
			Name:       cfg.Customer.Name,
			Email:      cfg.Customer.Email,
			ExternalID: cfg.Customer.ExternalID,
			Host:       cfg.Customer.Host,
		},
	}

	resolver := identity.NewResolver(backend, sink, logger)
	e.sync = syncer.New(syncer.Deps{
		Identity:     resolver,
		Backend:      backend,
		Channels:     channels,
		Reconciler:   e.reconciler,
		Sink:         sink,
		Greeting:     cfg.Greeting,
		RefetchDelay: cfg.Engine.LobbyRefetchDelay,
		OnMessage:    e.handleInbound,
		// Runs inside an exclusive section; assign without re-locking.
		OnConversation: func(id string) { e.conversationID = id },
		RunExclusive: func(fn func()) {
			e.mu.Lock()
			defer e.mu.Unlock()
			fn()
		},
		Logger: logger,
	})

	return e
}

// Start connects the transport, joins the availability room, and establishes
// the conversation state from the host-cached customer id. Emits chat:loaded
// once the widget is usable.
func (e *Engine) Start(ctx context.Context, cachedCustomerID string) error {
	if err := e.channels.Connect(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	e.channels.JoinRoom(ctx, e.tracker.Sync)

	e.mu.Lock()
	session := e.sync.Initialize(ctx, cachedCustomerID, e.meta)
	e.customerID = session.CustomerID
	if session.ConversationID != "" {
		e.conversationID = session.ConversationID
	}
	e.mu.Unlock()

	e.sink.Emit(hostbridge.ChatLoaded())
	e.logger.Info("engine started",
		"customer_id", session.CustomerID,
		"conversation_id", session.ConversationID)
	return nil
}

// SendMessage performs an optimistic send. The draft is rejected (a no-op)
// when a send is already in flight or it has neither non-whitespace text nor
// attachments. The configured game-mode trigger phrase is never sent: it
// flips a local flag instead.
//
// The lock is released for the network round-trip, so the in-flight guard is
// what rejects a second send while the first is still establishing its
// customer and conversation. When that establishment fails, the error
// propagates and the optimistic entry stays unconfirmed.
func (e *Engine) SendMessage(ctx context.Context, body string, fileIDs []string) error {
	e.mu.Lock()
	if e.sendInFlight {
		e.mu.Unlock()
		return nil
	}

	draft := model.Message{Body: body, FileIDs: fileIDs}
	if draft.IsEmpty() {
		e.mu.Unlock()
		return nil
	}

	if strings.TrimSpace(body) == e.cfg.Engine.GameModeTrigger {
		e.gameMode = true
		e.logger.Debug("game mode enabled")
		e.mu.Unlock()
		return nil
	}

	e.sendInFlight = true

	now := time.Now()
	draft.SentAt = &now
	draft.Type = model.MessageTypeCustomer
	if e.customerID != "" {
		id := e.customerID
		draft.CustomerID = &id
	}

	e.reconciler.AppendOptimistic(draft)
	e.requestScroll()
	needConversation := e.conversationID == ""
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.sendInFlight = false
		e.mu.Unlock()
	}()

	if needConversation {
		if err := e.establishConversation(ctx); err != nil {
			return err
		}
		e.mu.Lock()
		id := e.customerID
		draft.CustomerID = &id
		e.mu.Unlock()
	}

	if err := e.channels.PushMessage(draft); err != nil {
		e.logger.Warn("failed to push message", "error", err)
	}
	e.sink.Emit(hostbridge.MessageSent(draft))
	return nil
}

// establishConversation creates the customer (if needed) and a conversation,
// then joins its channel. Runs without the lock: backend round-trips must not
// block inbound message handling.
func (e *Engine) establishConversation(ctx context.Context) error {
	e.mu.Lock()
	customerID := e.customerID
	meta := e.meta
	e.mu.Unlock()
	hadCustomer := customerID != ""

	customer, err := api.UpdateOrCreateCustomer(ctx, e.backend, customerID, meta)
	if err != nil {
		return fmt.Errorf("establishing customer: %w", err)
	}

	e.mu.Lock()
	e.customerID = customer.ID
	e.mu.Unlock()
	if !hadCustomer {
		e.sink.Emit(hostbridge.CustomerCreated(customer.ID))
	}

	conversation, err := e.backend.CreateConversation(ctx, customer.ID)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	e.mu.Lock()
	e.conversationID = conversation.ID
	e.mu.Unlock()

	e.channels.JoinConversation(ctx, conversation.ID, customer.ID, e.handleInbound)
	return nil
}

// handleInbound reconciles a server-pushed message into the timeline and
// evaluates the seen-state rule. Invoked from transport goroutines.
func (e *Engine) handleInbound(msg model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A new real message supersedes the easter egg.
	e.gameMode = false

	collapsed := e.reconciler.Receive(msg)
	e.sink.Emit(hostbridge.MessageReceived(msg))
	e.requestScroll()

	if e.gate.SeenWorthy(msg) {
		e.markAllSeen()
	} else if !collapsed {
		e.sink.Emit(hostbridge.MessagesUnseen(msg))
	}
}

// markAllSeen stamps every unseen entry, acknowledges on the conversation
// channel, and notifies the host page. Entries already seen keep their
// earlier timestamp, so repeated invocations are no-ops. Caller holds the
// lock.
func (e *Engine) markAllSeen() {
	if !e.reconciler.MarkAllSeen(time.Now()) {
		return
	}
	if err := e.channels.PushSeen(); err != nil {
		e.logger.Warn("failed to push seen acknowledgment", "error", err)
	}
	e.sink.Emit(hostbridge.MessagesSeen())
}

// Toggle opens or closes the widget. Opening re-evaluates the seen rule:
// unseen agent messages in a newly opened, visible widget become seen.
func (e *Engine) Toggle(open bool) {
	e.mu.Lock()
	e.gate.SetWidgetOpen(open)
	if open && e.gate.AnySeenWorthy(e.reconciler.Messages()) {
		e.markAllSeen()
	}
	e.mu.Unlock()

	if open {
		e.sink.Emit(hostbridge.WidgetOpened())
	} else {
		e.sink.Emit(hostbridge.WidgetClosed())
	}
}

// SetPageVisible records a page-visibility change. On the hidden-to-visible
// transition, an open widget holding seen-worthy messages triggers
// mark-all-seen.
func (e *Engine) SetPageVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	becameVisible := e.gate.SetPageVisible(visible)
	if becameVisible && e.gate.WidgetOpen() && e.gate.AnySeenWorthy(e.reconciler.Messages()) {
		e.markAllSeen()
	}
}

// HandleCommand dispatches one host-page command. The switch is exhaustive
// over the closed command union.
func (e *Engine) HandleCommand(ctx context.Context, cmd hostbridge.Command) error {
	switch c := cmd.(type) {
	case hostbridge.CustomerUpdate:
		e.mu.Lock()
		defer e.mu.Unlock()
		e.meta = c.Metadata
		cached := c.CustomerID
		if cached == "" {
			cached = e.customerID
		}
		session := e.sync.Initialize(ctx, cached, e.meta)
		e.customerID = session.CustomerID
		if session.ConversationID != "" {
			e.conversationID = session.ConversationID
		}
		return nil

	case hostbridge.NotificationsDisplay:
		e.mu.Lock()
		e.displayNotifications = c.Enabled
		e.mu.Unlock()
		return nil

	case hostbridge.Toggle:
		e.Toggle(c.Open)
		return nil

	case hostbridge.Plan:
		e.mu.Lock()
		e.plan = c.Plan
		e.mu.Unlock()
		return nil

	case hostbridge.Ping:
		return nil

	default:
		return fmt.Errorf("%w: %T", hostbridge.ErrUnknownCommand, cmd)
	}
}

// HandleRawCommand parses and dispatches a raw {event, payload} command.
// Unknown commands are logged and dropped, per the bridge contract.
func (e *Engine) HandleRawCommand(ctx context.Context, raw []byte) error {
	cmd, err := hostbridge.ParseCommand(raw)
	if err != nil {
		e.logger.Warn("dropping host command", "error", err)
		return err
	}
	return e.HandleCommand(ctx, cmd)
}

// Messages returns a copy of the current timeline.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconciler.Messages()
}

// AvailableAgents returns the agents from the most recent presence sync.
func (e *Engine) AvailableAgents() []model.AgentPresenceInfo {
	return e.tracker.Available()
}

// GameMode reports whether the easter-egg flag is set.
func (e *Engine) GameMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameMode
}

// CustomerID returns the active customer id, if any.
func (e *Engine) CustomerID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.customerID
}

// ConversationID returns the active conversation id, if any.
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversationID
}

// Close releases channel subscriptions and the transport. Safe to call
// multiple times; never blocks on in-flight work.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.channels.Close()
}

// requestScroll asks the view to scroll to the newest entry. Caller holds
// the lock; the callback must tolerate that.
func (e *Engine) requestScroll() {
	if e.OnScrollToEnd != nil {
		e.OnScrollToEnd()
	}
}
