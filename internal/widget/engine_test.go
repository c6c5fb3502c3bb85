// ABOUTME: End-to-end engine tests over fake backend, channels, and sink.
// ABOUTME: Covers first visits, lobby handoff, optimistic send collapse, and seen propagation.

package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/widgetsync/internal/api"
	"github.com/driftchat/widgetsync/internal/config"
	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/model"
)

const knownCustomerID = "b2f9f30e-15ab-4b42-9a5c-50a2f1f7a0d1"

func ptr[T any](v T) *T { return &v }

type fakeBackend struct {
	mu sync.Mutex

	exists        bool
	conversations []model.Conversation

	// When set, CreateConversation signals entry and blocks until the gate
	// closes, letting tests hold a send in flight.
	createEntered chan struct{}
	createGate    chan struct{}

	createdCustomers     int
	createdConversations int
	updateCalls          int
}

func (f *fakeBackend) CheckCustomerExists(ctx context.Context, customerID string) (bool, error) {
	return f.exists, nil
}

func (f *fakeBackend) FindCustomerByExternalID(ctx context.Context, externalID string, filters api.LookupFilters) (*model.Customer, error) {
	return nil, nil
}

func (f *fakeBackend) FetchCustomerConversations(ctx context.Context, customerID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations, nil
}

func (f *fakeBackend) CreateCustomer(ctx context.Context, meta model.CustomerMetadata) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCustomers++
	return &model.Customer{ID: "cus-created"}, nil
}

func (f *fakeBackend) UpdateCustomer(ctx context.Context, customerID string, meta model.CustomerMetadata) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	return &model.Customer{ID: customerID}, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, customerID string) (*model.Conversation, error) {
	if f.createEntered != nil {
		f.createEntered <- struct{}{}
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdConversations++
	return &model.Conversation{ID: "conv-created", CustomerID: customerID}, nil
}

func (f *fakeBackend) setConversations(conversations []model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = conversations
}

type fakeChannels struct {
	mu sync.Mutex

	connected      bool
	lobbyOnCreated func()
	joined         []string
	onMessage      func(model.Message)
	pushed         []model.Message
	seenPushes     int
	closed         bool
}

func (f *fakeChannels) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeChannels) JoinRoom(ctx context.Context, onSync func(model.PresenceState)) {}

func (f *fakeChannels) JoinLobby(ctx context.Context, customerID string, onCreated func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lobbyOnCreated = onCreated
}

func (f *fakeChannels) JoinConversation(ctx context.Context, conversationID, customerID string, onMessage func(model.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, conversationID)
	f.onMessage = onMessage
}

func (f *fakeChannels) PushMessage(msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, msg)
	return nil
}

func (f *fakeChannels) PushSeen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenPushes++
	return nil
}

func (f *fakeChannels) Close() error {
	f.closed = true
	return nil
}

func (f *fakeChannels) lastPushed() model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushed[len(f.pushed)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []hostbridge.Event
}

func (s *recordingSink) Emit(e hostbridge.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds() []hostbridge.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]hostbridge.EventKind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (s *recordingSink) count(kind hostbridge.EventKind) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	engine   *Engine
	backend  *fakeBackend
	channels *fakeChannels
	sink     *recordingSink
}

func newFixture(t *testing.T, greeting string) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.AccountID = "acct-1"
	cfg.Greeting = greeting
	cfg.Engine.LobbyRefetchDelay = 5 * time.Millisecond

	f := &fixture{
		backend:  &fakeBackend{},
		channels: &fakeChannels{},
		sink:     &recordingSink{},
	}
	f.engine = New(cfg, f.backend, f.channels, f.sink, nil)
	return f
}

func agentMessage(id, body string, at time.Time) model.Message {
	return model.Message{
		ID:        &id,
		Body:      body,
		UserID:    ptr(7),
		CreatedAt: &at,
	}
}

func TestStart_FirstVisitShowsGreetingOnly(t *testing.T) {
	f := newFixture(t, "Hi there!")

	require.NoError(t, f.engine.Start(context.Background(), ""))

	assert.True(t, f.channels.connected)
	assert.Empty(t, f.engine.CustomerID())
	assert.Empty(t, f.engine.ConversationID())

	msgs := f.engine.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi there!", msgs[0].Body)
	assert.Equal(t, model.MessageTypeBot, msgs[0].Type)

	assert.Equal(t, 1, f.sink.count(hostbridge.EventChatLoaded))
}

func TestStart_ReturningCustomerJoinsNewestConversation(t *testing.T) {
	f := newFixture(t, "")
	f.backend.exists = true
	f.backend.conversations = []model.Conversation{
		{ID: "conv-1", CustomerID: knownCustomerID, Messages: []model.Message{
			agentMessage("m1", "welcome back", time.Now()),
		}},
	}

	require.NoError(t, f.engine.Start(context.Background(), knownCustomerID))

	assert.Equal(t, knownCustomerID, f.engine.CustomerID())
	assert.Equal(t, "conv-1", f.engine.ConversationID())
	assert.Equal(t, []string{"conv-1"}, f.channels.joined)
}

func TestLobby_CreatedPushActivatesConversation(t *testing.T) {
	f := newFixture(t, "Hi!")
	f.backend.exists = true

	require.NoError(t, f.engine.Start(context.Background(), knownCustomerID))
	require.Empty(t, f.engine.ConversationID())
	require.NotNil(t, f.channels.lobbyOnCreated)

	// An agent opens a conversation for us; the backend row becomes
	// queryable shortly after the push.
	f.backend.setConversations([]model.Conversation{{ID: "conv-new", CustomerID: knownCustomerID}})
	f.channels.lobbyOnCreated()

	assert.Eventually(t, func() bool {
		return f.engine.ConversationID() == "conv-new"
	}, time.Second, time.Millisecond, "debounced re-fetch should land the new conversation")
}

func TestSendMessage_FirstSendCreatesCustomerAndConversation(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.SendMessage(context.Background(), "hello?", nil))

	assert.Equal(t, 1, f.backend.createdCustomers)
	assert.Equal(t, 1, f.backend.createdConversations)
	assert.Equal(t, "cus-created", f.engine.CustomerID())
	assert.Equal(t, "conv-created", f.engine.ConversationID())
	assert.Equal(t, 1, f.sink.count(hostbridge.EventCustomerCreated))
	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessageSent))

	msgs := f.engine.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsConfirmed())
	assert.NotNil(t, msgs[0].SentAt)

	require.Len(t, f.channels.pushed, 1)
	assert.Equal(t, "cus-created", *f.channels.pushed[0].CustomerID)
}

func TestSendMessage_ServerEchoCollapsesInPlace(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hello?", nil))
	require.NotNil(t, f.channels.onMessage)

	echo := f.channels.lastPushed()
	echo.ID = ptr("msg-1")
	echo.CreatedAt = echo.SentAt
	f.channels.onMessage(echo)

	msgs := f.engine.Messages()
	require.Len(t, msgs, 1, "echo collapses into the optimistic entry, never appends")
	assert.True(t, msgs[0].IsConfirmed())
	assert.Equal(t, "hello?", msgs[0].Body)
}

func TestSendMessage_SecondSendRejectedWhileFirstInFlight(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	f.backend.createEntered = make(chan struct{})
	f.backend.createGate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.engine.SendMessage(context.Background(), "first", nil) }()

	select {
	case <-f.backend.createEntered:
	case <-time.After(time.Second):
		t.Fatal("first send never reached the backend")
	}

	// The first send is mid round-trip; a second send must be a no-op.
	require.NoError(t, f.engine.SendMessage(context.Background(), "second", nil))

	close(f.backend.createGate)
	require.NoError(t, <-done)

	msgs := f.engine.Messages()
	require.Len(t, msgs, 1, "the rejected draft must not enter the timeline")
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, 1, f.backend.createdConversations)
	require.Len(t, f.channels.pushed, 1)
}

func TestSendMessage_BlankDraftIsIgnored(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.SendMessage(context.Background(), "   \n", nil))

	assert.Empty(t, f.engine.Messages())
	assert.Zero(t, f.backend.createdCustomers)
}

func TestSendMessage_AttachmentsOnlyIsSendable(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.SendMessage(context.Background(), "", []string{"file-1"}))

	require.Len(t, f.channels.pushed, 1)
	assert.Equal(t, []string{"file-1"}, f.channels.pushed[0].FileIDs)
}

func TestSendMessage_TriggerPhraseFlipsGameMode(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.SendMessage(context.Background(), "/play", nil))

	assert.True(t, f.engine.GameMode())
	assert.Empty(t, f.engine.Messages(), "the trigger phrase is never sent")
	assert.Empty(t, f.channels.pushed)
}

func TestInbound_RealMessageClearsGameMode(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hi", nil))
	require.NoError(t, f.engine.SendMessage(context.Background(), "/play", nil))
	require.True(t, f.engine.GameMode())

	f.channels.onMessage(agentMessage("m1", "an agent replies", time.Now()))

	assert.False(t, f.engine.GameMode())
}

func TestInbound_ClosedWidgetLeavesMessageUnseen(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hi", nil))

	f.channels.onMessage(agentMessage("m1", "are you there?", time.Now()))

	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessagesUnseen))
	assert.Zero(t, f.channels.seenPushes)

	msgs := f.engine.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsUnseen())
}

func TestInbound_OpenVisibleWidgetMarksSeenImmediately(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hi", nil))
	f.engine.Toggle(true)

	f.channels.onMessage(agentMessage("m1", "hello!", time.Now()))

	assert.Equal(t, 1, f.channels.seenPushes)
	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessagesSeen))
	assert.Zero(t, f.sink.count(hostbridge.EventMessagesUnseen))
}

func TestToggle_OpeningMarksPendingMessagesSeen(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hi", nil))
	f.channels.onMessage(agentMessage("m1", "ping", time.Now()))
	require.Zero(t, f.channels.seenPushes)

	f.engine.Toggle(true)

	assert.Equal(t, 1, f.channels.seenPushes)
	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessagesSeen))
	assert.Equal(t, 1, f.sink.count(hostbridge.EventOpen))

	// A second open changes nothing.
	f.engine.Toggle(false)
	f.engine.Toggle(true)
	assert.Equal(t, 1, f.channels.seenPushes)
	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessagesSeen))
}

func TestSetPageVisible_TransitionWithOpenWidgetMarksSeen(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.NoError(t, f.engine.SendMessage(context.Background(), "hi", nil))

	// Tab goes to the background, widget stays open, a message arrives.
	f.engine.SetPageVisible(false)
	f.engine.Toggle(true)
	f.sink.mu.Lock()
	f.sink.events = nil
	f.sink.mu.Unlock()
	f.channels.onMessage(agentMessage("m1", "still there?", time.Now()))
	require.Zero(t, f.channels.seenPushes)

	f.engine.SetPageVisible(true)

	assert.Equal(t, 1, f.channels.seenPushes)
	assert.Equal(t, 1, f.sink.count(hostbridge.EventMessagesSeen))
}

func TestHandleCommand_CustomerUpdateReestablishesSession(t *testing.T) {
	f := newFixture(t, "Hi!")
	require.NoError(t, f.engine.Start(context.Background(), ""))
	require.Empty(t, f.engine.CustomerID())

	f.backend.exists = true
	f.backend.setConversations([]model.Conversation{{ID: "conv-9", CustomerID: knownCustomerID}})

	err := f.engine.HandleCommand(context.Background(), hostbridge.CustomerUpdate{
		CustomerID: knownCustomerID,
		Metadata:   model.CustomerMetadata{Email: "ada@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, knownCustomerID, f.engine.CustomerID())
	assert.Equal(t, "conv-9", f.engine.ConversationID())
}

func TestHandleCommand_ToggleRoutesThroughEngine(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.HandleCommand(context.Background(), hostbridge.Toggle{Open: true}))
	assert.Equal(t, 1, f.sink.count(hostbridge.EventOpen))

	require.NoError(t, f.engine.HandleCommand(context.Background(), hostbridge.Toggle{Open: false}))
	assert.Equal(t, 1, f.sink.count(hostbridge.EventClose))
}

func TestHandleRawCommand_UnknownIsDropped(t *testing.T) {
	f := newFixture(t, "")

	err := f.engine.HandleRawCommand(context.Background(), []byte(`{"event":"papercups:levitate","payload":{}}`))

	assert.ErrorIs(t, err, hostbridge.ErrUnknownCommand)
}

func TestClose_IsIdempotent(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.Start(context.Background(), ""))

	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close())
	assert.True(t, f.channels.closed)
}
