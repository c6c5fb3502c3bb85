// ABOUTME: Outbound notification events sent to the embedding page.
// ABOUTME: Fire-and-forget, one-way; the concrete transport is a collaborator behind Sink.

package hostbridge

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/driftchat/widgetsync/internal/model"
)

// EventKind enumerates every notification the engine can emit to the host
// page. The set is closed: new kinds require a new constructor below.
type EventKind string

const (
	EventChatLoaded       EventKind = "chat:loaded"
	EventCustomerCreated  EventKind = "customer:created"
	EventCustomerUpdated  EventKind = "customer:updated"
	EventConversationJoin EventKind = "conversation:join"
	EventMessageSent      EventKind = "message:sent"
	EventMessageReceived  EventKind = "message:received"
	EventMessagesUnseen   EventKind = "messages:unseen"
	EventMessagesSeen     EventKind = "messages:seen"
	EventOpen             EventKind = "papercups:open"
	EventClose            EventKind = "papercups:close"
)

// Event is one outbound notification. Payload shape is fixed per kind by the
// constructors; Emit implementations should not need to inspect it.
type Event struct {
	Kind    EventKind `json:"event"`
	Payload any       `json:"payload,omitempty"`
}

// Sink receives outbound events. Implementations must not block the caller
// for long: emission happens on the engine's dispatch loop.
type Sink interface {
	Emit(Event)
}

// CustomerPayload identifies a customer in created/updated notifications.
type CustomerPayload struct {
	CustomerID string `json:"customerId"`
}

// ConversationJoinPayload announces the active conversation subscription.
type ConversationJoinPayload struct {
	ConversationID string `json:"conversationId"`
	CustomerID     string `json:"customerId"`
}

// UnseenPayload surfaces the single oldest unseen agent message.
type UnseenPayload struct {
	Message model.Message `json:"message"`
}

func ChatLoaded() Event   { return Event{Kind: EventChatLoaded} }
func WidgetOpened() Event { return Event{Kind: EventOpen, Payload: struct{}{}} }
func WidgetClosed() Event { return Event{Kind: EventClose, Payload: struct{}{}} }
func MessagesSeen() Event { return Event{Kind: EventMessagesSeen, Payload: struct{}{}} }

func MessageSent(m model.Message) Event {
	return Event{Kind: EventMessageSent, Payload: m}
}
func MessageReceived(m model.Message) Event {
	return Event{Kind: EventMessageReceived, Payload: m}
}
func MessagesUnseen(m model.Message) Event {
	return Event{Kind: EventMessagesUnseen, Payload: UnseenPayload{Message: m}}
}
func CustomerCreated(customerID string) Event {
	return Event{Kind: EventCustomerCreated, Payload: CustomerPayload{CustomerID: customerID}}
}
func CustomerUpdated(customerID string) Event {
	return Event{Kind: EventCustomerUpdated, Payload: CustomerPayload{CustomerID: customerID}}
}
func ConversationJoined(conversationID, customerID string) Event {
	return Event{Kind: EventConversationJoin, Payload: ConversationJoinPayload{
		ConversationID: conversationID,
		CustomerID:     customerID,
	}}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// WriterSink emits events as JSON lines. Used by the terminal client; a
// browser embedding would substitute a postMessage-style bridge here.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing one JSON object per event to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Emit writes the event. Encoding failures are swallowed: the notification
// channel is fire-and-forget by contract.
func (s *WriterSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	_ = enc.Encode(e)
}
