// ABOUTME: Phoenix-style socket transport over one gorilla/websocket connection.
// ABOUTME: Read/write pumps, heartbeat, ref-matched join/leave replies, topic event dispatch.

package phoenix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftchat/widgetsync/internal/model"
)

const (
	heartbeatInterval = 30 * time.Second
	replyTimeout      = 10 * time.Second
	outboundBuffer    = 64
	inboundBuffer     = 256
	writeWait         = 10 * time.Second
)

// Socket implements channel.Transport over a Phoenix-style websocket
// endpoint. One Socket is one connection: it is connected once at startup
// and never recreated.
type Socket struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	refSeq    uint64
	joinRefs  map[string]string                // topic -> join_ref
	pending   map[string]chan reply            // ref -> reply waiter
	handlers  map[string]func(json.RawMessage) // topic/event -> handler
	presences map[string]*presenceTopic        // topic -> presence state
	out       chan []byte
	events    chan func()
	done      chan struct{}
	closed    bool
}

// NewSocket creates a socket for the given websocket URL.
// Pass nil logger for default.
func NewSocket(url string, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		url:       url,
		dialer:    websocket.DefaultDialer,
		logger:    logger.With("component", "phoenix"),
		joinRefs:  make(map[string]string),
		pending:   make(map[string]chan reply),
		handlers:  make(map[string]func(json.RawMessage)),
		presences: make(map[string]*presenceTopic),
		out:       make(chan []byte, outboundBuffer),
		events:    make(chan func(), inboundBuffer),
		done:      make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read/write/heartbeat pumps.
func (s *Socket) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readPump()
	go s.writePump()
	go s.eventLoop()
	go s.heartbeat()

	s.logger.Debug("socket connected", "url", s.url)
	return nil
}

// Join subscribes to a topic and waits for the server's reply.
func (s *Socket) Join(ctx context.Context, topic string, params map[string]any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding join params: %w", err)
	}
	if params == nil {
		payload = json.RawMessage(`{}`)
	}

	ref := s.nextRef()
	s.mu.Lock()
	s.joinRefs[topic] = ref
	s.mu.Unlock()

	rep, err := s.request(ctx, frame{
		JoinRef: ref,
		Ref:     ref,
		Topic:   topic,
		Event:   eventJoin,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if rep.Status != "ok" {
		return fmt.Errorf("join %s rejected: %s", topic, rep.Status)
	}
	return nil
}

// Leave releases a topic subscription and waits for the server's reply.
func (s *Socket) Leave(ctx context.Context, topic string) error {
	s.mu.Lock()
	joinRef := s.joinRefs[topic]
	delete(s.joinRefs, topic)
	s.mu.Unlock()

	rep, err := s.request(ctx, frame{
		JoinRef: joinRef,
		Ref:     s.nextRef(),
		Topic:   topic,
		Event:   eventLeave,
	})
	if err != nil {
		return err
	}
	if rep.Status != "ok" {
		return fmt.Errorf("leave %s rejected: %s", topic, rep.Status)
	}
	return nil
}

// Push sends a named event on a topic without waiting for a reply.
func (s *Socket) Push(topic, event string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	s.mu.Lock()
	joinRef := s.joinRefs[topic]
	s.mu.Unlock()

	return s.enqueue(frame{
		JoinRef: joinRef,
		Ref:     s.nextRef(),
		Topic:   topic,
		Event:   event,
		Payload: encoded,
	})
}

// OnEvent registers the handler for inbound events on a topic, replacing any
// previous registration for the same topic/event pair. Rejoining a topic must
// never stack handlers: a message dispatched twice would re-enter the
// timeline as a duplicate entry.
func (s *Socket) OnEvent(topic, event string, fn func(json.RawMessage)) {
	key := topic + "/" + event
	s.mu.Lock()
	s.handlers[key] = fn
	s.mu.Unlock()
}

// OnPresenceSync registers a full-snapshot presence callback for a topic.
func (s *Socket) OnPresenceSync(topic string, fn func(model.PresenceState)) {
	s.mu.Lock()
	s.presences[topic] = newPresenceTopic(fn)
	s.mu.Unlock()
}

// Close shuts the socket down. Safe to call multiple times.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// request sends a frame and waits for its ref-matched phx_reply.
func (s *Socket) request(ctx context.Context, f frame) (reply, error) {
	waiter := make(chan reply, 1)
	s.mu.Lock()
	s.pending[f.Ref] = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, f.Ref)
		s.mu.Unlock()
	}()

	if err := s.enqueue(f); err != nil {
		return reply{}, err
	}

	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case rep := <-waiter:
		return rep, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-timer.C:
		return reply{}, fmt.Errorf("%s %s: no reply within %s", f.Event, f.Topic, replyTimeout)
	case <-s.done:
		return reply{}, fmt.Errorf("socket closed")
	}
}

// enqueue hands a frame to the write pump. A full outbound buffer drops the
// frame: pushes are fire-and-forget by contract, and blocking the engine's
// dispatch loop on a stalled socket would be worse.
func (s *Socket) enqueue(f frame) error {
	encoded, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	select {
	case s.out <- encoded:
		return nil
	case <-s.done:
		return fmt.Errorf("socket closed")
	default:
		s.logger.Warn("outbound buffer full, dropping frame",
			"topic", f.Topic,
			"event", f.Event)
		return fmt.Errorf("outbound buffer full")
	}
}

func (s *Socket) nextRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refSeq++
	return strconv.FormatUint(s.refSeq, 10)
}

// writePump serializes all writes onto the single connection.
func (s *Socket) writePump() {
	for {
		select {
		case data := <-s.out:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("write failed", "error", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// readPump decodes inbound frames and dispatches them.
func (s *Socket) readPump() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("read failed, socket dead until reload", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		s.dispatch(f)
	}
}

func (s *Socket) dispatch(f frame) {
	switch f.Event {
	case eventReply:
		var rep reply
		if err := json.Unmarshal(f.Payload, &rep); err != nil {
			s.logger.Warn("dropping undecodable reply", "topic", f.Topic, "error", err)
			return
		}
		s.mu.Lock()
		waiter := s.pending[f.Ref]
		s.mu.Unlock()
		if waiter != nil {
			waiter <- rep
		}

	case eventPresenceState:
		var entries map[string]presenceEntry
		if err := json.Unmarshal(f.Payload, &entries); err != nil {
			s.logger.Warn("dropping undecodable presence state", "topic", f.Topic, "error", err)
			return
		}
		s.mu.Lock()
		pt := s.presences[f.Topic]
		s.mu.Unlock()
		if pt != nil {
			pt.syncState(entries)
		}

	case eventPresenceDiff:
		var diff presenceDiff
		if err := json.Unmarshal(f.Payload, &diff); err != nil {
			s.logger.Warn("dropping undecodable presence diff", "topic", f.Topic, "error", err)
			return
		}
		s.mu.Lock()
		pt := s.presences[f.Topic]
		s.mu.Unlock()
		if pt != nil {
			pt.syncDiff(diff)
		}

	default:
		s.mu.Lock()
		fn := s.handlers[f.Topic+"/"+f.Event]
		s.mu.Unlock()
		if fn == nil {
			return
		}
		// Handlers run off the read pump so a blocked handler cannot stall
		// reply delivery. One loop keeps event order intact per connection.
		payload := f.Payload
		select {
		case s.events <- func() { fn(payload) }:
		default:
			s.logger.Warn("inbound event queue full, dropping event",
				"topic", f.Topic,
				"event", f.Event)
		}
	}
}

// eventLoop invokes topic event handlers in arrival order, decoupled from the
// read pump. Replies and presence frames bypass this loop: they must land
// even while a handler blocks.
func (s *Socket) eventLoop() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		}
	}
}

// heartbeat keeps the connection alive with periodic pings on the phoenix
// control topic.
func (s *Socket) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.enqueue(frame{
				Ref:     s.nextRef(),
				Topic:   topicPhoenix,
				Event:   eventHeartbeat,
				Payload: json.RawMessage(`{}`),
			})
		case <-s.done:
			return
		}
	}
}
