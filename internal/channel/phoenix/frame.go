// ABOUTME: Phoenix channel protocol frames in the V2 array serialization.
// ABOUTME: A frame is [join_ref, ref, topic, event, payload]; refs may be null.

package phoenix

import (
	"encoding/json"
	"fmt"
)

// Protocol event names.
const (
	eventJoin          = "phx_join"
	eventLeave         = "phx_leave"
	eventReply         = "phx_reply"
	eventHeartbeat     = "heartbeat"
	eventPresenceState = "presence_state"
	eventPresenceDiff  = "presence_diff"

	topicPhoenix = "phoenix"
)

// frame is one protocol message.
type frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// reply is the payload of a phx_reply frame.
type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// MarshalJSON encodes the frame as the five-element array the server expects.
func (f frame) MarshalJSON() ([]byte, error) {
	parts := []any{
		nullableRef(f.JoinRef),
		nullableRef(f.Ref),
		f.Topic,
		f.Event,
		f.Payload,
	}
	if f.Payload == nil {
		parts[4] = json.RawMessage(`{}`)
	}
	return json.Marshal(parts)
}

// UnmarshalJSON decodes a five-element array frame.
func (f *frame) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("frame has %d elements, want 5", len(parts))
	}

	if err := decodeRef(parts[0], &f.JoinRef); err != nil {
		return fmt.Errorf("decoding join_ref: %w", err)
	}
	if err := decodeRef(parts[1], &f.Ref); err != nil {
		return fmt.Errorf("decoding ref: %w", err)
	}
	if err := json.Unmarshal(parts[2], &f.Topic); err != nil {
		return fmt.Errorf("decoding topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &f.Event); err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}
	f.Payload = parts[4]
	return nil
}

func nullableRef(ref string) any {
	if ref == "" {
		return nil
	}
	return ref
}

func decodeRef(raw json.RawMessage, dst *string) error {
	if string(raw) == "null" {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}
