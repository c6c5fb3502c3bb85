// ABOUTME: Inbound command channel from the embedding page, parsed into a closed union.
// ABOUTME: Unknown command tags are a sentinel error, recognized ones a typed variant.

package hostbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftchat/widgetsync/internal/model"
)

// ErrUnknownCommand indicates a command tag outside the recognized set.
var ErrUnknownCommand = errors.New("unknown host command")

// Command is one inbound instruction from the host page. The union is closed:
// every variant is defined in this file and the engine's dispatch switch is
// exhaustive over them.
type Command interface {
	isCommand()
}

// CustomerUpdate re-runs identity resolution with fresh metadata.
type CustomerUpdate struct {
	CustomerID string
	Metadata   model.CustomerMetadata
}

// NotificationsDisplay toggles whether notifications should be displayed.
type NotificationsDisplay struct {
	Enabled bool
}

// Toggle opens or closes the widget.
type Toggle struct {
	Open bool
}

// Plan is a non-functional display toggle carrying the subscription plan.
type Plan struct {
	Plan string
}

// Ping is a liveness no-op.
type Ping struct{}

func (CustomerUpdate) isCommand()       {}
func (NotificationsDisplay) isCommand() {}
func (Toggle) isCommand()               {}
func (Plan) isCommand()                 {}
func (Ping) isCommand()                 {}

// envelope is the wire shape of an inbound command.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ParseCommand decodes a raw {event, payload} message into a Command.
// Returns ErrUnknownCommand (wrapped with the offending tag) for tags outside
// the recognized set, so callers can log-and-drop without special cases.
func ParseCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed command: %w", err)
	}

	switch env.Event {
	case "customer:update":
		var p struct {
			CustomerID string                 `json:"customerId"`
			Metadata   model.CustomerMetadata `json:"metadata"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return CustomerUpdate{CustomerID: p.CustomerID, Metadata: p.Metadata}, nil

	case "notifications:display":
		var p struct {
			ShouldDisplayNotifications bool `json:"shouldDisplayNotifications"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return NotificationsDisplay{Enabled: p.ShouldDisplayNotifications}, nil

	case "papercups:toggle":
		var p struct {
			IsOpen bool `json:"isOpen"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return Toggle{Open: p.IsOpen}, nil

	case "papercups:plan":
		var p struct {
			Plan string `json:"plan"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return Plan{Plan: p.Plan}, nil

	case "papercups:ping":
		return Ping{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Event)
	}
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed command payload: %w", err)
	}
	return nil
}
