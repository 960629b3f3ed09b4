// ABOUTME: Encoding and decoding of NIP-01 websocket frames.
// ABOUTME: Client messages are REQ/EVENT/CLOSE; relays answer EVENT/EOSE/OK/NOTICE/CLOSED.

package relaypool

import (
	"encoding/json"
	"fmt"

	"github.com/relaypress/relaypress/internal/event"
)

// Frame labels defined by the relay wire protocol.
const (
	frameEvent  = "EVENT"
	frameReq    = "REQ"
	frameClose  = "CLOSE"
	frameEOSE   = "EOSE"
	frameOK     = "OK"
	frameNotice = "NOTICE"
	frameClosed = "CLOSED"
)

func encodeReq(subID string, filters []event.Filter) ([]byte, error) {
	parts := make([]any, 0, len(filters)+2)
	parts = append(parts, frameReq, subID)
	for _, f := range filters {
		parts = append(parts, f)
	}
	return json.Marshal(parts)
}

func encodeEvent(ev *event.Event) ([]byte, error) {
	return json.Marshal([]any{frameEvent, ev})
}

func encodeClose(subID string) ([]byte, error) {
	return json.Marshal([]any{frameClose, subID})
}

// serverFrame is a decoded relay-to-client message. Only the fields for
// the decoded label are set.
type serverFrame struct {
	label string

	subID   string       // EVENT, EOSE, CLOSED
	event   *event.Event // EVENT
	eventID string       // OK
	ok      bool         // OK
	message string       // OK, NOTICE, CLOSED
}

func decodeServerFrame(data []byte) (*serverFrame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	f := &serverFrame{}
	if err := json.Unmarshal(parts[0], &f.label); err != nil {
		return nil, fmt.Errorf("decoding frame label: %w", err)
	}

	switch f.label {
	case frameEvent:
		if len(parts) < 3 {
			return nil, fmt.Errorf("EVENT frame has %d elements, want 3", len(parts))
		}
		if err := json.Unmarshal(parts[1], &f.subID); err != nil {
			return nil, fmt.Errorf("decoding EVENT subscription id: %w", err)
		}
		f.event = &event.Event{}
		if err := json.Unmarshal(parts[2], f.event); err != nil {
			return nil, fmt.Errorf("decoding EVENT payload: %w", err)
		}

	case frameEOSE:
		if len(parts) < 2 {
			return nil, fmt.Errorf("EOSE frame has %d elements, want 2", len(parts))
		}
		if err := json.Unmarshal(parts[1], &f.subID); err != nil {
			return nil, fmt.Errorf("decoding EOSE subscription id: %w", err)
		}

	case frameOK:
		if len(parts) < 3 {
			return nil, fmt.Errorf("OK frame has %d elements, want at least 3", len(parts))
		}
		if err := json.Unmarshal(parts[1], &f.eventID); err != nil {
			return nil, fmt.Errorf("decoding OK event id: %w", err)
		}
		if err := json.Unmarshal(parts[2], &f.ok); err != nil {
			return nil, fmt.Errorf("decoding OK flag: %w", err)
		}
		if len(parts) > 3 {
			if err := json.Unmarshal(parts[3], &f.message); err != nil {
				return nil, fmt.Errorf("decoding OK message: %w", err)
			}
		}

	case frameNotice:
		if len(parts) > 1 {
			if err := json.Unmarshal(parts[1], &f.message); err != nil {
				return nil, fmt.Errorf("decoding NOTICE message: %w", err)
			}
		}

	case frameClosed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("CLOSED frame has %d elements, want at least 2", len(parts))
		}
		if err := json.Unmarshal(parts[1], &f.subID); err != nil {
			return nil, fmt.Errorf("decoding CLOSED subscription id: %w", err)
		}
		if len(parts) > 2 {
			if err := json.Unmarshal(parts[2], &f.message); err != nil {
				return nil, fmt.Errorf("decoding CLOSED message: %w", err)
			}
		}

	default:
		return nil, fmt.Errorf("unknown frame label %q", f.label)
	}
	return f, nil
}
