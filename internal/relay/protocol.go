package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Relay wire protocol: JSON array frames.
//
// Outbound: ["REQ", <subID>, {"kinds":[...], "authors":[...], "since":...}]
// Inbound:  ["EVENT", <subID>, {event}] | ["EOSE", <subID>] | ["NOTICE", <text>]
const (
	frameReq    = "REQ"
	frameEvent  = "EVENT"
	frameEOSE   = "EOSE"
	frameNotice = "NOTICE"
)

var errEmptyFrame = errors.New("empty frame")

// Event carries the metadata a relay delivers for one stored event. Content is
// never decoded or retained.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	Kind      int    `json:"kind"`
	CreatedAt int64  `json:"created_at"`
}

// frame is one decoded inbound message.
type frame struct {
	Type  string
	SubID string
	Event *Event
}

// encodeReq builds the subscription request frame for one poll.
func encodeReq(subID string, f Filter) ([]byte, error) {
	return json.Marshal([]any{frameReq, subID, f})
}

// decodeFrame parses an inbound relay frame. Unknown frame types are returned
// with only Type set so callers can skip them.
func decodeFrame(data []byte) (*frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if len(parts) == 0 {
		return nil, errEmptyFrame
	}

	fr := &frame{}
	if err := json.Unmarshal(parts[0], &fr.Type); err != nil {
		return nil, fmt.Errorf("decoding frame type: %w", err)
	}

	switch fr.Type {
	case frameEvent:
		if len(parts) < 3 {
			return nil, fmt.Errorf("EVENT frame has %d elements, want 3", len(parts))
		}
		if err := json.Unmarshal(parts[1], &fr.SubID); err != nil {
			return nil, fmt.Errorf("decoding subscription id: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		fr.Event = &ev

	case frameEOSE:
		if len(parts) < 2 {
			return nil, fmt.Errorf("EOSE frame has %d elements, want 2", len(parts))
		}
		if err := json.Unmarshal(parts[1], &fr.SubID); err != nil {
			return nil, fmt.Errorf("decoding subscription id: %w", err)
		}
	}

	return fr, nil
}
