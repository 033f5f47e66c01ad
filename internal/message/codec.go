package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingField     = errors.New("missing field")
)

// wireEvent is the union of all broker event fields. Pointers tell an absent
// field apart from a zero value.
type wireEvent struct {
	Type        *string `json:"@type,omitempty"`
	EventID     *uint64 `json:"eventId,omitempty"`
	IRCUserName *string `json:"ircUserName,omitempty"`
	Text        *string `json:"text,omitempty"`
	Ping        *int32  `json:"ping,omitempty"`
}

// DecodeBrokerEvent parses one broker payload. Field names must match
// exactly and unknown fields are ignored; an unknown or missing "@type" and
// a missing required field are errors.
func DecodeBrokerEvent(data []byte) (BrokerEvent, error) {
	w, err := readWireEvent(data)
	if err != nil {
		return nil, fmt.Errorf("decode broker event: %w", err)
	}
	if w.Type == nil {
		return nil, fmt.Errorf("decode broker event: %w: @type", ErrMissingField)
	}
	if w.EventID == nil {
		return nil, fmt.Errorf("decode %s event: %w: eventId", *w.Type, ErrMissingField)
	}

	switch *w.Type {
	case TypeReceived:
		if w.IRCUserName == nil {
			return nil, fmt.Errorf("decode %s event: %w: ircUserName", *w.Type, ErrMissingField)
		}
		return Received{EventID: *w.EventID, IRCUserName: *w.IRCUserName}, nil
	case TypeSent:
		if w.IRCUserName == nil {
			return nil, fmt.Errorf("decode %s event: %w: ircUserName", *w.Type, ErrMissingField)
		}
		return Sent{EventID: *w.EventID, IRCUserName: *w.IRCUserName, Ping: w.Ping}, nil
	case TypeReceivedDetails:
		if w.Text == nil {
			return nil, fmt.Errorf("decode %s event: %w: text", *w.Type, ErrMissingField)
		}
		return ReceivedDetails{EventID: *w.EventID, Text: *w.Text}, nil
	default:
		return nil, fmt.Errorf("decode broker event: %w %q", ErrUnknownEventType, *w.Type)
	}
}

// readWireEvent reads the known keys of the payload's top-level object.
// Keys match exactly ("EVENTID" is not "eventId"), which json struct tags do
// not enforce. A null value counts as absent.
func readWireEvent(data []byte) (wireEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return wireEvent{}, err
	}

	var w wireEvent
	for key, dst := range map[string]any{
		"@type":       &w.Type,
		"eventId":     &w.EventID,
		"ircUserName": &w.IRCUserName,
		"text":        &w.Text,
		"ping":        &w.Ping,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return wireEvent{}, fmt.Errorf("field %s: %w", key, err)
		}
	}
	return w, nil
}

// EncodeClientMessage renders m as {"<tag>": {...}}.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	data, err := json.Marshal(map[string]ClientMessage{m.Tag(): m})
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Tag(), err)
	}
	return data, nil
}
