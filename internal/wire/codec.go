package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decode parses an inbound socket frame. The frame kind is read once here;
// callers dispatch on the returned concrete type and never inspect raw JSON.
func Decode(data []byte) (Frame, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch tag.Type {
	case "", TypeNewMessage:
		var f NewMessage
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode message frame: %w", err)
		}
		return f, nil
	case TypeMessageEdited:
		var f MessageEdited
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode message_edited frame: %w", err)
		}
		return f, nil
	case TypeMessageDeleted:
		var f MessageDeleted
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode message_deleted frame: %w", err)
		}
		return f, nil
	case TypeMessagesRead:
		var f MessagesRead
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode messages_read frame: %w", err)
		}
		return f, nil
	case TypePresence:
		var f Presence
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode presence frame: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", tag.Type)
	}
}

// Encode serializes an outbound frame.
func Encode(f Outbound) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Timestamp is a wire timestamp. The chat backend emits both RFC 3339 and
// zone-less isoformat strings, so both are accepted.
type Timestamp struct {
	time.Time
}

const isoNoZone = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON parses a JSON string timestamp. An empty or null value
// decodes to the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(isoNoZone, s)
	}
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON emits the timestamp in RFC 3339 form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// FormatTimestamp renders a time the way the rest of the wire protocol
// carries timestamps (used for the enter_chat frame).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
