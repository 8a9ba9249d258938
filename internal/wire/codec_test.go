package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeUntaggedFrameIsNewMessage(t *testing.T) {
	raw := `{"chat_id": 3, "message_id": 42, "sender_id": 9, "content": "hi", "created_at": "2025-03-01T10:00:00Z"}`

	frame, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}

	msg, ok := frame.(NewMessage)
	if !ok {
		t.Fatalf("got %T, want NewMessage", frame)
	}
	if msg.ChatID != 3 || msg.MessageID != 42 || msg.SenderID != 9 || msg.Content != "hi" {
		t.Errorf("unexpected fields: %+v", msg)
	}
}

func TestDecodeTaggedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "edited",
			raw:  `{"type": "message_edited", "chat_id": 1, "message_id": 5, "content": "fixed"}`,
			want: MessageEdited{ChatID: 1, MessageID: 5, Content: "fixed"},
		},
		{
			name: "deleted",
			raw:  `{"type": "message_deleted", "chat_id": 1, "message_id": 5}`,
			want: MessageDeleted{ChatID: 1, MessageID: 5},
		},
		{
			name: "presence",
			raw:  `{"type": "presence", "user_id": 12, "online": true}`,
			want: Presence{UserID: 12, Online: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if frame != tt.want {
				t.Errorf("got %#v, want %#v", frame, tt.want)
			}
		})
	}
}

func TestDecodeMessagesRead(t *testing.T) {
	raw := `{"type": "messages_read", "chat_id": 2, "reader_id": 8, "timestamp": "2025-03-01T10:30:00Z"}`

	frame, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	read, ok := frame.(MessagesRead)
	if !ok {
		t.Fatalf("got %T, want MessagesRead", frame)
	}
	if read.ReaderID != 8 {
		t.Errorf("reader_id = %d, want 8", read.ReaderID)
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	if !read.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", read.Timestamp.Time, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := Decode([]byte(`{"type": "totally_unknown"}`)); err == nil {
		t.Error("expected error for unknown frame type")
	}
}

func TestTimestampAcceptsNaiveIsoformat(t *testing.T) {
	// The legacy socket service emits datetime.isoformat() without a zone.
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2025-03-01T10:00:00.123456"`), &ts); err != nil {
		t.Fatal(err)
	}
	if ts.Year() != 2025 || ts.Nanosecond() != 123456000 {
		t.Errorf("parsed %v", ts.Time)
	}
}

func TestEncodeOutboundShapes(t *testing.T) {
	data, err := Encode(NewReadStatus(4))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "read_status" || got["chat_id"] != float64(4) {
		t.Errorf("read_status frame = %v", got)
	}

	data, err = Encode(Send{ChatID: 4, Message: "hello", ClientID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	got = nil
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if _, hasType := got["type"]; hasType {
		t.Error("send frame must not carry a type tag")
	}
	if got["message"] != "hello" || got["client_id"] != "abc" {
		t.Errorf("send frame = %v", got)
	}
	if _, hasMedia := got["media"]; hasMedia {
		t.Error("empty media must be omitted")
	}
}
