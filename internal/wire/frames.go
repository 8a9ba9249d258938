// Package wire defines the JSON frame types exchanged over the chat socket
// and the single decode point for inbound frames. Inbound frames form a
// closed union discriminated by the "type" field; a frame without a type is
// a new chat message.
package wire

// Inbound frame type tags. An absent tag means TypeNewMessage.
const (
	TypeNewMessage     = "message"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeMessagesRead   = "messages_read"
	TypePresence       = "presence"
)

// Outbound frame type tags.
const (
	TypeReadStatus = "read_status"
	TypeEnterChat  = "enter_chat"
)

// Frame is an inbound frame decoded from the socket.
type Frame interface {
	frame()
}

// NewMessage is a new chat message pushed by the server. For a message this
// client sent, ClientID echoes the correlation id from the outbound frame
// (empty when the server predates the field).
type NewMessage struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
	Media     []Media   `json:"media,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
}

// Media is a persisted attachment carried on an inbound message.
type Media struct {
	ID      int64  `json:"id"`
	FileURL string `json:"file_url"`
}

// MessageEdited replaces the content of an existing message.
type MessageEdited struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// MessageDeleted removes a message.
type MessageDeleted struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// MessagesRead reports that reader has read the conversation up to Timestamp.
type MessagesRead struct {
	ChatID    int64     `json:"chat_id"`
	ReaderID  int64     `json:"reader_id"`
	Timestamp Timestamp `json:"timestamp"`
}

// Presence reports a user's online state. Not scoped to a conversation.
type Presence struct {
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`
}

func (NewMessage) frame()     {}
func (MessageEdited) frame()  {}
func (MessageDeleted) frame() {}
func (MessagesRead) frame()   {}
func (Presence) frame()       {}

// Outbound is a frame this client writes to the socket.
type Outbound interface {
	outbound()
}

// Send carries a new message. Media is inlined base64, matching the upload
// path of the mobile client. ClientID is generated per send so the server
// confirmation can be matched exactly instead of heuristically.
type Send struct {
	ChatID   int64        `json:"chat_id"`
	Message  string       `json:"message"`
	Media    []Attachment `json:"media,omitempty"`
	ClientID string       `json:"client_id,omitempty"`
}

// Attachment is an inlined outbound media file.
type Attachment struct {
	Data string `json:"data"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ReadStatus asks the server to mark the conversation read and broadcast a
// messages_read receipt to the other participant.
type ReadStatus struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
}

// EnterChat signals that the conversation is being actively viewed, so the
// server can suppress notification badges.
type EnterChat struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chat_id"`
	Timestamp string `json:"timestamp"`
}

func (Send) outbound()       {}
func (ReadStatus) outbound() {}
func (EnterChat) outbound()  {}

// NewReadStatus builds a read_status frame for the given conversation.
func NewReadStatus(chatID int64) ReadStatus {
	return ReadStatus{Type: TypeReadStatus, ChatID: chatID}
}

// NewEnterChat builds an enter_chat frame with the given ISO timestamp.
func NewEnterChat(chatID int64, ts string) EnterChat {
	return EnterChat{Type: TypeEnterChat, ChatID: chatID, Timestamp: ts}
}
