package store

import "time"

// Status tracks the local delivery state of a message. The zero value means
// the message is server-authoritative (fetched from history or pushed by the
// server); the other states only apply to optimistic local sends.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one chat message. ID is negative while the message is an
// unconfirmed optimistic send; the server-assigned id replaces it on
// confirmation. ClientID is the correlation id embedded in the outbound
// frame, empty for messages from other users.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  int64
	Content   string
	CreatedAt time.Time
	IsRead    bool
	Media     []MediaAttachment
	ClientID  string
	Status    Status
}

// MediaAttachment is one media file on a message. FileURL is a local device
// path while IsTemp is true and a server path once the upload is persisted.
type MediaAttachment struct {
	ID      int64
	FileURL string
	IsTemp  bool
}

// HasTempMedia reports whether any attachment is still pending upload.
func (m *Message) HasTempMedia() bool {
	for _, att := range m.Media {
		if att.IsTemp {
			return true
		}
	}
	return false
}

// User is the other participant of a conversation, as carried on chat-list
// previews.
type User struct {
	ID       int64
	Username string
	Avatar   string
	IsOnline bool
}

// Preview is the last-message snapshot shown on the conversation list. It is
// not part of the store's authoritative state.
type Preview struct {
	Content   string
	CreatedAt time.Time
}

// Chat identifies a conversation and its list-level metadata.
type Chat struct {
	ID          int64
	OtherUser   User
	LastMessage Preview
}
