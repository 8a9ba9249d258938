// Package history wraps the paged REST call for a conversation's older
// messages. A failed fetch is a plain error to the caller; this layer never
// retries, and the caller must treat the failure as a no-op on its pagination
// state.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nextvibe/chatsync/internal/store"
	"github.com/nextvibe/chatsync/internal/wire"
)

// Fetcher issues authenticated history requests against the chat REST API.
type Fetcher struct {
	base     string
	token    string
	pageSize int
	client   *http.Client
}

// New creates a fetcher. base is the REST base URL without a trailing slash.
func New(base, token string, pageSize int) *Fetcher {
	return &Fetcher{
		base:     base,
		token:    token,
		pageSize: pageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// PageSize returns the page size the server is expected to return. A page
// shorter than this means history is exhausted.
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// pageMessage is the REST representation of one message.
type pageMessage struct {
	MessageID int64          `json:"message_id"`
	SenderID  int64          `json:"sender_id"`
	Content   string         `json:"content"`
	CreatedAt wire.Timestamp `json:"created_at"`
	IsRead    bool           `json:"is_read"`
	Media     []wire.Media   `json:"media"`
}

// Fetch returns the page of messages older than beforeID, newest first.
// beforeID zero means "most recent page".
func (f *Fetcher) Fetch(ctx context.Context, chatID, beforeID int64) ([]store.Message, error) {
	url := fmt.Sprintf("%s/chat/messages/%d", f.base, chatID)
	if beforeID != 0 {
		url += "?before=" + strconv.FormatInt(beforeID, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	var page []pageMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("fetch history: decode page: %w", err)
	}

	msgs := make([]store.Message, 0, len(page))
	for _, pm := range page {
		msgs = append(msgs, store.Message{
			ID:        pm.MessageID,
			ChatID:    chatID,
			SenderID:  pm.SenderID,
			Content:   pm.Content,
			CreatedAt: pm.CreatedAt.Time,
			IsRead:    pm.IsRead,
			Media:     mediaFromWire(pm.Media),
		})
	}
	return msgs, nil
}

func mediaFromWire(media []wire.Media) []store.MediaAttachment {
	if len(media) == 0 {
		return nil
	}
	out := make([]store.MediaAttachment, 0, len(media))
	for _, m := range media {
		out = append(out, store.MediaAttachment{ID: m.ID, FileURL: m.FileURL})
	}
	return out
}
