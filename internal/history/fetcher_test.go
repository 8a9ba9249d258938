package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"message_id": 30, "sender_id": 2, "content": "newest", "created_at": "2025-03-01T10:00:00Z"},
			{"message_id": 29, "sender_id": 1, "content": "older", "created_at": "2025-03-01T09:59:00Z",
			 "media": [{"id": 5, "file_url": "/media/chat_media/a.jpg"}]}
		]`))
	}))
	defer srv.Close()

	f := New(srv.URL, "tok-123", 6)
	msgs, err := f.Fetch(context.Background(), 9, 31)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/chat/messages/9" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "before=31" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth header = %q", gotAuth)
	}

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 30 || msgs[0].Content != "newest" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[0].ChatID != 9 {
		t.Errorf("chat id = %d, want 9", msgs[0].ChatID)
	}
	if len(msgs[1].Media) != 1 || msgs[1].Media[0].FileURL != "/media/chat_media/a.jpg" {
		t.Errorf("media = %+v", msgs[1].Media)
	}
	if msgs[1].Media[0].IsTemp {
		t.Error("fetched media marked temp")
	}
}

func TestFetchNoCursorOmitsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := New(srv.URL, "tok", 6)
	msgs, err := f.Fetch(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "" {
		t.Errorf("query = %q, want empty", gotQuery)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestFetchNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(srv.URL, "tok", 6)
	if _, err := f.Fetch(context.Background(), 1, 0); err == nil {
		t.Error("expected error for 500 response")
	}
}
