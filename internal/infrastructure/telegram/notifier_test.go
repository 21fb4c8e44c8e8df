package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier("bot-token", "chat-42", server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.baseURL = server.URL

	err := n.PublishDigest(context.Background(), "*graphene* classified as `peak` (confidence 0.80, 5/5 sources)")
	if err != nil {
		t.Fatalf("PublishDigest error: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotBody["chat_id"] != "chat-42" || gotBody["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
	if !strings.Contains(gotBody["text"], "graphene") {
		t.Fatalf("digest text lost: %q", gotBody["text"])
	}
}

func TestPublishDigestUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok": false, "description": "chat not found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewNotifier("bot-token", "chat-42", server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.baseURL = server.URL

	err := n.PublishDigest(context.Background(), "digest")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}
