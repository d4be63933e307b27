package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionServer(t *testing.T, status int, body string, seen *map[string]any, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "local-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestClientComplete(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, completion(`{"enhanced_description":"X"}`), &seen, nil)
	defer srv.Close()

	c := NewClient(srv.URL+"/v1", "lm-studio", "local-model", time.Second)
	got, err := c.Complete(context.Background(), "hello", 0.7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"enhanced_description":"X"}` {
		t.Errorf("content = %q", got)
	}

	if seen["model"] != "local-model" || seen["temperature"] != 0.7 {
		t.Errorf("request: %v", seen)
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["role"] != "user" {
		t.Errorf("expected a single user message: %v", seen["messages"])
	}
}

func TestClientUpstreamErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusServiceUnavailable, `{"error":{"message":"model not loaded"}}`, nil, &calls)
	defer srv.Close()

	_, err := NewClient(srv.URL+"/v1/", "k", "m", time.Second).Complete(context.Background(), "hi", 0.5)

	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected UpstreamError 503, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestClientEmptyContent(t *testing.T) {
	srv := completionServer(t, http.StatusOK, completion("  "), nil, nil)
	defer srv.Close()

	_, err := NewClient(srv.URL+"/v1", "k", "m", time.Second).Complete(context.Background(), "hi", 0.5)
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}
