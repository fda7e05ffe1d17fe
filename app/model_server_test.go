package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"hypoforge/ai"
	"hypoforge/ai/stream"
	"hypoforge/models"

	"github.com/google/uuid"
)

// script is one canned model response
type script struct {
	status int
	chunks []string // SSE data payloads, [DONE] appended unless truncated
	noDone bool
}

func contentChunk(delta string) string {
	payload, _ := json.Marshal(map[string]any{
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{"delta": map[string]any{"content": delta}}},
	})
	return string(payload)
}

func usageChunk(total int) string {
	return fmt.Sprintf(`{"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":%d,"completion_tokens":0,"total_tokens":%d}}`, total, total)
}

func deltas(parts ...string) script {
	s := script{status: http.StatusOK}
	for _, p := range parts {
		s.chunks = append(s.chunks, contentChunk(p))
	}
	return s
}

// modelServer replays scripts in order, one per request, and records the
// decoded request bodies
type modelServer struct {
	*httptest.Server
	mu       sync.Mutex
	scripts  []script
	requests []map[string]any
}

func newModelServer(t *testing.T, scripts ...script) *modelServer {
	t.Helper()
	m := &modelServer{scripts: scripts}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

func (m *modelServer) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.mu.Lock()
	m.requests = append(m.requests, body)
	if len(m.scripts) == 0 {
		m.mu.Unlock()
		http.Error(w, "no scripted response left", http.StatusTeapot)
		return
	}
	s := m.scripts[0]
	m.scripts = m.scripts[1:]
	m.mu.Unlock()

	if s.status != http.StatusOK {
		http.Error(w, "upstream unavailable", s.status)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, c := range s.chunks {
		_, _ = io.WriteString(w, "data: "+c+"\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
	if !s.noDone {
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func (m *modelServer) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *modelServer) request(i int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func (m *modelServer) client() *ai.ChatClient {
	c := ai.NewChatClient(&models.AIConfig{BaseURL: m.URL, Model: "gpt-4o-mini", AppTag: "hypoforge"})
	c.HTTPClient = m.Client()
	return c
}

type usageCall struct {
	sessionID uuid.UUID
	operation string
	total     int
}

type recordingUsage struct {
	mu    sync.Mutex
	calls []usageCall
}

func (r *recordingUsage) RecordUsage(_ context.Context, sessionID uuid.UUID, operation string, usage *stream.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, usageCall{sessionID: sessionID, operation: operation, total: usage.TotalTokens})
}
