package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hypoforge/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentChunk(text string) string {
	return fmt.Sprintf(`{"model":"gpt-4o-mini","choices":[{"delta":{"content":%q}}]}`, text)
}

func sseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(t *testing.T, d *Decoder) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestDecoderYieldsCumulativeContentAndUsage(t *testing.T) {
	body := "data: " + contentChunk("Hel") + "\n\n" +
		": keep-alive\n\n" +
		"data: " + contentChunk("") + "\n\n" +
		"data: " + contentChunk("lo") + "\n\n" +
		`data: {"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}` + "\n\n" +
		"data: [DONE]\n\n"
	srv := sseServer(t, http.StatusOK, body)

	d, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.NoError(t, err)
	defer d.Close()

	events, err := drain(t, d)
	assert.Equal(t, io.EOF, err)
	require.Len(t, events, 3)

	assert.Equal(t, Event{Kind: EventContent, Content: "Hel", Delta: "Hel"}, events[0])
	assert.Equal(t, Event{Kind: EventContent, Content: "Hello", Delta: "lo"}, events[1])
	assert.Equal(t, EventUsage, events[2].Kind)
	assert.Equal(t, 7, events[2].Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", events[2].Usage.Model)

	assert.Equal(t, "Hello", d.Content())
	assert.Equal(t, 5, d.Usage().PromptTokens)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err, "EOF is sticky")
}

func TestDecoderJoinsMultilineDataAndCRLF(t *testing.T) {
	body := "event: message\r\ndata: {\"choices\":[{\"delta\":\r\ndata: {\"content\":\"x\"}}]}\r\n\r\n"
	srv := sseServer(t, http.StatusOK, body)

	d, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.NoError(t, err)

	events, err := drain(t, d)
	assert.Equal(t, io.EOF, err, "end of body without [DONE] is a clean end")
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Content)
}

func TestDecoderNonSuccessStatusIsTransportError(t *testing.T) {
	srv := sseServer(t, http.StatusUnauthorized, `{"error":"bad token"}`)

	_, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeTransport))

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
	assert.Contains(t, err.Error(), "bad token")
}

func TestDecoderUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Open(context.Background(), nil, Request{URL: url})
	assert.True(t, errors.Is(err, errors.CodeTransport))
}

func TestDecoderStreamErrorKeepsEarlierEvents(t *testing.T) {
	body := "data: " + contentChunk("partial") + "\n\n" +
		`data: {"error":{"message":"overloaded"}}` + "\n\n" +
		"data: " + contentChunk(" never") + "\n\n"
	srv := sseServer(t, http.StatusOK, body)

	d, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.NoError(t, err)

	events, err := drain(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Content)
	assert.True(t, errors.Is(err, errors.CodeTransport))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestDecoderMalformedChunk(t *testing.T) {
	srv := sseServer(t, http.StatusOK, "data: {not json\n\n")

	d, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.NoError(t, err)

	_, err = d.Next()
	assert.True(t, errors.Is(err, errors.CodeTransport))
}

func TestDecoderForwardsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer t:app", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"stream":true}`, string(b))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d, err := Open(context.Background(), srv.Client(), Request{
		URL:    srv.URL,
		Header: http.Header{"Authorization": {"Bearer t:app"}},
		Body:   []byte(`{"stream":true}`),
	})
	require.NoError(t, err)
	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderCloseStopsBlockedRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: "+contentChunk("first")+"\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d, err := Open(context.Background(), srv.Client(), Request{URL: srv.URL})
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Content)

	require.NoError(t, d.Close())
	assert.NoError(t, d.Close(), "Close is idempotent")

	_, err = d.Next()
	assert.Error(t, err)
	assert.False(t, strings.Contains(d.Content(), "never"))
}
