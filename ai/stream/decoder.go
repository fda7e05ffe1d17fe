// Package stream decodes a chat-completions server-sent-event response into
// an ordered, pull-based sequence of content and usage events.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"hypoforge/internal"
	"hypoforge/internal/errors"
)

var logger = internal.DefaultLogger.Named("StreamDecoder")

// Kind discriminates StreamEvent variants.
type Kind int

const (
	EventContent Kind = iota
	EventUsage
)

func (k Kind) String() string {
	if k == EventUsage {
		return "usage"
	}
	return "content"
}

// Usage is the terminal token accounting record of a stream.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"-"`
}

// Event is one increment of a model response. Content carries the cumulative
// text so far; Delta only the fragment that produced this event.
type Event struct {
	Kind    Kind
	Content string
	Delta   string
	Usage   *Usage
}

// Request describes the HTTP request that opens a stream.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// chunk is the subset of a chat.completion.chunk payload we read.
type chunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage          `json:"usage"`
	Error json.RawMessage `json:"error"`
}

const errorExcerptLimit = 512

// Decoder reads one streamed response. It is not safe for concurrent use,
// except for Close.
type Decoder struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	cancel  context.CancelFunc
	content strings.Builder
	usage   *Usage
	pending []Event
	err     error
	once    sync.Once
}

// Open performs req and returns a decoder over its event stream. A transport
// failure or a non-2xx status is returned as a TRANSPORT_ERROR.
func Open(ctx context.Context, client *http.Client, req Request) (*Decoder, error) {
	if client == nil {
		client = http.DefaultClient
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		cancel()
		return nil, errors.Transport(0, "invalid request", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, errors.Transport(0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorExcerptLimit))
		resp.Body.Close()
		cancel()
		reason := strings.TrimSpace(string(excerpt))
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		logger.Warn("%s %s returned %d", method, req.URL, resp.StatusCode)
		return nil, errors.Transport(resp.StatusCode, reason, nil)
	}

	logger.Debug("stream opened: %s %s", method, req.URL)
	return &Decoder{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}, nil
}

// Next returns the next event, io.EOF once the stream has finished, or a
// TRANSPORT_ERROR. After an error every further call returns the same error.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.err != nil {
			return Event{}, d.err
		}

		data, err := d.readEvent()
		if err == io.EOF {
			d.finish(io.EOF)
			continue
		}
		if err != nil {
			d.finish(errors.Transport(0, "stream interrupted", err))
			continue
		}
		if data == "[DONE]" {
			d.finish(io.EOF)
			continue
		}
		if err := d.decodeChunk(data); err != nil {
			d.finish(err)
		}
	}
}

// Content returns the cumulative content text decoded so far.
func (d *Decoder) Content() string {
	return d.content.String()
}

// Usage returns the usage record, if the stream has sent one.
func (d *Decoder) Usage() *Usage {
	return d.usage
}

// Close aborts the request and releases the body. It is safe to call more
// than once and from another goroutine.
func (d *Decoder) Close() error {
	var err error
	d.once.Do(func() {
		d.cancel()
		err = d.body.Close()
	})
	return err
}

func (d *Decoder) finish(err error) {
	d.err = err
	d.Close()
}

// readEvent assembles the data lines of one SSE event. Comment lines and
// fields other than data are ignored.
func (d *Decoder) readEvent() (string, error) {
	var lines []string
	for {
		line, err := d.reader.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if len(lines) > 0 {
					return strings.Join(lines, "\n"), nil
				}
			case strings.HasPrefix(line, ":"):
			default:
				field, value, _ := strings.Cut(line, ":")
				if field == "data" {
					lines = append(lines, strings.TrimPrefix(value, " "))
				}
			}
		}
		if err != nil {
			if err == io.EOF && len(lines) > 0 {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}
	}
}

func (d *Decoder) decodeChunk(data string) error {
	logger.Trace("chunk: %s", data)

	var c chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return errors.Transport(0, "malformed stream chunk", err)
	}
	if len(c.Error) > 0 && string(c.Error) != "null" {
		return errors.Transport(0, streamErrorMessage(c.Error), nil)
	}

	if len(c.Choices) > 0 {
		if delta := c.Choices[0].Delta.Content; delta != "" {
			d.content.WriteString(delta)
			d.pending = append(d.pending, Event{Kind: EventContent, Content: d.content.String(), Delta: delta})
		}
	}
	if c.Usage != nil {
		u := *c.Usage
		u.Model = c.Model
		d.usage = &u
		d.pending = append(d.pending, Event{Kind: EventUsage, Content: d.content.String(), Usage: &u})
	}
	return nil
}

func streamErrorMessage(raw json.RawMessage) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return string(raw)
}
