package ai

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"hypoforge/ai/stream"
	"hypoforge/internal/errors"
	"hypoforge/models"
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchemaFormat names a schema the model output must conform to
type JSONSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// ResponseFormat constrains model output; Type is "json_schema" here
type ResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// ChatRequest is what a pipeline stage asks of the model: one system prompt,
// one user message, and optionally a response schema.
type ChatRequest struct {
	System         string
	User           string
	ResponseFormat *ResponseFormat
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type requestBody struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	StreamOptions  streamOptions   `json:"stream_options"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatClient opens streamed chat completions against an OpenAI-compatible endpoint
type ChatClient struct {
	BaseURL     string
	Model       string
	Temperature float64
	AppTag      string
	HTTPClient  *http.Client
}

// NewChatClient creates a client from config
func NewChatClient(config *models.AIConfig) *ChatClient {
	log.Printf("[ChatClient] Initializing client with model=%s, temp=%.2f, baseURL=%s",
		config.Model, config.Temperature, config.BaseURL)

	return &ChatClient{
		BaseURL:     strings.TrimRight(config.BaseURL, "/"),
		Model:       config.Model,
		Temperature: config.Temperature,
		AppTag:      config.AppTag,
		// headers must arrive within Timeout; the body may stream for longer
		HTTPClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: config.Timeout,
		}},
	}
}

// Endpoint returns the chat completions URL
func (c *ChatClient) Endpoint() string {
	return c.BaseURL + "/chat/completions"
}

// Stream starts one streamed completion. The credential must be non-empty.
func (c *ChatClient) Stream(ctx context.Context, credential string, req ChatRequest) (*stream.Decoder, error) {
	if credential == "" {
		return nil, errors.AuthMissing("no credential to call the model with")
	}

	body, err := c.buildBody(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+c.bearer(credential))

	log.Printf("[ChatClient] Streaming %s - systemLength=%d, userLength=%d, schema=%t",
		c.Model, len(req.System), len(req.User), req.ResponseFormat != nil)

	return stream.Open(ctx, c.HTTPClient, stream.Request{
		URL:    c.Endpoint(),
		Method: http.MethodPost,
		Header: header,
		Body:   body,
	})
}

func (c *ChatClient) buildBody(req ChatRequest) ([]byte, error) {
	return json.Marshal(requestBody{
		Model: c.Model,
		Messages: []Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:         true,
		StreamOptions:  streamOptions{IncludeUsage: true},
		Temperature:    c.Temperature,
		ResponseFormat: req.ResponseFormat,
	})
}

func (c *ChatClient) bearer(credential string) string {
	if c.AppTag == "" {
		return credential
	}
	return credential + ":" + c.AppTag
}
