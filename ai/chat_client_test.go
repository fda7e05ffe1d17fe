package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"hypoforge/internal/errors"
	"hypoforge/models"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatClientRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer tok:hypoforge", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewChatClient(&models.AIConfig{BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini", AppTag: "hypoforge"})
	d, err := client.Stream(context.Background(), "tok", ChatRequest{
		System:         "sys",
		User:           "usr",
		ResponseFormat: HypothesesResponseFormat(),
	})
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Next()
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
	assert.Equal(t, 0.0, got["temperature"], "temperature 0 is sent, not omitted")
	assert.Equal(t, []any{
		map[string]any{"role": "system", "content": "sys"},
		map[string]any{"role": "user", "content": "usr"},
	}, got["messages"])

	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "hypotheses", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestChatClientOmitsResponseFormatForFreeText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewChatClient(&models.AIConfig{BaseURL: srv.URL, Model: "m"})
	d, err := client.Stream(context.Background(), "tok", ChatRequest{System: "s", User: "u"})
	require.NoError(t, err)
	_, _ = d.Next()
	d.Close()

	_, present := got["response_format"]
	assert.False(t, present)
}

func TestChatClientRequiresCredential(t *testing.T) {
	client := NewChatClient(models.DefaultAIConfig())

	_, err := client.Stream(context.Background(), "", ChatRequest{System: "s", User: "u"})
	assert.True(t, errors.Is(err, errors.CodeAuthMissing))
}

// TestLiveHypothesisStream streams one real completion when a key is configured.
func TestLiveHypothesisStream(t *testing.T) {
	if err := godotenv.Load("../.env"); err != nil {
		_ = godotenv.Load(".env")
	}
	key := os.Getenv("LLM_API_KEY")
	if key == "" {
		t.Skip("Skipping live test: LLM_API_KEY not set")
	}

	cfg := models.DefaultAIConfig()
	if base := os.Getenv("LLM_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	client := NewChatClient(cfg)

	d, err := client.Stream(context.Background(), key, ChatRequest{
		System:         "Propose two hypotheses a retail analyst could test.",
		User:           "The Pandas DataFrame df has 3 rows and 2 columns:\n- region: string. 2 unique values. E.g. north (2), south (1)\n- sales: numeric. mean: 14 min: 7 max: 26",
		ResponseFormat: HypothesesResponseFormat(),
	})
	require.NoError(t, err)
	defer d.Close()

	for {
		if _, err := d.Next(); err != nil {
			require.Equal(t, io.EOF, err)
			break
		}
	}
	assert.NoError(t, ValidateHypothesesDocument(d.Content()))
}
