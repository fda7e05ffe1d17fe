package app

import (
	"context"
	"net/http"
	"testing"

	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generation struct {
	sets []hypothesis.Set
	err  error
}

func collect(p *HypothesisPipeline, req GenerateRequest) generation {
	var g generation
	for set, err := range p.Generate(context.Background(), req) {
		if err != nil {
			g.err = err
			continue
		}
		g.sets = append(g.sets, set)
	}
	return g
}

func TestGenerateSingleDelta(t *testing.T) {
	ds, err := dataset.New([]string{"region", "sales"}, []dataset.Record{
		{"region": "north", "sales": 10.0},
		{"region": "south", "sales": 20.0},
		{"region": "north", "sales": 30.0},
	})
	require.NoError(t, err)

	srv := newModelServer(t, deltas(`{"hypotheses":[{"hypothesis":"H1","benefit":"B1"}]}`))
	p := NewHypothesisPipeline(srv.client(), nil)
	summary := p.Summarize(ds)

	g := collect(p, GenerateRequest{Summary: summary, AudiencePrompt: "You are a retail analyst.", Credential: "tok"})

	require.NoError(t, g.err)
	require.Len(t, g.sets, 1)
	assert.Equal(t, hypothesis.Set{{Hypothesis: "H1", Benefit: "B1"}}, g.sets[0])

	body := srv.request(0)
	messages := body["messages"].([]any)
	assert.Equal(t, "You are a retail analyst.", messages[0].(map[string]any)["content"])
	assert.Equal(t, summary, messages[1].(map[string]any)["content"])
	assert.NotNil(t, body["response_format"])
}

func TestGenerateEmitsOnlyClosedHypotheses(t *testing.T) {
	srv := newModelServer(t, deltas(
		`{"hypotheses":[{"hypothesis":"H1","benefit":"B`,
		`1"}`,
		`,{"hypothesis":"H2","benefit":"B2"}]}`,
	))

	g := collect(NewHypothesisPipeline(srv.client(), nil), GenerateRequest{Credential: "tok"})

	require.NoError(t, g.err)
	require.Len(t, g.sets, 2)
	assert.Len(t, g.sets[0], 1)
	assert.Len(t, g.sets[1], 2)
	assert.Equal(t, g.sets[0][0], g.sets[1][0])
	assert.Equal(t, hypothesis.Hypothesis{Hypothesis: "H1", Benefit: "B1"}, g.sets[0][0])
}

func TestGenerateSkipsDeltasWithoutArray(t *testing.T) {
	srv := newModelServer(t, deltas(
		`{"hypoth`,
		`eses": [`,
		`{"hypothesis": "H1", "benefit": "B1"}`,
		`]}`,
	))

	g := collect(NewHypothesisPipeline(srv.client(), nil), GenerateRequest{Credential: "tok"})

	require.NoError(t, g.err)
	assert.Len(t, g.sets, 1, "the closing ]} does not change the set")
}

func TestGenerateTransportFailure(t *testing.T) {
	srv := newModelServer(t, script{status: http.StatusBadGateway})

	g := collect(NewHypothesisPipeline(srv.client(), nil), GenerateRequest{Credential: "tok"})

	assert.Empty(t, g.sets)
	assert.True(t, errors.Is(g.err, errors.CodeTransport))
}

func TestGenerateKeepsSetsBeforeStreamError(t *testing.T) {
	s := deltas(`{"hypotheses":[{"hypothesis":"H1","benefit":"B1"}`)
	s.chunks = append(s.chunks, `{"error":{"message":"rate limited"}}`)
	srv := newModelServer(t, s)

	g := collect(NewHypothesisPipeline(srv.client(), nil), GenerateRequest{Credential: "tok"})

	require.Len(t, g.sets, 1)
	assert.True(t, errors.Is(g.err, errors.CodeTransport))
	assert.Contains(t, g.err.Error(), "rate limited")
}

func TestGenerateRejectsSchemaViolations(t *testing.T) {
	srv := newModelServer(t,
		deltas(`{"hypotheses":[{"hypothesis":"H1","benefit":"B1","score":3}]}`),
		deltas(`{"hypotheses":[{"hypothesis":"H1","benefit":"B1"}`),
	)
	p := NewHypothesisPipeline(srv.client(), nil)

	g := collect(p, GenerateRequest{Credential: "tok"})
	assert.Empty(t, g.sets)
	assert.True(t, errors.Is(g.err, errors.CodeSchemaViolation))

	// a stream that ends before the document closes fails final validation
	g = collect(p, GenerateRequest{Credential: "tok"})
	assert.Len(t, g.sets, 1)
	assert.True(t, errors.Is(g.err, errors.CodeSchemaViolation))
}

func TestGenerateRequiresCredential(t *testing.T) {
	srv := newModelServer(t)

	g := collect(NewHypothesisPipeline(srv.client(), nil), GenerateRequest{})

	assert.True(t, errors.Is(g.err, errors.CodeAuthMissing))
	assert.Zero(t, srv.requestCount())
}

func TestGenerateRecordsUsage(t *testing.T) {
	s := deltas(`{"hypotheses":[]}`)
	s.chunks = append(s.chunks, usageChunk(321))
	srv := newModelServer(t, s)
	usage := &recordingUsage{}
	sessionID := uuid.New()

	g := collect(NewHypothesisPipeline(srv.client(), usage), GenerateRequest{SessionID: sessionID, Credential: "tok"})

	require.NoError(t, g.err)
	assert.Empty(t, g.sets, "an empty set is never emitted")
	require.Len(t, usage.calls, 1)
	assert.Equal(t, usageCall{sessionID: sessionID, operation: models.OpHypothesisGeneration, total: 321}, usage.calls[0])
}

func TestGenerateStopsWhenConsumerBreaks(t *testing.T) {
	srv := newModelServer(t, deltas(
		`{"hypotheses":[{"hypothesis":"H1","benefit":"B1"}`,
		`,{"hypothesis":"H2","benefit":"B2"}]}`,
	))

	var seen int
	for set, err := range NewHypothesisPipeline(srv.client(), nil).Generate(context.Background(), GenerateRequest{Credential: "tok"}) {
		require.NoError(t, err)
		seen = len(set)
		break
	}
	assert.Equal(t, 1, seen)
}
