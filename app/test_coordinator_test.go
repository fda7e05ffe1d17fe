package app

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"hypoforge/adapters/markdown"
	"hypoforge/adapters/memory"
	"hypoforge/ai"
	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	codes   []string
	outcome hypothesis.Outcome
	err     error
}

func (f *fakeExecutor) Execute(ctx context.Context, code string, ds *dataset.Dataset) (hypothesis.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return f.outcome, f.err
}

type frame struct {
	target   Target
	html     string
	markdown string
}

type recordingSink struct {
	states   []TestState
	frames   []frame
	code     string
	outcomes []hypothesis.Outcome
}

func (s *recordingSink) State(state TestState) { s.states = append(s.states, state) }
func (s *recordingSink) Code(code string)      { s.code = code }
func (s *recordingSink) Outcome(o hypothesis.Outcome) {
	s.outcomes = append(s.outcomes, o)
}
func (s *recordingSink) Frame(target Target, html, md string) {
	s.frames = append(s.frames, frame{target: target, html: html, markdown: md})
}

func (s *recordingSink) framesFor(target Target) []frame {
	var out []frame
	for _, f := range s.frames {
		if f.target == target {
			out = append(out, f)
		}
	}
	return out
}

func testInput(t *testing.T) TestInput {
	t.Helper()
	ds, err := dataset.New([]string{"x"}, []dataset.Record{{"x": 1.0}, {"x": 2.0}})
	require.NoError(t, err)
	return TestInput{
		SessionID:  uuid.New(),
		Demo:       "Demo",
		Hypothesis: hypothesis.Hypothesis{Hypothesis: "x is positive", Benefit: "sanity"},
		Dataset:    ds,
		Summary:    dataset.Summarize(ds),
		Credential: "tok",
	}
}

func newCoordinator(srv *modelServer, exec *fakeExecutor, runs *memory.TestRunRepository, usage *recordingUsage) *TestCoordinator {
	c := NewTestCoordinator(srv.client(), exec, markdown.NewRenderer(), ai.NewPromptManager(""), nil, runs)
	if usage != nil {
		c.usage = usage
	}
	return c
}

func TestRunHappyPath(t *testing.T) {
	srv := newModelServer(t,
		deltas("The mean ", "should be positive.\n\n```python\ndef test_hypothesis(df):\n",
			"    return (1.0, 0.5)\n```\n\nRevised:\n\n```python\ndef test_hypothesis(df):\n    return (2.0, 0.01)\n```\n"),
		deltas("##### Positive\n", "The values are **clearly** positive."),
	)
	exec := &fakeExecutor{outcome: hypothesis.Outcome{Statistic: 2, PValue: 0.01}}
	runs := memory.NewTestRunRepository()
	usage := &recordingUsage{}
	in := testInput(t)
	sink := &recordingSink{}

	run, err := newCoordinator(srv, exec, runs, usage).Run(context.Background(), in, sink)
	require.NoError(t, err)

	assert.Equal(t, []TestState{
		StatePrompting, StateResponseStreaming, StateCodeExtraction, StateExecuting, StateInterpreting, StateDone,
	}, sink.states)

	analysis := sink.framesFor(TargetAnalysis)
	require.Len(t, analysis, 3, "one frame per delta")
	assert.Equal(t, "The mean ", analysis[0].markdown)
	assert.Contains(t, analysis[0].html, "<p>The mean")
	assert.Contains(t, analysis[2].html, `class="hljs language-python"`)

	require.Len(t, exec.codes, 1)
	assert.Equal(t, "def test_hypothesis(df):\n    return (2.0, 0.01)", exec.codes[0])
	assert.Equal(t, exec.codes[0], sink.code)
	assert.Equal(t, []hypothesis.Outcome{{Statistic: 2, PValue: 0.01}}, sink.outcomes)

	outcome := sink.framesFor(TargetOutcome)
	require.Len(t, outcome, 2)
	assert.Contains(t, outcome[1].html, "<strong>clearly</strong>")

	interp := srv.request(1)["messages"].([]any)[1].(map[string]any)["content"].(string)
	assert.Contains(t, interp, "Hypothesis: x is positive")
	assert.Contains(t, interp, "Result: 2. p-value: 0.01")
	assert.Nil(t, srv.request(0)["response_format"])

	assert.Equal(t, string(StateDone), run.State)
	saved, err := runs.GetTestRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "##### Positive\nThe values are **clearly** positive.", saved.Interpretation)
	require.NotNil(t, saved.PValue)
	assert.Equal(t, 0.01, *saved.PValue)
}

func TestRunSandboxFailureSkipsInterpretation(t *testing.T) {
	srv := newModelServer(t,
		deltas("```python\ndef test_hypothesis(df):\n    return df['missing']\n```"),
		deltas("should never be requested"),
	)
	exec := &fakeExecutor{err: errors.SandboxExecution("KeyError: 'missing'", nil)}
	runs := memory.NewTestRunRepository()
	sink := &recordingSink{}

	run, err := newCoordinator(srv, exec, runs, nil).Run(context.Background(), testInput(t), sink)

	assert.True(t, errors.Is(err, errors.CodeSandboxExecution))
	assert.Equal(t, StateExecutionFailed, sink.states[len(sink.states)-1])
	assert.NotContains(t, sink.states, StateInterpreting)
	assert.Empty(t, sink.framesFor(TargetOutcome))
	assert.Equal(t, 1, srv.requestCount(), "no interpretation stream is opened")

	assert.Equal(t, string(StateExecutionFailed), run.State)
	assert.Equal(t, errors.CodeSandboxExecution, run.ErrorCode)
	assert.Contains(t, run.ErrorMessage, "KeyError")
}

func TestRunWithoutCodeBlock(t *testing.T) {
	srv := newModelServer(t, deltas("I cannot test this hypothesis."))
	exec := &fakeExecutor{}
	sink := &recordingSink{}

	run, err := newCoordinator(srv, exec, nil, nil).Run(context.Background(), testInput(t), sink)

	assert.True(t, errors.Is(err, errors.CodeNoCodeBlock))
	assert.Empty(t, exec.codes)
	assert.Equal(t, string(StateFailed), run.State)
	assert.Equal(t, "I cannot test this hypothesis.", run.Analysis)
}

func TestRunAnalysisTransportFailure(t *testing.T) {
	srv := newModelServer(t, script{status: http.StatusUnauthorized})
	exec := &fakeExecutor{}
	sink := &recordingSink{}

	_, err := newCoordinator(srv, exec, nil, nil).Run(context.Background(), testInput(t), sink)

	assert.True(t, errors.Is(err, errors.CodeTransport))
	assert.Equal(t, []TestState{StatePrompting, StateFailed}, sink.states)
	assert.Empty(t, exec.codes)
}

func TestRunUsesAnalysisPromptOverride(t *testing.T) {
	srv := newModelServer(t, deltas("no code"))
	in := testInput(t)
	in.AnalysisPrompt = "Use a chi-square test."

	_, _ = newCoordinator(srv, &fakeExecutor{}, nil, nil).Run(context.Background(), in, &recordingSink{})

	system := srv.request(0)["messages"].([]any)[0].(map[string]any)["content"]
	assert.Equal(t, "Use a chi-square test.", system)
}

func TestRunRecordsUsagePerStage(t *testing.T) {
	analysis := deltas("```python\ndef test_hypothesis(df):\n    return (1, 0.2)\n```")
	analysis.chunks = append(analysis.chunks, usageChunk(100))
	interpretation := deltas("##### Not significant")
	interpretation.chunks = append(interpretation.chunks, usageChunk(40))
	srv := newModelServer(t, analysis, interpretation)
	usage := &recordingUsage{}
	in := testInput(t)

	_, err := newCoordinator(srv, &fakeExecutor{outcome: hypothesis.Outcome{Statistic: 1, PValue: 0.2}}, nil, usage).
		Run(context.Background(), in, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, []usageCall{
		{sessionID: in.SessionID, operation: models.OpHypothesisAnalysis, total: 100},
		{sessionID: in.SessionID, operation: models.OpResultInterpretation, total: 40},
	}, usage.calls)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	srv := newModelServer(t, deltas("anything"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}

	run, err := newCoordinator(srv, &fakeExecutor{}, nil, nil).Run(ctx, testInput(t), sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, string(StateCanceled), run.State)
	assert.NotContains(t, sink.states, StateCanceled)
}
