package app

import (
	"context"
	stderrors "errors"
	"io"
	"log"
	"time"

	"hypoforge/ai"
	"hypoforge/ai/stream"
	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
)

// TestState is a step of the test state machine for one hypothesis
type TestState string

const (
	StatePrompting         TestState = "prompting"
	StateResponseStreaming TestState = "response_streaming"
	StateCodeExtraction    TestState = "code_extraction"
	StateExecuting         TestState = "executing"
	StateExecutionFailed   TestState = "execution_failed"
	StateInterpreting      TestState = "interpreting"
	StateDone              TestState = "done"
	StateFailed            TestState = "failed"
	StateCanceled          TestState = "canceled"
)

// Terminal reports whether no further transition follows s
func (s TestState) Terminal() bool {
	switch s {
	case StateExecutionFailed, StateDone, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Target names an output area of a hypothesis card
type Target string

const (
	TargetAnalysis Target = "analysis"
	TargetOutcome  Target = "outcome"
)

// TestSink receives a run's progress. Calls happen on the coordinator's
// goroutine, in order; the next delta is not read until Frame returns.
type TestSink interface {
	State(state TestState)
	// Frame carries the full rendered text of target so far
	Frame(target Target, html, markdown string)
	Code(code string)
	Outcome(outcome hypothesis.Outcome)
}

// TestInput defines inputs for one test run
type TestInput struct {
	SessionID  uuid.UUID
	Demo       string
	Hypothesis hypothesis.Hypothesis
	Dataset    *dataset.Dataset
	Summary    string
	// AnalysisPrompt overrides the configured analysis instructions when set
	AnalysisPrompt string
	Credential     string
}

// TestCoordinator runs the analysis, execution and interpretation stages for
// one hypothesis at a time
type TestCoordinator struct {
	streamer ports.ChatStreamer
	executor ports.CodeExecutor
	renderer ports.MarkdownRenderer
	prompts  *ai.PromptManager
	usage    ports.UsageRecorder
	runs     ports.TestRunRepository
}

// NewTestCoordinator creates a coordinator; usage and runs may be nil
func NewTestCoordinator(streamer ports.ChatStreamer, executor ports.CodeExecutor, renderer ports.MarkdownRenderer,
	prompts *ai.PromptManager, usage ports.UsageRecorder, runs ports.TestRunRepository) *TestCoordinator {
	return &TestCoordinator{
		streamer: streamer,
		executor: executor,
		renderer: renderer,
		prompts:  prompts,
		usage:    usage,
		runs:     runs,
	}
}

// Run drives one hypothesis through the state machine. The returned run is
// always non-nil and carries the terminal state; err is the failure that
// ended it, if any. Failures never leave this run.
func (c *TestCoordinator) Run(ctx context.Context, in TestInput, sink TestSink) (*models.TestRun, error) {
	run := &models.TestRun{
		ID:         uuid.New(),
		SessionID:  in.SessionID,
		Demo:       in.Demo,
		Hypothesis: in.Hypothesis.Hypothesis,
		Benefit:    in.Hypothesis.Benefit,
		StartedAt:  time.Now(),
	}

	state, err := c.run(ctx, in, sink, run)
	if err != nil && ctx.Err() != nil {
		state, err = StateCanceled, ctx.Err()
	}
	run.State = string(state)
	run.CompletedAt = time.Now()
	if err != nil {
		run.ErrorCode = errors.GetCode(err)
		run.ErrorMessage = err.Error()
	}
	if state != StateCanceled {
		sink.State(state)
	}

	log.Printf("[TestCoordinator] %q finished in state %s after %.2fs", truncateForLog(run.Hypothesis),
		state, run.Duration().Seconds())
	c.save(ctx, run)
	return run, err
}

func (c *TestCoordinator) run(ctx context.Context, in TestInput, sink TestSink, run *models.TestRun) (TestState, error) {
	sink.State(StatePrompting)
	system := in.AnalysisPrompt
	if system == "" {
		var err error
		if system, err = c.prompts.LoadPrompt(ai.PromptAnalysis); err != nil {
			return StateFailed, errors.WithCode(errors.CodeConfigInvalid, err)
		}
	}

	analysis, err := c.streamMarkdown(ctx, in, sink, TargetAnalysis, models.OpHypothesisAnalysis, ai.ChatRequest{
		System: system,
		User:   ai.AnalysisUserContent(in.Hypothesis, in.Summary),
	}, StateResponseStreaming)
	run.Analysis = analysis
	if err != nil {
		return StateFailed, err
	}

	sink.State(StateCodeExtraction)
	code, err := ExtractCode(analysis)
	if err != nil {
		return StateFailed, err
	}
	run.Code = code
	sink.Code(code)

	sink.State(StateExecuting)
	outcome, err := c.executor.Execute(ctx, code, in.Dataset)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, errors.CodeSandboxExecution) {
			err = errors.SandboxExecution("test execution failed", err)
		}
		return StateExecutionFailed, err
	}
	run.Statistic = &outcome.Statistic
	run.PValue = &outcome.PValue
	sink.Outcome(outcome)

	system, err = c.prompts.LoadPrompt(ai.PromptInterpretation)
	if err != nil {
		return StateFailed, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	interpretation, err := c.streamMarkdown(ctx, in, sink, TargetOutcome, models.OpResultInterpretation, ai.ChatRequest{
		System: system,
		User:   ai.InterpretationUserContent(in.Hypothesis, in.Summary, outcome),
	}, StateInterpreting)
	run.Interpretation = interpretation
	if err != nil {
		return StateFailed, err
	}
	return StateDone, nil
}

// streamMarkdown consumes one free-text stream, rendering every delta into
// target before reading the next. It returns the full text.
func (c *TestCoordinator) streamMarkdown(ctx context.Context, in TestInput, sink TestSink, target Target,
	operation string, req ai.ChatRequest, state TestState) (string, error) {
	dec, err := c.streamer.Stream(ctx, in.Credential, req)
	if err != nil {
		return "", err
	}
	defer dec.Close()
	sink.State(state)

	for {
		ev, err := dec.Next()
		if stderrors.Is(err, io.EOF) {
			return dec.Content(), nil
		}
		if err != nil {
			return dec.Content(), err
		}
		switch ev.Kind {
		case stream.EventContent:
			sink.Frame(target, c.renderer.Render(ev.Content), ev.Content)
		case stream.EventUsage:
			if c.usage != nil {
				c.usage.RecordUsage(ctx, in.SessionID, operation, ev.Usage)
			}
		}
	}
}

func (c *TestCoordinator) save(ctx context.Context, run *models.TestRun) {
	if c.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.runs.SaveTestRun(saveCtx, run); err != nil {
		log.Printf("[TestCoordinator] Failed to save run %s: %v", run.ID, err)
	}
}

func truncateForLog(s string) string {
	const limit = 60
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
