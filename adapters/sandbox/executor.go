package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/ports"

	"golang.org/x/sync/semaphore"
)

const (
	// DataName is the global the dataset is bound to
	DataName = "data"
	// ResultName is the global the test outcome is read from
	ResultName = "result"

	invocation = "\n\nresult = test_hypothesis(data)"
)

// RuntimeFactory starts a sandbox runtime
type RuntimeFactory func(ctx context.Context) (ports.SandboxRuntime, error)

// PythonFactory starts PythonRuntime instances with the given interpreter
func PythonFactory(pythonBin string) RuntimeFactory {
	return func(ctx context.Context) (ports.SandboxRuntime, error) {
		return StartPython(ctx, pythonBin)
	}
}

// Executor runs generated tests one at a time on a shared runtime. Callers
// queue in FIFO order. The runtime is created on first use and re-created
// only after it has died or been killed.
type Executor struct {
	factory RuntimeFactory
	timeout time.Duration
	queue   *semaphore.Weighted

	// guarded by queue
	runtime ports.SandboxRuntime
}

// NewExecutor creates an executor; timeout bounds one execution
func NewExecutor(factory RuntimeFactory, timeout time.Duration) *Executor {
	return &Executor{
		factory: factory,
		timeout: timeout,
		queue:   semaphore.NewWeighted(1),
	}
}

// Execute binds ds as data, runs code followed by the test_hypothesis call,
// and reads result back. Once started, an execution is not interrupted by
// ctx; it runs until it finishes or the timeout kills the runtime. If ctx has
// ended by then the outcome is discarded and ctx's error returned.
func (e *Executor) Execute(ctx context.Context, code string, ds *dataset.Dataset) (hypothesis.Outcome, error) {
	if err := e.queue.Acquire(ctx, 1); err != nil {
		return hypothesis.Outcome{}, err
	}
	defer e.queue.Release(1)

	if err := ctx.Err(); err != nil {
		return hypothesis.Outcome{}, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	startTime := time.Now()
	outcome, err := e.run(runCtx, code, ds)
	timedOut := runCtx.Err() == context.DeadlineExceeded
	if err != nil && (timedOut || stderrors.Is(err, ErrRuntimeGone)) {
		e.reset()
	}
	if timedOut {
		err = errors.SandboxExecution(fmt.Sprintf("test did not finish within %s", e.timeout), err)
		outcome = hypothesis.Outcome{}
	}
	logger.Debug("execution finished in %s (err=%v)", time.Since(startTime).Round(time.Millisecond), err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("discarding sandbox result: requester is gone")
		return hypothesis.Outcome{}, ctxErr
	}
	return outcome, err
}

// Warm starts the runtime ahead of the first test
func (e *Executor) Warm(ctx context.Context) error {
	if err := e.queue.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.queue.Release(1)
	_, err := e.ensureRuntime(ctx)
	return err
}

// Close shuts the runtime down, waiting for a running execution
func (e *Executor) Close() error {
	if err := e.queue.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.queue.Release(1)
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close()
	e.runtime = nil
	return err
}

func (e *Executor) run(ctx context.Context, code string, ds *dataset.Dataset) (hypothesis.Outcome, error) {
	rt, err := e.ensureRuntime(ctx)
	if err != nil {
		return hypothesis.Outcome{}, err
	}
	if err := rt.BindFrame(ctx, DataName, ds); err != nil {
		return hypothesis.Outcome{}, errors.Wrap(err, "failed to bind dataset")
	}
	if err := rt.Exec(ctx, code+invocation); err != nil {
		return hypothesis.Outcome{}, err
	}
	raw, err := rt.Get(ctx, ResultName)
	if err != nil {
		return hypothesis.Outcome{}, err
	}
	return hypothesis.OutcomeFromJSON(raw)
}

func (e *Executor) ensureRuntime(ctx context.Context) (ports.SandboxRuntime, error) {
	if e.runtime != nil {
		return e.runtime, nil
	}
	rt, err := e.factory(ctx)
	if err != nil {
		return nil, errors.WithCode(errors.CodeSandboxExecution, err)
	}
	e.runtime = rt
	return rt, nil
}

func (e *Executor) reset() {
	if e.runtime != nil {
		e.runtime.Close()
		e.runtime = nil
	}
}
