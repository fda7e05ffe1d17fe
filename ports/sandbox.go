package ports

import (
	"context"
	"encoding/json"

	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
)

// SandboxRuntime is a process-wide code interpreter with one global namespace.
type SandboxRuntime interface {
	// BindFrame converts a dataset to the runtime's native dataframe and binds it to name.
	BindFrame(ctx context.Context, name string, ds *dataset.Dataset) error
	// Bind binds a JSON value to name.
	Bind(ctx context.Context, name string, value json.RawMessage) error
	// Exec runs source text in the global namespace.
	Exec(ctx context.Context, source string) error
	// Get reads a named value back as JSON.
	Get(ctx context.Context, name string) (json.RawMessage, error)
	Close() error
}

// CodeExecutor runs a generated test against a dataset. The code must define
// test_hypothesis(df) returning (statistic, p_value).
type CodeExecutor interface {
	Execute(ctx context.Context, code string, ds *dataset.Dataset) (hypothesis.Outcome, error)
}
