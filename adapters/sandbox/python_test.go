package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"hypoforge/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInterpreter answers the startup ping, fails the next request and exits
const fakeInterpreter = `#!/bin/sh
read line
echo '{"ok":true,"value":"fake"}'
read line
echo 'fatal: boom' >&2
echo '{"ok":false,"error":"boom"}'
`

func TestPythonRuntimeDeliversFinalResponseBeforeExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Skipping runtime test: sh not found")
	}
	bin := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(bin, []byte(fakeInterpreter), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := StartPython(ctx, bin)
	require.NoError(t, err)
	defer rt.Close()

	err = rt.Exec(ctx, "raise SystemExit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeSandboxExecution))
	assert.Equal(t, "boom", err.Error())

	err = rt.Exec(ctx, "x = 1")
	assert.ErrorIs(t, err, ErrRuntimeGone)

	select {
	case <-rt.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("interpreter was never reaped")
	}
}
