package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := Transport(502, "bad gateway", nil)
	wrapped := Wrap(base, "hypothesis generation aborted")

	assert.Equal(t, CodeTransport, GetCode(wrapped))
	assert.True(t, Is(wrapped, CodeTransport))
	assert.Contains(t, wrapped.Error(), "status 502")
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("card 2: %w", NoCodeBlockFound())

	assert.Equal(t, CodeNoCodeBlock, GetCode(err))
	assert.True(t, Is(err, CodeNoCodeBlock))
}

func TestWrapPlainErrorIsInternal(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, "read failed")

	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestTransportWithoutStatus(t *testing.T) {
	err := Transport(0, "", io.EOF)

	assert.Equal(t, "model stream failed: EOF", err.Error())
	assert.Equal(t, 0, err.Status)
}

func TestUnknownCode(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(io.EOF))
	assert.False(t, Is(nil, CodeTransport))
}
