package internal

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelTrace, ParseLevel("trace"))
	assert.Equal(t, LogLevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestNamedLoggerPrefixesAndFilters(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	l := NewLogger(LogLevelDebug).Named("StreamDecoder")
	l.Debug("chunk %d", 3)
	l.Trace("hidden")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] [StreamDecoder] chunk 3")
	assert.NotContains(t, out, "hidden")
}
