package ports

import (
	"context"

	"hypoforge/ai"
	"hypoforge/ai/stream"

	"github.com/google/uuid"
)

// ChatStreamer opens one streamed model completion. Implementations return
// AUTH_MISSING for an empty credential and TRANSPORT_ERROR when the stream
// cannot be opened.
type ChatStreamer interface {
	Stream(ctx context.Context, credential string, req ai.ChatRequest) (*stream.Decoder, error)
}

// UsageRecorder receives the terminal usage record of each stream
type UsageRecorder interface {
	RecordUsage(ctx context.Context, sessionID uuid.UUID, operation string, usage *stream.Usage)
}
