package app

import (
	"context"
	"io"
	"iter"
	"log"
	"slices"
	"time"

	"hypoforge/ai"
	"hypoforge/ai/partial"
	"hypoforge/ai/stream"
	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
)

// HypothesisPipeline turns a dataset summary into a live sequence of
// hypothesis sets streamed from the model
type HypothesisPipeline struct {
	streamer ports.ChatStreamer
	usage    ports.UsageRecorder
}

// GenerateRequest defines inputs for one generation stream
type GenerateRequest struct {
	SessionID      uuid.UUID
	Summary        string
	AudiencePrompt string
	Credential     string
}

// NewHypothesisPipeline creates a pipeline; usage may be nil
func NewHypothesisPipeline(streamer ports.ChatStreamer, usage ports.UsageRecorder) *HypothesisPipeline {
	return &HypothesisPipeline{streamer: streamer, usage: usage}
}

// Summarize describes the dataset for the model
func (p *HypothesisPipeline) Summarize(ds *dataset.Dataset) string {
	return dataset.Summarize(ds)
}

// Generate opens one schema-constrained stream and yields a new Set every
// time the closed hypotheses change. Each yielded Set replaces the previous
// one. Nothing is yielded until the first hypothesis has closed.
//
// A failure is yielded once as (nil, err) and ends the sequence; sets yielded
// before it stay valid. Breaking out of the loop closes the stream.
func (p *HypothesisPipeline) Generate(ctx context.Context, req GenerateRequest) iter.Seq2[hypothesis.Set, error] {
	return func(yield func(hypothesis.Set, error) bool) {
		startTime := time.Now()

		dec, err := p.streamer.Stream(ctx, req.Credential, ai.ChatRequest{
			System:         req.AudiencePrompt,
			User:           req.Summary,
			ResponseFormat: ai.HypothesesResponseFormat(),
		})
		if err != nil {
			log.Printf("[HypothesisPipeline] Failed to open stream: %v", err)
			yield(nil, err)
			return
		}
		defer dec.Close()

		var last hypothesis.Set
		emitted := 0
		for {
			ev, err := dec.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				log.Printf("[HypothesisPipeline] Stream failed after %d sets: %v", emitted, err)
				yield(nil, err)
				return
			}

			switch ev.Kind {
			case stream.EventUsage:
				p.recordUsage(ctx, req.SessionID, ev.Usage)
			case stream.EventContent:
				value, ok := partial.Parse(ev.Content)
				if !ok {
					continue
				}
				set, ok, err := hypothesis.FromPartial(value)
				if err != nil {
					log.Printf("[HypothesisPipeline] Model output violates the schema: %v", err)
					yield(nil, errors.WithCode(errors.CodeSchemaViolation, err))
					return
				}
				if !ok || slices.Equal(set, last) {
					continue
				}
				last = set
				emitted++
				if !yield(set.Clone(), nil) {
					return
				}
			}
		}

		if err := ai.ValidateHypothesesDocument(dec.Content()); err != nil {
			log.Printf("[HypothesisPipeline] Final document rejected: %v", err)
			yield(nil, err)
			return
		}

		log.Printf("[HypothesisPipeline] Generated %d hypotheses in %.2fs (%d updates)",
			len(last), time.Since(startTime).Seconds(), emitted)
	}
}

func (p *HypothesisPipeline) recordUsage(ctx context.Context, sessionID uuid.UUID, usage *stream.Usage) {
	if p.usage == nil || usage == nil {
		return
	}
	p.usage.RecordUsage(ctx, sessionID, models.OpHypothesisGeneration, usage)
}
