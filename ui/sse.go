package ui

import (
	"log"

	"hypoforge/app"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// eventStream writes server-sent events to one response
type eventStream struct {
	c *gin.Context
}

func openEventStream(c *gin.Context) *eventStream {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	return &eventStream{c: c}
}

// send writes one event; structs, maps and slices are JSON-encoded
func (es *eventStream) send(event string, data any) {
	es.c.Render(-1, sse.Event{Event: event, Data: data})
	es.c.Writer.Flush()
}

func (es *eventStream) sendError(err error) {
	log.Printf("[SSE] %s: %v", es.c.FullPath(), err)
	es.send("error", gin.H{"code": errors.GetCode(err), "message": err.Error()})
}

// testSink forwards a test run's progress to the browser
type testSink struct {
	es    *eventStream
	index int
}

var _ app.TestSink = (*testSink)(nil)

func (s *testSink) State(state app.TestState) {
	s.es.send("state", gin.H{"index": s.index, "state": state})
}

func (s *testSink) Frame(target app.Target, html, markdown string) {
	event := "analysis"
	if target == app.TargetOutcome {
		event = "interpretation"
	}
	s.es.send(event, gin.H{"index": s.index, "html": html, "markdown": markdown})
}

func (s *testSink) Code(code string) {
	s.es.send("code", gin.H{"index": s.index, "code": code})
}

func (s *testSink) Outcome(outcome hypothesis.Outcome) {
	s.es.send("outcome", gin.H{
		"index":       s.index,
		"statistic":   jsonNumber(outcome.Statistic),
		"p_value":     jsonNumber(outcome.PValue),
		"significant": outcome.Significant(hypothesis.SignificanceLevel),
	})
}
