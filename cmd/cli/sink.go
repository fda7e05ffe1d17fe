package main

import (
	"fmt"
	"io"
	"strings"

	"hypoforge/app"
	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"

	"github.com/fatih/color"
)

// terminalSink prints a test run as it progresses. Frames carry the whole
// text so far; only the new suffix is written.
type terminalSink struct {
	out     io.Writer
	printed map[app.Target]int
	state   *color.Color
	code    *color.Color
	outcome *color.Color
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{
		out:     out,
		printed: make(map[app.Target]int),
		state:   color.New(color.FgYellow),
		code:    color.New(color.FgGreen),
		outcome: color.New(color.Bold),
	}
}

func (s *terminalSink) State(state app.TestState) {
	label := strings.ReplaceAll(string(state), "_", " ")
	if state == app.StateExecutionFailed || state == app.StateFailed {
		color.New(color.FgRed).Fprintf(s.out, "\n[%s]\n", label)
		return
	}
	s.state.Fprintf(s.out, "\n[%s]\n", label)
}

func (s *terminalSink) Frame(target app.Target, _, markdown string) {
	n := s.printed[target]
	if len(markdown) < n {
		n = 0
	}
	fmt.Fprint(s.out, markdown[n:])
	s.printed[target] = len(markdown)
}

func (s *terminalSink) Code(code string) {
	s.code.Fprintf(s.out, "\n%s\n", code)
}

func (s *terminalSink) Outcome(o hypothesis.Outcome) {
	verdict := "not significant"
	if o.Significant(hypothesis.SignificanceLevel) {
		verdict = "significant"
	}
	s.outcome.Fprintf(s.out, "statistic %s, p-value %s (%s at %s)\n",
		dataset.FormatCompact(o.Statistic), dataset.FormatCompact(o.PValue),
		verdict, dataset.FormatCompact(hypothesis.SignificanceLevel))
}
