package ui

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"hypoforge/app"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
	"hypoforge/internal/session"
	"hypoforge/models"

	"github.com/gin-gonic/gin"
)

type indexPage struct {
	Demos    []models.Demo
	LoginURL string
}

func (s *Server) handleIndex(c *gin.Context) {
	page := indexPage{Demos: s.deps.Catalog.Demos}
	if _, err := s.credential(c); errors.Is(err, errors.CodeAuthMissing) {
		page.LoginURL = s.loginURL(c)
	}
	s.renderTemplate(c, "index.html", page)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.deps.Sessions.Len()})
}

func (s *Server) handleDemos(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Catalog)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.deps.Runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []any{}})
		return
	}
	runs, err := s.deps.Runs.ListSessionRuns(c.Request.Context(), currentSession(c).ID, 50)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// handleUsage reports the tokens the session has spent so far
func (s *Server) handleUsage(c *gin.Context) {
	if s.deps.Usage == nil {
		c.JSON(http.StatusOK, gin.H{"total_tokens": 0})
		return
	}
	sess := currentSession(c)
	total, err := s.deps.Usage.GetTotalTokens(c.Request.Context(), sess.ID, sess.CreatedAt, time.Now())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_tokens": total})
}

type hypothesesRequest struct {
	Audience string `json:"audience"`
}

// handleHypotheses selects a demo dataset and streams hypothesis sets
func (s *Server) handleHypotheses(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.abortWithError(c, errors.InvalidInput("demo index must be an integer"))
		return
	}
	demo, err := s.deps.Catalog.Get(index)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	credential, err := s.credential(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var req hypothesesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortWithError(c, errors.InvalidInput(err.Error()))
			return
		}
	}
	audience := req.Audience
	if audience == "" {
		audience = demo.Audience
	}

	es := openEventStream(c)
	ctx := c.Request.Context()

	ds, err := s.deps.Loader.Load(ctx, demo.Href)
	if err != nil {
		es.sendError(err)
		return
	}
	sess := currentSession(c)
	summary := s.deps.Pipeline.Summarize(ds)
	sel := sess.SelectDataset(index, demo, ds, summary)
	es.send("summary", gin.H{
		"demo":    demo.Title,
		"rows":    ds.Len(),
		"columns": ds.Columns(),
		"summary": summary,
	})

	streamCtx, cancel := sel.Bind(ctx)
	defer cancel()

	for set, err := range s.deps.Pipeline.Generate(streamCtx, app.GenerateRequest{
		SessionID:      sess.ID,
		Summary:        summary,
		AudiencePrompt: audience,
		Credential:     credential,
	}) {
		if err != nil {
			if streamCtx.Err() == nil {
				es.sendError(err)
			}
			return
		}
		shown := sel.Board.Replace(set)
		es.send("hypotheses", gin.H{"hypotheses": shown, "frozen": frozenIndices(sel.Board, len(shown))})
	}
	shown := sel.Board.Snapshot()
	es.send("done", gin.H{"hypotheses": shown, "frozen": frozenIndices(sel.Board, len(shown))})
}

// frozenIndices lists the cards already tested, which keep their text while
// the stream continues
func frozenIndices(board *session.Board, n int) []int {
	frozen := []int{}
	for i := 0; i < n; i++ {
		if board.Frozen(i) {
			frozen = append(frozen, i)
		}
	}
	return frozen
}

type testRequest struct {
	AnalysisPrompt string `json:"analysis_prompt"`
}

// handleTest runs one hypothesis of the current selection through the test
// state machine, streaming progress
func (s *Server) handleTest(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.abortWithError(c, errors.InvalidInput("hypothesis index must be an integer"))
		return
	}
	sess := currentSession(c)
	sel, ok := sess.Current()
	if !ok {
		s.abortWithError(c, errors.InvalidInput("select a dataset first"))
		return
	}
	credential, err := s.credential(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var req testRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortWithError(c, errors.InvalidInput(err.Error()))
			return
		}
	}

	h, release, err := sel.Board.Begin(index)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	defer release()

	es := openEventStream(c)
	ctx, cancel := sel.Bind(c.Request.Context())
	defer cancel()

	run, err := s.deps.Coordinator.Run(ctx, app.TestInput{
		SessionID:      sess.ID,
		Demo:           sel.Demo.Title,
		Hypothesis:     h,
		Dataset:        sel.Dataset,
		Summary:        sel.Summary,
		AnalysisPrompt: req.AnalysisPrompt,
		Credential:     credential,
	}, &testSink{es: es, index: index})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		es.sendError(err)
	}
	es.send("done", gin.H{
		"index":       index,
		"run_id":      run.ID,
		"state":       run.State,
		"hypothesis":  hypothesis.Hypothesis{Hypothesis: run.Hypothesis, Benefit: run.Benefit},
		"duration_ms": run.Duration().Milliseconds(),
	})
}

// jsonNumber keeps non-finite values encodable
func jsonNumber(v float64) any {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return v
}
