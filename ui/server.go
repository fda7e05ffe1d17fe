package ui

import (
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"hypoforge/app"
	"hypoforge/internal/session"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html static/*
var embeddedFiles embed.FS

// SessionCookie names the cookie carrying the session id
const SessionCookie = "hypoforge_session"

// Deps are the collaborators the HTTP surface drives
type Deps struct {
	Catalog     *models.DemoCatalog
	Loader      ports.DatasetLoader
	Pipeline    *app.HypothesisPipeline
	Coordinator *app.TestCoordinator
	Tokens      ports.TokenProvider
	Sessions    *session.Store
	Runs        ports.TestRunRepository
	Usage       ports.LLMUsageRepository
	LoginURL    string
}

// Server is the browser-facing web server
type Server struct {
	router    *gin.Engine
	templates *template.Template
	deps      Deps
}

// NewServer creates the server and registers its routes
func NewServer(deps Deps) (*Server, error) {
	templates, err := template.ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		router:    router,
		templates: templates,
		deps:      deps,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		log.Printf("[setupMiddleware] Error creating static filesystem: %v", err)
		return
	}
	s.router.StaticFS("/static", http.FS(staticFS))
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	withSession := s.router.Group("/", s.sessionMiddleware())
	withSession.GET("/", s.handleIndex)

	api := withSession.Group("/api")
	api.GET("/demos", s.handleDemos)
	api.GET("/runs", s.handleRuns)
	api.GET("/usage", s.handleUsage)
	api.POST("/demos/:index/hypotheses", s.handleHypotheses)
	api.POST("/hypotheses/:index/test", s.handleTest)
}

// Handler exposes the router for http.Server and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) renderTemplate(c *gin.Context, templateName string, data any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(c.Writer, templateName, data); err != nil {
		log.Printf("Template error: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
