package container

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"hypoforge/adapters/auth"
	"hypoforge/adapters/markdown"
	"hypoforge/adapters/memory"
	"hypoforge/adapters/postgres"
	"hypoforge/adapters/sandbox"
	"hypoforge/adapters/tabular"
	"hypoforge/ai"
	"hypoforge/app"
	"hypoforge/internal/config"
	"hypoforge/internal/errors"
	"hypoforge/internal/migration"
	"hypoforge/internal/session"
	"hypoforge/internal/usage"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	TestRuns ports.TestRunRepository
	Usage    ports.LLMUsageRepository

	// Collaborators
	Catalog  *models.DemoCatalog
	Loader   *tabular.Reader
	Tokens   ports.TokenProvider
	Executor *sandbox.Executor
	Sessions *session.Store

	// Pipelines
	Pipeline    *app.HypothesisPipeline
	Coordinator *app.TestCoordinator

	closers []io.Closer
}

// New wires every component from cfg. The database is optional; without
// DATABASE_URL runs and usage stay in memory.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:   cfg,
		Sessions: session.NewStore(),
	}

	if err := c.initRepositories(ctx); err != nil {
		return nil, err
	}

	catalog, err := models.LoadDemoCatalog(cfg.Paths.DemosConfig)
	if err != nil {
		c.Shutdown(ctx)
		return nil, err
	}
	c.Catalog = catalog

	tokens, err := c.initTokens()
	if err != nil {
		c.Shutdown(ctx)
		return nil, err
	}
	c.Tokens = tokens

	c.Loader = tabular.NewReader(&http.Client{Timeout: cfg.AI.Timeout})
	c.Executor = sandbox.NewExecutor(sandbox.PythonFactory(cfg.Sandbox.PythonBin), cfg.Sandbox.Timeout)
	c.closers = append(c.closers, c.Executor)

	client := ai.NewChatClient(cfg.ModelConfig())
	recorder := usage.NewService(c.Usage)
	c.Pipeline = app.NewHypothesisPipeline(client, recorder)
	c.Coordinator = app.NewTestCoordinator(client, c.Executor, markdown.NewRenderer(),
		ai.NewPromptManager(cfg.AI.PromptsDir), recorder, c.TestRuns)

	log.Printf("[Container] Ready: %d demos, model %s at %s", len(catalog.Demos), cfg.AI.Model, client.Endpoint())
	return c, nil
}

func (c *Container) initRepositories(ctx context.Context) error {
	if !c.Config.Database.Enabled() {
		log.Printf("[Container] DATABASE_URL not set, keeping test runs and usage in memory")
		c.TestRuns = memory.NewTestRunRepository()
		c.Usage = memory.NewLLMUsageRepository()
		return nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to connect to database: %w", err))
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return errors.Wrap(err, "database migration failed")
	}

	c.DB = db
	c.TestRuns = postgres.NewTestRunRepository(db)
	c.Usage = postgres.NewLLMUsageRepository(db)
	return nil
}

// initTokens picks the credential source: API key, then token file, then
// the token endpoint
func (c *Container) initTokens() (ports.TokenProvider, error) {
	cfg := c.Config.Auth
	switch {
	case cfg.APIKey != "":
		log.Printf("[Container] Using LLM_API_KEY credential")
		return auth.NewStaticToken(cfg.APIKey), nil
	case cfg.TokenFile != "":
		log.Printf("[Container] Reading credential from %s", cfg.TokenFile)
		tokens, err := auth.NewFileToken(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, tokens)
		return tokens, nil
	default:
		log.Printf("[Container] Fetching credentials from %s", cfg.TokenURL)
		return auth.NewEndpointToken(cfg.TokenURL, nil), nil
	}
}

// SweepSessions drops idle sessions until ctx ends
func (c *Container) SweepSessions(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sessions.Sweep(maxIdle)
		}
	}
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			log.Printf("[Container] Close failed: %v", err)
		}
	}

	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
