package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/internal/container"
	"hypoforge/ui"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	sessionSweepInterval = 10 * time.Minute
	sessionMaxIdle       = 12 * time.Hour
	shutdownTimeout      = 10 * time.Second
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	internal.DefaultLogger.SetLevel(internal.ParseLevel(appConfig.LogLevel))
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	server, err := ui.NewServer(ui.Deps{
		Catalog:     appContainer.Catalog,
		Loader:      appContainer.Loader,
		Pipeline:    appContainer.Pipeline,
		Coordinator: appContainer.Coordinator,
		Tokens:      appContainer.Tokens,
		Sessions:    appContainer.Sessions,
		Runs:        appContainer.TestRuns,
		Usage:       appContainer.Usage,
		LoginURL:    appConfig.Auth.LoginURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// the first test does not wait for python to import the scientific stack
	g.Go(func() error {
		if err := appContainer.Executor.Warm(gctx); err != nil {
			log.Printf("[main] Sandbox warm-up failed, retrying on first test: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		appContainer.SweepSessions(gctx, sessionSweepInterval, sessionMaxIdle)
		return nil
	})

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Printf("🚀 Starting hypoforge on port %s", appConfig.Server.Port)
		return serve(gctx, httpServer)
	})

	if appConfig.Profiling.Enabled {
		opsServer := &http.Server{
			Addr:              ":" + appConfig.Profiling.Port,
			Handler:           opsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Printf("🚀 Ops server starting on :%s", appConfig.Profiling.Port)
			log.Printf("💡 View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
			return serve(gctx, opsServer)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

// serve runs srv until ctx ends, then drains open requests
func serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// opsRouter serves health and pprof endpoints apart from the public server
func opsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}
