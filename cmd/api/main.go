package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"diagramgen/internal/gateway/config"
	"diagramgen/internal/gateway/handler"
	"diagramgen/internal/gateway/handler/rpc"
	"diagramgen/internal/gateway/middleware"
	"diagramgen/internal/gateway/run"
	"diagramgen/internal/gateway/server"
	"diagramgen/internal/github"
	"diagramgen/internal/llm"
	"diagramgen/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine, err := newEngine(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("init llm engine: %v", err)
	}
	defer engine.Close()
	log.Printf("Using LLM engine %s", engine.Name())

	provider, err := github.NewCachedProvider(github.NewClient(cfg.GitHub), cfg.Cache.Size)
	if err != nil {
		log.Fatalf("init metadata cache: %v", err)
	}

	svc := pipeline.NewService(engine, cfg.Pipeline.PhaseTimeout)
	trace := run.NewTraceStore(cfg.Trace)

	apiHandler := handler.New(svc, provider, trace, cfg.LLM.Provider)
	diagramHandler := rpc.NewDiagramHandler(svc, provider, trace)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)

	srv := server.New(cfg.Port, server.NewMux(apiHandler, diagramHandler, limiter))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func newEngine(ctx context.Context, cfg config.LLMConfig) (llm.Engine, error) {
	if cfg.Provider == "gemini" {
		return llm.NewGeminiEngine(ctx, cfg)
	}
	return llm.NewOllamaEngine(cfg), nil
}
