// Package main is the entry point for the reading companion agent.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/session/database"
	"google.golang.org/genai"
	"gorm.io/driver/postgres"

	internalagent "github.com/easeaico/bookmind/internal/agent"
	"github.com/easeaico/bookmind/internal/config"
	"github.com/easeaico/bookmind/internal/memory"
	"github.com/easeaico/bookmind/internal/models"
	"github.com/easeaico/bookmind/internal/storage"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
		// The launcher may be blocked on stdin; give it a moment, then
		// force the exit.
		time.Sleep(500 * time.Millisecond)
		os.Exit(0)
	}()

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	deps := store.Deps()
	deps.Generator, err = newSummaryGenerator(ctx, &cfg)
	if err != nil {
		log.Fatalf("failed to create summary generator: %v", err)
	}
	if cfg.EmbedNodes && cfg.GoogleAPIKey != "" {
		deps.Embedder, err = memory.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if err != nil {
			log.Fatalf("failed to create embedder: %v", err)
		}
	}

	svc := memory.NewService(deps)
	memoryService := memory.NewADKService(svc, cfg.MaxContextTokens)

	sessionService, err := database.NewSessionService(postgres.Open(cfg.DatabaseURL))
	if err != nil {
		log.Fatalf("failed to create session service: %v", err)
	}

	companion, err := internalagent.NewCompanionAgent(ctx, &cfg)
	if err != nil {
		log.Fatalf("failed to initialize agent: %v", err)
	}

	launcherConfig := &launcher.Config{
		SessionService: sessionService,
		MemoryService:  memoryService,
		AgentLoader:    agent.NewSingleLoader(companion),
	}
	l := full.NewLauncher()

	if err := l.Execute(ctx, launcherConfig, os.Args[1:]); err != nil {
		if err != context.Canceled && err != context.DeadlineExceeded {
			log.Fatalf("failed to run agent: %v\n\n%s", err, l.CommandLineSyntax())
		}
	}
}

// newSummaryGenerator prefers an agent-backed Gemini summarizer and falls back
// to the OpenAI-compatible endpoint when no Google key is configured.
func newSummaryGenerator(ctx context.Context, cfg *config.Config) (memory.TextGenerator, error) {
	if cfg.GoogleAPIKey != "" {
		summaryModel, err := gemini.NewModel(ctx, cfg.SummaryModel, &genai.ClientConfig{
			APIKey:  cfg.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create summary model: %w", err)
		}
		return internalagent.NewThreadSummarizer(ctx, summaryModel)
	}
	return models.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SummaryModel)
}
