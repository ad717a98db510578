package agent

import (
	"context"
	"fmt"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/easeaico/bookmind/internal/config"
	customtool "github.com/easeaico/bookmind/internal/tool"
)

const companionInstruction = `You are a thoughtful reading companion.
You discuss the book the user is currently reading: its characters, themes,
plot, and background. Use the memory context you are given to refer back to
earlier conversations naturally. Never spoil parts of the book the reader has
not reached when the context tells you their progress.`

// NewCompanionAgent builds the reading companion agent with the context
// preload tool attached.
func NewCompanionAgent(ctx context.Context, cfg *config.Config) (agent.Agent, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required to run the companion agent")
	}

	llmModel, err := gemini.NewModel(ctx, cfg.LLMModel, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create companion model: %w", err)
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        "reading_companion",
		Description: "Book discussion companion with long-term memory",
		Model:       llmModel,
		Instruction: companionInstruction,
		Tools:       []tool.Tool{customtool.NewPreloadContextTool()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create companion agent: %w", err)
	}
	return llmAgent, nil
}
