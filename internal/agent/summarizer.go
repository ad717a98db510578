// Package agent provides agent initialization.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/easeaico/bookmind/internal/utils"
)

const (
	summarizerAppName = "bookmind_summarizer"
	summarizerUserID  = "thread_summarizer"
)

const summarizerInstruction = `You condense book conversations for long-term memory.
You are given the exchanges of one conversation thread. Write a short plain-text
summary that keeps what the reader cared about: the questions they asked, the
characters and themes discussed, and any conclusions reached.
Respond with the summary only, no preamble and no formatting.`

// ThreadSummarizer runs summarization prompts through an isolated ADK agent.
// Each call uses a fresh in-memory session so thread summaries never bleed
// into each other.
type ThreadSummarizer struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	counter        uint64
}

// NewThreadSummarizer creates a summarizer backed by the given model.
func NewThreadSummarizer(ctx context.Context, llm model.LLM) (*ThreadSummarizer, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm model is required")
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:            "thread_summarizer",
		Description:     "Conversation thread summarizer for the reading memory store",
		Model:           llm,
		Instruction:     summarizerInstruction,
		IncludeContents: llmagent.IncludeContentsNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        summarizerAppName,
		Agent:          llmAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer runner: %w", err)
	}

	return &ThreadSummarizer{
		agent:          llmAgent,
		runner:         r,
		sessionService: sessionService,
	}, nil
}

// Generate runs the prompt through the summarizer agent and returns the final
// text response.
func (s *ThreadSummarizer) Generate(ctx context.Context, prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", nil
	}

	sessionID := fmt.Sprintf("summary-%d", atomic.AddUint64(&s.counter, 1))
	msg := genai.NewContentFromText(trimmed, "user")
	events := s.runner.Run(ctx, summarizerUserID, sessionID, msg, agent.RunConfig{
		StreamingMode: agent.StreamingModeNone,
	})

	var last string
	for event, err := range events {
		if err != nil {
			return "", err
		}
		if event == nil || event.Content == nil {
			continue
		}
		if event.Author == "user" {
			continue
		}
		text := strings.TrimSpace(utils.ExtractContentText(event.Content))
		if text == "" {
			continue
		}
		last = text
		if event.IsFinalResponse() {
			break
		}
	}
	if last == "" {
		return "", fmt.Errorf("empty summary response")
	}
	return last, nil
}
