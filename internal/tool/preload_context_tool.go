// Package tool provides custom ADK tools for the reading companion.
package tool

import (
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/easeaico/bookmind/internal/utils"
)

const (
	preloadContextToolName        = "preload_reading_context"
	preloadContextToolDescription = "Preloads the reader's memory context into the system instruction before each turn."
)

// PreloadContextTool injects the assembled reading-memory context into the
// system instruction before the model sees the user's turn.
type PreloadContextTool struct {
	name        string
	description string
}

// NewPreloadContextTool creates a PreloadContextTool.
func NewPreloadContextTool() *PreloadContextTool {
	return &PreloadContextTool{
		name:        preloadContextToolName,
		description: preloadContextToolDescription,
	}
}

// Name implements tool.Tool.
func (t *PreloadContextTool) Name() string {
	return t.name
}

// Description implements tool.Tool.
func (t *PreloadContextTool) Description() string {
	return t.description
}

// IsLongRunning implements tool.Tool.
func (t *PreloadContextTool) IsLongRunning() bool {
	return false
}

// ProcessRequest searches the memory service with the user's utterance and
// appends whatever context comes back to the system instruction.
func (t *PreloadContextTool) ProcessRequest(ctx tool.Context, req *model.LLMRequest) error {
	if ctx == nil || req == nil {
		return nil
	}

	query := strings.TrimSpace(utils.ExtractContentText(ctx.UserContent()))
	if query == "" {
		return nil
	}

	resp, err := ctx.SearchMemory(ctx, query)
	if err != nil {
		slog.Error("failed to search reading memory", "error", err.Error())
		return fmt.Errorf("failed to search reading memory: %w", err)
	}
	if resp == nil || len(resp.Memories) == 0 {
		return nil
	}

	instruction := buildContextInstruction(resp.Memories)
	if instruction == "" {
		return nil
	}
	appendInstruction(req, instruction)
	return nil
}

func buildContextInstruction(memories []memory.Entry) string {
	var body strings.Builder
	for _, entry := range memories {
		text := strings.TrimSpace(utils.ExtractContentText(entry.Content))
		if text == "" {
			continue
		}
		body.WriteString(text)
		body.WriteString("\n")
	}
	if body.Len() == 0 {
		return ""
	}

	return "What you remember about this reader and their books:\n<READING_MEMORY>\n" +
		body.String() +
		"</READING_MEMORY>\n"
}

func appendInstruction(req *model.LLMRequest, instruction string) {
	if req.Config == nil {
		req.Config = &genai.GenerateContentConfig{}
	}
	if req.Config.SystemInstruction == nil {
		req.Config.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
		return
	}
	req.Config.SystemInstruction.Parts = append(req.Config.SystemInstruction.Parts, genai.NewPartFromText(instruction))
}
