// Package utils holds small helpers shared across the agent surface.
package utils

import (
	"strings"

	"google.golang.org/genai"
)

// ExtractContentText concatenates the text parts of a genai content block.
func ExtractContentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
