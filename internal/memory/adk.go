package memory

import (
	"context"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/easeaico/bookmind/internal/utils"
)

// adkService exposes the memory core as an ADK memory.Service so the host
// app's agent runtime can record sessions and pull context without knowing
// the subsystem's internals.
type adkService struct {
	svc       *Service
	maxTokens int
}

// NewADKService wraps the memory service for the ADK runtime.
func NewADKService(svc *Service, maxTokens int) adkmemory.Service {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return &adkService{svc: svc, maxTokens: maxTokens}
}

// AddSession records the session's final user/assistant exchange. The book
// scope, when present, rides in session state under "book_id".
func (a *adkService) AddSession(ctx context.Context, sess session.Session) error {
	bookID := ""
	if value, err := sess.State().Get("book_id"); err == nil {
		if id, ok := value.(string); ok {
			bookID = id
		}
	}

	events := sess.Events()
	if events.Len() == 0 {
		return nil
	}

	var lastUser, lastAssistant string
	for i := 0; i < events.Len(); i++ {
		event := events.At(i)
		if event == nil || event.Content == nil {
			continue
		}
		text := utils.ExtractContentText(event.Content)
		if text == "" {
			continue
		}
		if event.Author == "user" {
			lastUser = text
		} else {
			lastAssistant = text
		}
	}
	if lastUser == "" && lastAssistant == "" {
		return nil
	}

	_, err := a.svc.SaveExchange(ctx, ExchangeInput{
		UserInput: lastUser,
		Response:  lastAssistant,
		BookID:    bookID,
	})
	return err
}

// Search assembles the prompt context for the query and returns it as a
// single memory entry.
func (a *adkService) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if req == nil || req.Query == "" {
		return &adkmemory.SearchResponse{Memories: nil}, nil
	}

	text := a.svc.BuildContext(ctx, "", req.Query, a.maxTokens)
	if text == "" {
		return &adkmemory.SearchResponse{Memories: nil}, nil
	}

	return &adkmemory.SearchResponse{
		Memories: []adkmemory.Entry{{
			Content:   genai.NewContentFromText(text, "model"),
			Author:    "assistant",
			Timestamp: a.svc.clock.Now(),
		}},
	}, nil
}
