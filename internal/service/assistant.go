package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
)

const assistantCatalogLimit = 6

const assistantSystemPrompt = "You are a helpful library assistant. Use the catalog below (if any) to recommend titles and to answer the user's question concisely."

// AssistantReply содержит ответ помощника и найденные в каталоге книги.
type AssistantReply struct {
	Answer string
	Books  []model.Book
	// Generated сообщает, что ответ получен от внешней модели, а не сформирован локально.
	Generated bool
}

// QueryAssistant ищет книги по запросу и формирует разговорный ответ.
// Если внешняя модель недоступна, ответ формируется локально.
func (s *Service) QueryAssistant(ctx context.Context, query string) (*AssistantReply, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	books, err := s.repo.SearchBooks(ctx, q, assistantCatalogLimit)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}

	if s.assistant != nil {
		answer, err := s.assistant.Generate(ctx, assistantSystemPrompt, assistantPrompt(q, books))
		if err == nil {
			return &AssistantReply{Answer: answer, Books: books, Generated: true}, nil
		}
		s.logger.Warn("assistant call failed, using local reply", zap.Error(err))
	}

	return &AssistantReply{Answer: localReply(q, books), Books: books}, nil
}

func assistantPrompt(q string, books []model.Book) string {
	if len(books) == 0 {
		return fmt.Sprintf("User query: %q\n\nRespond with a helpful, conversational answer focused on a concise definition/overview. Keep the answer concise and actionable.", q)
	}

	var sb strings.Builder
	for i, b := range books {
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, b.Title, strings.Join(b.Authors, ", "))
	}
	return fmt.Sprintf("User query: %q\n\nCatalog matches:\n%s\nRespond with a helpful, conversational answer. "+
		"If there are catalog matches, mention them briefly and suggest the most relevant ones. Keep the answer concise and actionable.",
		q, sb.String())
}

func localReply(q string, books []model.Book) string {
	if len(books) == 0 {
		return fmt.Sprintf("Here's a short introduction to %q:\n\n> %s typically refers to an area of study or topic. "+
			"If you'd like, tell me how specific you want the results (intro, textbooks, or research), "+
			"and I can suggest search keywords or try broader related topics.", q, q)
	}

	top := make([]string, 0, 3)
	for i, b := range books {
		if i == 3 {
			break
		}
		entry := fmt.Sprintf("%d. %s", i+1, b.Title)
		if len(b.Authors) > 0 {
			entry += " by " + strings.Join(b.Authors, ", ")
		}
		top = append(top, entry)
	}

	return fmt.Sprintf("I found %d book(s) related to %q. The top matches: %s. "+
		"If you want, I can give short summaries, check availability, or find similar titles.",
		len(books), q, strings.Join(top, "; "))
}
