package ai

import (
	"context"
	"errors"
	"time"

	"freelancer-bot/internal/logger"
	"freelancer-bot/models"
)

// TimeoutReply is sent when the model does not answer in time.
const TimeoutReply = "عذراً، استغرق الرد وقتاً أطول من المتوقع. من فضلك أعد إرسال رسالتك بعد قليل."

// Generator produces one completion. GeminiClient is the production implementation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Service is the NLU adapter used by the message processor.
type Service struct {
	gen     Generator
	timeout time.Duration
}

func NewService(gen Generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Service{gen: gen, timeout: timeout}
}

// GenerateResponse answers message given the prior turns, without catalog data.
func (s *Service) GenerateResponse(ctx context.Context, history []models.HistoryEntry, message string) (string, error) {
	return s.race(ctx, GenerateRequest{
		System:      baseSystemPrompt,
		History:     toTurns(history, message),
		Prompt:      message,
		Temperature: 0.7,
		MaxTokens:   1024,
	})
}

// GenerateResponseWithAllData answers message with the full freelancer,
// profile and project dataset in the system instruction. A reply proposing a
// specific freelancer ends with ButtonsSentinel.
func (s *Service) GenerateResponseWithAllData(ctx context.Context, history []models.HistoryEntry, catalog *models.Catalog, message, userName string) (string, error) {
	return s.race(ctx, GenerateRequest{
		System:      buildCatalogPrompt(catalog, userName),
		History:     toTurns(history, message),
		Prompt:      message,
		Temperature: 0.7,
		MaxTokens:   1024,
	})
}

// SummarizeRequest condenses what the client is asking for. On any failure
// it falls back to the last user message.
func (s *Service) SummarizeRequest(ctx context.Context, history []models.HistoryEntry) string {
	fallback := lastUserMessage(history)
	if len(history) == 0 {
		return fallback
	}

	summary, err := s.race(ctx, GenerateRequest{
		History:     toTurns(history, ""),
		Prompt:      summarizePrompt(),
		Temperature: 0.2,
		MaxTokens:   128,
	})
	if err != nil || summary == "" || summary == TimeoutReply || summary == busyReply {
		if err != nil {
			logger.Warn("request summary failed", "error", err)
		}
		return fallback
	}
	return summary
}

// InferServiceCategory returns one of Categories, or "" when nothing fits.
func (s *Service) InferServiceCategory(ctx context.Context, request string) string {
	if request == "" {
		return ""
	}
	answer, err := s.race(ctx, GenerateRequest{
		Prompt:      categoryPrompt(request),
		Temperature: 0,
		MaxTokens:   16,
	})
	if err == nil {
		if c := matchCategory(answer); c != "" {
			return c
		}
	}
	return matchCategory(request)
}

type generation struct {
	text string
	err  error
}

// race runs the generation against the configured timeout. Losing the race
// yields TimeoutReply with a nil error.
func (s *Service) race(ctx context.Context, req GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := s.gen.Generate(callCtx, req)
		done <- generation{text: text, err: err}
	}()

	select {
	case g := <-done:
		if g.err != nil && errors.Is(g.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return TimeoutReply, nil
		}
		return g.text, g.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("AI response timed out", "timeout", s.timeout.String())
		return TimeoutReply, nil
	}
}

// toTurns converts stored history, dropping a trailing copy of the current
// message that the processor already persisted.
func toTurns(history []models.HistoryEntry, current string) []Turn {
	if n := len(history); n > 0 && current != "" {
		last := history[n-1]
		if last.Role == models.RoleUser && last.Content == current {
			history = history[:n-1]
		}
	}
	turns := make([]Turn, 0, len(history))
	for _, h := range history {
		turns = append(turns, Turn{Role: h.Role, Text: h.Content})
	}
	return turns
}

func lastUserMessage(history []models.HistoryEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
