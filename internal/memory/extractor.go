package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kestrelworks/kestrel/internal/llm"
)

// maxExtractedFacts caps how many facts one exchange can yield.
const maxExtractedFacts = 5

// minFactLength discards fragments too short to mean anything on
// their own.
const minFactLength = 10

const extractionPrompt = `You distill durable facts from a conversation exchange.

Extract up to 5 atomic facts about the user worth remembering long-term: preferences, biographical details, ongoing projects, relationships, constraints. Each fact must stand alone as a short declarative sentence.

Rules:
- One fact per line, no numbering, no bullets.
- Only facts stated or clearly implied in the exchange. Never invent.
- Skip pleasantries, one-off requests, and anything already obvious.
- If there is nothing worth remembering, respond with exactly: NONE`

// Extractor mines facts from completed exchanges and persists them.
type Extractor struct {
	logger *slog.Logger
	llm    llm.Client
	store  *Store
	model  string
}

// NewExtractor creates an extractor using the given model for
// distillation.
func NewExtractor(logger *slog.Logger, client llm.Client, store *Store, model string) *Extractor {
	return &Extractor{logger: logger, llm: client, store: store, model: model}
}

// ExtractAndPersist distills facts from one exchange and stores them
// for userID. It returns the number of facts stored. Failures are the
// caller's to swallow; a reply must never depend on this path.
func (e *Extractor) ExtractAndPersist(ctx context.Context, userMessage, reply, userID string) (int, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: extractionPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("User said:\n%s\n\nAssistant replied:\n%s", userMessage, reply)},
	}

	resp, err := e.llm.Chat(ctx, e.model, msgs, nil)
	if err != nil {
		return 0, fmt.Errorf("extraction call: %w", err)
	}

	facts := ParseFacts(resp.Message.Content)
	stored := 0
	for _, fact := range facts {
		if _, err := e.store.Store(ctx, fact, userID); err != nil {
			e.logger.Warn("store extracted fact failed", "error", err)
			continue
		}
		stored++
	}
	if stored > 0 {
		e.logger.Debug("memory extraction complete", "user_id", userID, "facts", stored)
	}
	return stored, nil
}

// ParseFacts turns the model's extraction output into fact lines. The
// NONE sentinel and short fragments yield nothing.
func ParseFacts(output string) []string {
	output = strings.TrimSpace(output)
	if output == "" || strings.EqualFold(output, "NONE") {
		return nil
	}

	var facts []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		if len(line) <= minFactLength {
			continue
		}
		if strings.EqualFold(line, "NONE") {
			continue
		}
		facts = append(facts, line)
		if len(facts) == maxExtractedFacts {
			break
		}
	}
	return facts
}
