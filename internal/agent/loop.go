package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrel/internal/llm"
	"github.com/kestrelworks/kestrel/internal/tools"
)

// ErrTurnLimit is returned when a turn exceeds the configured iteration
// bound without the model producing a plain text answer.
var ErrTurnLimit = errors.New("agent: turn limit reached")

// DefaultMaxTurns bounds model/tool round trips within a single turn.
const DefaultMaxTurns = 12

// Loop drives the reasoning cycle for one turn: call the model, execute
// any requested tools, feed results back, repeat until a text answer.
type Loop struct {
	logger   *slog.Logger
	llm      llm.Client
	tools    *tools.Registry
	model    string
	maxTurns int
	now      func() time.Time
}

// NewLoop creates an agent loop. maxTurns <= 0 selects DefaultMaxTurns.
func NewLoop(logger *slog.Logger, client llm.Client, reg *tools.Registry, model string, maxTurns int) *Loop {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Loop{
		logger:   logger,
		llm:      client,
		tools:    reg,
		model:    model,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// Run executes one turn. initial is the windowed conversation history
// ending with the new user message. It returns the full message state
// for the turn, final assistant answer last. Reasoning failures abort
// the turn; tool failures do not: the error text goes back to the
// model as a tool result so it can recover or explain.
func (l *Loop) Run(ctx context.Context, initial []llm.Message) ([]llm.Message, error) {
	state := Reduce(nil, SanitizeHistory(initial))
	defs := l.tools.List()

	for iter := 0; iter < l.maxTurns; iter++ {
		msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: SystemPrompt(l.now())}}, state...)

		resp, err := l.llm.Chat(ctx, l.model, msgs, defs)
		if err != nil {
			return state, fmt.Errorf("reasoning call (iter %d): %w", iter, err)
		}

		assistant := resp.Message
		for i := range assistant.ToolCalls {
			if assistant.ToolCalls[i].ID == "" {
				assistant.ToolCalls[i].ID = uuid.NewString()
			}
		}
		state = Reduce(state, []llm.Message{assistant})

		if len(assistant.ToolCalls) == 0 {
			l.logger.Debug("turn complete",
				"iterations", iter+1,
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
			)
			return state, nil
		}

		// Execute calls sequentially in request order so results line up
		// with the call list the model produced.
		results := make([]llm.Message, 0, len(assistant.ToolCalls))
		for _, call := range assistant.ToolCalls {
			results = append(results, l.execute(ctx, call))
		}
		state = Reduce(state, results)
	}

	return state, fmt.Errorf("%w after %d iterations", ErrTurnLimit, l.maxTurns)
}

func (l *Loop) execute(ctx context.Context, call llm.ToolCall) llm.Message {
	start := time.Now()
	out, err := l.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		l.logger.Warn("tool failed",
			"tool", call.Function.Name,
			"error", err,
			"duration", time.Since(start),
		)
		out = fmt.Sprintf("Error: %v", err)
	} else {
		l.logger.Debug("tool executed",
			"tool", call.Function.Name,
			"result_bytes", len(out),
			"duration", time.Since(start),
		)
	}
	return llm.Message{Role: llm.RoleTool, Content: out, ToolCallID: call.ID}
}
