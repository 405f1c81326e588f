package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrel/internal/llm"
)

// ConversationStore persists per-session transcripts.
type ConversationStore interface {
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	Save(ctx context.Context, sessionID, userID string, msgs []llm.Message) error
}

// ExtractFunc mines durable facts from one exchange and stores them.
// Implementations must tolerate failure silently; extraction is best
// effort and never blocks a reply.
type ExtractFunc func(ctx context.Context, userID, userMessage, reply string)

// DefaultHistoryWindow caps how many stored messages rejoin the context
// on each turn.
const DefaultHistoryWindow = 50

const extractionQueueSize = 64

// drainTimeout bounds how long Shutdown waits on queued extraction jobs.
const drainTimeout = 30 * time.Second

type extractionJob struct {
	userID      string
	userMessage string
	reply       string
}

// Runtime ties the loop to conversation persistence and post-turn
// memory extraction.
type Runtime struct {
	logger        *slog.Logger
	loop          *Loop
	conv          ConversationStore
	extract       ExtractFunc
	historyWindow int
	queue         chan extractionJob
}

// NewRuntime creates a runtime. extract may be nil to disable memory
// extraction. historyWindow <= 0 selects DefaultHistoryWindow.
func NewRuntime(logger *slog.Logger, loop *Loop, conv ConversationStore, extract ExtractFunc, historyWindow int) *Runtime {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Runtime{
		logger:        logger,
		loop:          loop,
		conv:          conv,
		extract:       extract,
		historyWindow: historyWindow,
		queue:         make(chan extractionJob, extractionQueueSize),
	}
}

// HandleMessage runs one conversational turn: load windowed history,
// append the user message, run the loop, persist the result, and queue
// fact extraction. The reply never waits on extraction. It returns the
// session ID alongside the reply, generating one when the caller passed
// none.
func (r *Runtime) HandleMessage(ctx context.Context, sessionID, userID, text string) (string, string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := r.conv.Load(ctx, sessionID)
	if err != nil {
		return "", sessionID, fmt.Errorf("load conversation %s: %w", sessionID, err)
	}

	initial := Reduce(Window(history, r.historyWindow), []llm.Message{
		{Role: llm.RoleUser, Content: text},
	})

	state, err := r.loop.Run(ctx, initial)
	if err != nil {
		return "", sessionID, err
	}

	reply := ""
	if len(state) > 0 {
		reply = state[len(state)-1].Content
	}

	if err := r.conv.Save(ctx, sessionID, userID, state); err != nil {
		// Losing persistence should not eat a reply we already have.
		r.logger.Error("save conversation failed", "session_id", sessionID, "error", err)
	}

	if r.extract != nil {
		select {
		case r.queue <- extractionJob{userID: userID, userMessage: text, reply: reply}:
		default:
			r.logger.Warn("extraction queue full, dropping job", "session_id", sessionID)
		}
	}

	return reply, sessionID, nil
}

// RunExtractionWorker processes queued extraction jobs until ctx is
// cancelled, then drains what remains. Run it in its own goroutine;
// it returns nil so it slots into an errgroup.
func (r *Runtime) RunExtractionWorker(ctx context.Context) error {
	for {
		select {
		case job := <-r.queue:
			r.extract(ctx, job.userID, job.userMessage, job.reply)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Runtime) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case job := <-r.queue:
			r.extract(ctx, job.userID, job.userMessage, job.reply)
		default:
			return
		}
	}
}
