package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
)

// Config controls the shared Chrome process.
type Config struct {
	Headless    bool
	UserAgent   string
	UserDataDir string
}

// Manager owns the Chrome allocator and the session table. Sessions
// are created on first navigation and live until closed; distinct
// session ids never share a tab.
type Manager struct {
	logger *slog.Logger
	cfg    Config

	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
	sessions map[string]*Session

	// newSession is swapped in tests to avoid a real Chrome.
	newSession func(allocCtx context.Context, id string, logger *slog.Logger) (*Session, error)
}

// NewManager creates a manager. Chrome is not launched until the first
// session opens.
func NewManager(logger *slog.Logger, cfg Config) *Manager {
	return &Manager{
		logger:     logger,
		cfg:        cfg,
		sessions:   make(map[string]*Session),
		newSession: newSession,
	}
}

func (m *Manager) allocator() context.Context {
	if m.allocCtx != nil {
		return m.allocCtx
	}
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	if m.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(m.cfg.UserDataDir))
	}
	m.allocCtx, m.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	m.logger.Info("browser allocator started", "headless", m.cfg.Headless)
	return m.allocCtx
}

// Session returns the session for id, creating tab and (on first use)
// the Chrome process. Only open_url goes through here.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s, err := m.newSession(m.allocator(), id, m.logger)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	m.sessions[id] = s
	m.logger.Info("browser session created", "session_id", id, "sessions", len(m.sessions))
	return s, nil
}

// Get returns an existing session or ErrSessionNotStarted. Every tool
// except open_url goes through here.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotStarted, id)
	}
	return s, nil
}

// Close tears down one session's tab.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotStarted, id)
	}
	s.close()
	m.logger.Info("browser session closed", "session_id", id)
	return nil
}

// CloseAll tears down every session and the Chrome process. Called at
// shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	cancel := m.cancel
	m.allocCtx, m.cancel = nil, nil
	m.mu.Unlock()

	for id, s := range sessions {
		s.close()
		m.logger.Debug("browser session closed", "session_id", id)
	}
	if cancel != nil {
		cancel()
	}
}
