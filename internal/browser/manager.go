// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/operant/internal/config"
)

const launchProbeTimeout = 30 * time.Second
const shutdownGracePeriod = 15 * time.Second

// Manager handles the browser process lifecycle and session creation.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the entire browser process. All session contexts
	// are derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// controllerCtx is a long-lived chromedp context attached to the probe
	// tab; controllerExecCtx wraps it with the browser-level executor for
	// target lifecycle commands.
	controllerCtx     context.Context
	controllerCancel  context.CancelFunc
	controllerExecCtx context.Context

	store *ScreenshotStore

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup // Ensures all sessions are closed before the browser shuts down.

	// Initialization state management
	initOnce sync.Once
	initErr  error
}

// NewManager creates a new browser manager. Launching the browser is deferred
// until the first session is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	m.logger.Info("Browser manager created (launch deferred).")
	return m, nil
}

// initialize launches the browser process and verifies it responds.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing browser allocator...")

		store, err := NewScreenshotStore(m.cfg.Screenshot, m.logger)
		if err != nil {
			m.initErr = fmt.Errorf("failed to prepare screenshot store: %w", err)
			return
		}
		m.store = store

		opts := DefaultAllocatorOptions(m.cfg.Browser)
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		m.allocatorCtx = allocCtx
		m.allocatorCancel = allocCancel

		// The controller context owns the probe tab and stays alive for the
		// manager's lifetime; browser-scoped CDP commands are issued on it.
		ctrlCtx, ctrlCancel := chromedp.NewContext(allocCtx)
		m.controllerCtx = ctrlCtx
		m.controllerCancel = ctrlCancel

		// Run a simple task to confirm the browser is alive.
		probeCtx, cancelProbe := context.WithTimeout(ctrlCtx, launchProbeTimeout)
		defer cancelProbe()
		if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
			ctrlCancel()
			allocCancel()
			m.initErr = fmt.Errorf("browser failed to start or respond: %w", err)
			return
		}

		m.controllerExecCtx = cdp.WithExecutor(ctrlCtx, chromedp.FromContext(ctrlCtx).Browser)
		m.logger.Info("Browser launched successfully and is responsive.")
	})
	return m.initErr
}

// NewSession creates a new isolated browser session (a tab in its own
// incognito browser context).
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	session := NewSession(m.controllerCtx, m.controllerExecCtx, m.cfg, m.store, m.logger)

	m.wg.Add(1) // Increment before registering so Shutdown always waits for it.
	session.SetOnClose(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	})

	if err := session.Initialize(ctx); err != nil {
		// Close releases resources and decrements the WaitGroup. Use a fresh
		// context as ctx may be the cause of the failure.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		session.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Session looks up an active session by ID.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ActiveSessions reports the number of sessions currently open.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Store exposes the shared screenshot store.
func (m *Manager) Store() *ScreenshotStore {
	return m.store
}

// Shutdown gracefully closes all sessions and terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	// If the browser was never launched there is nothing to terminate.
	if m.allocatorCtx == nil {
		m.logger.Info("Manager not initialized, skipping shutdown sequence.")
		return nil
	}

	// 1. Close all active sessions concurrently, collecting the first
	// failure.
	m.mu.RLock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, s := range sessionsToClose {
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 2. Wait for the sessions to finish closing, respecting the caller's
	// deadline.
	var closeErr error
	done := make(chan struct{})
	go func() {
		closeErr = g.Wait()
		m.wg.Wait()
		close(done)
	}()

	graceful := false
	select {
	case <-done:
		graceful = true
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	// 3. Terminate the browser process and wait for it to confirm.
	if m.controllerCancel != nil {
		m.controllerCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()

		select {
		case <-m.allocatorCtx.Done():
		case <-time.After(shutdownGracePeriod):
			m.logger.Warn("Browser process did not confirm termination in time.")
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	if graceful && closeErr != nil {
		return fmt.Errorf("closing sessions: %w", closeErr)
	}
	return nil
}
