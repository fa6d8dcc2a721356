package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pulseboard/feedsync/internal/domain/notification"
	"go.uber.org/zap"
)

// Session is one recipient's live feed: an engine plus the goroutine
// consuming its event queue.
type Session struct {
	ID          string
	RecipientID int64
	Engine      *Engine

	cancel context.CancelFunc
}

// Sessions owns the session lifecycle. Starting a session for a recipient
// who already has one closes the old session first, so a user never holds
// two live subscriptions.
type Sessions struct {
	log     *zap.Logger
	repo    notification.Repo
	alerter notification.Alerter
	cfg     Config

	mu          sync.Mutex
	byRecipient map[int64]*Session
}

func NewSessions(log *zap.Logger, repo notification.Repo, alerter notification.Alerter, cfg Config) *Sessions {
	return &Sessions{
		log:         log.With(zap.String("component", "feed.sessions")),
		repo:        repo,
		alerter:     alerter,
		cfg:         cfg,
		byRecipient: make(map[int64]*Session),
	}
}

// Start opens a session: bulk load, then the live queue. A failed bulk load
// still opens the session with an empty store; the error is returned so the
// caller can surface it, and refresh() re-triggers the load.
func (m *Sessions) Start(ctx context.Context, recipientID int64, alerts bool) (*Session, error) {
	cfg := m.cfg
	cfg.Alerts = alerts
	eng := NewEngine(m.log, m.repo, m.alerter, recipientID, cfg)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Engine:      eng,
		cancel:      cancel,
	}

	m.mu.Lock()
	if old := m.byRecipient[recipientID]; old != nil {
		m.closeLocked(old)
	}
	m.byRecipient[recipientID] = s
	mActiveSessions.Inc()
	m.mu.Unlock()

	loadErr := eng.Load(ctx)
	go eng.Run(runCtx)

	m.log.Info("session started",
		zap.String("session_id", s.ID),
		zap.Int64("recipient_id", recipientID),
		zap.Bool("alerts", alerts),
	)
	return s, loadErr
}

// Stop closes the recipient's session if one is open.
func (m *Sessions) Stop(recipientID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byRecipient[recipientID]
	if s == nil {
		return false
	}
	m.closeLocked(s)
	delete(m.byRecipient, recipientID)
	return true
}

// Get returns the recipient's active session, or nil.
func (m *Sessions) Get(recipientID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRecipient[recipientID]
}

func (m *Sessions) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.byRecipient {
		m.closeLocked(s)
		delete(m.byRecipient, id)
	}
}

func (m *Sessions) engine(recipientID int64) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.byRecipient[recipientID]; s != nil {
		return s.Engine
	}
	return nil
}

func (m *Sessions) closeLocked(s *Session) {
	s.cancel()
	s.Engine.Close()
	mActiveSessions.Dec()
	m.log.Info("session closed", zap.String("session_id", s.ID), zap.Int64("recipient_id", s.RecipientID))
}
