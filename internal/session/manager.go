package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/bus"
	"github.com/normanking/avatarstream/internal/emotion"
	"github.com/normanking/avatarstream/internal/expression"
	"github.com/normanking/avatarstream/internal/metrics"
	"github.com/normanking/avatarstream/internal/pipeline"
)

const DefaultMaxSessions = 32

// ErrSessionLimit is the admission failure; the connection is closed with
// an explicit reason before any session state exists.
var ErrSessionLimit = errors.New("session limit exceeded")

// Config carries the per-session avatar tuning; zero fields keep the
// built-in defaults.
type Config struct {
	MaxSessions        int
	LipSyncWeight      float32
	EmotionWeight      float32
	TransitionDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.LipSyncWeight == 0 && c.EmotionWeight == 0 {
		c.LipSyncWeight = expression.DefaultLipSyncWeight
		c.EmotionWeight = expression.DefaultEmotionWeight
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = emotion.DefaultTransitionDuration
	}
	return c
}

type Manager struct {
	log     zerolog.Logger
	service *pipeline.Service
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(service *pipeline.Service, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		log:      log.With().Str("component", "session-manager").Logger(),
		service:  service,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Accept admits a connection, announces the session id, and returns the
// session. Beyond the limit the connection is refused with a distinct
// close reason and no session is created.
func (m *Manager) Accept(conn Conn) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		metrics.SessionsRejected.Inc()
		m.refuse(conn)
		return nil, ErrSessionLimit
	}

	s := newSession(conn, m.service, m.cfg, m.log)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	m.service.Events().Publish(bus.Event{
		Type: bus.EventTypeSessionCreated,
		Data: map[string]any{"session": s.ID},
	})
	m.log.Info().Str("session", s.ID).Int("active", m.Count()).Msg("session created")

	s.send(connectedMsg{Type: TypeConnected, SessionID: s.ID})
	return s, nil
}

func (m *Manager) refuse(conn Conn) {
	_ = conn.WriteJSON(errorMsg{Type: TypeError, Message: ErrSessionLimit.Error()})
	if wc, ok := conn.(*websocket.Conn); ok {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrSessionLimit.Error())
		_ = wc.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	_ = conn.Close()
}

// Serve runs the session's read loop until the socket closes or the
// client stops the stream, then tears the session down.
func (m *Manager) Serve(s *Session) {
	defer m.remove(s)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("socket closed unexpectedly")
			}
			return
		}
		s.handle(data)
	}
}

// remove is idempotent: Serve's deferred teardown and CloseAll can both
// reach it for the same session, but the gauge, the bus event and the
// close log fire only for the call that actually deregisters it.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, registered := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	s.close()
	_ = s.conn.Close()

	if !registered {
		return
	}

	metrics.ActiveSessions.Dec()
	m.service.Events().Publish(bus.Event{
		Type: bus.EventTypeSessionClosed,
		Data: map[string]any{"session": s.ID},
	})
	stats := s.Stats()
	m.log.Info().
		Str("session", s.ID).
		Uint64("messages", stats.MessagesReceived).
		Uint64("frames", stats.FramesSent).
		Msg("session closed")
}

// CloseAll stops every live session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		m.remove(s)
	}
}
