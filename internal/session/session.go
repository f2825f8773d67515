// Package session owns the live streaming protocol: one WebSocket
// connection per session, a small state machine driven by typed JSON
// messages, and immediate frame emission on phoneme arrival.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/bus"
	"github.com/normanking/avatarstream/internal/expression"
	"github.com/normanking/avatarstream/internal/phoneme"
	"github.com/normanking/avatarstream/internal/pipeline"
)

type State string

const (
	StateCreated   State = "CREATED"
	StateStreaming State = "STREAMING"
	StatePaused    State = "PAUSED"
	StateStopped   State = "STOPPED"
)

// Conn is the slice of *websocket.Conn the session needs. Tests supply a
// fake; production hands in the upgraded gorilla connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Stats is updated on every handled message.
type Stats struct {
	MessagesReceived uint64 `json:"messagesReceived"`
	FramesSent       uint64 `json:"framesSent"`
}

type Session struct {
	ID string

	conn    Conn
	log     zerolog.Logger
	service *pipeline.Service

	// mu guards state and stats: messages arrive on the read loop while
	// shutdown may stop the session from another goroutine.
	mu    sync.Mutex
	state State
	stats Stats

	controller *expression.Controller
	phonemes   []phoneme.Phoneme

	lipSyncWeight float32
	emotionWeight float32
	transitionDur time.Duration

	width, height, fps int

	startTime  time.Time
	lastUpdate time.Time

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

func newSession(conn Conn, service *pipeline.Service, cfg Config, log zerolog.Logger) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := expression.NewController()
	ctrl.SetBlendWeights(cfg.LipSyncWeight, cfg.EmotionWeight)
	return &Session{
		ID:            id,
		conn:          conn,
		log:           log.With().Str("component", "session").Str("session", id).Logger(),
		service:       service,
		state:         StateCreated,
		controller:    ctrl,
		lipSyncWeight: cfg.LipSyncWeight,
		emotionWeight: cfg.EmotionWeight,
		transitionDur: cfg.TransitionDuration,
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// close stops the session and cancels any render still tagged with it.
func (s *Session) close() {
	s.setState(StateStopped)
	s.cancel()
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

// casState moves from->to atomically; on mismatch it reports the state it
// found instead.
func (s *Session) casState(from, to State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return s.state, false
	}
	s.state = to
	return to, true
}

// handle dispatches one inbound message. Protocol errors are reported to
// the client and never tear the session down; only a write failure does,
// and that surfaces through the serve loop.
func (s *Session) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(fmt.Sprintf("malformed message: %v", err))
		return
	}

	s.mu.Lock()
	s.stats.MessagesReceived++
	stopped := s.state == StateStopped
	s.mu.Unlock()

	// A stopped session swallows everything.
	if stopped {
		return
	}

	switch msg.Type {
	case TypeReady:
		s.send(ackMsg{Type: TypeReadyAck})
	case TypeStartStream:
		s.handleStartStream(msg)
	case TypePhonemeData:
		s.handlePhonemeData(msg)
	case TypePauseStream:
		s.transition(StateStreaming, StatePaused, msg.Type)
	case TypeResumeStream:
		s.transition(StatePaused, StateStreaming, msg.Type)
	case TypeStopStream:
		s.close()
		s.publishStreamState(StateStopped)
		s.send(ackMsg{Type: TypeStreamStopped})
	case TypeSetEmotion:
		s.handleSetEmotion(msg)
	case TypeSetPhase:
		if err := s.controller.SetPhase(expression.Phase(msg.Phase)); err != nil {
			s.sendError(err.Error())
		}
	default:
		s.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (s *Session) transition(from, to State, msgType string) {
	if found, ok := s.casState(from, to); !ok {
		s.sendError(fmt.Sprintf("%s not allowed in state %s", msgType, found))
		return
	}
	s.publishStreamState(to)
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state change")
}

func (s *Session) publishStreamState(to State) {
	s.service.Events().Publish(bus.Event{
		Type: bus.EventTypeStreamState,
		Data: map[string]any{"session": s.ID, "state": string(to)},
	})
}

func (s *Session) handleStartStream(msg inbound) {
	if found, ok := s.casState(StateCreated, StateStreaming); !ok {
		s.sendError(fmt.Sprintf("start_stream not allowed in state %s", found))
		return
	}
	s.width, s.height, s.fps = msg.Width, msg.Height, msg.FPS
	if s.fps <= 0 {
		s.fps = s.service.FPS()
	}
	s.startTime = s.now()
	s.lastUpdate = s.startTime
	s.publishStreamState(StateStreaming)
	s.send(streamStartedMsg{
		Type:   TypeStreamStarted,
		Width:  s.width,
		Height: s.height,
		FPS:    s.fps,
	})
}

// handlePhonemeData is the live path: new phonemes arrive, the emotion
// engine is advanced to now, one frame is rendered and pushed. No timer
// ever drives this; frames happen only on message arrival.
func (s *Session) handlePhonemeData(msg inbound) {
	if st := s.State(); st != StateStreaming {
		s.sendError(fmt.Sprintf("phoneme_data not allowed in state %s", st))
		return
	}

	for _, p := range msg.Phonemes {
		p.Start += msg.AudioTimestamp
		p.End += msg.AudioTimestamp
		s.phonemes = append(s.phonemes, p)
	}

	now := s.now()
	s.controller.Update(now.Sub(s.lastUpdate))
	s.lastUpdate = now

	t := msg.AudioTimestamp
	if t <= 0 && len(s.phonemes) > 0 {
		t = s.phonemes[len(s.phonemes)-1].Start
	}

	res, err := s.service.RenderFrame(s.ctx, pipeline.FrameRequest{
		Time:           t,
		Phonemes:       s.phonemes,
		EmotionWeights: s.controller.Engine().CurrentMorphWeights(),
		LipSyncWeight:  s.lipSyncWeight,
		EmotionWeight:  s.emotionWeight * expression.PhaseMultiplier(s.controller.Phase()),
		Width:          s.width,
		Height:         s.height,
		FPS:            s.fps,
	})
	if err != nil {
		s.sendError(fmt.Sprintf("render failed: %v", err))
		return
	}

	s.send(frameMsg{
		Type:      TypeFrame,
		SessionID: s.ID,
		Timestamp: res.Time,
		FrameData: base64.StdEncoding.EncodeToString(res.PNG),
		Degraded:  res.Degraded,
	})
	s.mu.Lock()
	s.stats.FramesSent++
	s.mu.Unlock()
}

func (s *Session) handleSetEmotion(msg inbound) {
	dur := time.Duration(msg.DurationMs) * time.Millisecond
	if msg.DurationMs == 0 {
		dur = s.transitionDur
	}
	if err := s.controller.SetEmotion(msg.Emotion, dur); err != nil {
		s.sendError(err.Error())
	}
}

func (s *Session) send(v interface{}) {
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Warn().Err(err).Msg("write failed")
	}
}

func (s *Session) sendError(message string) {
	s.log.Debug().Str("reason", message).Msg("protocol error")
	s.send(errorMsg{Type: TypeError, Message: message})
}
