package session

import "github.com/normanking/avatarstream/internal/phoneme"

// Message type tags, shared by both directions.
const (
	TypeConnected     = "connected"
	TypeReady         = "ready"
	TypeReadyAck      = "ready_ack"
	TypeStartStream   = "start_stream"
	TypeStreamStarted = "stream_started"
	TypePhonemeData   = "phoneme_data"
	TypePauseStream   = "pause_stream"
	TypeResumeStream  = "resume_stream"
	TypeStopStream    = "stop_stream"
	TypeStreamStopped = "stream_stopped"
	TypeSetEmotion    = "set_emotion"
	TypeSetPhase      = "set_phase"
	TypeFrame         = "frame"
	TypeError         = "error"
)

// inbound is the union of every client message; Type selects which fields
// are meaningful.
type inbound struct {
	Type string `json:"type"`

	// start_stream
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	FPS    int `json:"fps,omitempty"`

	// phoneme_data
	Phonemes       []phoneme.Phoneme `json:"phonemes,omitempty"`
	AudioTimestamp float64           `json:"audioTimestamp,omitempty"`

	// set_emotion / set_phase
	Emotion    string `json:"emotion,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
	Phase      string `json:"phase,omitempty"`
}

type connectedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type streamStartedMsg struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

type frameMsg struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Timestamp float64 `json:"timestamp"`
	FrameData string  `json:"frameData"`
	Degraded  bool    `json:"degraded,omitempty"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ackMsg struct {
	Type string `json:"type"`
}
