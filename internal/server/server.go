// Package server exposes the pipeline over HTTP: a WebSocket endpoint for
// live sessions, a batch lip-sync render endpoint, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/emotion"
	"github.com/normanking/avatarstream/internal/expression"
	"github.com/normanking/avatarstream/internal/model"
	"github.com/normanking/avatarstream/internal/phoneme"
	"github.com/normanking/avatarstream/internal/pipeline"
	"github.com/normanking/avatarstream/internal/session"
	"github.com/normanking/avatarstream/internal/video"
)

type Server struct {
	log      zerolog.Logger
	service  *pipeline.Service
	sessions *session.Manager
	upgrader websocket.Upgrader
	router   *mux.Router
}

func New(service *pipeline.Service, sessions *session.Manager, log zerolog.Logger) *Server {
	s := &Server{
		log:      log.With().Str("component", "server").Logger(),
		service:  service,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/render/lipsync", s.handleRenderLipSync).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/emotions", s.handleEmotions).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess, err := s.sessions.Accept(conn)
	if err != nil {
		// Accept already refused and closed the connection.
		return
	}
	go s.sessions.Serve(sess)
}

type renderRequest struct {
	Phonemes []phoneme.Phoneme `json:"phonemes"`
	AudioURL string            `json:"audioUrl,omitempty"`
	Model    string            `json:"model,omitempty"`
	Duration float64           `json:"duration,omitempty"`
	Emotion  string            `json:"emotion,omitempty"`
	Phase    string            `json:"phase,omitempty"`
}

// handleRenderLipSync renders a full clip. On success the body is the
// encoded video; when the encoder fails the render still counts and the
// response degrades to JSON frame metadata.
func (s *Server) handleRenderLipSync(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Phonemes) == 0 {
		s.writeError(w, http.StatusBadRequest, "phonemes required")
		return
	}

	res, err := s.service.RenderClip(r.Context(), pipeline.ClipRequest{
		ModelKey:  req.Model,
		Phonemes:  req.Phonemes,
		Emotion:   req.Emotion,
		Phase:     expression.Phase(req.Phase),
		AudioPath: req.AudioURL,
		Duration:  req.Duration,
	})
	if err != nil {
		var encErr *video.EncodeError
		if errors.As(err, &encErr) && res != nil && res.Metadata != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Processing-Time", res.Took.String())
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(res.Metadata)
			return
		}
		var uerr *emotion.ErrUnknownState
		var lerr *model.LoadError
		switch {
		case errors.As(err, &uerr):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &lerr):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "video/"+s.service.Container())
	w.Header().Set("X-Processing-Time", res.Took.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Video)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
		"caches":   s.service.CacheStats(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEmotions(w http.ResponseWriter, _ *http.Request) {
	states := emotion.States()
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, st.Name)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"emotions": names})
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
