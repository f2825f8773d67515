// Package pipeline owns the render service: model loading, frame and clip
// caches, the worker pool and the video encoder. Sessions and HTTP handlers
// talk to the service, never to the renderers directly.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/blend"
	"github.com/normanking/avatarstream/internal/bus"
	"github.com/normanking/avatarstream/internal/cache"
	"github.com/normanking/avatarstream/internal/emotion"
	"github.com/normanking/avatarstream/internal/expression"
	"github.com/normanking/avatarstream/internal/metrics"
	"github.com/normanking/avatarstream/internal/model"
	"github.com/normanking/avatarstream/internal/phoneme"
	"github.com/normanking/avatarstream/internal/render"
	"github.com/normanking/avatarstream/internal/video"
	"github.com/normanking/avatarstream/internal/worker"
)

const (
	DefaultFPS = 30

	frameCacheEntries = 100
	clipCacheEntries  = 20
	cacheTTL          = 30 * time.Minute
	sweepInterval     = 5 * time.Minute
)

type Config struct {
	Width      int
	Height     int
	FPS        int
	PoolSize   int
	Encoder    video.Config
	IdleMotion bool

	// Cache tuning; zero fields keep the built-in defaults.
	CacheEntries int
	CacheTTL     time.Duration
	CacheSweep   time.Duration
}

func (c Config) withDefaults() Config {
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cacheTTL
	}
	if c.CacheSweep <= 0 {
		c.CacheSweep = sweepInterval
	}
	return c
}

// FrameRequest is one live frame. EmotionWeights are the caller's already
// blended emotion-layer weights; the service derives the lip-sync layer
// from Phonemes at Time and composes the two.
type FrameRequest struct {
	ModelKey       string
	Time           float64
	Phonemes       []phoneme.Phoneme
	EmotionWeights blend.Weights
	LipSyncWeight  float32
	EmotionWeight  float32

	// Per-session overrides; zero means the service defaults.
	Width  int
	Height int
	FPS    int
}

// FrameResult is a PNG-encoded frame. Degraded means rendering failed and
// the payload is the last frame that succeeded for this model.
type FrameResult struct {
	Index    int     `json:"index"`
	Time     float64 `json:"time"`
	PNG      []byte  `json:"-"`
	Degraded bool    `json:"degraded,omitempty"`
}

// ClipRequest is a batch job: render the whole phoneme sequence at FPS and
// assemble it into a video.
type ClipRequest struct {
	ModelKey      string
	Phonemes      []phoneme.Phoneme
	Emotion       string
	Phase         expression.Phase
	LipSyncWeight float32
	EmotionWeight float32
	AudioPath     string

	// Duration extends the clip beyond the last phoneme, in seconds.
	Duration float64
}

// ClipResult carries video bytes on success, or just Metadata when the
// encoder failed and the frames are reported as structured data instead.
type ClipResult struct {
	Video    []byte
	Metadata *video.Metadata
	Took     time.Duration
}

type liveRenderer struct {
	mu       sync.Mutex
	renderer render.Renderer
	instance *model.Instance
	lastGood *FrameResult
}

type Service struct {
	cfg     Config
	log     zerolog.Logger
	models  *model.Manager
	matrix  *phoneme.Matrix
	pool    *worker.Pool
	encoder *video.Encoder
	events  *bus.EventBus

	weightsCache *cache.Cache
	frameCache   *cache.Cache
	clipCache    *cache.Cache

	mu   sync.Mutex
	live map[string]*liveRenderer

	// injection point for failure tests
	factory func(rcfg render.Config, caps model.Capabilities) render.Renderer

	renderCalls atomic.Int64
}

func NewService(cfg Config, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	slog := log.With().Str("component", "pipeline").Logger()

	s := &Service{
		cfg:     cfg,
		log:     slog,
		models:  model.NewManager(log),
		matrix:  phoneme.NewMatrix(),
		encoder: video.NewEncoder(cfg.Encoder, log),
		events:  bus.NewEventBus(),
		live:    make(map[string]*liveRenderer),
		factory: render.New,
	}
	frameEntries := cfg.CacheEntries
	if frameEntries <= 0 {
		frameEntries = frameCacheEntries
	}
	clipEntries := cfg.CacheEntries
	if clipEntries <= 0 {
		clipEntries = clipCacheEntries
	}
	s.weightsCache = cache.New("weights", frameEntries, cfg.CacheTTL, log)
	s.frameCache = cache.New("frame", frameEntries, cfg.CacheTTL, log)
	s.clipCache = cache.New("clip", clipEntries, cfg.CacheTTL, log)
	s.weightsCache.StartSweeper(cfg.CacheSweep)
	s.frameCache.StartSweeper(cfg.CacheSweep)
	s.clipCache.StartSweeper(cfg.CacheSweep)

	// A changed asset on disk must not keep serving through an old clone.
	s.models.SetBus(s.events)
	s.events.Subscribe(bus.EventTypeModelInvalidated, func(ev bus.Event) {
		if key, ok := ev.Data["key"].(string); ok {
			s.dropLiveRenderers(key)
		}
	})
	return s
}

// Events exposes the service bus so callers can observe model and session
// lifecycle without new coupling.
func (s *Service) Events() *bus.EventBus {
	return s.events
}

func (s *Service) dropLiveRenderers(modelKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for mapKey := range s.live {
		if strings.HasPrefix(mapKey, modelKey+"|") {
			delete(s.live, mapKey)
		}
	}
}

func (s *Service) Models() *model.Manager {
	return s.models
}

func (s *Service) FPS() int {
	return s.cfg.FPS
}

func (s *Service) Container() string {
	return s.encoder.Container()
}

// RenderCalls is the number of actual renderer invocations on the live
// path, cache hits excluded.
func (s *Service) RenderCalls() int64 {
	return s.renderCalls.Load()
}

func (s *Service) Close() error {
	s.weightsCache.Stop()
	s.frameCache.Stop()
	s.clipCache.Stop()
	return s.models.Close()
}

// frameIndex snaps a timestamp onto the frame grid so that near-identical
// timestamps share a cache entry.
func frameIndex(t float64, fps int) int {
	idx := int(math.Round(t * float64(fps)))
	if idx < 0 {
		idx = 0
	}
	return idx
}

func weightsFingerprint(w blend.Weights) string {
	buf := make([]byte, 4*blend.TargetCount)
	for i, v := range w {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

func phonemeFingerprint(seq []phoneme.Phoneme) string {
	var sb []byte
	for _, p := range seq {
		sb = append(sb, fmt.Sprintf("%s:%.4f:%.4f;", p.Label, p.Start, p.End)...)
	}
	return string(sb)
}

func decodeWeights(payload []byte) (blend.Weights, bool) {
	var w blend.Weights
	if len(payload) != 4*int(blend.TargetCount) {
		return w, false
	}
	for i := range w {
		w[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return w, true
}

// lipWeightsAt samples the phoneme sequence at a grid slot, memoized in the
// weights cache so repeated slots of the same timeline skip the matrix walk.
func (s *Service) lipWeightsAt(seq []phoneme.Phoneme, gridTime float64, fps, idx int) blend.Weights {
	key := cache.Key("weights", fmt.Sprintf("%d@%d", idx, fps), phonemeFingerprint(seq))
	if payload, ok := s.weightsCache.Get(key); ok {
		if w, ok := decodeWeights(payload); ok {
			metrics.CacheHits.WithLabelValues("weights").Inc()
			return w
		}
	}
	metrics.CacheMisses.WithLabelValues("weights").Inc()

	w := s.matrix.WeightsAt(seq, gridTime)
	s.weightsCache.Put(key, []byte(weightsFingerprint(w)))
	return w
}

// RenderFrame serves the live path. Identical requests (same model, same
// frame-grid slot, same composed weights) hit the cache and never reach a
// renderer. When the renderer fails, the last good frame for the model is
// returned degraded rather than breaking the stream.
func (s *Service) RenderFrame(ctx context.Context, req FrameRequest) (*FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	fps := req.FPS
	if fps <= 0 {
		fps = s.cfg.FPS
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = s.cfg.Width
	}
	if height <= 0 {
		height = s.cfg.Height
	}

	idx := frameIndex(req.Time, fps)
	gridTime := float64(idx) / float64(fps)

	lip := s.lipWeightsAt(req.Phonemes, gridTime, fps, idx)
	var composed blend.Weights
	for i := range composed {
		composed[i] = blend.Clamp01(req.LipSyncWeight*lip[i] + req.EmotionWeight*req.EmotionWeights[i])
	}

	key := cache.Key("frame", req.ModelKey,
		fmt.Sprintf("%dx%d@%d:%d", width, height, fps, idx),
		weightsFingerprint(composed))
	if payload, ok := s.frameCache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("frame").Inc()
		return &FrameResult{Index: idx, Time: gridTime, PNG: payload}, nil
	}
	metrics.CacheMisses.WithLabelValues("frame").Inc()

	lr, err := s.liveRendererFor(req.ModelKey, width, height)
	if err != nil {
		return nil, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	s.renderCalls.Add(1)
	frame, err := lr.renderer.RenderFrame(lr.instance, gridTime, composed.ToSlice())
	if err != nil {
		metrics.RenderErrors.Inc()
		if lr.lastGood != nil {
			s.log.Warn().Err(err).Int("frame", idx).Msg("render failed, serving last good frame")
			return &FrameResult{
				Index:    idx,
				Time:     gridTime,
				PNG:      lr.lastGood.PNG,
				Degraded: true,
			}, nil
		}
		return nil, &render.RenderError{FrameIndex: idx, Err: err}
	}

	png, err := frame.EncodePNG()
	if err != nil {
		return nil, &render.RenderError{FrameIndex: idx, Err: err}
	}

	res := &FrameResult{Index: idx, Time: gridTime, PNG: png}
	s.frameCache.Put(key, png)
	lr.lastGood = res
	metrics.FramesRendered.WithLabelValues("live").Inc()
	metrics.FrameLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

func (s *Service) liveRendererFor(key string, width, height int) (*liveRenderer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := key
	if normalized == "" {
		normalized = model.BuiltinKey
	}
	mapKey := fmt.Sprintf("%s|%dx%d", normalized, width, height)
	if lr, ok := s.live[mapKey]; ok {
		return lr, nil
	}

	m, err := s.models.Load(normalized)
	if err != nil {
		return nil, err
	}
	lr := &liveRenderer{
		renderer: s.factory(render.Config{Width: width, Height: height}, m.Capabilities()),
		instance: m.Clone(),
	}
	s.live[mapKey] = lr
	return lr, nil
}

// RenderClip serves the batch path: the pool renders every frame of the
// sequence, the encoder assembles them. Encoder failure degrades to a
// metadata result; a failed frame is replaced with its nearest good
// neighbor so one bad frame never loses the clip.
func (s *Service) RenderClip(ctx context.Context, req ClipRequest) (*ClipResult, error) {
	start := time.Now()
	if req.LipSyncWeight == 0 && req.EmotionWeight == 0 {
		req.LipSyncWeight = expression.DefaultLipSyncWeight
		req.EmotionWeight = expression.DefaultEmotionWeight
	}
	if req.Emotion == "" {
		req.Emotion = emotion.NameNeutral
	}
	if req.Phase == "" {
		req.Phase = expression.PhaseMain
	}

	key := cache.Key("clip", req.ModelKey, req.Emotion, string(req.Phase),
		fmt.Sprintf("%.3f:%.3f:%.3f", req.LipSyncWeight, req.EmotionWeight, req.Duration),
		req.AudioPath, phonemeFingerprint(req.Phonemes))
	if payload, ok := s.clipCache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("clip").Inc()
		return &ClipResult{Video: payload, Took: time.Since(start)}, nil
	}
	metrics.CacheMisses.WithLabelValues("clip").Inc()

	tasks, m, err := s.buildClipTasks(req)
	if err != nil {
		return nil, err
	}

	results := s.poolFor(m).Render(ctx, m, tasks)
	frames, err := s.assembleClipFrames(results)
	if err != nil {
		return nil, err
	}
	metrics.FramesRendered.WithLabelValues("batch").Add(float64(len(frames)))

	data, meta, err := s.encoder.Encode(ctx, frames, s.cfg.FPS, req.AudioPath)
	if err != nil {
		s.events.Publish(bus.Event{
			Type: bus.EventTypeEncodeFailed,
			Data: map[string]any{"model": req.ModelKey, "frames": len(frames), "error": err.Error()},
		})
		return &ClipResult{Metadata: meta, Took: time.Since(start)}, err
	}

	s.clipCache.Put(key, data)
	s.events.Publish(bus.Event{
		Type: bus.EventTypeClipRendered,
		Data: map[string]any{"model": req.ModelKey, "frames": len(frames), "bytes": len(data)},
	})
	return &ClipResult{Video: data, Metadata: meta, Took: time.Since(start)}, nil
}

// assembleClipFrames keeps a clip viable through per-frame failures: a
// failed slot takes the nearest good frame instead, and only a clip with
// no good frames at all is an error.
func (s *Service) assembleClipFrames(results []worker.Result) ([]*render.Frame, error) {
	var firstErr error
	frames := make([]*render.Frame, len(results))
	var lastGood *render.Frame
	for i, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			metrics.RenderErrors.Inc()
			s.log.Warn().Err(r.Err).Int("frame", r.FrameIndex).Msg("clip frame failed, substituting nearest good frame")
			continue
		}
		frames[i] = r.Frame
		lastGood = r.Frame
	}
	if lastGood == nil {
		return nil, firstErr
	}

	// One backward pass: gaps borrow the following good frame, trailing
	// gaps borrow the last good one.
	next := lastGood
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i] == nil {
			frames[i] = substituteFrame(next, results[i].FrameIndex, float64(results[i].FrameIndex)/float64(s.cfg.FPS))
		} else {
			next = frames[i]
		}
	}
	return frames, nil
}

func substituteFrame(src *render.Frame, index int, t float64) *render.Frame {
	return &render.Frame{
		Index:  index,
		Time:   t,
		Width:  src.Width,
		Height: src.Height,
		Pixels: src.Pixels,
	}
}

func (s *Service) buildClipTasks(req ClipRequest) ([]worker.Task, *model.Model, error) {
	normalized := req.ModelKey
	if normalized == "" {
		normalized = model.BuiltinKey
	}
	m, err := s.models.Load(normalized)
	if err != nil {
		return nil, nil, err
	}

	ctrl := expression.NewController()
	ctrl.SetIdleEnabled(s.cfg.IdleMotion)
	ctrl.SetBlendWeights(req.LipSyncWeight, req.EmotionWeight)
	if err := ctrl.SetPhase(req.Phase); err != nil {
		return nil, nil, err
	}
	// Sub-frame duration: the emotion is fully applied from frame zero.
	if err := ctrl.SetEmotion(req.Emotion, time.Nanosecond); err != nil {
		return nil, nil, err
	}

	end := req.Duration
	for _, p := range req.Phonemes {
		if p.End > end {
			end = p.End
		}
	}
	count := int(math.Ceil(end*float64(s.cfg.FPS))) + 1
	frameDur := time.Second / time.Duration(s.cfg.FPS)

	phaseMult := expression.PhaseMultiplier(req.Phase)
	tasks := make([]worker.Task, 0, count)
	for i := 0; i < count; i++ {
		ctrl.Update(frameDur)
		emo := ctrl.Engine().CurrentMorphWeights()
		tasks = append(tasks, worker.Task{
			FrameIndex:     i,
			Time:           float64(i) / float64(s.cfg.FPS),
			Phonemes:       req.Phonemes,
			EmotionWeights: emo,
			LipSyncWeight:  req.LipSyncWeight,
			EmotionWeight:  req.EmotionWeight * phaseMult,
		})
	}
	return tasks, m, nil
}

func (s *Service) poolFor(m *model.Model) *worker.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		caps := m.Capabilities()
		rcfg := render.Config{Width: s.cfg.Width, Height: s.cfg.Height}
		factory := s.factory
		s.pool = worker.NewPool(s.cfg.PoolSize, func() render.Renderer {
			return factory(rcfg, caps)
		}, s.log)
	}
	return s.pool
}

// CacheStats reports hit/miss/eviction counts per cache for diagnostics.
func (s *Service) CacheStats() map[string]map[string]uint64 {
	out := make(map[string]map[string]uint64, 3)
	caches := map[string]*cache.Cache{
		"weights": s.weightsCache,
		"frame":   s.frameCache,
		"clip":    s.clipCache,
	}
	for name, c := range caches {
		h, m, e := c.Stats()
		out[name] = map[string]uint64{"hits": h, "misses": m, "evictions": e}
	}
	return out
}
