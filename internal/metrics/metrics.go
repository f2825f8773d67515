package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatarstream_active_sessions",
			Help: "Number of live streaming sessions",
		},
	)

	SessionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarstream_sessions_rejected_total",
			Help: "Connections rejected by the session limit",
		},
	)

	FramesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarstream_frames_rendered_total",
			Help: "Frames produced, by path",
		},
		[]string{"path"},
	)

	RenderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarstream_render_errors_total",
			Help: "Per-frame render failures",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarstream_cache_hits_total",
			Help: "Cache hits, by cache",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarstream_cache_misses_total",
			Help: "Cache misses, by cache",
		},
		[]string{"cache"},
	)

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "avatarstream_encode_duration_seconds",
			Help: "Video encoding duration in seconds",
		},
	)

	FrameLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avatarstream_frame_latency_seconds",
			Help:    "Live-path latency from message to frame emission",
			Buckets: []float64{.001, .005, .01, .02, .033, .05, .1, .25},
		},
	)
)
