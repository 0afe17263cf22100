// Package metrics provides the Prometheus implementation of engine.Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
)

// timer wraps a Prometheus histogram to implement engine.Timer.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) engine.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for frame latency (in seconds).
var defaultBuckets = []float64{
	.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1,
}

type engineMetrics struct {
	frameDuration *prometheus.HistogramVec
	framesTotal   *prometheus.CounterVec
	commitsTotal  *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	parkedFrames  prometheus.Gauge
	queueDepth    prometheus.Gauge
}

// New creates the engine metrics and registers them with reg.
func New(reg prometheus.Registerer) engine.Metrics {
	m := &engineMetrics{
		frameDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ckpt_frame_duration_seconds",
			Help:    "Wall time from dispatch to completion or rollback, including time parked",
			Buckets: defaultBuckets,
		}, []string{"actor", "method"}),

		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckpt_frames_total",
			Help: "Total number of frames finished, by terminal status",
		}, []string{"actor", "method", "status"}),

		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckpt_commits_total",
			Help: "Total number of State Cell commits",
		}, []string{"actor", "reason"}),

		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckpt_rollbacks_total",
			Help: "Total number of frames rolled back",
		}, []string{"actor", "code"}),

		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckpt_rejections_total",
			Help: "Total number of ingress calls rejected before dispatch",
		}, []string{"actor", "code"}),

		parkedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ckpt_parked_frames",
			Help: "Frames currently parked on an outbound call",
		}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ckpt_queue_depth",
			Help: "Events waiting in the router queue",
		}),
	}

	reg.MustRegister(
		m.frameDuration,
		m.framesTotal,
		m.commitsTotal,
		m.rollbacks,
		m.rejections,
		m.parkedFrames,
		m.queueDepth,
	)

	return m
}

func (m *engineMetrics) FrameDuration(actor ir.ActorID, method string) engine.Timer {
	return newTimer(m.frameDuration.WithLabelValues(string(actor), method))
}

func (m *engineMetrics) FrameFinished(actor ir.ActorID, method string, status engine.FrameStatus) {
	m.framesTotal.WithLabelValues(string(actor), method, status.String()).Inc()
}

func (m *engineMetrics) Committed(actor ir.ActorID, reason engine.CommitReason) {
	m.commitsTotal.WithLabelValues(string(actor), string(reason)).Inc()
}

func (m *engineMetrics) RolledBack(actor ir.ActorID, code engine.Code) {
	m.rollbacks.WithLabelValues(string(actor), string(code)).Inc()
}

func (m *engineMetrics) Rejected(actor ir.ActorID, code engine.Code) {
	m.rejections.WithLabelValues(string(actor), string(code)).Inc()
}

func (m *engineMetrics) ParkedFrames(n int) {
	m.parkedFrames.Set(float64(n))
}

func (m *engineMetrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

var _ engine.Metrics = (*engineMetrics)(nil)
