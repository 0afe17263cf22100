package engine

import "github.com/roach88/ckpt/internal/ir"

// Timer measures the duration of an operation.
type Timer interface {
	ObserveDuration()
}

// Metrics is the engine's instrumentation port. The Prometheus adapter lives
// in internal/metrics. All methods must be safe for concurrent use.
type Metrics interface {
	// Frames
	FrameDuration(actor ir.ActorID, method string) Timer
	FrameFinished(actor ir.ActorID, method string, status FrameStatus)

	// Checkpoints
	Committed(actor ir.ActorID, reason CommitReason)
	RolledBack(actor ir.ActorID, code Code)
	Rejected(actor ir.ActorID, code Code)

	// Scheduler
	ParkedFrames(n int)
	QueueDepth(n int)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

type nopMetrics struct{}

func (nopMetrics) FrameDuration(ir.ActorID, string) Timer        { return nopTimer{} }
func (nopMetrics) FrameFinished(ir.ActorID, string, FrameStatus) {}
func (nopMetrics) Committed(ir.ActorID, CommitReason)            {}
func (nopMetrics) RolledBack(ir.ActorID, Code)                   {}
func (nopMetrics) Rejected(ir.ActorID, Code)                     {}
func (nopMetrics) ParkedFrames(int)                              {}
func (nopMetrics) QueueDepth(int)                                {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
