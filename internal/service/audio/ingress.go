// Package audio buffers inbound raw audio between the WebSocket session
// and the server-side recognizer, enforcing backpressure limits so a
// fast producer cannot grow memory without bound.
package audio

import (
	"sync"

	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/observability/metrics"
)

// Limits defines safety guardrails for inbound audio.
// Frames beyond the limits are dropped, not queued.
type Limits struct {
	MaxFrameBytes  int // Max size of a single frame
	BufferedFrames int // Max frames queued ahead of the recognizer
}

// DefaultLimits returns sensible default limits.
// At 16kHz 16-bit mono, 64 frames of 100ms each buffer about 6 seconds.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes:  32 * 1024,
		BufferedFrames: 64,
	}
}

// Ingress is a bounded queue of audio frames. Push never blocks; when the
// recognizer falls behind, new frames are dropped and counted.
type Ingress struct {
	limits  Limits
	log     zerolog.Logger
	metrics *metrics.Metrics

	frames chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewIngress creates an audio ingress with the given limits.
func NewIngress(limits Limits, log zerolog.Logger, m *metrics.Metrics) *Ingress {
	if limits.MaxFrameBytes <= 0 {
		limits.MaxFrameBytes = DefaultLimits().MaxFrameBytes
	}
	if limits.BufferedFrames <= 0 {
		limits.BufferedFrames = DefaultLimits().BufferedFrames
	}
	return &Ingress{
		limits:  limits,
		log:     log.With().Str("component", "audio").Logger(),
		metrics: m,
		frames:  make(chan []byte, limits.BufferedFrames),
	}
}

// Push queues one frame for the recognizer. Empty frames are ignored;
// oversized frames and frames arriving while the buffer is full are
// dropped. Reports whether the frame was queued.
func (i *Ingress) Push(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	if len(frame) > i.limits.MaxFrameBytes {
		i.recordDrop("oversized", len(frame))
		return false
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return false
	}
	select {
	case i.frames <- frame:
		i.metrics.AudioFramesBuffered.Set(float64(len(i.frames)))
		i.mu.Unlock()
		return true
	default:
		i.mu.Unlock()
		i.recordDrop("buffer_full", len(frame))
		return false
	}
}

// Frames returns the channel the recognizer drains. Close closes it once
// the queue empties.
func (i *Ingress) Frames() <-chan []byte {
	return i.frames
}

// Dropped returns how many frames have been dropped so far.
func (i *Ingress) Dropped() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dropped
}

// Close ends the stream. Push after Close is a no-op.
func (i *Ingress) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	close(i.frames)
	i.metrics.AudioFramesBuffered.Set(0)
}

func (i *Ingress) recordDrop(reason string, size int) {
	i.mu.Lock()
	i.dropped++
	total := i.dropped
	i.mu.Unlock()

	i.metrics.AudioFramesDropped.WithLabelValues(reason).Inc()
	if total == 1 || total%100 == 0 {
		i.log.Warn().Str("reason", reason).Int("frameBytes", size).Int64("droppedTotal", total).
			Msg("audio frame dropped")
	}
}
