// Package recognition defines the interface for streaming
// speech-recognition channels. A channel is bound to one language and
// emits incremental result, start, end and error events, mirroring the
// browser speech capability the service is fed from.
package recognition

import "context"

// ErrorCode enumerates recognition error classes.
type ErrorCode string

const (
	// ErrNoSpeech - no speech detected in the audio window. Ignorable.
	ErrNoSpeech ErrorCode = "no-speech"
	// ErrAborted - the session was aborted on purpose. Ignorable.
	ErrAborted ErrorCode = "aborted"
	// ErrAudioCapture - no usable microphone/input device.
	ErrAudioCapture ErrorCode = "audio-capture"
	// ErrNotAllowed - permission to capture audio was denied.
	ErrNotAllowed ErrorCode = "not-allowed"
	// ErrNetwork - transient transport failure, worth one retry.
	ErrNetwork ErrorCode = "network"
	// ErrOther - anything the provider could not classify.
	ErrOther ErrorCode = "other"
)

// Alternative is one hypothesis for a recognized span of audio.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one span of recognized audio. While IsFinal is false the
// recognizer may still rewrite it on later events.
type Result struct {
	IsFinal      bool          `json:"isFinal"`
	Alternatives []Alternative `json:"alternatives"`
}

// Best returns the top alternative, or false if the result carries none.
func (r Result) Best() (Alternative, bool) {
	if len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// ResultEvent carries the cumulative result list of a session.
// ResultIndex is the index of the first result that changed in this event;
// consumers only read Results[ResultIndex:].
type ResultEvent struct {
	ResultIndex int      `json:"resultIndex"`
	Results     []Result `json:"results"`
}

// Callback receives channel lifecycle and result notifications.
// Implementations must tolerate being called from the channel's own
// goroutines.
type Callback interface {
	// OnStart is called when the channel has begun listening.
	OnStart()

	// OnResult is called for every incremental recognition update.
	OnResult(ev ResultEvent)

	// OnError is called when the channel hits an error. The channel may
	// still emit OnEnd afterwards.
	OnError(code ErrorCode, message string)

	// OnEnd is called when the session terminates, expectedly or not.
	OnEnd()
}

// Channel is a single-language streaming recognizer. Start, Stop and Abort
// are fire-and-forget: completion is reported through the callback.
type Channel interface {
	// Lang returns the BCP-47 tag the channel is bound to.
	Lang() string

	// Start begins a continuous session with interim results enabled.
	// Returns an error only when the session cannot even be initiated.
	Start(ctx context.Context, cb Callback) error

	// Stop ends the session gracefully; buffered results may still arrive
	// before OnEnd.
	Stop()

	// Abort tears the session down immediately, discarding pending results.
	Abort()
}

// Factory builds a channel for a language. The arbiter uses it to construct
// one channel per candidate language.
type Factory func(lang string) (Channel, error)
