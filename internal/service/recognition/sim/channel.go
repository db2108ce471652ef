// Package sim provides a scripted recognition channel for tests and demos
// without a browser or cloud credentials. It simulates realistic recognizer
// behavior: progressive interim results, exactly one final result per
// utterance, and a terminating end event.
package sim

import (
	"context"
	"sync"
	"time"

	"conversation-transcription-service/internal/service/recognition"
)

// Utterance is one scripted utterance with progressive interim transcripts.
type Utterance struct {
	Partials   []string // progressive interim transcripts
	Final      string   // final transcript text
	Confidence float64  // confidence reported with the final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []Utterance{
	{
		Partials:   []string{"bonjour", "bonjour est-ce que", "bonjour est-ce que tu"},
		Final:      "bonjour est-ce que tu m'entends",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"oui", "oui très bien"},
		Final:      "oui très bien merci",
		Confidence: 0.96,
	},
	{
		Partials:   []string{"on", "on commence", "on commence la réunion"},
		Final:      "on commence la réunion maintenant",
		Confidence: 0.9,
	},
}

// Channel implements recognition.Channel by replaying a script.
type Channel struct {
	lang   string
	script []Utterance
	step   time.Duration

	mu      sync.Mutex
	cb      recognition.Callback
	cancel  context.CancelFunc
	running bool
}

// New creates a scripted channel. A zero step defaults to 40ms between
// emitted events.
func New(lang string, script []Utterance, step time.Duration) *Channel {
	if len(script) == 0 {
		script = DefaultUtterances
	}
	if step <= 0 {
		step = 40 * time.Millisecond
	}
	return &Channel{lang: lang, script: script, step: step}
}

// Lang returns the language tag of the channel.
func (c *Channel) Lang() string { return c.lang }

// Start begins replaying the script. Each utterance produces its interim
// results followed by one final result; the cumulative result list and
// ResultIndex follow the recognition contract.
func (c *Channel) Start(ctx context.Context, cb recognition.Callback) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return recognition.ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cb = cb
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	go c.play(runCtx, cb)
	return nil
}

func (c *Channel) play(ctx context.Context, cb recognition.Callback) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cb.OnEnd()
	}()

	cb.OnStart()

	var finals []recognition.Result
	for _, utt := range c.script {
		for _, partial := range utt.Partials {
			if !c.sleep(ctx) {
				return
			}
			ev := recognition.ResultEvent{
				ResultIndex: len(finals),
				Results: append(append([]recognition.Result{}, finals...), recognition.Result{
					Alternatives: []recognition.Alternative{{Transcript: partial, Confidence: utt.Confidence}},
				}),
			}
			cb.OnResult(ev)
		}
		if !c.sleep(ctx) {
			return
		}
		finals = append(finals, recognition.Result{
			IsFinal:      true,
			Alternatives: []recognition.Alternative{{Transcript: utt.Final, Confidence: utt.Confidence}},
		})
		cb.OnResult(recognition.ResultEvent{
			ResultIndex: len(finals) - 1,
			Results:     append([]recognition.Result{}, finals...),
		})
	}
}

func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.step):
		return true
	}
}

// Stop ends the replay; OnEnd fires from the playback goroutine.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Abort is equivalent to Stop for the scripted channel.
func (c *Channel) Abort() { c.Stop() }
