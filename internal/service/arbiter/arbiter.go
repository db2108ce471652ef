// Package arbiter owns the recognition channels for a transcription
// session, scores their output, picks a winning language and republishes a
// single coherent transcript view. Restart and stuck-recovery policy for
// dropped channels lives here.
package arbiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/service/recognition"
)

// LanguageAuto selects dual-candidate mode (French primary, English
// secondary). Any other value is treated as a fixed BCP-47 tag.
const (
	LanguageAuto      = "auto"
	LanguageFrench    = "fr-FR"
	LanguageEnglish   = "en-US"
	defaultConfidence = 0.5
)

// Config holds arbiter tuning. Zero durations fall back to the defaults
// the recovery policy is specified with.
type Config struct {
	Language          string        // "auto", "fr-FR", "en-US", ...
	RestartDelay      time.Duration // delay before restarting an ended channel
	NetworkRetryDelay time.Duration // backoff before the single network retry
	WatchdogPoll      time.Duration // liveness poll interval
	StuckTimeout      time.Duration // inactivity window before a silent restart
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = LanguageAuto
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 300 * time.Millisecond
	}
	if c.NetworkRetryDelay <= 0 {
		c.NetworkRetryDelay = time.Second
	}
	if c.WatchdogPoll <= 0 {
		c.WatchdogPoll = 5 * time.Second
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = 60 * time.Second
	}
}

// Status is a snapshot of session health.
type Status struct {
	Listening        bool
	Stuck            bool
	Err              string
	DetectedLanguage string
}

// UpdateFunc receives every published transcript view.
type UpdateFunc func(view models.TranscriptView)

// StateFunc receives session health transitions.
type StateFunc func(st Status)

// channelState is the owned mutable accumulator for one channel. Consumers
// only ever see immutable snapshots assembled from it.
type channelState struct {
	channel   recognition.Channel
	lang      string
	finalText strings.Builder
	interim   string
	score     float64
}

// Arbiter aggregates one recognition channel per candidate language.
//
// In auto mode both channels are constructed but only the primary is
// started: the platform capability allows a single concurrent session, so
// the secondary stays a pre-built candidate for result routing until a
// force pin or restart hands it the session.
type Arbiter struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	channels     []*channelState // primary first
	forced       *channelState   // non-nil while a language is force-pinned
	winner       *channelState   // last published winner
	view         models.TranscriptView
	onUpdate     UpdateFunc
	onState      StateFunc
	listening    bool
	stuck        bool
	errMsg       string
	lastActivity time.Time
	netRetries   int
	ctx          context.Context
	restartTimer *time.Timer
	watchdogStop chan struct{}
}

// New builds the arbiter and its channels via the factory. A factory
// failure means the recognition capability is unavailable; the session
// cannot be created.
func New(cfg Config, factory recognition.Factory, log zerolog.Logger, m *metrics.Metrics) (*Arbiter, error) {
	cfg.applyDefaults()

	langs := []string{cfg.Language}
	if cfg.Language == LanguageAuto {
		langs = []string{LanguageFrench, LanguageEnglish}
	}

	a := &Arbiter{
		cfg:     cfg,
		log:     log.With().Str("component", "arbiter").Logger(),
		metrics: m,
	}
	for _, lang := range langs {
		ch, err := factory(lang)
		if err != nil {
			return nil, err
		}
		a.channels = append(a.channels, &channelState{channel: ch, lang: lang})
	}
	a.view.DetectedLanguage = a.channels[0].lang
	return a, nil
}

// SetUpdateFunc installs the hook invoked on every published view. Must be
// set before Start.
func (a *Arbiter) SetUpdateFunc(fn UpdateFunc) {
	a.mu.Lock()
	a.onUpdate = fn
	a.mu.Unlock()
}

// SetStateFunc installs the hook invoked on listening/stuck transitions.
// Must be set before Start.
func (a *Arbiter) SetStateFunc(fn StateFunc) {
	a.mu.Lock()
	a.onState = fn
	a.mu.Unlock()
}

// notifyState pushes the current status to the state hook. Never called
// with the lock held.
func (a *Arbiter) notifyState() {
	a.mu.Lock()
	fn := a.onState
	a.mu.Unlock()
	if fn != nil {
		fn(a.Status())
	}
}

func (a *Arbiter) primary() *channelState { return a.channels[0] }

// Start begins listening on the primary channel and arms the liveness
// watchdog. Scores reset on every start; a force pin survives restarts.
func (a *Arbiter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.stuck = false
	a.errMsg = ""
	a.netRetries = 0
	for _, cs := range a.channels {
		cs.score = 0
	}
	primary := a.primary()
	if a.watchdogStop == nil {
		a.watchdogStop = make(chan struct{})
		go a.watchdog(a.watchdogStop)
	}
	a.mu.Unlock()

	if err := primary.channel.Start(ctx, &channelCallback{a: a, cs: primary}); err != nil {
		a.mu.Lock()
		a.stuck = true
		a.errMsg = "could not start recognition: " + err.Error()
		a.mu.Unlock()
		a.log.Error().Err(err).Str("lang", primary.lang).Msg("recognition start failed")
		a.notifyState()
		return err
	}
	a.log.Info().Str("lang", primary.lang).Str("mode", a.cfg.Language).Msg("recognition starting")
	return nil
}

// Stop ends the session: cancels any pending restart so a stale timer
// cannot resurrect an old channel, then stops every channel.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	a.listening = false
	if a.restartTimer != nil {
		a.restartTimer.Stop()
		a.restartTimer = nil
	}
	if a.watchdogStop != nil {
		close(a.watchdogStop)
		a.watchdogStop = nil
	}
	channels := a.channels
	a.mu.Unlock()

	for _, cs := range channels {
		cs.channel.Stop()
	}
	a.log.Info().Msg("recognition stopped")
	a.notifyState()
}

// Reset atomically clears all accumulators, interim buffers and scores.
// Channels keep running; the cleared view is republished so consumers
// observe the empty buffers.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	for _, cs := range a.channels {
		cs.finalText.Reset()
		cs.interim = ""
		cs.score = 0
	}
	a.view.FinalText = ""
	a.view.InterimText = ""
	fn, view := a.onUpdate, a.view
	a.mu.Unlock()

	if fn != nil {
		fn(view)
	}
}

// ForceLanguage pins the winner unconditionally and immediately
// republishes the forced channel's already-accumulated buffers. The pin is
// sticky across further events until ClearForce.
func (a *Arbiter) ForceLanguage(lang string) {
	a.mu.Lock()
	var target *channelState
	for _, cs := range a.channels {
		if cs.lang == lang {
			target = cs
		}
	}
	if target == nil {
		a.mu.Unlock()
		a.log.Warn().Str("lang", lang).Msg("force-language ignored: no such channel")
		return
	}
	a.forced = target
	a.winner = target
	for _, cs := range a.channels {
		if cs == target {
			cs.score = 1
		} else {
			cs.score = 0
		}
	}
	a.view = models.TranscriptView{
		FinalText:        strings.TrimRight(target.finalText.String(), " "),
		InterimText:      target.interim,
		DetectedLanguage: target.lang,
		IsActive:         a.listening,
	}
	fn, view := a.onUpdate, a.view
	a.mu.Unlock()

	a.log.Info().Str("lang", lang).Msg("language forced")
	a.metrics.LanguageForced.Inc()
	if fn != nil {
		fn(view)
	}
}

// ClearForce lifts the pin; winner selection returns to scoring.
func (a *Arbiter) ClearForce() {
	a.mu.Lock()
	a.forced = nil
	a.mu.Unlock()
}

// ClearError clears a surfaced error message without touching session
// state.
func (a *Arbiter) ClearError() {
	a.mu.Lock()
	a.errMsg = ""
	a.mu.Unlock()
}

// Snapshot returns the current unified transcript view.
func (a *Arbiter) Snapshot() models.TranscriptView {
	a.mu.Lock()
	defer a.mu.Unlock()
	view := a.view
	view.IsActive = a.listening
	return view
}

// Status returns current session health.
func (a *Arbiter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	lang := a.view.DetectedLanguage
	if a.winner != nil {
		lang = a.winner.lang
	}
	return Status{
		Listening:        a.listening,
		Stuck:            a.stuck,
		Err:              a.errMsg,
		DetectedLanguage: lang,
	}
}

// selectWinner applies the winner policy: a forced pin always wins;
// otherwise the higher average score does, ties broken in favor of the
// primary channel. Caller holds the lock.
func (a *Arbiter) selectWinner() *channelState {
	if a.forced != nil {
		return a.forced
	}
	best := a.primary()
	for _, cs := range a.channels[1:] {
		if cs.score > best.score {
			best = cs
		}
	}
	return best
}

// handleResult folds one incremental result event into the producing
// channel's accumulator and publishes iff that channel is the winner.
func (a *Arbiter) handleResult(cs *channelState, ev recognition.ResultEvent) {
	a.mu.Lock()

	var interim strings.Builder
	var confidence float64
	count := 0
	for i := ev.ResultIndex; i < len(ev.Results); i++ {
		alt, ok := ev.Results[i].Best()
		if !ok {
			continue
		}
		conf := alt.Confidence
		if conf <= 0 {
			conf = defaultConfidence
		}
		confidence += conf
		count++
		if ev.Results[i].IsFinal {
			cs.finalText.WriteString(alt.Transcript)
			cs.finalText.WriteString(" ")
		} else {
			interim.WriteString(alt.Transcript)
		}
	}
	cs.interim = interim.String()
	if count > 0 && a.forced == nil {
		cs.score = confidence / float64(count)
	}

	a.lastActivity = time.Now()
	a.stuck = false
	a.netRetries = 0

	winner := a.selectWinner()
	a.winner = winner

	published := winner == cs
	var fn UpdateFunc
	var view models.TranscriptView
	if published {
		a.view = models.TranscriptView{
			FinalText:        strings.TrimRight(cs.finalText.String(), " "),
			InterimText:      cs.interim,
			DetectedLanguage: winner.lang,
			IsActive:         a.listening,
		}
		fn, view = a.onUpdate, a.view
	}
	a.mu.Unlock()

	a.metrics.ResultsReceived.WithLabelValues(cs.lang).Inc()
	if published {
		a.metrics.ViewsPublished.WithLabelValues(winner.lang).Inc()
		if fn != nil {
			fn(view)
		}
	}
}

func (a *Arbiter) handleStart(cs *channelState) {
	a.mu.Lock()
	a.listening = true
	a.stuck = false
	a.errMsg = ""
	a.lastActivity = time.Now()
	a.mu.Unlock()
	a.log.Debug().Str("lang", cs.lang).Msg("channel listening")
	a.notifyState()
}

// handleEnd restarts a channel that terminated while the session is still
// supposed to be live. The delay avoids hot-restart loops; the timer is
// cancelled by Stop so a stale restart cannot fire for a dead session.
func (a *Arbiter) handleEnd(cs *channelState) {
	a.mu.Lock()
	if !a.listening || a.stuck {
		a.listening = false
		a.mu.Unlock()
		a.log.Debug().Str("lang", cs.lang).Msg("channel ended, session over")
		a.notifyState()
		return
	}
	if a.restartTimer != nil {
		a.mu.Unlock()
		return
	}
	a.restartTimer = time.AfterFunc(a.cfg.RestartDelay, func() { a.restart(cs, "end") })
	a.mu.Unlock()
	a.log.Debug().Str("lang", cs.lang).Msg("channel ended, restart scheduled")
}

// restart re-starts a channel after the scheduled delay. A failure here is
// terminal until the user retries.
func (a *Arbiter) restart(cs *channelState, reason string) {
	a.mu.Lock()
	a.restartTimer = nil
	if !a.listening || a.stuck {
		a.mu.Unlock()
		return
	}
	ctx := a.ctx
	a.mu.Unlock()

	a.metrics.ChannelRestarts.WithLabelValues(reason).Inc()
	if err := cs.channel.Start(ctx, &channelCallback{a: a, cs: cs}); err != nil {
		a.mu.Lock()
		a.errMsg = "recording is stuck, retry to resume"
		a.becomeStuckLocked()
		a.mu.Unlock()
		a.log.Error().Err(err).Str("lang", cs.lang).Str("reason", reason).Msg("channel restart failed")
		a.notifyState()
	}
}

// handleError applies the error taxonomy: ignorable, permission/device
// (immediately stuck), network (one retry with backoff), other (stuck).
func (a *Arbiter) handleError(cs *channelState, code recognition.ErrorCode, message string) {
	if code == recognition.ErrNoSpeech || code == recognition.ErrAborted {
		return
	}
	a.metrics.ChannelErrors.WithLabelValues(string(code)).Inc()
	a.log.Warn().Str("lang", cs.lang).Str("code", string(code)).Str("message", message).Msg("recognition error")

	a.mu.Lock()
	switch code {
	case recognition.ErrAudioCapture:
		a.errMsg = "no microphone detected, check device permissions"
		a.becomeStuckLocked()
	case recognition.ErrNotAllowed:
		a.errMsg = "microphone access denied, allow it in the browser settings"
		a.becomeStuckLocked()
	case recognition.ErrNetwork:
		if a.netRetries >= 1 {
			a.errMsg = "reconnection failed, check your connection and retry"
			a.becomeStuckLocked()
			break
		}
		a.netRetries++
		a.errMsg = "network error, reconnecting"
		if a.restartTimer == nil {
			a.restartTimer = time.AfterFunc(a.cfg.NetworkRetryDelay, func() { a.restart(cs, "network") })
		}
	default:
		a.errMsg = "recognition error: " + string(code)
		a.becomeStuckLocked()
	}
	a.mu.Unlock()
	a.notifyState()
}

// becomeStuckLocked enters the terminal-until-retry state. Caller holds
// the lock.
func (a *Arbiter) becomeStuckLocked() {
	a.stuck = true
	a.listening = false
	if a.restartTimer != nil {
		a.restartTimer.Stop()
		a.restartTimer = nil
	}
	a.metrics.SessionsStuck.Inc()
}

// watchdog polls for liveness while the session runs: with no activity for
// the stuck timeout it attempts one silent restart of the primary channel;
// failure marks the session stuck. It never auto-clears stuck state.
func (a *Arbiter) watchdog(stop chan struct{}) {
	ticker := time.NewTicker(a.cfg.WatchdogPoll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		if !a.listening || a.stuck || time.Since(a.lastActivity) <= a.cfg.StuckTimeout {
			a.mu.Unlock()
			continue
		}
		primary := a.primary()
		ctx := a.ctx
		a.lastActivity = time.Now()
		a.mu.Unlock()

		a.log.Warn().Str("lang", primary.lang).Msg("no recognition activity, attempting silent restart")
		a.metrics.WatchdogKicks.Inc()
		if err := primary.channel.Start(ctx, &channelCallback{a: a, cs: primary}); err != nil {
			a.mu.Lock()
			a.errMsg = "recording appears stuck, retry to resume"
			a.becomeStuckLocked()
			a.mu.Unlock()
			a.log.Error().Err(err).Msg("silent restart failed")
			a.notifyState()
		}
	}
}

// channelCallback binds a channel's events to the arbiter.
type channelCallback struct {
	a  *Arbiter
	cs *channelState
}

func (c *channelCallback) OnStart() { c.a.handleStart(c.cs) }
func (c *channelCallback) OnEnd()   { c.a.handleEnd(c.cs) }
func (c *channelCallback) OnResult(ev recognition.ResultEvent) {
	c.a.handleResult(c.cs, ev)
}
func (c *channelCallback) OnError(code recognition.ErrorCode, message string) {
	c.a.handleError(c.cs, code, message)
}
