// Package editor orchestrates a transcription editing session: recording
// lifecycle, speaker switching, live merge of recognition output into the
// document, and debounced persistence.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/events"
	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/observability/logging"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/service/arbiter"
	"conversation-transcription-service/internal/service/recognition"
	"conversation-transcription-service/internal/service/segment"
	"conversation-transcription-service/internal/service/transcript"
	"conversation-transcription-service/internal/store"
)

// Session states.
const (
	StateIdle      = "idle"
	StateRecording = "recording"
	StateStuck     = "stuck"
)

// Session transitions.
const (
	eventStart = "start"
	eventStop  = "stop"
	eventStick = "stick"
	eventRetry = "retry"
)

// Config holds editor tuning. Zero values fall back to defaults.
type Config struct {
	AutosaveDelay    time.Duration // debounce window for autosave
	WarningTTL       time.Duration // how long precondition warnings stay up
	SuppressionRunes int           // residual shorter than this is dropped after a switch
	Arbiter          arbiter.Config
}

func (c *Config) applyDefaults() {
	if c.AutosaveDelay <= 0 {
		c.AutosaveDelay = 2 * time.Second
	}
	if c.WarningTTL <= 0 {
		c.WarningTTL = 5 * time.Second
	}
	if c.SuppressionRunes <= 0 {
		c.SuppressionRunes = 10
	}
}

// Update is the state pushed to session clients after every change.
type Update struct {
	State           string                `json:"state"`
	Content         string                `json:"content"`
	View            models.TranscriptView `json:"view"`
	Warning         string                `json:"warning,omitempty"`
	Err             string                `json:"error,omitempty"`
	ActiveSpeakerID string                `json:"activeSpeakerId,omitempty"`
	ConversationID  string                `json:"conversationId,omitempty"`
	Participants    []models.Participant  `json:"participants"`
}

// Notifier receives session updates. Called from editor goroutines.
type Notifier func(Update)

// Controller drives one editing session. All exported methods are safe for
// concurrent use.
type Controller struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	store   store.Store
	pub     *events.Publisher

	mu            sync.Mutex
	machine       *fsm.FSM
	arb           *arbiter.Arbiter
	unsupported   bool
	conversation  *models.Conversation
	participants  []models.Participant
	activeSpeaker *models.Participant
	content       string
	lastView      models.TranscriptView
	turns         *segment.Tracker
	suppressed    bool
	warning       string
	warningTimer  *time.Timer
	autosaveTimer *time.Timer
	sessionStart  time.Time
	notifier      Notifier
	unsubscribe   func()
	closed        bool
}

// New builds a session controller. A factory failure disables recording
// but leaves manual editing and persistence working.
func New(ctx context.Context, cfg Config, st store.Store, pub *events.Publisher, factory recognition.Factory, log zerolog.Logger, m *metrics.Metrics) (*Controller, error) {
	cfg.applyDefaults()

	c := &Controller{
		cfg:     cfg,
		log:     log.With().Str("component", "editor").Logger(),
		metrics: m,
		store:   st,
		pub:     pub,
	}
	c.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateRecording},
			{Name: eventStop, Src: []string{StateRecording, StateStuck}, Dst: StateIdle},
			{Name: eventStick, Src: []string{StateRecording}, Dst: StateStuck},
			{Name: eventRetry, Src: []string{StateStuck}, Dst: StateRecording},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.log.Info().Str("from", e.Src).Str("to", e.Dst).Msg("session state changed")
			},
		},
	)

	arb, err := arbiter.New(cfg.Arbiter, factory, log, m)
	if err != nil {
		c.unsupported = true
		c.log.Warn().Err(err).Msg("speech recognition unavailable, recording disabled")
	} else {
		arb.SetUpdateFunc(c.handleView)
		arb.SetStateFunc(c.handleArbiterState)
		c.arb = arb
	}

	roster, err := st.GetAllParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	c.participants = roster
	c.unsubscribe = st.SubscribeParticipants(func() { c.refreshParticipants(context.Background()) })
	return c, nil
}

// SetNotifier installs the client push hook.
func (c *Controller) SetNotifier(fn Notifier) {
	c.mu.Lock()
	c.notifier = fn
	c.mu.Unlock()
}

// Snapshot returns the full session state for an initial client push.
func (c *Controller) Snapshot() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked()
}

// LoadCurrent resumes the conversation the resumption pointer names, if
// any. A dangling pointer is cleared rather than surfaced.
func (c *Controller) LoadCurrent(ctx context.Context) error {
	id, err := c.store.GetCurrentConversationID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err := c.LoadConversation(ctx, id); errors.Is(err, store.ErrNotFound) {
		l := logging.WithConversation(id)
		l.Warn().Msg("current conversation missing, clearing pointer")
		return c.store.SetCurrentConversationID(ctx, "")
	} else if err != nil {
		return err
	}
	return nil
}

// LoadConversation replaces the working document. Refused while a
// recording session is live so unsaved recognition output is not lost.
func (c *Controller) LoadConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("stop recording before loading a conversation")
	}
	c.mu.Unlock()

	conv, err := c.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.SetCurrentConversationID(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	c.conversation = conv
	c.content = conv.Content
	c.turns = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// NewConversation clears the working document and detaches from the
// stored conversation. Refused while recording.
func (c *Controller) NewConversation(ctx context.Context) error {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("stop recording before starting a new conversation")
	}
	c.conversation = nil
	c.content = ""
	c.turns = nil
	c.mu.Unlock()

	if err := c.store.SetCurrentConversationID(ctx, ""); err != nil {
		return err
	}
	c.notify()
	return nil
}

// StartRecording begins a session for the given speaker. Failed
// preconditions surface as a warning that clears itself, not an error.
func (c *Controller) StartRecording(ctx context.Context, speakerID string) error {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		c.mu.Unlock()
		return nil
	}
	if c.unsupported {
		c.setWarningLocked("speech recognition is not available on this platform")
		c.mu.Unlock()
		c.notify()
		return nil
	}
	if len(c.participants) == 0 {
		c.setWarningLocked("add a participant before recording")
		c.mu.Unlock()
		c.notify()
		return nil
	}
	speaker := c.findParticipantLocked(speakerID)
	if speaker == nil {
		c.setWarningLocked("select a speaker before recording")
		c.mu.Unlock()
		c.notify()
		return nil
	}
	c.activeSpeaker = speaker
	c.suppressed = false
	if c.conversation == nil {
		c.conversation = newConversation()
	}
	if c.turns == nil {
		c.turns = segment.NewTracker(c.conversation.Metadata.ID)
	}
	c.turns.Open(speaker.ID)
	c.sessionStart = time.Now()
	if err := c.machine.Event(ctx, eventStart); err != nil {
		c.mu.Unlock()
		return err
	}
	arb := c.arb
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	if err := arb.Start(ctx); err != nil {
		// The arbiter surfaced the failure as stuck; mirror it.
		c.mu.Lock()
		_ = c.machine.Event(ctx, eventStick)
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.notify()
	return nil
}

// StopRecording finalizes pending speech, stops the channels and saves
// immediately.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	state := c.machine.Current()
	if state != StateRecording && state != StateStuck {
		c.mu.Unlock()
		return nil
	}
	c.finalizeLocked(ctx)
	if c.turns != nil {
		if turn := c.turns.Current(); turn != nil {
			turn.Drop()
		}
	}
	if !c.sessionStart.IsZero() && c.conversation != nil {
		c.conversation.Metadata.DurationMin += int(time.Since(c.sessionStart).Minutes())
		c.sessionStart = time.Time{}
	}
	if err := c.machine.Event(ctx, eventStop); err != nil {
		c.mu.Unlock()
		return err
	}
	arb := c.arb
	c.cancelAutosaveLocked()
	c.mu.Unlock()

	if arb != nil {
		arb.Stop()
	}
	c.metrics.RecordSessionEnd()
	c.notify()
	return c.save(ctx, false)
}

// SwitchSpeaker finalizes the outgoing speaker's pending speech, resets
// the recognition buffers and suppresses short residual output so a
// trailing fragment of the old utterance cannot leak onto the new
// speaker's line.
func (c *Controller) SwitchSpeaker(ctx context.Context, speakerID string) error {
	c.mu.Lock()
	speaker := c.findParticipantLocked(speakerID)
	if speaker == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown participant %q", speakerID)
	}
	recording := c.machine.Current() == StateRecording
	if recording {
		c.finalizeLocked(ctx)
		c.suppressed = true
		if c.turns != nil {
			c.turns.Open(speaker.ID)
		}
	}
	c.activeSpeaker = speaker
	arb := c.arb
	c.mu.Unlock()

	if recording {
		c.metrics.SpeakerSwitches.Inc()
		if arb != nil {
			arb.Reset()
		}
		c.scheduleAutosave()
	}
	c.notify()
	return nil
}

// Retry restarts recognition after a stuck session.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.machine.Current() != StateStuck {
		c.mu.Unlock()
		return nil
	}
	if err := c.machine.Event(ctx, eventRetry); err != nil {
		c.mu.Unlock()
		return err
	}
	arb := c.arb
	c.mu.Unlock()

	arb.ClearError()
	if err := arb.Start(ctx); err != nil {
		c.mu.Lock()
		_ = c.machine.Event(ctx, eventStick)
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.notify()
	return nil
}

// SetContent applies a manual edit to the document.
func (c *Controller) SetContent(_ context.Context, text string) {
	c.mu.Lock()
	c.content = text
	c.mu.Unlock()
	c.scheduleAutosave()
	c.notify()
}

// InsertNewline applies the marker newline rule at the cursor, returning
// the updated text, cursor position and whether the rule applied.
func (c *Controller) InsertNewline(text string, cursor int) (string, int, bool) {
	c.mu.Lock()
	roster := c.participants
	c.mu.Unlock()
	return transcript.InsertNewlineAfterMarker(text, cursor, roster)
}

// ClearTranscript empties the working document and the recognition
// buffers. The stored conversation is untouched until the next save.
func (c *Controller) ClearTranscript(_ context.Context) {
	c.mu.Lock()
	c.content = ""
	arb := c.arb
	recording := c.machine.Current() == StateRecording
	c.mu.Unlock()

	if recording && arb != nil {
		arb.Reset()
	}
	c.notify()
}

// Save persists the working document immediately, bypassing the autosave
// debounce and its data-loss guard.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	c.cancelAutosaveLocked()
	c.mu.Unlock()
	return c.save(ctx, true)
}

// ForceLanguage pins the recognition language for the session.
func (c *Controller) ForceLanguage(lang string) {
	c.mu.Lock()
	arb := c.arb
	c.mu.Unlock()
	if arb != nil {
		arb.ForceLanguage(lang)
	}
}

// Close stops recording if live and releases resources.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelAutosaveLocked()
	if c.warningTimer != nil {
		c.warningTimer.Stop()
	}
	arb := c.arb
	unsub := c.unsubscribe
	recording := c.machine.Current() == StateRecording || c.machine.Current() == StateStuck
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if arb != nil && recording {
		arb.Stop()
		c.metrics.RecordSessionEnd()
	}
}

// handleView is the arbiter update hook: merge the published view into the
// document, unless post-switch suppression drops it as residual.
func (c *Controller) handleView(view models.TranscriptView) {
	c.mu.Lock()
	c.lastView = view
	speaker := c.activeSpeaker
	if speaker == nil || c.machine.Current() != StateRecording {
		c.mu.Unlock()
		return
	}
	display := transcript.DisplayText(view.FinalText, view.InterimText)
	if display == "" {
		c.mu.Unlock()
		return
	}
	if c.suppressed {
		if len([]rune(display)) < c.cfg.SuppressionRunes {
			c.mu.Unlock()
			c.metrics.RecordMerge("suppressed")
			return
		}
		c.suppressed = false
	}
	prev := c.content
	c.content = transcript.Merge(prev, speaker.Name, display)
	changed := c.content != prev
	convID := ""
	if c.conversation != nil {
		convID = c.conversation.Metadata.ID
	}
	c.mu.Unlock()

	if changed {
		c.metrics.RecordMerge("applied")
	}
	c.publishView(convID, speaker, view)
	c.scheduleAutosave()
	c.notify()
}

// handleArbiterState mirrors arbiter health into the session machine.
func (c *Controller) handleArbiterState(st arbiter.Status) {
	c.mu.Lock()
	if st.Stuck && c.machine.Current() == StateRecording {
		_ = c.machine.Event(context.Background(), eventStick)
	}
	c.mu.Unlock()
	c.notify()
}

// finalizeLocked commits pending recognition output to the document and
// emits a segment event. Caller holds the lock.
func (c *Controller) finalizeLocked(_ context.Context) {
	if c.activeSpeaker == nil || c.suppressed {
		return
	}
	display := transcript.DisplayText(c.lastView.FinalText, c.lastView.InterimText)
	if display == "" {
		return
	}
	c.content = transcript.Merge(c.content, c.activeSpeaker.Name, display)
	c.lastView = models.TranscriptView{DetectedLanguage: c.lastView.DetectedLanguage}

	convID := ""
	if c.conversation != nil {
		convID = c.conversation.Metadata.ID
	}
	event := events.SegmentEvent{
		EventType:      events.EventTypeSegment,
		ConversationID: convID,
		SpeakerID:      c.activeSpeaker.ID,
		SpeakerName:    c.activeSpeaker.Name,
		Text:           display,
		Timestamp:      time.Now().UnixMilli(),
	}
	if c.turns != nil {
		if turn := c.turns.Current(); turn != nil && turn.EmitFinal() == nil {
			event.SegmentID = turn.ID()
			event.Seq = turn.Seq()
		}
	}
	go func() {
		if err := c.pub.PublishSegment(context.Background(), convID, event); err != nil {
			c.log.Warn().Err(err).Msg("segment publish failed")
		}
	}()
}

func (c *Controller) publishView(convID string, speaker *models.Participant, view models.TranscriptView) {
	event := events.ViewEvent{
		EventType:        events.EventTypeView,
		ConversationID:   convID,
		SpeakerID:        speaker.ID,
		SpeakerName:      speaker.Name,
		FinalText:        view.FinalText,
		InterimText:      view.InterimText,
		DetectedLanguage: view.DetectedLanguage,
		Timestamp:        time.Now().UnixMilli(),
	}
	go func() {
		if err := c.pub.PublishView(context.Background(), convID, event); err != nil {
			c.log.Warn().Err(err).Msg("view publish failed")
		}
	}()
}

// scheduleAutosave (re)arms the debounce timer.
func (c *Controller) scheduleAutosave() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.autosaveTimer != nil {
		c.autosaveTimer.Stop()
	}
	c.autosaveTimer = time.AfterFunc(c.cfg.AutosaveDelay, func() {
		if err := c.save(context.Background(), false); err != nil {
			c.log.Error().Err(err).Msg("autosave failed")
		}
	})
	c.mu.Unlock()
}

func (c *Controller) cancelAutosaveLocked() {
	if c.autosaveTimer != nil {
		c.autosaveTimer.Stop()
		c.autosaveTimer = nil
	}
}

// save persists the working document. Autosaves refuse to overwrite a
// stored non-empty conversation with empty content; an explicit save does
// not second-guess the user.
func (c *Controller) save(ctx context.Context, manual bool) error {
	c.mu.Lock()
	if c.conversation == nil && strings.TrimSpace(c.content) == "" {
		c.mu.Unlock()
		return nil
	}
	if c.conversation == nil {
		c.conversation = newConversation()
	}
	conv := *c.conversation
	content := c.content
	roster := c.participants
	c.mu.Unlock()

	if !manual && strings.TrimSpace(content) == "" {
		existing, err := c.store.GetConversation(ctx, conv.Metadata.ID)
		if err == nil && strings.TrimSpace(existing.Content) != "" {
			l := logging.WithConversation(conv.Metadata.ID)
			l.Warn().Msg("autosave skipped: refusing to overwrite saved content with empty document")
			c.metrics.AutosavesSkipped.WithLabelValues("empty_overwrite").Inc()
			return nil
		}
	}

	conv.Content = content
	conv.Messages = transcript.ParseContent(content, roster)

	seen := map[string]bool{}
	var ids, names []string
	for _, msg := range conv.Messages {
		if msg.ParticipantID != "" && !seen[msg.ParticipantID] {
			seen[msg.ParticipantID] = true
			ids = append(ids, msg.ParticipantID)
			names = append(names, msg.ParticipantName)
		}
	}
	conv.Metadata.Participants = ids
	if conv.Metadata.Name == "" {
		conv.Metadata.Name = transcript.GenerateName(conv.Metadata.Type, names)
	}

	err := c.store.SaveConversation(ctx, &conv)
	c.metrics.RecordSave(err)
	if err != nil {
		return err
	}
	if !manual {
		c.metrics.AutosavesTotal.Inc()
	}
	if err := c.store.SetCurrentConversationID(ctx, conv.Metadata.ID); err != nil {
		return err
	}

	c.mu.Lock()
	c.conversation = &conv
	c.mu.Unlock()
	return nil
}

func (c *Controller) refreshParticipants(ctx context.Context) {
	roster, err := c.store.GetAllParticipants(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("participant refresh failed")
		return
	}
	c.mu.Lock()
	c.participants = roster
	if c.activeSpeaker != nil && c.findParticipantLocked(c.activeSpeaker.ID) == nil {
		c.activeSpeaker = nil
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) findParticipantLocked(id string) *models.Participant {
	for i := range c.participants {
		if c.participants[i].ID == id {
			return &c.participants[i]
		}
	}
	return nil
}

// setWarningLocked surfaces a precondition warning that clears itself.
// Caller holds the lock.
func (c *Controller) setWarningLocked(msg string) {
	c.warning = msg
	if c.warningTimer != nil {
		c.warningTimer.Stop()
	}
	c.warningTimer = time.AfterFunc(c.cfg.WarningTTL, func() {
		c.mu.Lock()
		c.warning = ""
		c.mu.Unlock()
		c.notify()
	})
}

func (c *Controller) updateLocked() Update {
	u := Update{
		State:        c.machine.Current(),
		Content:      c.content,
		View:         c.lastView,
		Warning:      c.warning,
		Participants: c.participants,
	}
	if c.arb != nil {
		u.Err = c.arb.Status().Err
	}
	if c.activeSpeaker != nil {
		u.ActiveSpeakerID = c.activeSpeaker.ID
	}
	if c.conversation != nil {
		u.ConversationID = c.conversation.Metadata.ID
	}
	return u
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.notifier
	u := c.updateLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func newConversation() *models.Conversation {
	return &models.Conversation{
		Metadata: models.ConversationMetadata{
			ID:     uuid.New().String(),
			Date:   time.Now().Format("2006-01-02"),
			Status: models.StatusActive,
		},
	}
}
