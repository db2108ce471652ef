package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/events"
	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/service/arbiter"
	"conversation-transcription-service/internal/service/recognition"
	"conversation-transcription-service/internal/store"
)

type fakeChannel struct {
	lang string

	mu     sync.Mutex
	cb     recognition.Callback
	starts int
}

func (f *fakeChannel) Lang() string { return f.lang }

func (f *fakeChannel) Start(_ context.Context, cb recognition.Callback) error {
	f.mu.Lock()
	f.starts++
	f.cb = cb
	f.mu.Unlock()
	cb.OnStart()
	return nil
}

func (f *fakeChannel) Stop()  {}
func (f *fakeChannel) Abort() {}

func (f *fakeChannel) emit(results ...recognition.Result) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnResult(recognition.ResultEvent{Results: results})
}

func (f *fakeChannel) fail(code recognition.ErrorCode) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnError(code, string(code))
}

func final(text string) recognition.Result {
	return recognition.Result{
		IsFinal:      true,
		Alternatives: []recognition.Alternative{{Transcript: text, Confidence: 0.9}},
	}
}

func interim(text string) recognition.Result {
	return recognition.Result{
		Alternatives: []recognition.Alternative{{Transcript: text, Confidence: 0.9}},
	}
}

func newTestController(t *testing.T, seedParticipants bool) (*Controller, *fakeChannel, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	if seedParticipants {
		st.SaveParticipant(ctx, models.Participant{ID: "p1", Name: "Alice", Color: "#FF6B6B"})
		st.SaveParticipant(ctx, models.Participant{ID: "p2", Name: "Bob", Color: "#4ECDC4"})
	}

	channels := map[string]*fakeChannel{}
	factory := func(lang string) (recognition.Channel, error) {
		ch := &fakeChannel{lang: lang}
		channels[lang] = ch
		return ch, nil
	}

	cfg := Config{
		AutosaveDelay: 20 * time.Millisecond,
		WarningTTL:    50 * time.Millisecond,
	}
	c, err := New(ctx, cfg, st, events.New(nil), factory, zerolog.Nop(), metrics.DefaultMetrics)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c, channels[arbiter.LanguageFrench], st
}

func TestStartRecordingWithoutParticipantsWarns(t *testing.T) {
	c, _, _ := newTestController(t, false)

	if err := c.StartRecording(context.Background(), "p1"); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	u := c.Snapshot()
	if u.State != StateIdle {
		t.Errorf("state = %q, want idle", u.State)
	}
	if u.Warning == "" {
		t.Error("expected a precondition warning")
	}
}

func TestStartRecordingWithUnknownSpeakerWarns(t *testing.T) {
	c, _, _ := newTestController(t, true)

	c.StartRecording(context.Background(), "nobody")
	u := c.Snapshot()
	if u.State != StateIdle || u.Warning == "" {
		t.Errorf("update = %+v, want idle with warning", u)
	}
}

func TestWarningClearsItself(t *testing.T) {
	c, _, _ := newTestController(t, false)

	c.StartRecording(context.Background(), "p1")
	if c.Snapshot().Warning == "" {
		t.Fatal("expected warning")
	}

	deadline := time.Now().Add(time.Second)
	for c.Snapshot().Warning != "" {
		if time.Now().After(deadline) {
			t.Fatal("warning never cleared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecognitionOutputMergesIntoDocument(t *testing.T) {
	c, fr, _ := newTestController(t, true)
	ctx := context.Background()

	if err := c.StartRecording(ctx, "p1"); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if got := c.Snapshot().State; got != StateRecording {
		t.Fatalf("state = %q, want recording", got)
	}

	fr.emit(interim("bonjour tout le"))
	if got := c.Snapshot().Content; got != "Alice: bonjour tout le" {
		t.Errorf("content = %q, want interim merged", got)
	}

	fr.emit(final("bonjour tout le monde"))
	if got := c.Snapshot().Content; got != "Alice: bonjour tout le monde" {
		t.Errorf("content = %q, want final merged in place", got)
	}
}

func TestSwitchSpeakerSuppressesShortResidual(t *testing.T) {
	c, fr, _ := newTestController(t, true)
	ctx := context.Background()

	c.StartRecording(ctx, "p1")
	fr.emit(final("bonjour tout le monde"))

	if err := c.SwitchSpeaker(ctx, "p2"); err != nil {
		t.Fatalf("SwitchSpeaker() error = %v", err)
	}

	// A short fragment right after the switch is residue of the old
	// utterance, not the new speaker.
	fr.emit(interim("monde"))
	if got := c.Snapshot().Content; strings.Contains(got, "Bob") {
		t.Errorf("content = %q, residual leaked onto new speaker", got)
	}

	fr.emit(final("salut alice comment ca va"))
	want := "Alice: bonjour tout le monde\nBob: salut alice comment ca va"
	if got := c.Snapshot().Content; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestSwitchSpeakerWhileIdleJustSelects(t *testing.T) {
	c, _, _ := newTestController(t, true)

	if err := c.SwitchSpeaker(context.Background(), "p2"); err != nil {
		t.Fatalf("SwitchSpeaker() error = %v", err)
	}
	u := c.Snapshot()
	if u.ActiveSpeakerID != "p2" || u.State != StateIdle {
		t.Errorf("update = %+v, want p2 selected while idle", u)
	}
}

func TestStopRecordingFinalizesAndSaves(t *testing.T) {
	c, fr, st := newTestController(t, true)
	ctx := context.Background()

	c.StartRecording(ctx, "p1")
	fr.emit(final("bonjour tout le monde"))
	if err := c.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}

	u := c.Snapshot()
	if u.State != StateIdle {
		t.Errorf("state = %q, want idle", u.State)
	}
	id, _ := st.GetCurrentConversationID(ctx)
	if id == "" {
		t.Fatal("current conversation pointer not set")
	}
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.Content != "Alice: bonjour tout le monde" {
		t.Errorf("saved content = %q", conv.Content)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ParticipantID != "p1" {
		t.Errorf("messages = %+v, want one Alice message", conv.Messages)
	}
	if conv.Metadata.Name == "" {
		t.Error("expected a generated conversation name")
	}
}

func TestAutosaveDebounce(t *testing.T) {
	c, _, st := newTestController(t, true)
	ctx := context.Background()

	c.SetContent(ctx, "Alice: manual note")

	deadline := time.Now().Add(time.Second)
	for {
		id, _ := st.GetCurrentConversationID(ctx)
		if id != "" {
			conv, err := st.GetConversation(ctx, id)
			if err == nil && conv.Content == "Alice: manual note" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave never persisted the edit")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAutosaveRefusesEmptyOverwrite(t *testing.T) {
	c, _, st := newTestController(t, true)
	ctx := context.Background()

	c.SetContent(ctx, "Alice: important notes")
	if err := c.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	id, _ := st.GetCurrentConversationID(ctx)

	// Clearing the document must not autosave emptiness over saved work.
	c.SetContent(ctx, "")
	time.Sleep(100 * time.Millisecond)
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.Content != "Alice: important notes" {
		t.Errorf("content = %q, autosave overwrote saved work with empty", conv.Content)
	}

	// An explicit save is user intent and goes through.
	if err := c.Save(ctx); err != nil {
		t.Fatalf("manual Save() error = %v", err)
	}
	conv, _ = st.GetConversation(ctx, id)
	if conv.Content != "" {
		t.Errorf("content = %q, want empty after manual save", conv.Content)
	}
}

func TestStuckAndRetry(t *testing.T) {
	c, fr, _ := newTestController(t, true)
	ctx := context.Background()

	c.StartRecording(ctx, "p1")
	fr.fail(recognition.ErrAudioCapture)

	if got := c.Snapshot().State; got != StateStuck {
		t.Fatalf("state = %q, want stuck", got)
	}
	if c.Snapshot().Err == "" {
		t.Error("expected surfaced error message")
	}

	if err := c.Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got := c.Snapshot().State; got != StateRecording {
		t.Errorf("state after retry = %q, want recording", got)
	}

	fr.emit(final("on reprend la discussion"))
	if got := c.Snapshot().Content; !strings.Contains(got, "on reprend la discussion") {
		t.Errorf("content = %q, want recovery output merged", got)
	}
}

func TestLoadConversationRefusedWhileRecording(t *testing.T) {
	c, _, st := newTestController(t, true)
	ctx := context.Background()

	st.SaveConversation(ctx, &models.Conversation{
		Metadata: models.ConversationMetadata{ID: "c1", Name: "old", Date: "2026-08-01"},
		Content:  "Alice: archived",
	})

	c.StartRecording(ctx, "p1")
	if err := c.LoadConversation(ctx, "c1"); err == nil {
		t.Error("expected load to be refused while recording")
	}

	c.StopRecording(ctx)
	if err := c.LoadConversation(ctx, "c1"); err != nil {
		t.Fatalf("LoadConversation() after stop error = %v", err)
	}
	if got := c.Snapshot().Content; got != "Alice: archived" {
		t.Errorf("content = %q, want loaded conversation", got)
	}
}

func TestLoadCurrentWithDanglingPointer(t *testing.T) {
	c, _, st := newTestController(t, true)
	ctx := context.Background()

	st.SetCurrentConversationID(ctx, "gone")
	if err := c.LoadCurrent(ctx); err != nil {
		t.Fatalf("LoadCurrent() error = %v", err)
	}
	id, _ := st.GetCurrentConversationID(ctx)
	if id != "" {
		t.Errorf("pointer = %q, want cleared", id)
	}
}

func TestNewConversationDetaches(t *testing.T) {
	c, _, st := newTestController(t, true)
	ctx := context.Background()

	c.SetContent(ctx, "Alice: first")
	c.Save(ctx)

	if err := c.NewConversation(ctx); err != nil {
		t.Fatalf("NewConversation() error = %v", err)
	}
	if got := c.Snapshot().Content; got != "" {
		t.Errorf("content = %q, want empty", got)
	}
	id, _ := st.GetCurrentConversationID(ctx)
	if id != "" {
		t.Errorf("pointer = %q, want cleared", id)
	}

	// The next save creates a distinct conversation.
	c.SetContent(ctx, "Bob: second")
	c.Save(ctx)
	list, _ := st.GetAllConversations(ctx)
	if len(list) != 2 {
		t.Errorf("conversations = %d, want 2", len(list))
	}
}

func TestUnsupportedPlatformDisablesRecording(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.SaveParticipant(ctx, models.Participant{ID: "p1", Name: "Alice"})

	factory := func(string) (recognition.Channel, error) {
		return nil, errors.New("no recognition backend")
	}
	c, err := New(ctx, Config{}, st, events.New(nil), factory, zerolog.Nop(), metrics.DefaultMetrics)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	c.StartRecording(ctx, "p1")
	u := c.Snapshot()
	if u.State != StateIdle || u.Warning == "" {
		t.Errorf("update = %+v, want idle with warning", u)
	}

	// Manual editing still works.
	c.SetContent(ctx, "Alice: typed by hand")
	if err := c.Save(ctx); err != nil {
		t.Errorf("Save() error = %v", err)
	}
}

func TestClearTranscriptEmptiesDocument(t *testing.T) {
	c, fr, _ := newTestController(t, true)
	ctx := context.Background()

	c.StartRecording(ctx, "p1")
	fr.emit(final("bonjour tout le monde"))
	c.ClearTranscript(ctx)

	if got := c.Snapshot().Content; got != "" {
		t.Errorf("content = %q, want empty", got)
	}
}

func TestConcurrentEditsDuringRecognition(t *testing.T) {
	c, fr, _ := newTestController(t, true)
	ctx := context.Background()

	c.StartRecording(ctx, "p1")

	// Manual edits race recognition output; the merge bookkeeping must
	// stay consistent under the lock.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.SetContent(ctx, "Alice:")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			fr.emit(interim("bonjour"))
		}
	}()
	wg.Wait()

	fr.emit(final("bonjour tout le monde"))
	if got := c.Snapshot().Content; !strings.Contains(got, "bonjour tout le monde") {
		t.Errorf("content = %q, want the final utterance merged", got)
	}
}
