// Package ws runs live editor sessions over WebSocket. Each connection
// owns one editor controller; the client sends commands and, with the
// remote provider, its browser recognition events, and receives state
// updates after every change.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/config"
	"conversation-transcription-service/internal/events"
	"conversation-transcription-service/internal/observability/logging"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/service/arbiter"
	"conversation-transcription-service/internal/service/audio"
	"conversation-transcription-service/internal/service/editor"
	"conversation-transcription-service/internal/service/recognition"
	"conversation-transcription-service/internal/service/recognition/google"
	"conversation-transcription-service/internal/service/recognition/remote"
	"conversation-transcription-service/internal/service/recognition/sim"
	"conversation-transcription-service/internal/store"
)

const audioBufferFrames = 64

// Handler upgrades editor connections and runs their sessions.
type Handler struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	store    store.Store
	pub      *events.Publisher
	cfg      *config.Configuration
	upgrader websocket.Upgrader
}

// NewHandler creates the editor WebSocket handler.
func NewHandler(cfg *config.Configuration, st store.Store, pub *events.Publisher, log zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		log:     log.With().Str("component", "ws").Logger(),
		metrics: m,
		store:   st,
		pub:     pub,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// session is one live editor connection.
type session struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger
	ctrl *editor.Controller

	writeMu sync.Mutex

	remoteMu sync.Mutex
	remotes  map[string]*remote.Channel

	audio *audio.Ingress
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &session{
		id:      uuid.New().String(),
		conn:    conn,
		remotes: map[string]*remote.Channel{},
	}
	s.log = logging.WithSession(s.id)
	s.audio = audio.NewIngress(audio.Limits{BufferedFrames: audioBufferFrames}, s.log, h.metrics)

	h.metrics.WSConnectionsTotal.Inc()
	h.metrics.WSConnectionsActive.Inc()
	defer h.metrics.WSConnectionsActive.Dec()

	editorCfg := editor.Config{
		AutosaveDelay:    h.cfg.Editor.AutosaveDelay,
		WarningTTL:       h.cfg.Editor.WarningTTL,
		SuppressionRunes: h.cfg.Editor.SuppressionRunes,
		Arbiter: arbiter.Config{
			Language:          h.cfg.Recognition.Language,
			RestartDelay:      h.cfg.Recognition.RestartDelay,
			NetworkRetryDelay: h.cfg.Recognition.NetworkRetryDelay,
			WatchdogPoll:      h.cfg.Recognition.WatchdogPoll,
			StuckTimeout:      h.cfg.Recognition.StuckTimeout,
		},
	}

	ctrl, err := editor.New(r.Context(), editorCfg, h.store, h.pub, h.factoryFor(s), h.log, h.metrics)
	if err != nil {
		s.log.Error().Err(err).Msg("editor session setup failed")
		return
	}
	s.ctrl = ctrl
	defer ctrl.Close()
	defer s.audio.Close()

	ctrl.SetNotifier(func(u editor.Update) { s.send(TypeUpdate, u) })
	if err := ctrl.LoadCurrent(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("resume failed")
	}
	s.send(TypeUpdate, ctrl.Snapshot())

	s.log.Info().Msg("editor session opened")
	s.readLoop()
	s.log.Info().Msg("editor session closed")
}

// factoryFor builds the recognition factory for one session based on the
// configured provider.
func (h *Handler) factoryFor(s *session) recognition.Factory {
	switch h.cfg.Recognition.Provider {
	case "remote":
		return func(lang string) (recognition.Channel, error) {
			ch := remote.New(lang, s)
			s.remoteMu.Lock()
			s.remotes[lang] = ch
			s.remoteMu.Unlock()
			return ch, nil
		}
	case "google":
		return func(lang string) (recognition.Channel, error) {
			return google.New(context.Background(), lang, google.Config{
				SampleRateHz: int32(h.cfg.Recognition.SampleRateHz),
			}, s.audio.Frames())
		}
	default:
		return func(lang string) (recognition.Channel, error) {
			return sim.New(lang, nil, 0), nil
		}
	}
}

func (s *session) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("connection dropped")
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			// Raw audio for the server-side recognizer.
			s.audio.Push(data)
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("malformed frame")
			continue
		}
		s.handle(frame)
	}
}

func (s *session) handle(frame Frame) {
	ctx := context.Background()

	switch frame.Type {
	case TypeStart:
		var req SpeakerRequest
		if !s.decode(frame, &req) {
			return
		}
		if err := s.ctrl.StartRecording(ctx, req.SpeakerID); err != nil {
			s.sendError(err.Error())
		}
	case TypeStop:
		if err := s.ctrl.StopRecording(ctx); err != nil {
			s.sendError(err.Error())
		}
	case TypeSwitch:
		var req SpeakerRequest
		if !s.decode(frame, &req) {
			return
		}
		if err := s.ctrl.SwitchSpeaker(ctx, req.SpeakerID); err != nil {
			s.sendError(err.Error())
		}
	case TypeRetry:
		if err := s.ctrl.Retry(ctx); err != nil {
			s.sendError(err.Error())
		}
	case TypeEdit:
		var req EditRequest
		if !s.decode(frame, &req) {
			return
		}
		s.ctrl.SetContent(ctx, req.Content)
	case TypeInsertNewline:
		var req NewlineRequest
		if !s.decode(frame, &req) {
			return
		}
		content, cursor, applied := s.ctrl.InsertNewline(req.Content, req.Cursor)
		s.send(TypeNewline, NewlineResponse{Content: content, Cursor: cursor, Applied: applied})
	case TypeSave:
		if err := s.ctrl.Save(ctx); err != nil {
			s.sendError(err.Error())
		}
	case TypeLoad:
		var req LoadRequest
		if !s.decode(frame, &req) {
			return
		}
		if err := s.ctrl.LoadConversation(ctx, req.ConversationID); err != nil {
			s.sendError(err.Error())
		}
	case TypeNew:
		if err := s.ctrl.NewConversation(ctx); err != nil {
			s.sendError(err.Error())
		}
	case TypeClear:
		s.ctrl.ClearTranscript(ctx)
	case TypeForceLanguage:
		var req LanguageRequest
		if !s.decode(frame, &req) {
			return
		}
		s.ctrl.ForceLanguage(req.Lang)
	case TypeSpeechStart, TypeSpeechResult, TypeSpeechError, TypeSpeechEnd:
		s.handleSpeech(frame)
	default:
		s.sendError("unknown frame type: " + frame.Type)
	}
}

// handleSpeech routes a browser recognition event to the remote channel
// bound to its language.
func (s *session) handleSpeech(frame Frame) {
	var ev SpeechEvent
	if !s.decode(frame, &ev) {
		return
	}
	s.remoteMu.Lock()
	ch := s.remotes[ev.Lang]
	s.remoteMu.Unlock()
	if ch == nil {
		s.sendError("no recognition channel for language " + ev.Lang)
		return
	}

	switch frame.Type {
	case TypeSpeechStart:
		ch.InjectStart()
	case TypeSpeechEnd:
		ch.InjectEnd()
	case TypeSpeechError:
		ch.InjectError(recognition.ErrorCode(ev.Code), ev.Message)
	case TypeSpeechResult:
		ch.InjectResult(recognition.ResultEvent{ResultIndex: ev.ResultIndex, Results: ev.Results})
	}
}

// SendControl implements remote.Transport: recognition control actions go
// out to the browser holding the recognizer.
func (s *session) SendControl(lang, action string) error {
	return s.send(TypeControl, ControlMessage{Lang: lang, Action: action})
}

func (s *session) decode(frame Frame, out any) bool {
	if err := json.Unmarshal(frame.Data, out); err != nil {
		s.sendError("malformed " + frame.Type + " payload")
		return false
	}
	return true
}

func (s *session) send(frameType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Error().Err(err).Str("type", frameType).Msg("frame encode failed")
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(Frame{Type: frameType, Data: payload})
}

func (s *session) sendError(msg string) {
	_ = s.send(TypeError, ErrorMessage{Message: msg})
}
