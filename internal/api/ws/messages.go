package ws

import (
	"encoding/json"

	"conversation-transcription-service/internal/service/recognition"
)

// Frame is the envelope for every message in either direction.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client-to-server frame types.
const (
	TypeStart         = "start"
	TypeStop          = "stop"
	TypeSwitch        = "switch"
	TypeRetry         = "retry"
	TypeEdit          = "edit"
	TypeInsertNewline = "insert-newline"
	TypeSave          = "save"
	TypeLoad          = "load"
	TypeNew           = "new"
	TypeClear         = "clear"
	TypeForceLanguage = "force-language"
	TypeSpeechStart   = "speech-start"
	TypeSpeechResult  = "speech-result"
	TypeSpeechError   = "speech-error"
	TypeSpeechEnd     = "speech-end"
)

// Server-to-client frame types.
const (
	TypeUpdate  = "update"
	TypeNewline = "newline"
	TypeControl = "control"
	TypeError   = "error"
)

// SpeakerRequest selects a speaker for start and switch frames.
type SpeakerRequest struct {
	SpeakerID string `json:"speakerId"`
}

// EditRequest replaces the document content.
type EditRequest struct {
	Content string `json:"content"`
}

// NewlineRequest asks for the marker newline rule at a cursor position.
type NewlineRequest struct {
	Content string `json:"content"`
	Cursor  int    `json:"cursor"`
}

// NewlineResponse returns the outcome of the newline rule.
type NewlineResponse struct {
	Content string `json:"content"`
	Cursor  int    `json:"cursor"`
	Applied bool   `json:"applied"`
}

// LoadRequest selects a stored conversation.
type LoadRequest struct {
	ConversationID string `json:"conversationId"`
}

// LanguageRequest pins a recognition language.
type LanguageRequest struct {
	Lang string `json:"lang"`
}

// SpeechEvent carries a browser recognition event inbound. Lang routes it
// to the matching channel.
type SpeechEvent struct {
	Lang        string               `json:"lang"`
	Code        string               `json:"code,omitempty"`
	Message     string               `json:"message,omitempty"`
	ResultIndex int                  `json:"resultIndex,omitempty"`
	Results     []recognition.Result `json:"results,omitempty"`
}

// ControlMessage asks the browser to drive its recognizer.
type ControlMessage struct {
	Lang   string `json:"lang"`
	Action string `json:"action"`
}

// ErrorMessage reports a request failure to the client.
type ErrorMessage struct {
	Message string `json:"message"`
}
