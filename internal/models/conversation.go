// Package models defines the data structures for conversations,
// participants and transcript views.
package models

// Participant is a person taking part in a conversation. Identity is the
// id; the name is also used as a textual marker ("<name>: ") inside the
// document, so renaming a participant does not relabel lines already
// written under the old name.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ConversationMessage is one participant-attributed segment of a
// conversation, derived by re-parsing the raw content. One message covers a
// maximal run of consecutive lines belonging to the same speaker.
type ConversationMessage struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	Content         string `json:"content"`
	Timestamp       int64  `json:"timestamp"`
}

// Conversation status values.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// ConversationMetadata describes a conversation without its content.
type ConversationMetadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Date         string   `json:"date"` // YYYY-MM-DD
	DurationMin  int      `json:"duration,omitempty"`
	Participants []string `json:"participants"` // participant IDs
	Status       string   `json:"status"`       // active | archived
	Folder       string   `json:"folder,omitempty"`
	Type         string   `json:"type,omitempty"` // "meeting", "call", "interview", ...
	Tags         []string `json:"tags,omitempty"`
}

// Conversation is the persisted unit. Content is the source of truth: a
// plain-text, \n-separated document where attributable lines match
// "<participantName>: <utterance>". Messages is a derived projection
// recomputed from Content on every save, never hand-edited.
type Conversation struct {
	Metadata ConversationMetadata  `json:"metadata"`
	Messages []ConversationMessage `json:"messages"`
	Content  string                `json:"content"`
}

// TranscriptView is the unified recognition state published by the arbiter.
// FinalText is monotonically non-decreasing while a session runs;
// InterimText is volatile and may shrink, grow or be replaced on every
// update. Both reset to empty only on explicit reset or channel restart.
type TranscriptView struct {
	FinalText        string `json:"finalText"`
	InterimText      string `json:"interimText"`
	DetectedLanguage string `json:"detectedLanguage"`
	IsActive         bool   `json:"isActive"`
}
