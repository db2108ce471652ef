package transcript

import (
	"strings"
	"time"

	"conversation-transcription-service/internal/models"
)

// ParseContent re-parses raw conversation content into structured messages:
// one message per maximal run of consecutive lines belonging to the same
// speaker. Lines that match no participant marker continue the current
// speaker's message; leading unattributed lines are dropped.
func ParseContent(content string, participants []models.Participant) []models.ConversationMessage {
	var messages []models.ConversationMessage
	now := time.Now().UnixMilli()

	var current *models.Participant
	var run []string

	flush := func() {
		if current != nil && len(run) > 0 {
			messages = append(messages, models.ConversationMessage{
				ParticipantID:   current.ID,
				ParticipantName: current.Name,
				Content:         strings.TrimSpace(strings.Join(run, "\n")),
				Timestamp:       now,
			})
		}
		run = nil
	}

	for _, line := range strings.Split(content, "\n") {
		matched := matchParticipant(line, participants)
		switch {
		case matched != nil:
			body := line[strings.Index(line, ":")+1:]
			if current == nil || matched.ID != current.ID {
				flush()
				current = matched
			}
			if trimmed := strings.TrimSpace(body); trimmed != "" {
				run = append(run, trimmed)
			}
		case current != nil:
			run = append(run, line)
		}
	}
	flush()

	return messages
}

func matchParticipant(line string, participants []models.Participant) *models.Participant {
	for i := range participants {
		if IsSpeakerLine(line, participants[i].Name) {
			return &participants[i]
		}
	}
	return nil
}

// Serialize renders messages back into document form, one speaker line per
// message. It is the inverse of ParseContent for documents produced purely
// by the merger; arbitrary hand-edited text does not round-trip.
func Serialize(messages []models.ConversationMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.ParticipantName+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
