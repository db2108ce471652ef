package store

import (
	"sort"
	"strings"

	"conversation-transcription-service/internal/models"
)

// conversationMatches reports whether a conversation satisfies the search
// query. participantNames are the resolved display names of the
// conversation's participants.
func conversationMatches(conv *models.Conversation, participantNames []string, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	md := conv.Metadata
	if strings.Contains(strings.ToLower(md.Name), q) ||
		strings.Contains(strings.ToLower(md.Folder), q) ||
		strings.Contains(strings.ToLower(md.Type), q) ||
		strings.Contains(strings.ToLower(conv.Content), q) {
		return true
	}
	for _, tag := range md.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, name := range participantNames {
		if strings.Contains(strings.ToLower(name), q) {
			return true
		}
	}
	return false
}

// sortMetadata orders newest date first, name as tiebreak for a stable
// listing.
func sortMetadata(list []models.ConversationMetadata) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].Name < list[j].Name
	})
}

// sortParticipants orders the roster by name for display.
func sortParticipants(list []models.Participant) {
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
}
