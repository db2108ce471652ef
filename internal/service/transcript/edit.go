package transcript

import (
	"strings"

	"conversation-transcription-service/internal/models"
)

// InsertNewlineAfterMarker implements the editor's Enter-key rule: when the
// cursor sits on a line that is exactly a bare speaker marker ("<name>:" or
// "<name> :"), Enter inserts a newline at the cursor so the marker line
// stays put and dictation or typing continues below it.
//
// Returns the new text, the new cursor position and whether the rule
// applied; when it did not apply the inputs are returned unchanged and the
// caller falls through to its default newline behavior.
func InsertNewlineAfterMarker(text string, cursor int, participants []models.Participant) (string, int, bool) {
	if cursor < 0 || cursor > len(text) {
		return text, cursor, false
	}

	before := text[:cursor]
	lineStart := strings.LastIndex(before, "\n") + 1
	line := strings.TrimSpace(before[lineStart:])

	for _, p := range participants {
		if line == p.Name+":" || line == p.Name+" :" {
			return before + "\n" + text[cursor:], cursor + 1, true
		}
	}
	return text, cursor, false
}
