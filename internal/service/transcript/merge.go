// Package transcript holds the pure document logic: merging live
// recognition text into a line-oriented conversation document, parsing a
// document back into participant-attributed messages, and small editing
// helpers. Nothing in here touches storage or channels.
package transcript

import "strings"

// DisplayText is the merger's working value: the trimmed concatenation of
// the accumulated final text and the volatile interim text.
func DisplayText(finalText, interimText string) string {
	return strings.TrimSpace(strings.TrimSpace(finalText) + " " + strings.TrimSpace(interimText))
}

// speakerMarker returns the textual marker that opens a speaker line.
func speakerMarker(name string) string {
	return name + ":"
}

// IsSpeakerLine reports whether the line is attributed to the named
// speaker. Matching is textual: the trimmed line starts with "<name>:"
// (a "<name> :" variant is also accepted, it shows up in hand-typed text).
func IsSpeakerLine(line, name string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, speakerMarker(name)) ||
		strings.HasPrefix(trimmed, name+" :")
}

// Merge computes the next document from the previous one, the active
// speaker and the current display text.
//
// Rules, in order:
//  1. Empty display text never touches the document.
//  2. If the most recent line attributed to the speaker is the document's
//     last line, it is rewritten in place: the speaker is still talking.
//  3. Otherwise a fresh "<speaker>: <text>" line is appended.
//
// Only the last line is ever rewritten, and only when it belongs to the
// active speaker; every other line is immutable with respect to live
// transcription.
func Merge(prev, speaker, displayText string) string {
	if displayText == "" {
		return prev
	}

	lines := strings.Split(prev, "\n")
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), speakerMarker(speaker)) {
			last = i
			break
		}
	}

	updated := speaker + ": " + displayText
	if last >= 0 && last == len(lines)-1 {
		lines[last] = updated
		return strings.Join(lines, "\n")
	}

	if prev == "" {
		return updated
	}
	if strings.HasSuffix(prev, "\n") {
		return prev + updated
	}
	return prev + "\n" + updated
}
