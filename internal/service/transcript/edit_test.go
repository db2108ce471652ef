package transcript

import "testing"

func TestInsertNewlineAfterMarker_BareMarker(t *testing.T) {
	text := "Alice: hi\nBob:"
	newText, cursor, ok := InsertNewlineAfterMarker(text, len(text), testParticipants)
	if !ok {
		t.Fatal("expected rule to apply on bare marker line")
	}
	if newText != "Alice: hi\nBob:\n" {
		t.Errorf("got %q", newText)
	}
	if cursor != len(text)+1 {
		t.Errorf("cursor = %d, want %d", cursor, len(text)+1)
	}
}

func TestInsertNewlineAfterMarker_SpacedMarker(t *testing.T) {
	text := "Bob :"
	_, _, ok := InsertNewlineAfterMarker(text, len(text), testParticipants)
	if !ok {
		t.Error("expected rule to apply on \"Bob :\"")
	}
}

func TestInsertNewlineAfterMarker_LineWithUtterance(t *testing.T) {
	text := "Bob: already said something"
	_, _, ok := InsertNewlineAfterMarker(text, len(text), testParticipants)
	if ok {
		t.Error("rule must not apply when the marker line has content")
	}
}

func TestInsertNewlineAfterMarker_UnknownName(t *testing.T) {
	text := "Mallory:"
	_, _, ok := InsertNewlineAfterMarker(text, len(text), testParticipants)
	if ok {
		t.Error("rule must not apply for a name that is no participant")
	}
}

func TestInsertNewlineAfterMarker_MidDocumentCursor(t *testing.T) {
	text := "Alice:\nBob: yo"
	cursor := len("Alice:")
	newText, newCursor, ok := InsertNewlineAfterMarker(text, cursor, testParticipants)
	if !ok {
		t.Fatal("expected rule to apply at end of first line")
	}
	if newText != "Alice:\n\nBob: yo" {
		t.Errorf("got %q", newText)
	}
	if newCursor != cursor+1 {
		t.Errorf("cursor = %d, want %d", newCursor, cursor+1)
	}
}

func TestInsertNewlineAfterMarker_CursorOutOfRange(t *testing.T) {
	if _, _, ok := InsertNewlineAfterMarker("Bob:", 99, testParticipants); ok {
		t.Error("out-of-range cursor must not apply")
	}
}
