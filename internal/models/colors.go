package models

// ParticipantColors is the palette cycled through when assigning colors to
// new participants.
var ParticipantColors = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#84CC16", // lime
	"#F97316", // orange
	"#6366F1", // indigo
}

// ColorForParticipant returns the palette color for the participant at the
// given index.
func ColorForParticipant(index int) string {
	if index < 0 {
		index = -index
	}
	return ParticipantColors[index%len(ParticipantColors)]
}
