package transcript

import (
	"strings"
	"time"
)

// GenerateName builds a structured conversation name from the current date,
// an optional type and up to three participant names:
// "YYYY-MM-DD[_type][_a_b_c]".
func GenerateName(convType string, participants []string) string {
	parts := []string{time.Now().Format("2006-01-02")}

	if convType != "" {
		parts = append(parts, convType)
	}
	if len(participants) > 0 {
		n := len(participants)
		if n > 3 {
			n = 3
		}
		names := make([]string, n)
		for i, name := range participants[:n] {
			names[i] = strings.ToLower(name)
		}
		parts = append(parts, strings.Join(names, "_"))
	}

	return strings.Join(parts, "_")
}
