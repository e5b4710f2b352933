package sse

import "strings"

// formatMessage formats a named SSE event
func formatMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteByte('\n')
	// SSE requires each line of data to be prefixed with "data: "
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// splitLines splits a string into lines, handling various line endings
func splitLines(s string) []string {
	var lines []string
	var current strings.Builder
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, current.String())
			current.Reset()
		} else if r != '\r' {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	if len(lines) == 0 {
		lines = append(lines, "")
	}
	return lines
}
