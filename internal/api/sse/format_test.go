package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "move",
			data:      `{"move_number":1}`,
			expected:  "event: move\ndata: {\"move_number\":1}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "roster",
			data:      "{\n  \"players\": []\n}",
			expected:  "event: roster\ndata: {\ndata:   \"players\": []\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "status",
			data:      "line1\r\nline2",
			expected:  "event: status\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatMessage(tt.eventName, tt.data)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single line", input: "hello", expected: []string{"hello"}},
		{name: "two lines", input: "line1\nline2", expected: []string{"line1", "line2"}},
		{name: "trailing newline", input: "line1\n", expected: []string{"line1"}},
		{name: "empty string", input: "", expected: []string{""}},
		{name: "crlf line endings", input: "line1\r\nline2\r\n", expected: []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitLines(tt.input))
		})
	}
}
