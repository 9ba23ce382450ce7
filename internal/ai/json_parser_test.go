package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Question string   `json:"question"`
	Steps    []string `json:"steps"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		opts         ParseOptions
		wantStrategy string
		wantQuestion string
	}{
		{
			name:         "direct",
			input:        `{"question": "Why does my sink drip?", "steps": ["a", "b"]}`,
			wantStrategy: "direct",
			wantQuestion: "Why does my sink drip?",
		},
		{
			name:         "surrounding whitespace",
			input:        "\n  {\"question\": \"spaced\"}  \n",
			wantStrategy: "direct",
			wantQuestion: "spaced",
		},
		{
			name:         "json code fence",
			input:        "```json\n{\"question\": \"fenced\", \"steps\": []}\n```",
			opts:         ParseOptions{StripCodeFences: true},
			wantStrategy: "code_fence",
			wantQuestion: "fenced",
		},
		{
			name:         "bare code fence",
			input:        "```\n{\"question\": \"bare\"}\n```",
			opts:         ParseOptions{StripCodeFences: true},
			wantStrategy: "code_fence",
			wantQuestion: "bare",
		},
		{
			name:         "apostrophes survive",
			input:        `{"question": "What's the fix if it won't drain?"}`,
			wantStrategy: "direct",
			wantQuestion: "What's the fix if it won't drain?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[testPayload](tt.input, tt.opts)
			require.True(t, result.Success, "parse failed: %v", result.Error)
			assert.Equal(t, tt.wantStrategy, result.Strategy)
			assert.Equal(t, tt.wantQuestion, result.Data.Question)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	lenient := ParseOptions{StripCodeFences: true}
	tests := []struct {
		name  string
		input string
		opts  ParseOptions
	}{
		{"empty", "", ParseOptions{}},
		{"blank", "   ", ParseOptions{}},
		{"prose", "not json at all", ParseOptions{}},
		{"unterminated", `{"question": "unterminated`, ParseOptions{}},
		{"top-level array", `[{"question": "in an array"}]`, ParseOptions{}},
		{"null", "null", ParseOptions{}},
		{"scalar", `"just a string"`, ParseOptions{}},
		{"trailing comma", `{"question": "comma", "steps": ["a", "b",],}`, ParseOptions{}},
		{"prose around object", `Sure! Here is the JSON: {"question": "prose"} Hope that helps.`, ParseOptions{}},
		{"trailing text", `{"question": "x"} done`, ParseOptions{}},
		{"two objects", `{"question": "a"} {"question": "b"}`, ParseOptions{}},
		{"fence without option", "```json\n{\"question\": \"fenced\"}\n```", ParseOptions{}},
		{"fence with prose", "Here you go:\n```json\n{\"question\": \"fenced\"}\n```", lenient},
		{"fenced array", "```json\n[{\"question\": \"fenced\"}]\n```", lenient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[map[string]any](tt.input, tt.opts)
			assert.False(t, result.Success)
			assert.Error(t, result.Error)
		})
	}
}
