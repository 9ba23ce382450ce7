package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// the fence must wrap the whole output; text around it is not tolerated
var codeFenceRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json)?[ \t]*\n(.*?)\n?` + "`" + `{3}$`)

// ParseOptions selects the tolerances Parse allows. The zero value is a
// strict decode of exactly one top-level JSON object.
type ParseOptions struct {
	// StripCodeFences accepts output wrapped in a single ``` or ```json fence
	StripCodeFences bool
}

// ParseResult is the outcome of Parse.
type ParseResult[T any] struct {
	Success  bool
	Data     T
	Error    error
	Strategy string
}

var errNotObject = errors.New("expected a JSON object")

// Parse decodes model output that must be one JSON object. Surrounding
// whitespace is ignored. Arrays, scalars, null, trailing data and prose
// around the object are rejected.
func Parse[T any](text string, opts ParseOptions) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult[T]{Error: errors.New("empty input")}
	}

	strategy := "direct"
	if opts.StripCodeFences {
		if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
			trimmed = strings.TrimSpace(m[1])
			strategy = "code_fence"
		}
	}

	data, err := decodeObject[T](trimmed)
	if err != nil {
		return ParseResult[T]{Error: err}
	}
	return ParseResult[T]{Success: true, Data: data, Strategy: strategy}
}

func decodeObject[T any](text string) (T, error) {
	var result T
	if !strings.HasPrefix(text, "{") {
		return result, errNotObject
	}
	// Unmarshal rejects anything after the closing brace
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}
