// Package validation turns raw model text into schema-conformant QA records.
//
// Every constraint is checked on every field so the error list is complete;
// a record is never half-accepted.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/types"
)

// NoRecordError marks a result that claims validity but carries no record.
const NoRecordError = "No valid Q&A pair generated"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindList
)

var fields = []struct {
	name string
	kind fieldKind
}{
	{"question", kindString},
	{"answer", kindString},
	{"equipment_problem", kindString},
	{"tools_required", kindList},
	{"steps", kindList},
	{"safety_info", kindString},
	{"tips", kindString},
}

// Parse decodes raw model output into a trimmed QARecord. The output must be
// exactly one JSON object. On any violation the record is nil, valid is false
// and errs lists every violated constraint. Unknown keys are ignored.
func Parse(raw string) (rec *types.QARecord, valid bool, errs []string) {
	return ParseWith(raw, ai.ParseOptions{})
}

// ParseWith is Parse with explicit decoding tolerances.
func ParseWith(raw string, opts ai.ParseOptions) (rec *types.QARecord, valid bool, errs []string) {
	parsed := ai.Parse[map[string]any](raw, opts)
	if !parsed.Success {
		return nil, false, []string{fmt.Sprintf("MalformedJSON: %v", parsed.Error)}
	}
	if parsed.Data == nil {
		return nil, false, []string{"MalformedJSON: expected a JSON object"}
	}

	strs := make(map[string]string, len(fields))
	lists := make(map[string][]string, 2)
	for _, f := range fields {
		v, ok := parsed.Data[f.name]
		if !ok || v == nil {
			errs = append(errs, f.name+": is required")
			continue
		}
		switch f.kind {
		case kindString:
			s, ok := v.(string)
			if !ok {
				errs = append(errs, f.name+": must be a string")
				continue
			}
			strs[f.name] = s
		case kindList:
			items, ok := toStrings(v)
			if !ok {
				errs = append(errs, f.name+": must be a list of strings")
				continue
			}
			lists[f.name] = items
		}
	}

	qa := types.QARecord{
		Question:         strs["question"],
		Answer:           strs["answer"],
		EquipmentProblem: strs["equipment_problem"],
		ToolsRequired:    lists["tools_required"],
		Steps:            lists["steps"],
		SafetyInfo:       strs["safety_info"],
		Tips:             strs["tips"],
	}.Trimmed()

	// Fields already reported as missing or mistyped are not reported twice.
	reported := make(map[string]bool, len(errs))
	for _, e := range errs {
		name, _, _ := strings.Cut(e, ":")
		reported[name] = true
	}
	for _, e := range Check(qa) {
		name, _, _ := strings.Cut(e, ":")
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		if !reported[name] {
			errs = append(errs, e)
		}
	}

	if len(errs) > 0 {
		return nil, false, errs
	}
	return &qa, true, nil
}

// Check returns one message per violated constraint of an already trimmed
// record, in field declaration order. An empty result means qa is valid.
func Check(qa types.QARecord) []string {
	err := structValidator().Struct(qa)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	isList := fe.Kind() == reflect.Slice
	switch fe.Tag() {
	case "required":
		if strings.HasSuffix(field, "]") {
			return field + ": must not be blank"
		}
		return field + ": is required"
	case "min":
		if isList {
			return fmt.Sprintf("%s: must have at least %s items (got %d)", field, fe.Param(), reflect.ValueOf(fe.Value()).Len())
		}
		return fmt.Sprintf("%s: must be at least %s characters (got %d)", field, fe.Param(), runeLen(fe.Value()))
	case "max":
		if isList {
			return fmt.Sprintf("%s: must have at most %s items (got %d)", field, fe.Param(), reflect.ValueOf(fe.Value()).Len())
		}
		return fmt.Sprintf("%s: must be at most %s characters (got %d)", field, fe.Param(), runeLen(fe.Value()))
	default:
		return fmt.Sprintf("%s: failed %s constraint", field, fe.Tag())
	}
}

func runeLen(v any) int {
	s, _ := v.(string)
	return utf8.RuneCountInString(s)
}

func toStrings(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
