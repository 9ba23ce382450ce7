package humaneval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/steveyegge/diyqa/internal/types"
)

// Sample is one record to label, with the judge verdict when there is one.
type Sample struct {
	types.TracedRecord
	Judge *types.JudgeRecord
}

// SamplesFromJudged wraps judge rows so the verdict is shown while labeling.
func SamplesFromJudged(rows []types.JudgeRecord) []Sample {
	out := make([]Sample, len(rows))
	for i := range rows {
		r := rows[i]
		out[i] = Sample{TracedRecord: r.Traced(), Judge: &r}
	}
	return out
}

// SamplesFromRecords wraps unjudged records.
func SamplesFromRecords(records []types.TracedRecord) []Sample {
	out := make([]Sample, len(records))
	for i, r := range records {
		out[i] = Sample{TracedRecord: r}
	}
	return out
}

// LineReader is the part of *readline.Instance the session uses.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewReadline creates the interactive reader.
func NewReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "codes> ",
		InterruptPrompt:   "^C",
		EOFPrompt:         "q",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// SaveFunc persists the full label list.
type SaveFunc func(labels []HumanLabel) error

// Session walks a reviewer through unlabeled samples one at a time.
type Session struct {
	rl   LineReader
	out  io.Writer
	save SaveFunc
}

// NewSession creates a session. save runs after every label.
func NewSession(rl LineReader, out io.Writer, save SaveFunc) *Session {
	return &Session{rl: rl, out: out, save: save}
}

var errQuit = errors.New("quit")

// Run labels every sample whose trace id is not in existing, saving after
// each one. q, Ctrl+C or Ctrl+D stop early with progress kept. It returns the
// full label list: existing labels first, new ones in labeling order.
func (s *Session) Run(ctx context.Context, samples []Sample, existing []HumanLabel) ([]HumanLabel, error) {
	labels := append([]HumanLabel(nil), existing...)
	done := make(map[string]bool, len(existing))
	for _, l := range existing {
		done[l.TraceID] = true
	}

	var todo []Sample
	for _, smp := range samples {
		if !done[smp.TraceID] {
			todo = append(todo, smp)
		}
	}
	if len(todo) == 0 {
		fmt.Fprintf(s.out, "All %d samples already labeled.\n", len(samples))
		return labels, nil
	}

	fmt.Fprintf(s.out, "Samples to label: %d (already labeled: %d)\n", len(todo), len(done))
	fmt.Fprintln(s.out, "Enter failure codes, then an optional comment. Enter = no failures, q = quit and save.")

	for i, smp := range todo {
		if err := ctx.Err(); err != nil {
			return labels, err
		}
		fmt.Fprintf(s.out, "\n--- Sample %d/%d ---\n", i+1, len(todo))
		s.show(smp)

		label, err := s.ask(smp.TraceID)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(s.out, "Quit. Progress saved.")
			break
		}
		if err != nil {
			return labels, err
		}

		labels = append(labels, label)
		if err := s.save(labels); err != nil {
			return labels, fmt.Errorf("save labels: %w", err)
		}
	}

	fmt.Fprintf(s.out, "Done. Total labels: %d\n", len(labels))
	return labels, nil
}

func (s *Session) show(smp Sample) {
	bold := color.New(color.Bold).SprintFunc()
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	fmt.Fprintln(s.out, rule)
	fmt.Fprintln(s.out, bold("QUESTION:"), smp.Question)
	fmt.Fprintln(s.out, thin)
	fmt.Fprintln(s.out, bold("ANSWER:"), smp.Answer)
	fmt.Fprintln(s.out, thin)
	fmt.Fprintln(s.out, bold("EQUIPMENT:"), smp.EquipmentProblem)
	fmt.Fprintln(s.out, bold("TOOLS:"), strings.Join(smp.ToolsRequired, ", "))
	for n, step := range smp.Steps {
		fmt.Fprintf(s.out, "  %d. %s\n", n+1, step)
	}
	fmt.Fprintln(s.out, bold("SAFETY:"), smp.SafetyInfo)
	fmt.Fprintln(s.out, bold("TIPS:"), smp.Tips)
	fmt.Fprintln(s.out, rule)

	switch {
	case smp.Judge == nil:
		fmt.Fprintln(s.out, "LLM JUDGE: (no prior label)")
	case smp.Judge.Failed():
		names := make([]string, 0, types.NumModes)
		for _, m := range smp.Judge.FailedModes() {
			names = append(names, string(m))
		}
		fmt.Fprintln(s.out, color.RedString("LLM JUDGE: FAILED on: %s", strings.Join(names, ", ")))
	default:
		fmt.Fprintln(s.out, color.GreenString("LLM JUDGE: PASSED (no failure modes)"))
	}
	fmt.Fprintln(s.out, thin)

	codes := make([]string, 0, types.NumModes)
	for _, m := range types.FailureModes {
		codes = append(codes, m.ShortCode()+"="+string(m))
	}
	fmt.Fprintln(s.out, "Codes: "+strings.Join(codes, ", "))
}

func (s *Session) ask(traceID string) (HumanLabel, error) {
	for {
		s.rl.SetPrompt("codes> ")
		raw, err := s.readLine()
		if err != nil {
			return HumanLabel{}, err
		}
		if strings.EqualFold(raw, "q") {
			return HumanLabel{}, errQuit
		}

		modes, unknown := ParseCodes(raw)
		if len(unknown) > 0 {
			fmt.Fprintln(s.out, color.YellowString("Unknown codes: %s", strings.Join(unknown, ", ")))
			continue
		}

		var comment string
		if len(modes) > 0 {
			s.rl.SetPrompt("comment (optional)> ")
			comment, err = s.readLine()
			if err != nil {
				return HumanLabel{}, err
			}
		}
		return NewHumanLabel(traceID, modes, comment), nil
	}
}

func (s *Session) readLine() (string, error) {
	line, err := s.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", errQuit
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
