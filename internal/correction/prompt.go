package correction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steveyegge/diyqa/internal/judge"
	"github.com/steveyegge/diyqa/internal/types"
)

// SystemPrompt tells the model its output is judged again.
const SystemPrompt = "You correct failed DIY repair Q&A so they pass quality checks. " +
	"Your output will be re-evaluated on the same 6 criteria; fix each reported failure so it would score success (0). " +
	"Return only valid JSON with the required fields."

// FallbackFix is used when a row reached correction without any flagged mode.
const FallbackFix = "- Improve overall quality so it would pass all 6 quality checks."

// FixInstructions holds one repair directive per failure mode.
var FixInstructions = map[types.FailureMode]string{
	types.ModeIncompleteAnswer:        "Expand the answer and steps so they are comprehensive, step-by-step, and sufficient for someone to complete the repair successfully. Add any missing critical steps.",
	types.ModeSafetyViolations:        "Add clear safety warnings, precautions (e.g. turn off power/water), and explicitly state when to call a professional. Ensure nothing dangerous is implied.",
	types.ModeUnrealisticTools:        "Use only tools commonly available to homeowners or easily found at hardware stores. Replace any specialized or expensive tools with realistic alternatives.",
	types.ModeOvercomplicatedSolution: "Simplify the solution: fewer steps where possible, appropriate to a DIY skill level. Remove unnecessary complexity while keeping it effective.",
	types.ModeMissingContext:          "Add when to use this solution, any prerequisites (e.g. parts, time), and situational notes (e.g. when it might not apply, when to call a pro).",
	types.ModePoorQualityTips:         "Rewrite tips to be specific and actionable (e.g. exact techniques, order of operations, what to avoid). Do not repeat the main answer; add real extra value.",
}

const correctionSchema = `Return ONLY a valid JSON object with this exact structure:
{
  "question": "A specific question about DIY repair",
  "answer": "Detailed step-by-step answer with technical details",
  "equipment_problem": "Specific equipment or problem being addressed",
  "tools_required": ["list", "of", "specific", "tools", "needed"],
  "steps": ["step 1", "step 2", "step 3", "etc"],
  "safety_info": "Important safety warnings and precautions",
  "tips": "Professional tips and best practices"
}`

// FixLines renders one instruction per failed mode, citing the judge's own
// success criteria.
func FixLines(r types.JudgeRecord) []string {
	failed := r.FailedModes()
	if len(failed) == 0 {
		return []string{FallbackFix}
	}
	lines := make([]string, 0, len(failed))
	for _, m := range failed {
		success := "Meet quality bar for this aspect."
		if desc, ok := judge.Lookup(m); ok {
			success = desc.SuccessCriteria
		}
		how, ok := FixInstructions[m]
		if !ok {
			how = "Revise so the content satisfies: " + success
		}
		lines = append(lines, fmt.Sprintf("- **%s**: Judge expects: \"%s\" → To fix: %s", m, success, how))
	}
	return lines
}

// Prompt builds the user message for correcting r.
func Prompt(r types.JudgeRecord) string {
	var sb strings.Builder
	sb.WriteString("You are an expert home DIY repair technician. This Q&A pair failed quality checks. ")
	sb.WriteString("Your corrected version will be re-evaluated with the same criteria; you must fix it so it passes.\n\n")

	sb.WriteString("FAILURES TO FIX (do exactly what is needed so the judge scores 0 / success):\n")
	sb.WriteString(strings.Join(FixLines(r), "\n"))
	sb.WriteString("\n\n")

	sb.WriteString("ORIGINAL Q&A PAIR:\n")
	fmt.Fprintf(&sb, "Question: %s\n", r.Question)
	fmt.Fprintf(&sb, "Answer: %s\n", r.Answer)
	fmt.Fprintf(&sb, "Equipment Problem: %s\n", r.EquipmentProblem)
	fmt.Fprintf(&sb, "Tools Required: %s\n", jsonList(r.ToolsRequired))
	fmt.Fprintf(&sb, "Steps: %s\n", jsonList(r.Steps))
	fmt.Fprintf(&sb, "Safety Info: %s\n", r.SafetyInfo)
	fmt.Fprintf(&sb, "Tips: %s\n\n", r.Tips)

	sb.WriteString("TASK: Produce a CORRECTED Q&A that addresses every failure above. ")
	sb.WriteString("Keep the same topic and equipment problem. Each field must be substantive (no placeholders).\n\n")
	sb.WriteString(correctionSchema)
	return sb.String()
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}
