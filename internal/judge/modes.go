package judge

import (
	"encoding/json"
	"strings"
	"text/template"

	"github.com/steveyegge/diyqa/internal/types"
)

// Mode describes one failure criterion and how to ask the model about it.
// Each prompt sees only the record fields relevant to its criterion.
type Mode struct {
	Mode            types.FailureMode
	Description     string
	SuccessCriteria string
	FailureCriteria string

	prompt *template.Template
}

// Prompt renders the evaluation prompt for qa.
func (m Mode) Prompt(qa types.QARecord) (string, error) {
	var sb strings.Builder
	if err := m.prompt.Execute(&sb, qa); err != nil {
		return "", err
	}
	return sb.String(), nil
}

var funcs = template.FuncMap{
	"list": func(items []string) string {
		if items == nil {
			items = []string{}
		}
		b, _ := json.Marshal(items)
		return string(b)
	},
}

func mustPrompt(m types.FailureMode, text string) *template.Template {
	return template.Must(template.New(string(m)).Funcs(funcs).Parse(text))
}

// Modes is the fixed taxonomy, in declaration order.
var Modes = [types.NumModes]Mode{
	{
		Mode:            types.ModeIncompleteAnswer,
		Description:     "Answer lacks sufficient detail or steps to complete the repair",
		SuccessCriteria: "Answer provides comprehensive, step-by-step instructions that would allow someone to complete the repair successfully",
		FailureCriteria: "Answer is vague, missing critical steps, or lacks sufficient detail for successful completion",
		prompt: mustPrompt(types.ModeIncompleteAnswer, `
Evaluate if this DIY repair answer is COMPLETE and SUFFICIENT:

SUCCESS (0): Answer and steps together give clear, step-by-step instructions with enough detail for someone to complete the repair (key steps present, no critical gaps).
FAILURE (1): Answer is vague, missing critical steps, or lacks sufficient detail for successful completion. If steps or answer skip important actions or leave the reader unsure how to proceed, score 1.

Question: {{.Question}}
Answer: {{.Answer}}
Steps: {{list .Steps}}

Rate as 0 (complete) or 1 (incomplete). Respond with only the number.
`),
	},
	{
		Mode:            types.ModeSafetyViolations,
		Description:     "Missing critical safety warnings or dangerous advice",
		SuccessCriteria: "Includes appropriate safety warnings, precautions, and mentions when to call professionals",
		FailureCriteria: "Missing safety warnings, provides dangerous advice, or fails to mention professional help when needed",
		prompt: mustPrompt(types.ModeSafetyViolations, `
Evaluate if this DIY repair guidance has ADEQUATE SAFETY information:

SUCCESS (0): Includes appropriate safety warnings and precautions for the task (e.g. turn off power/water, wear protection, ventilation). For risky tasks, mentions when to call a professional.
FAILURE (1): Missing important safety warnings for the task, implies dangerous practice, or omits when a pro should be called for clearly risky work.

Question: {{.Question}}
Safety Info: {{.SafetyInfo}}
Answer: {{.Answer}}

Rate as 0 (safe) or 1 (safety violation). Respond with only the number.
`),
	},
	{
		Mode:            types.ModeUnrealisticTools,
		Description:     "Requires tools that are unrealistic for typical homeowners",
		SuccessCriteria: "Tools are commonly available to homeowners or easily obtainable from hardware stores",
		FailureCriteria: "Requires specialized professional tools, overly expensive equipment, or unrealistic tool combinations",
		prompt: mustPrompt(types.ModeUnrealisticTools, `
Evaluate if the required tools are REALISTIC for typical homeowners:

SUCCESS (0): Tools are commonly available at hardware stores or typical home toolkits (screwdrivers, wrenches, pliers, basic hand tools, common supplies). Standard DIY tools are OK.
FAILURE (1): Requires specialized professional-only tools, very expensive equipment, or an unrealistic combination. Do NOT fail for normal hardware-store or common DIY tools.

Question: {{.Question}}
Tools Required: {{list .ToolsRequired}}
Equipment Problem: {{.EquipmentProblem}}

Rate as 0 (realistic tools) or 1 (unrealistic tools). Respond with only the number.
`),
	},
	{
		Mode:            types.ModeOvercomplicatedSolution,
		Description:     "Solution is unnecessarily complex for the problem described",
		SuccessCriteria: "Solution is appropriately scaled to the problem complexity and homeowner skill level",
		FailureCriteria: "Solution is overly complex, requires excessive steps, or is disproportionate to the problem",
		prompt: mustPrompt(types.ModeOvercomplicatedSolution, `
Evaluate if this DIY repair solution is APPROPRIATELY COMPLEX:

SUCCESS (0): Solution has a reasonable number of steps for the problem (e.g. 4-10 steps for a typical repair is fine). Step-by-step instructions that match the task are NOT overcomplicated. Only fail if truly excessive.
FAILURE (1): Solution is clearly overkill: far too many steps for a simple fix, or requires professional-level complexity for a basic DIY task. Normal detailed steps do NOT count as overcomplicated.

Question: {{.Question}}
Equipment Problem: {{.EquipmentProblem}}
Steps: {{list .Steps}}
Tools Required: {{list .ToolsRequired}}

Rate as 0 (appropriate complexity) or 1 (overcomplicated). Respond with only the number.
`),
	},
	{
		Mode:            types.ModeMissingContext,
		Description:     "Lacks important context about when, why, or how to apply the solution",
		SuccessCriteria: "Provides context about when to use this solution, prerequisites, and situational considerations",
		FailureCriteria: "Missing context about applicability, prerequisites, or situational factors",
		prompt: mustPrompt(types.ModeMissingContext, `
Evaluate if this DIY repair guidance provides ADEQUATE CONTEXT:

SUCCESS (0): Gives some sense of when to use this approach, what's needed (e.g. time, parts), or when to call a pro. Brief context is enough.
FAILURE (1): No context at all: reader cannot tell when this solution applies, what to have ready, or when it's beyond DIY. Clearly missing prerequisites or situational guidance.

Question: {{.Question}}
Answer: {{.Answer}}
Equipment Problem: {{.EquipmentProblem}}
Tips: {{.Tips}}

Rate as 0 (adequate context) or 1 (missing context). Respond with only the number.
`),
	},
	{
		Mode:            types.ModePoorQualityTips,
		Description:     "Tips are generic, unhelpful, or don't add value beyond the main answer",
		SuccessCriteria: "Tips provide specific, actionable advice that enhances the repair process",
		FailureCriteria: "Tips are generic, obvious, unhelpful, or simply repeat information from the answer",
		prompt: mustPrompt(types.ModePoorQualityTips, `
Evaluate if the provided tips are HIGH QUALITY and VALUABLE:

SUCCESS (0): Tips add some useful value (specific advice, order of operations, or what to avoid). They need not be perfect; slightly generic but helpful is OK.
FAILURE (1): Tips are purely generic, only repeat the answer, or add no real value. Only fail when tips are clearly unhelpful or redundant.

Question: {{.Question}}
Answer: {{.Answer}}
Tips: {{.Tips}}

Rate as 0 (quality tips) or 1 (poor quality tips). Respond with only the number.
`),
	},
}

// Lookup returns the descriptor for m.
func Lookup(m types.FailureMode) (Mode, bool) {
	i := m.Index()
	if i < 0 {
		return Mode{}, false
	}
	return Modes[i], true
}
