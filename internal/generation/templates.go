package generation

import (
	"fmt"
	"strings"
)

// SchemaBlock is embedded in every generation and correction prompt so all
// domains request identically shaped JSON.
const SchemaBlock = `
Return ONLY a valid JSON object with this exact structure:
{
    "question": "A specific question about the repair",
    "answer": "Detailed step-by-step answer with technical details",
    "equipment_problem": "Specific equipment or problem description",
    "tools_required": ["list", "of", "specific", "tools", "needed"],
    "steps": ["step 1", "step 2", "step 3", "etc"],
    "safety_info": "Important safety warnings and precautions",
    "tips": "Professional tips and best practices"
}
`

// Template is one repair domain prompt.
type Template struct {
	Name      string
	System    string
	TaskFocus string
	Closing   string
}

// UserPrompt renders the user message for t.
func (t Template) UserPrompt() string {
	return fmt.Sprintf("Generate a realistic %s Q&A pair. %s\n%s\n%s",
		strings.ReplaceAll(t.Name, "_", " "), t.TaskFocus, SchemaBlock, t.Closing)
}

// Templates are the five repair domains.
var Templates = []Template{
	{
		Name:      "appliance_repair",
		System:    "You are an expert home appliance repair technician with 20+ years of experience.",
		TaskFocus: "Focus on common household appliances like refrigerators, washing machines, dryers, dishwashers, or ovens.",
		Closing:   "Make it realistic and practical for a homeowner.",
	},
	{
		Name:      "plumbing_repair",
		System:    "You are a professional plumber with extensive experience in residential plumbing repairs.",
		TaskFocus: "Focus on common issues like leaks, clogs, fixture repairs, or pipe problems.",
		Closing:   "Make it realistic and safe for a homeowner to attempt.",
	},
	{
		Name:      "electrical_repair",
		System:    "You are a licensed electrician specializing in safe home electrical repairs.",
		TaskFocus: "Focus on SAFE homeowner-level electrical work like outlet replacement, switch repair, or light fixture installation.",
		Closing:   "Emphasize safety and when to call a professional. Only include repairs safe for homeowners.",
	},
	{
		Name:      "hvac_maintenance",
		System:    "You are an HVAC technician specializing in homeowner maintenance and basic repairs.",
		TaskFocus: "Focus on filter changes, thermostat issues, vent cleaning, or basic troubleshooting.",
		Closing:   "Focus on maintenance and basic repairs homeowners can safely perform.",
	},
	{
		Name:      "general_home_repair",
		System:    "You are a skilled handyperson with expertise in general home repairs and maintenance.",
		TaskFocus: "Focus on common issues like drywall repair, door/window problems, flooring issues, or basic carpentry.",
		Closing:   "Make it practical for a DIY homeowner with basic skills.",
	},
}
