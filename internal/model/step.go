package model

// Step identifies an evaluated stage of the argument.
type Step string

// Evaluated steps. The claim itself is chosen, not evaluated.
const (
	StepEvidence  Step = "evidence"
	StepReasoning Step = "reasoning"
)

// Steps lists the evaluated steps in workbook order.
var Steps = []Step{StepEvidence, StepReasoning}

// Evaluator labels.
const (
	LabelSupportive    = "supportive"
	LabelNonSupportive = "non_supportive"
	LabelValid         = "valid"
	LabelAlternative   = "alternative"
)

var stepLabels = map[Step][]string{
	StepEvidence:  {LabelSupportive, LabelNonSupportive},
	StepReasoning: {LabelValid, LabelAlternative},
}

var passingLabel = map[Step]string{
	StepEvidence:  LabelSupportive,
	StepReasoning: LabelValid,
}

// ParseStep converts user input into a Step.
func ParseStep(s string) (Step, bool) {
	switch Step(s) {
	case StepEvidence, StepReasoning:
		return Step(s), true
	default:
		return "", false
	}
}

// Labels returns the labels the evaluator may assign for the step.
func (s Step) Labels() []string {
	return stepLabels[s]
}

// AllowsLabel reports whether label belongs to the step's allowed set.
func (s Step) AllowsLabel(label string) bool {
	for _, l := range stepLabels[s] {
		if l == label {
			return true
		}
	}
	return false
}

// Passes reports whether label approves the step. It is the only rule that
// decides gate transitions.
func (s Step) Passes(label string) bool {
	want, ok := passingLabel[s]
	return ok && label == want
}

// DefaultFeedback is shown when the evaluator omits step feedback.
func (s Step) DefaultFeedback(passed bool) string {
	if passed {
		return "OK"
	}
	return "Please refine your " + string(s) + "."
}
