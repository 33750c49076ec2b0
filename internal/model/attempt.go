package model

import "time"

// EvaluationResult is the validated outcome of one evaluator call.
type EvaluationResult struct {
	Step       Step    `json:"step"`
	Label      string  `json:"label"`
	Passed     bool    `json:"passed"`
	Feedback   string  `json:"feedback"`
	Confidence float64 `json:"confidence"`
}

// AttemptRecord is one learner submission plus its evaluation. Records are
// never modified after they are appended to a history log.
type AttemptRecord struct {
	ID         string    `json:"id"`
	Claim      Claim     `json:"claim"`
	Step       Step      `json:"step"`
	Text       string    `json:"text"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Feedback   string    `json:"feedback"`
	Passed     bool      `json:"passed"`
	Evidence   string    `json:"evidence_snapshot,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Gate is the approval flag guarding progression past a step.
type Gate struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// FilterByStep returns the records for a single step, preserving order.
func FilterByStep(records []AttemptRecord, step Step) []AttemptRecord {
	var out []AttemptRecord
	for _, r := range records {
		if r.Step == step {
			out = append(out, r)
		}
	}
	return out
}
