package workbook

import (
	"context"

	"github.com/sells-group/argument-tutor/internal/model"
)

// Snapshot is a consistent read of a Session for rendering.
type Snapshot struct {
	Claim          model.Claim        `json:"claim"`
	ClaimDisplay   string             `json:"claim_display"`
	State          State              `json:"state"`
	Evidence       model.Gate         `json:"evidence"`
	Reasoning      model.Gate         `json:"reasoning"`
	EvidenceText   string             `json:"evidence_text"`
	ReasoningText  string             `json:"reasoning_text"`
	Submitted      bool               `json:"submitted"`
	Busy           bool               `json:"busy"`
	HiddenAttempts map[model.Step]int `json:"hidden_attempts"`
}

// Snapshot returns the current session values.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Claim:         s.claim,
		ClaimDisplay:  s.claim.Display(),
		State:         s.state,
		Evidence:      s.evidence,
		Reasoning:     s.reasoning,
		EvidenceText:  s.evidenceText,
		ReasoningText: s.reasoningText,
		Submitted:     s.submitted,
		Busy:          s.busy,
	}
	s.mu.Unlock()

	snap.HiddenAttempts = make(map[model.Step]int, len(model.Steps))
	for _, step := range model.Steps {
		snap.HiddenAttempts[step] = s.hiddenAttempts(ctx, snap.Claim, step)
	}
	return snap
}

// Claim returns the currently selected claim.
func (s *Session) Claim() model.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claim
}

// State returns the current progression state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Gate returns the approval gate for step.
func (s *Session) Gate(step model.Step) model.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step == model.StepReasoning {
		return s.reasoning
	}
	return s.evidence
}

// Text returns the drafted text for step.
func (s *Session) Text(step model.Step) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step == model.StepReasoning {
		return s.reasoningText
	}
	return s.evidenceText
}

// Submitted reports whether the argument has been submitted.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Busy reports whether an evaluation is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// History returns the attempts recorded under claim, newest first.
func (s *Session) History(ctx context.Context, claim model.Claim) []model.AttemptRecord {
	return s.history.Query(ctx, claim)
}

// StepHistory returns the attempts for one step recorded under claim,
// newest first.
func (s *Session) StepHistory(ctx context.Context, claim model.Claim, step model.Step) []model.AttemptRecord {
	return model.FilterByStep(s.history.Query(ctx, claim), step)
}

// HiddenAttempts counts attempts at step made under the other claim. They
// are kept but not shown while the current claim is selected.
func (s *Session) HiddenAttempts(ctx context.Context, step model.Step) int {
	return s.hiddenAttempts(ctx, s.Claim(), step)
}

func (s *Session) hiddenAttempts(ctx context.Context, claim model.Claim, step model.Step) int {
	if !claim.IsConcrete() {
		return 0
	}
	return len(model.FilterByStep(s.history.Query(ctx, claim.Other()), step))
}
