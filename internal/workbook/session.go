// Package workbook implements the claim, evidence and reasoning progression
// for one learner. Each step is gated by an evaluation and approving a step
// unlocks the next.
package workbook

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/model"
)

// Evaluator grades a submission. *evaluator.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error)
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides attempt ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// Session is one learner's workbook. Mutating actions are serialized: while
// an evaluation is in flight every other mutation fails with ErrBusy.
type Session struct {
	eval    Evaluator
	history history.Log
	now     func() time.Time
	newID   func() string

	mu            sync.Mutex
	claim         model.Claim
	lastClaim     model.Claim
	state         State
	evidence      model.Gate
	reasoning     model.Gate
	evidenceText  string
	reasoningText string
	submitted     bool
	busy          bool
}

// New creates a Session with no claim chosen.
func New(eval Evaluator, log history.Log, opts ...Option) *Session {
	s := &Session{
		eval:    eval,
		history: log,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		state:   StateChoosingClaim,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SelectClaim chooses the learner's claim, keeping drafted text.
func (s *Session) SelectClaim(c model.Claim) error {
	return s.selectClaim(c, true)
}

// SelectClaimClearingText chooses the learner's claim. If this changes the
// claim, both drafts are discarded as well.
func (s *Session) SelectClaimClearingText(c model.Claim) error {
	return s.selectClaim(c, false)
}

func (s *Session) selectClaim(c model.Claim, keepText bool) error {
	if c != model.ClaimNone && !c.IsConcrete() {
		return ErrInvalidClaim
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}

	if c == model.ClaimNone {
		s.claim = model.ClaimNone
		s.state = StateChoosingClaim
		return nil
	}

	if s.lastClaim != model.ClaimNone && s.lastClaim != c {
		s.evidence = model.Gate{}
		s.reasoning = model.Gate{}
		s.submitted = false
		if !keepText {
			s.evidenceText = ""
			s.reasoningText = ""
		}
		zap.L().Info("workbook: claim changed, gates reset",
			zap.String("from", string(s.lastClaim)),
			zap.String("to", string(c)),
			zap.Bool("kept_text", keepText),
		)
	}

	s.claim = c
	s.lastClaim = c
	s.state = s.resumeState()
	return nil
}

// resumeState derives the state from the gates. Callers hold mu.
func (s *Session) resumeState() State {
	switch {
	case s.claim == model.ClaimNone:
		return StateChoosingClaim
	case s.submitted:
		return StateSubmitted
	case s.reasoning.Approved:
		return StateReasoningApproved
	case s.evidence.Approved && s.reasoning.Feedback != "":
		return StateReasoningUnlocked
	case s.evidence.Approved:
		return StateEvidenceApproved
	default:
		return StateEvidenceUnlocked
	}
}

// SubmitEvidence evaluates text as evidence for the chosen claim. A failed
// evaluation leaves gates and history untouched and returns the error.
func (s *Session) SubmitEvidence(ctx context.Context, text string) (*model.EvaluationResult, error) {
	s.mu.Lock()
	if err := s.checkEvidence(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.evidenceText = text
	claim := s.claim
	s.busy = true
	s.mu.Unlock()

	res, err := s.eval.Evaluate(ctx, evaluator.Request{
		Step:  model.StepEvidence,
		Claim: claim,
		Text:  text,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return nil, err
	}

	rec := s.newRecord(claim, model.StepEvidence, text, res)
	if err := s.history.Append(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "workbook: record evidence attempt")
	}

	s.evidence = model.Gate{Approved: res.Passed, Feedback: res.Feedback}
	s.submitted = false
	if res.Passed {
		s.state = StateEvidenceApproved
	} else {
		s.state = StateEvidenceUnlocked
	}
	return res, nil
}

func (s *Session) checkEvidence() error {
	switch {
	case s.busy:
		return ErrBusy
	case s.claim == model.ClaimNone:
		return ErrNoClaim
	case s.evidence.Approved:
		return ErrStepLocked
	}
	return nil
}

// SubmitReasoning evaluates text as reasoning linking the approved evidence
// to the claim. The evidence text at this moment is stored with the record.
func (s *Session) SubmitReasoning(ctx context.Context, text string) (*model.EvaluationResult, error) {
	s.mu.Lock()
	if err := s.checkReasoning(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.reasoningText = text
	claim := s.claim
	evidence := s.evidenceText
	s.busy = true
	s.mu.Unlock()

	res, err := s.eval.Evaluate(ctx, evaluator.Request{
		Step:     model.StepReasoning,
		Claim:    claim,
		Text:     text,
		Evidence: evidence,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return nil, err
	}

	rec := s.newRecord(claim, model.StepReasoning, text, res)
	rec.Evidence = strings.TrimSpace(evidence)
	if err := s.history.Append(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "workbook: record reasoning attempt")
	}

	s.reasoning = model.Gate{Approved: res.Passed, Feedback: res.Feedback}
	s.submitted = false
	if res.Passed {
		s.state = StateReasoningApproved
	} else {
		s.state = StateReasoningUnlocked
	}
	return res, nil
}

func (s *Session) checkReasoning() error {
	switch {
	case s.busy:
		return ErrBusy
	case s.claim == model.ClaimNone:
		return ErrNoClaim
	case !s.evidence.Approved:
		return ErrNotApproved
	case s.reasoning.Approved:
		return ErrStepLocked
	}
	return nil
}

func (s *Session) newRecord(claim model.Claim, step model.Step, text string, res *model.EvaluationResult) model.AttemptRecord {
	return model.AttemptRecord{
		ID:         s.newID(),
		Claim:      claim,
		Step:       step,
		Text:       strings.TrimSpace(text),
		Label:      res.Label,
		Confidence: res.Confidence,
		Feedback:   res.Feedback,
		Passed:     res.Passed,
		Timestamp:  s.now().Truncate(time.Second),
	}
}

// UnlockEvidenceForEdit reopens approved evidence. Reasoning depends on it,
// so reasoning is un-approved too.
func (s *Session) UnlockEvidenceForEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.busy:
		return ErrBusy
	case s.claim == model.ClaimNone:
		return ErrNoClaim
	case !s.evidence.Approved:
		return ErrNotApproved
	}

	s.evidence = model.Gate{}
	s.reasoning = model.Gate{}
	s.submitted = false
	s.state = StateEvidenceUnlocked
	return nil
}

// UnlockReasoningForEdit reopens approved reasoning. Evidence is untouched.
func (s *Session) UnlockReasoningForEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.busy:
		return ErrBusy
	case s.claim == model.ClaimNone:
		return ErrNoClaim
	case !s.reasoning.Approved:
		return ErrNotApproved
	}

	s.reasoning = model.Gate{}
	s.submitted = false
	s.state = StateReasoningUnlocked
	return nil
}

// SubmitFinal marks the workbook submitted. Both steps must be approved.
func (s *Session) SubmitFinal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.busy:
		return ErrBusy
	case s.claim == model.ClaimNone:
		return ErrNoClaim
	case !s.evidence.Approved || !s.reasoning.Approved:
		return ErrNotApproved
	}

	s.submitted = true
	s.state = StateSubmitted
	return nil
}
