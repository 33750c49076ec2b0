package workbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/model"
)

// --- Evaluator Mock ---

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EvaluationResult), args.Error(1)
}

func result(step model.Step, label string) *model.EvaluationResult {
	passed := step.Passes(label)
	return &model.EvaluationResult{
		Step:       step,
		Label:      label,
		Passed:     passed,
		Feedback:   step.DefaultFeedback(passed),
		Confidence: 0.9,
	}
}

// --- Failing history ---

type failingLog struct{}

func (failingLog) Append(context.Context, model.AttemptRecord) error {
	return errors.New("disk full")
}

func (failingLog) Query(context.Context, model.Claim) []model.AttemptRecord {
	return nil
}

var testNow = time.Date(2026, 3, 14, 9, 30, 15, 987654321, time.UTC)

func newTestSession(ev *mockEvaluator, log history.Log) *Session {
	n := 0
	return New(ev, log,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("attempt-%d", n)
		}),
	)
}
