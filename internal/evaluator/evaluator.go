// Package evaluator asks a remote language model to grade a workbook step
// and turns its reply into a validated model.EvaluationResult.
package evaluator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/argument-tutor/internal/config"
	"github.com/sells-group/argument-tutor/internal/model"
	"github.com/sells-group/argument-tutor/internal/prompt"
	"github.com/sells-group/argument-tutor/internal/resilience"
)

// Request is one learner submission to grade. Evidence is only read for
// the reasoning step.
type Request struct {
	Step     model.Step
	Claim    model.Claim
	Text     string
	Evidence string
}

// Options tune remote calls.
type Options struct {
	Temperature float64
	// Timeout bounds each attempt, not the whole retry sequence.
	Timeout time.Duration
	Retry   resilience.RetryConfig
	// Limiter, when set, is shared by every session in the process.
	Limiter *rate.Limiter
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.3,
		Timeout:     60 * time.Second,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// OptionsFromConfig maps application config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Temperature: cfg.Evaluator.Temperature,
		Timeout:     cfg.Evaluator.Timeout(),
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
	}
	if rps := cfg.Evaluator.RequestsPerSecond; rps > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return opts
}

// Evaluator grades submissions. It holds no per-learner state and is safe
// for concurrent use.
type Evaluator struct {
	prompts   *prompt.Store
	completer Completer
	opts      Options
}

// New creates an Evaluator.
func New(prompts *prompt.Store, completer Completer, opts Options) *Evaluator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Evaluator{prompts: prompts, completer: completer, opts: opts}
}

// Evaluate grades req. Any failure is an *Error; its Kind tells whether the
// evaluator was unreachable, misconfigured, or misbehaving.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*model.EvaluationResult, error) {
	log := zap.L().With(
		zap.String("step", string(req.Step)),
		zap.String("claim", string(req.Claim)),
	)

	if _, ok := model.ParseStep(string(req.Step)); !ok {
		return nil, &Error{Kind: KindConfiguration, Step: req.Step, Err: eris.Errorf("unknown step %q", req.Step)}
	}

	system, err := e.prompts.Resolve(req.Step, req.Claim)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Step: req.Step, Err: err}
	}
	user := e.prompts.RenderUserMessage(req.Step, prompt.Fields{
		Text:     req.Text,
		Evidence: req.Evidence,
		Claim:    req.Claim,
	})

	retryCfg := e.opts.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger("evaluator", string(req.Step))
	}

	attempts := 0
	start := time.Now()
	text, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		if e.opts.Limiter != nil {
			if err := e.opts.Limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "evaluator: rate limit wait")
			}
		}
		attempts++

		actx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		return e.completer.Complete(actx, Prompt{
			Step:        req.Step,
			System:      system,
			User:        user,
			Temperature: e.opts.Temperature,
		})
	})
	if err != nil {
		kind := KindRemote
		if resilience.IsExhausted(err) {
			kind = KindTransient
		}
		log.Warn("evaluation call failed",
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, &Error{Kind: kind, Step: req.Step, Attempts: attempts, Err: err}
	}

	obj, err := decodeObject(text)
	if err != nil {
		log.Warn("evaluation response unparsable", zap.Int("response_len", len(text)), zap.Error(err))
		return nil, &Error{Kind: KindParse, Step: req.Step, Attempts: attempts, Err: err}
	}

	result, err := normalize(req.Step, obj)
	if err != nil {
		log.Warn("evaluation response violates label contract", zap.Error(err))
		return nil, &Error{Kind: KindContract, Step: req.Step, Attempts: attempts, Err: err}
	}

	log.Info("evaluation complete",
		zap.String("label", result.Label),
		zap.Bool("passed", result.Passed),
		zap.Float64("confidence", result.Confidence),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
