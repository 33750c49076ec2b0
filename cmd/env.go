package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/argument-tutor/internal/config"
	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/prompt"
)

// tutorEnv holds the shared dependencies built from config.
type tutorEnv struct {
	Prompts   *prompt.Store
	Evaluator *evaluator.Evaluator
	Backend   history.Backend

	closers []func() error
}

// Close releases resources held by the environment.
func (e *tutorEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEvaluator loads the prompt document and builds the evaluator.
func initEvaluator(c *config.Config) (*tutorEnv, error) {
	prompts, err := prompt.Load(c.Prompts.Path, c.Prompts.MaxPasses)
	if err != nil {
		return nil, err
	}

	completer, err := evaluator.NewCompleter(c)
	if err != nil {
		return nil, err
	}

	zap.L().Info("evaluator ready",
		zap.String("provider", c.Evaluator.Provider),
		zap.String("prompts", c.Prompts.Path),
	)
	return &tutorEnv{
		Prompts:   prompts,
		Evaluator: evaluator.New(prompts, completer, evaluator.OptionsFromConfig(c)),
	}, nil
}

// initEnv builds the evaluator plus the history backend used by serve.
func initEnv(ctx context.Context, c *config.Config) (*tutorEnv, error) {
	env, err := initEvaluator(c)
	if err != nil {
		return nil, err
	}

	backend, closer, err := initBackend(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env.Backend = backend
	if closer != nil {
		env.closers = append(env.closers, closer)
	}
	return env, nil
}

func initBackend(ctx context.Context, sc config.StoreConfig) (history.Backend, func() error, error) {
	switch sc.Driver {
	case "", "memory":
		zap.L().Info("using in-memory history")
		return history.NewMemoryBackend(), nil, nil
	case "sqlite":
		st, err := history.NewSQLite(sc.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, eris.Wrap(err, "migrate history store")
		}
		zap.L().Info("using sqlite history", zap.String("dsn", sc.DatabaseURL))
		return st, st.Close, nil
	default:
		return nil, nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}
