package cli

import (
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/autoresearch/autoloop"
	"github.com/autoresearch/autoloop/pkg/adapters/firebase"
	"github.com/autoresearch/autoloop/pkg/adapters/memory"
	"github.com/autoresearch/autoloop/pkg/adapters/prolific"
	"github.com/autoresearch/autoloop/pkg/adapters/redis"
	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/experimentalist"
	"github.com/autoresearch/autoloop/pkg/ports"
	"github.com/autoresearch/autoloop/pkg/runner"
	"github.com/autoresearch/autoloop/pkg/theorist"
)

// randomOptions are the mapstructure options of the random experimentalist.
type randomOptions struct {
	Samples int   `mapstructure:"samples"`
	Seed    int64 `mapstructure:"seed"`
}

// gridOptions are the mapstructure options of the grid experimentalist.
type gridOptions struct {
	Steps int `mapstructure:"steps"`
}

// linearOptions are the mapstructure options of the linear theorist.
type linearOptions struct {
	Degree int    `mapstructure:"degree"`
	Target string `mapstructure:"target"`
}

// BuildStore creates the persistence backend selected by the config.
func BuildStore(cfg *Config) (ports.StateStore, error) {
	switch cfg.Store.Kind {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		var opts []redis.Option
		if cfg.Store.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Store.Redis.Prefix))
		}
		if cfg.Store.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Store.Redis.TTL.Std()))
		}
		return redis.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// BuildEngine assembles a fully wired engine from the config.
func BuildEngine(cfg *Config, store ports.StateStore, hooks domain.LifecycleHooks, logger *slog.Logger) (*autoloop.Engine, error) {
	sampler, err := buildExperimentalist(cfg.Experimentalist)
	if err != nil {
		return nil, err
	}

	fitter, err := buildTheorist(cfg.Theorist)
	if err != nil {
		return nil, err
	}

	experimentRunner, err := buildRunner(cfg, hooks, logger)
	if err != nil {
		return nil, err
	}

	opts := []autoloop.Option{
		autoloop.WithExperimentalist(sampler),
		autoloop.WithRunner(experimentRunner),
		autoloop.WithTheorist(fitter),
		autoloop.WithCycles(cfg.Cycles),
		autoloop.WithLifecycleHooks(hooks),
		autoloop.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, autoloop.WithStore(store))
	}

	return autoloop.New(opts...)
}

func buildExperimentalist(cfg StrategyConfig) (ports.Experimentalist, error) {
	switch cfg.Kind {
	case "random":
		opts := randomOptions{Samples: 4}
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("experimentalist: %w", err)
		}
		var randomOpts []experimentalist.RandomOption
		if opts.Seed != 0 {
			randomOpts = append(randomOpts, experimentalist.WithSeed(opts.Seed))
		}
		return experimentalist.NewRandom(opts.Samples, randomOpts...)
	case "grid":
		opts := gridOptions{Steps: 5}
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("experimentalist: %w", err)
		}
		return experimentalist.NewGrid(opts.Steps)
	default:
		return nil, fmt.Errorf("unknown experimentalist kind %q", cfg.Kind)
	}
}

func buildTheorist(cfg StrategyConfig) (ports.Theorist, error) {
	switch cfg.Kind {
	case "linear":
		opts := linearOptions{Degree: 1}
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("theorist: %w", err)
		}
		linearOpts := []theorist.LinearOption{theorist.WithDegree(opts.Degree)}
		if opts.Target != "" {
			linearOpts = append(linearOpts, theorist.WithTarget(opts.Target))
		}
		return theorist.NewLinear(linearOpts...)
	default:
		return nil, fmt.Errorf("unknown theorist kind %q", cfg.Kind)
	}
}

func buildRunner(cfg *Config, hooks domain.LifecycleHooks, logger *slog.Logger) (ports.ExperimentRunner, error) {
	var firebaseOpts []firebase.Option
	if cfg.Runner.Firebase.Collection != "" {
		firebaseOpts = append(firebaseOpts, firebase.WithCollection(cfg.Runner.Firebase.Collection))
	}
	firebaseOpts = append(firebaseOpts, firebase.WithLogger(logger))

	host, err := firebase.New(cfg.Runner.Firebase.ProjectID, cfg.Runner.Firebase.APIKey, firebaseOpts...)
	if err != nil {
		return nil, err
	}

	switch cfg.Runner.Kind {
	case "firebase":
		return runner.NewFirebase(host,
			runner.WithInterval(cfg.Runner.Interval.Std()),
			runner.WithTimeout(cfg.Runner.Timeout.Std()),
			runner.WithLogger(logger),
		), nil

	case "firebase-prolific":
		recruiter, err := prolific.New(cfg.Runner.Prolific.Token, prolific.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		spec := prolific.StudySpec{
			Name:                    cfg.Runner.Prolific.StudyName,
			Description:             cfg.Runner.Prolific.StudyDescription,
			ExternalStudyURL:        cfg.Runner.Prolific.StudyURL,
			EstimatedCompletionTime: cfg.Runner.Prolific.CompletionTime,
			CompletionCode:          cfg.Runner.Prolific.CompletionCode,
		}

		return runner.NewFirebaseProlific(host, recruiter, spec,
			runner.WithProlificInterval(cfg.Runner.Interval.Std()),
			runner.WithProlificLogger(logger),
			runner.WithRecruitmentHooks(hooks),
		), nil

	default:
		return nil, fmt.Errorf("unknown runner kind %q", cfg.Runner.Kind)
	}
}

// decodeOptions maps the free-form options block onto a typed struct,
// rejecting unknown keys so typos surface immediately.
func decodeOptions(in map[string]any, out any) error {
	if in == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}
