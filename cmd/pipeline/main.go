package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/artifacts"
	"github.com/stitts-dev/match-features/internal/engine"
	"github.com/stitts-dev/match-features/internal/metrics"
	"github.com/stitts-dev/match-features/pkg/config"
	"github.com/stitts-dev/match-features/pkg/database"
	"github.com/stitts-dev/match-features/pkg/logger"
)

const usage = `Usage: pipeline <command> [path]

Commands:
  migrate            create the match and artifact tables
  import [csv]       load a historical match CSV into postgres
  build-prematch     write the pre-match feature table as CSV
  train-prematch     build pre-match features and train the result model
  predict-prematch   predict results for every team-match row
  train-live         fit live encoders, persist artifacts and train the win model
  predict-live csv   predict win probabilities for a live snapshot CSV
  train-fatigue      build fatigue features and train the fatigue model
  predict-fatigue    rank players by fatigue probability
  schedule           run the nightly pre-match refresh and serve /metrics`

// app carries the state shared by every command.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	db    *database.DB
	redis *redis.Client
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	l := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())

	command := os.Args[1]
	arg := ""
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}

	a := &app{cfg: cfg, log: l}
	err = a.execute(context.Background(), command, arg)
	a.close()
	if err != nil {
		l.WithError(err).WithField("command", command).Error("Command failed")
		os.Exit(1)
	}
}

// execute dispatches one CLI command.
func (a *app) execute(ctx context.Context, command, arg string) error {
	switch command {
	case "migrate":
		return a.migrate()
	case "import":
		return a.run(ctx, "import", func(ctx context.Context, entry *logrus.Entry) error {
			return a.importMatches(ctx, entry, arg)
		})
	case "build-prematch":
		return a.run(ctx, "prematch", func(ctx context.Context, entry *logrus.Entry) error {
			return a.buildPreMatch(ctx, entry, arg)
		})
	case "train-prematch":
		return a.run(ctx, "prematch", a.trainPreMatch)
	case "predict-prematch":
		return a.run(ctx, "prematch", a.predictPreMatch)
	case "train-live":
		return a.run(ctx, "live", a.trainLive)
	case "predict-live":
		if arg == "" {
			return errors.New("usage: pipeline predict-live <snapshots.csv>")
		}
		return a.run(ctx, "live", func(ctx context.Context, entry *logrus.Entry) error {
			return a.predictLive(ctx, entry, arg)
		})
	case "train-fatigue":
		return a.run(ctx, "fatigue", a.trainFatigue)
	case "predict-fatigue":
		return a.run(ctx, "fatigue", a.predictFatigue)
	case "schedule":
		return a.schedule()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

// run wraps one pipeline invocation with a run id, timing and outcome metrics.
func (a *app) run(ctx context.Context, pipeline string, fn func(context.Context, *logrus.Entry) error) error {
	entry := logger.WithPipeline(pipeline, uuid.New().String())
	start := time.Now()
	entry.Info("Starting pipeline run")

	err := fn(ctx, entry)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.PipelineRuns.WithLabelValues(pipeline, status).Inc()
	metrics.PipelineDuration.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
	entry.WithFields(logrus.Fields{
		"status":   status,
		"duration": time.Since(start),
	}).Info("Pipeline run finished")
	return err
}

func (a *app) database() (*database.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Open(database.Options{
		URL:         a.cfg.DatabaseURL,
		Development: a.cfg.IsDevelopment(),
		Workers:     a.cfg.Policy().Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis client")
		}
	}
}

// store opens the artifact backend named by ARTIFACT_BACKEND.
func (a *app) store(ctx context.Context) (artifacts.Store, error) {
	switch a.cfg.ArtifactBackend {
	case "file":
		return artifacts.NewFileStore(a.cfg.ArtifactDir)
	case "redis":
		if a.redis != nil {
			return artifacts.NewRedisStore(a.redis, a.cfg.ArtifactKeyPrefix), nil
		}
		store, client, err := artifacts.NewRedisStoreFromURL(ctx, a.cfg.RedisURL, a.cfg.ArtifactKeyPrefix)
		if err != nil {
			return nil, err
		}
		a.redis = client
		return store, nil
	case "postgres":
		db, err := a.database()
		if err != nil {
			return nil, err
		}
		return artifacts.NewGormStore(db.DB, a.cfg.ArtifactKeyPrefix), nil
	case "memory":
		return artifacts.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", a.cfg.ArtifactBackend)
	}
}

func (a *app) engine() engine.Engine {
	return engine.NewHTTPClient(engine.ClientConfig{
		BaseURL:          a.cfg.EngineURL,
		Timeout:          a.cfg.EngineTimeout,
		RateLimit:        a.cfg.EngineRateLimit,
		BreakerThreshold: a.cfg.CircuitBreakerThreshold,
	}, a.log)
}

func (a *app) split() engine.SplitPolicy {
	return engine.SplitPolicy{TestFraction: a.cfg.TestFraction, Seed: a.cfg.SplitSeed}
}

// output opens path for writing, or stdout when path is empty.
func output(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
