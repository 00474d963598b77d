package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/api"
	"github.com/stitts-dev/match-features/internal/artifacts"
	"github.com/stitts-dev/match-features/internal/encoding"
	"github.com/stitts-dev/match-features/internal/engine"
	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/ingest"
	"github.com/stitts-dev/match-features/internal/models"
	"github.com/stitts-dev/match-features/internal/pipeline"
	"github.com/stitts-dev/match-features/internal/scheduler"
)

func (a *app) migrate() error {
	db, err := a.database()
	if err != nil {
		return err
	}
	if err := db.Migrate(&models.MatchRecord{}, &artifacts.ArtifactRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info("Migrations completed successfully")
	return nil
}

func (a *app) importMatches(ctx context.Context, entry *logrus.Entry, path string) error {
	if path == "" {
		path = a.cfg.PreMatchDataPath
	}
	matches, err := ingest.LoadMatches(path)
	if err != nil {
		return err
	}
	db, err := a.database()
	if err != nil {
		return err
	}
	inserted, err := ingest.NewMatchRepository(db.DB).Save(ctx, matches)
	if err != nil {
		return err
	}
	entry.WithFields(logrus.Fields{"path": path, "inserted": inserted}).Info("Imported matches")
	return nil
}

// preMatchTable builds the pre-match table from the configured CSV.
func (a *app) preMatchTable(ctx context.Context, entry *logrus.Entry) (*features.Table, error) {
	matches, err := ingest.LoadMatches(a.cfg.PreMatchDataPath)
	if err != nil {
		return nil, err
	}
	return a.processPreMatch(ctx, entry, matches)
}

func (a *app) processPreMatch(ctx context.Context, entry *logrus.Entry, matches []models.MatchRecord) (*features.Table, error) {
	table, _, err := pipeline.NewPreMatchProcessor(a.cfg.Policy(), entry).Process(ctx, matches)
	return table, err
}

func (a *app) buildPreMatch(ctx context.Context, entry *logrus.Entry, path string) error {
	table, err := a.preMatchTable(ctx, entry)
	if err != nil {
		return err
	}
	w, err := output(path)
	if err != nil {
		return err
	}
	defer w.Close()
	return table.WriteCSV(w)
}

func (a *app) preMatchModel(entry *logrus.Entry) *engine.PreMatchModel {
	return engine.NewPreMatchModel(a.engine(), a.cfg.PreMatchModel, pipeline.PreMatchLabel, a.split(), entry)
}

func (a *app) trainPreMatch(ctx context.Context, entry *logrus.Entry) error {
	table, err := a.preMatchTable(ctx, entry)
	if err != nil {
		return err
	}
	res, err := a.preMatchModel(entry).Train(ctx, table)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) predictPreMatch(ctx context.Context, entry *logrus.Entry) error {
	table, err := a.preMatchTable(ctx, entry)
	if err != nil {
		return err
	}
	preds, err := a.preMatchModel(entry).Predict(ctx, table)
	if err != nil {
		return err
	}
	return printJSON(preds)
}

func (a *app) liveModel(entry *logrus.Entry) *engine.LiveMatchModel {
	return engine.NewLiveMatchModel(a.engine(), a.cfg.LiveModel, pipeline.LiveLabel, a.split(), entry)
}

func (a *app) trainLive(ctx context.Context, entry *logrus.Entry) error {
	matches, err := ingest.LoadMatches(a.cfg.LiveDataPath)
	if err != nil {
		return err
	}
	table, arts, err := pipeline.NewLiveProcessor(a.cfg.Policy(), entry).Fit(ctx, matches)
	if err != nil {
		return err
	}
	res, err := a.liveModel(entry).Train(ctx, table)
	if err != nil {
		return err
	}

	// Artifacts are write-once; persist them only for a model that trained.
	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	if err := arts.Save(ctx, store); err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) predictLive(ctx context.Context, entry *logrus.Entry, snapshotPath string) error {
	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	arts, err := encoding.LoadArtifacts(ctx, store)
	if err != nil {
		return err
	}
	snapshots, err := ingest.LoadSnapshots(snapshotPath)
	if err != nil {
		return err
	}
	history, err := ingest.LoadMatches(a.cfg.LiveDataPath)
	if err != nil {
		return err
	}

	table, err := pipeline.NewLiveAdapter(a.cfg.Policy(), arts, entry).Transform(ctx, snapshots, history, nil)
	if err != nil {
		return err
	}
	preds, err := a.liveModel(entry).Predict(ctx, table)
	if err != nil {
		return err
	}
	return printJSON(preds)
}

func (a *app) fatigueModel(entry *logrus.Entry) *engine.FatigueModel {
	return engine.NewFatigueModel(a.engine(), a.cfg.FatigueModel, pipeline.FatigueLabel, a.split(), entry)
}

func (a *app) trainFatigue(ctx context.Context, entry *logrus.Entry) error {
	stats, err := ingest.LoadPlayerStats(a.cfg.FatigueDataPath)
	if err != nil {
		return err
	}
	table, enc, err := pipeline.NewFatigueProcessor(a.cfg.Policy(), entry).Fit(ctx, stats)
	if err != nil {
		return err
	}
	res, err := a.fatigueModel(entry).Train(ctx, table)
	if err != nil {
		return err
	}

	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	if err := encoding.SaveEncoder(ctx, store, artifacts.KeyPositionEncoder, enc); err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) predictFatigue(ctx context.Context, entry *logrus.Entry) error {
	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	enc, err := encoding.LoadEncoder(ctx, store, artifacts.KeyPositionEncoder)
	if err != nil {
		return err
	}
	stats, err := ingest.LoadPlayerStats(a.cfg.FatigueDataPath)
	if err != nil {
		return err
	}
	table, err := pipeline.NewFatigueProcessor(a.cfg.Policy(), entry).Transform(ctx, stats, enc)
	if err != nil {
		return err
	}
	preds, err := a.fatigueModel(entry).Predict(ctx, table)
	if err != nil {
		return err
	}
	return printJSON(preds)
}

// schedule rebuilds pre-match features from postgres and retrains on
// REFRESH_SCHEDULE until interrupted, serving health, metrics and job control.
func (a *app) schedule() error {
	db, err := a.database()
	if err != nil {
		return err
	}
	repo := ingest.NewMatchRepository(db.DB)

	s := scheduler.New(a.log)
	err = s.AddJob("prematch_refresh", a.cfg.RefreshSchedule, "Pre-match feature refresh", func(ctx context.Context, runID string) error {
		return a.run(ctx, "prematch", func(ctx context.Context, entry *logrus.Entry) error {
			matches, err := repo.Load(ctx, ingest.MatchFilter{})
			if err != nil {
				return err
			}
			table, err := a.processPreMatch(ctx, entry.WithField("job_run_id", runID), matches)
			if err != nil {
				return err
			}
			res, err := a.preMatchModel(entry).Train(ctx, table)
			if err != nil {
				return err
			}
			entry.WithFields(logrus.Fields{
				"model_version": res.Handle.Version,
				"accuracy":      res.Accuracy,
			}).Info("Pre-match model retrained")
			return nil
		})
	})
	if err != nil {
		return err
	}

	if !a.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(map[string]api.HealthChecker{"database": db}, s, a.log)
	srv := &http.Server{
		Addr:              ":" + a.cfg.MetricsPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.log.WithField("port", a.cfg.MetricsPort).Info("Serving ops API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Ops API server failed")
		}
	}()

	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.log.Info("Shutting down scheduler...")

	s.Stop(30 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
