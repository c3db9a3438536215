// Command reconciler is a one-shot cleanup pass for video jobs. The API
// re-adopts pending jobs when it boots; this command covers the remaining
// gap, marking jobs as timed out when their polling ceiling passed while no
// API instance was running. Intended to run from cron.
package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/infra"
	"storyreel/internal/poller"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	scenes := repo.NewSceneRepository(infra.NewSQLRunner(dbpool, logger))
	pending, err := scenes.PendingVideoJobs(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading pending video jobs failed")
	}

	cutoff := time.Now().Add(-cfg.PollCeiling)
	var timedOut int
	for _, job := range pending {
		if job.SubmittedAt.After(cutoff) {
			continue
		}
		applied, err := scenes.FailVideoJob(ctx, job.SceneID, job.Epoch, poller.TimeoutReason)
		if err != nil {
			logger.Error().Err(err).Str("scene_id", job.SceneID).Msg("failing expired job failed")
			continue
		}
		if applied {
			timedOut++
			logger.Warn().Str("scene_id", job.SceneID).Int("epoch", job.Epoch).Msg("expired video job marked failed")
		}
	}
	logger.Info().Int("pending", len(pending)).Int("timed_out", timedOut).Msg("reconcile pass complete")
}
