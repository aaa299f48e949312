package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tileverse/core/internal/config"
	"github.com/tileverse/core/internal/modules/analytics"
	pkgcron "github.com/tileverse/core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, analyticsSvc *analytics.Service, cfg *config.AppConfig, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")
	retentionDays := cfg.Analytics.LogRetentionDays

	sched.Register(pkgcron.Job{
		Name:        "refresh_weekly_trends",
		Description: "recompute the current week's trend bucket for every tile",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			if err := analyticsSvc.RefreshAllTrends(ctx, time.Now()); err != nil {
				cronLogger.Warn("weekly trend refresh failed", zap.Error(err))
				return err
			}
			cronLogger.Info("weekly trends refreshed")
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "prune_interaction_logs",
		Description: fmt.Sprintf("archive and drop interaction logs older than %d days", retentionDays),
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := analyticsSvc.PruneLogs(ctx, cutoff); err != nil {
				cronLogger.Warn("interaction log prune failed", zap.Error(err))
				return err
			}
			cronLogger.Info("interaction logs pruned", zap.Time("cutoff", cutoff))
			return nil
		},
	})
}
