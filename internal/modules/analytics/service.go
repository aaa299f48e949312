package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgredis "github.com/tileverse/core/internal/pkg/redis"

	"github.com/tileverse/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTileNotFound      = errors.New("tile not found")
	ErrAnalyticsNotFound = errors.New("no analytics recorded for this tile")
)

const summaryCacheKey = "tv:analytics:summary"

// metricColumns is the ranking allow-list: API metric name -> SQL column.
var metricColumns = map[string]string{
	"viewCount":        "view_count",
	"arViewCount":      "ar_view_count",
	"arPlacementCount": "ar_placement_count",
	"totalLikes":       "total_likes",
	"engagementScore":  "engagement_score",
	"averageRating":    "average_rating",
	"conversionRate":   "conversion_rate",
}

// Archiver receives pruned interaction logs before they are dropped.
// *objstore.Client satisfies it.
type Archiver interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) error
}

// Service orchestrates the analytics engine against the store. Each record
// mutation runs in a transaction holding a row lock on the analytics record,
// so concurrent events against the same tile cannot lose counter updates.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger

	cache      *pkgredis.Client
	summaryTTL time.Duration

	archiver      Archiver
	archivePrefix string
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// SetSummaryCache enables Redis caching of the aggregate summary (optional).
func (s *Service) SetSummaryCache(cache *pkgredis.Client, ttl time.Duration) {
	s.cache = cache
	s.summaryTTL = ttl
}

// SetArchiver wires S3 archival of pruned interaction logs (optional).
func (s *Service) SetArchiver(a Archiver, pathPrefix string) {
	s.archiver = a
	s.archivePrefix = strings.Trim(strings.TrimSpace(pathPrefix), "/")
}

// LogInteraction records one interaction event for a tile and returns the
// updated counters. The weekly trend bucket is refreshed inline.
func (s *Service) LogInteraction(tileID, userID, interactionType string, durationSeconds float64, sessionID string, deviceInfo map[string]string, now time.Time) (*InteractionResult, error) {
	var result InteractionResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		tile, err := findTile(tx, tileID)
		if err != nil {
			return err
		}

		rec, err := getOrCreateRecord(tx, tileID, tile.ID)
		if err != nil {
			return err
		}

		ev := models.InteractionLog{
			UserID:          userID,
			InteractionType: interactionType,
			DurationSeconds: durationSeconds,
			SessionID:       sessionID,
			DeviceInfo:      deviceInfo,
			Timestamp:       now,
		}
		if err := ApplyInteraction(rec, ev); err != nil {
			return err
		}
		RefreshWeeklyTrends(rec, now)

		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("save analytics record: %w", err)
		}

		result = InteractionResult{
			ViewCount:        rec.ViewCount,
			ARViewCount:      rec.ARViewCount,
			ARPlacementCount: rec.ARPlacementCount,
			TotalLikes:       rec.TotalLikes,
			EngagementScore:  rec.EngagementScore,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSummary()
	return &result, nil
}

// AddFeedback upserts a user's rating for a tile and returns the new average.
func (s *Service) AddFeedback(tileID, userID string, rating int, comment string, now time.Time) (*FeedbackResult, error) {
	var result FeedbackResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		tile, err := findTile(tx, tileID)
		if err != nil {
			return err
		}

		rec, err := getOrCreateRecord(tx, tileID, tile.ID)
		if err != nil {
			return err
		}

		if err := ApplyFeedback(rec, userID, rating, comment, now); err != nil {
			return err
		}

		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("save analytics record: %w", err)
		}

		result = FeedbackResult{
			AverageRating: rec.AverageRating,
			FeedbackCount: len(rec.Feedbacks),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSummary()
	return &result, nil
}

// GetByTileID returns the full analytics record for one tile.
func (s *Service) GetByTileID(tileID string) (*models.TileAnalyticsModel, error) {
	var rec models.TileAnalyticsModel
	if err := s.db.Where("tile_id = ?", tileID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalyticsNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RefreshTrends recomputes the current week's trend bucket for one tile and
// returns the full trend history. Idempotent for a given week and log state.
func (s *Service) RefreshTrends(tileID string, now time.Time) ([]models.WeeklyTrend, error) {
	var trends []models.WeeklyTrend

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := findRecordLocked(tx, tileID)
		if err != nil {
			return err
		}
		RefreshWeeklyTrends(rec, now)
		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("save analytics record: %w", err)
		}
		trends = rec.WeeklyTrends
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trends, nil
}

// TopPerforming returns records ranked by an allow-listed metric, descending.
func (s *Service) TopPerforming(metric string, limit int) ([]models.TileAnalyticsModel, error) {
	column, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var recs []models.TileAnalyticsModel
	if err := s.db.Order(column + " DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// EngagementSummary computes viewer retention buckets for one tile.
func (s *Service) EngagementSummary(tileID string) (*EngagementSummary, error) {
	rec, err := s.GetByTileID(tileID)
	if err != nil {
		return nil, err
	}

	summary := EngagementSummary{UniqueViewerCount: len(rec.UniqueViewers)}
	if summary.UniqueViewerCount > 0 {
		summary.AvgViewsPerUser = round1(float64(rec.ViewCount) / float64(summary.UniqueViewerCount))
	}
	for _, v := range rec.UniqueViewers {
		switch {
		case v.TotalViews == 1:
			summary.Retention.OneTime++
		case v.TotalViews > 1:
			summary.Retention.Returning++
		}
		if v.TotalViews >= 5 {
			summary.Retention.Loyal++
		}
	}
	return &summary, nil
}

// AggregateSummary rolls up counters across all records, cached in Redis.
func (s *Service) AggregateSummary(ctx context.Context) (*AggregateSummary, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, summaryCacheKey); err == nil && cached != "" {
			var summary AggregateSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return &summary, nil
			}
		}
	}

	var summary AggregateSummary
	err := s.db.Model(&models.TileAnalyticsModel{}).
		Select(`COUNT(*) AS tile_count,
			COALESCE(SUM(view_count), 0) AS total_views,
			COALESCE(SUM(ar_view_count), 0) AS total_ar_views,
			COALESCE(SUM(ar_placement_count), 0) AS total_ar_placements,
			COALESCE(SUM(total_likes), 0) AS total_likes,
			COALESCE(SUM(interaction_duration_seconds), 0) AS total_interaction_seconds,
			COALESCE(AVG(engagement_score), 0) AS avg_engagement_score,
			COALESCE(AVG(average_rating), 0) AS avg_rating`).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	summary.AvgEngagementScore = round1(summary.AvgEngagementScore)
	summary.AvgRating = round1(summary.AvgRating)

	if s.cache != nil && s.summaryTTL > 0 {
		if payload, err := json.Marshal(summary); err == nil {
			_ = s.cache.Set(ctx, summaryCacheKey, payload, s.summaryTTL)
		}
	}
	return &summary, nil
}

// Delete removes a tile's analytics record. Hard delete: the unique tile_id
// index must stay free for a fresh record if interactions resume.
func (s *Service) Delete(tileID string) error {
	res := s.db.Unscoped().Where("tile_id = ?", tileID).Delete(&models.TileAnalyticsModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAnalyticsNotFound
	}
	s.invalidateSummary()
	return nil
}

// RefreshAllTrends recomputes the current week's bucket for every record.
// Run by the scheduler; also safe to invoke manually.
func (s *Service) RefreshAllTrends(ctx context.Context, now time.Time) error {
	var ids []string
	if err := s.db.Model(&models.TileAnalyticsModel{}).Pluck("tile_id", &ids).Error; err != nil {
		return err
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.RefreshTrends(id, now); err != nil {
			failed++
			s.logger.Warn("trend refresh failed", zap.String("tile_id", id), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("trend refresh failed for %d of %d records", failed, len(ids))
	}
	return nil
}

// PruneLogs drops interaction log entries older than cutoff from every
// record, archiving each pruned batch first when an archiver is configured.
// A record whose archive upload fails keeps its logs for the next run.
func (s *Service) PruneLogs(ctx context.Context, cutoff time.Time) error {
	var ids []string
	if err := s.db.Model(&models.TileAnalyticsModel{}).Pluck("tile_id", &ids).Error; err != nil {
		return err
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.pruneRecord(ctx, id, cutoff); err != nil {
			failed++
			s.logger.Warn("log prune failed", zap.String("tile_id", id), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("log prune failed for %d of %d records", failed, len(ids))
	}
	return nil
}

func (s *Service) pruneRecord(ctx context.Context, tileID string, cutoff time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := findRecordLocked(tx, tileID)
		if err != nil {
			return err
		}

		pruned := PruneLogs(rec, cutoff)
		if len(pruned) == 0 {
			return nil
		}

		if s.archiver != nil {
			payload, err := json.Marshal(pruned)
			if err != nil {
				return fmt.Errorf("marshal archive batch: %w", err)
			}
			key := s.archiveKey(tileID, cutoff)
			if err := s.archiver.Put(ctx, key, payload, "application/json"); err != nil {
				return fmt.Errorf("archive %d logs: %w", len(pruned), err)
			}
		}

		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("save analytics record: %w", err)
		}
		s.logger.Info("pruned interaction logs",
			zap.String("tile_id", tileID),
			zap.Int("pruned", len(pruned)),
			zap.Time("cutoff", cutoff),
		)
		return nil
	})
}

func (s *Service) archiveKey(tileID string, cutoff time.Time) string {
	key := fmt.Sprintf("%s/%s.json", tileID, cutoff.UTC().Format("20060102T150405Z"))
	if s.archivePrefix != "" {
		key = s.archivePrefix + "/" + key
	}
	return key
}

func (s *Service) invalidateSummary() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.cache.Del(ctx, summaryCacheKey)
}

func findTile(tx *gorm.DB, tileID string) (*models.TileModel, error) {
	var tile models.TileModel
	if err := tx.First(&tile, "id = ?", tileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTileNotFound
		}
		return nil, err
	}
	return &tile, nil
}

// getOrCreateRecord fetches the tile's analytics record under a row lock,
// lazily creating it on first interaction. The unique tile_id index plus
// insert-then-lock keeps concurrent first events from racing.
func getOrCreateRecord(tx *gorm.DB, tileID, tileRef string) (*models.TileAnalyticsModel, error) {
	rec := models.TileAnalyticsModel{TileID: tileID, TileRef: tileRef}
	insert := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tile_id"}},
		DoNothing: true,
	}).Create(&rec)
	if insert.Error != nil {
		return nil, insert.Error
	}
	if insert.RowsAffected == 1 {
		return &rec, nil
	}
	return findRecordLocked(tx, tileID)
}

func findRecordLocked(tx *gorm.DB, tileID string) (*models.TileAnalyticsModel, error) {
	var rec models.TileAnalyticsModel
	if err := lockForUpdate(tx).Where("tile_id = ?", tileID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalyticsNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// lockForUpdate applies SELECT ... FOR UPDATE where the dialect supports it.
// sqlite (used by the tests) serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
