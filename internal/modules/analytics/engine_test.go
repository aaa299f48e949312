package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tileverse/core/internal/models"
)

func newRecord() *models.TileAnalyticsModel {
	return &models.TileAnalyticsModel{TileID: "tile-1"}
}

func logEvent(t *testing.T, rec *models.TileAnalyticsModel, userID, itype string, duration float64, at time.Time) {
	t.Helper()
	err := ApplyInteraction(rec, models.InteractionLog{
		UserID:          userID,
		InteractionType: itype,
		DurationSeconds: duration,
		Timestamp:       at,
	})
	require.NoError(t, err)
}

func TestApplyInteractionCounters(t *testing.T) {
	rec := newRecord()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	logEvent(t, rec, "u1", models.InteractionView, 30, now)
	logEvent(t, rec, "u1", models.InteractionARView, 60, now.Add(time.Minute))
	logEvent(t, rec, "u1", models.InteractionARPlacement, 0, now.Add(2*time.Minute))
	logEvent(t, rec, "u2", models.InteractionLike, 0, now.Add(3*time.Minute))

	assert.Equal(t, 1, rec.ViewCount)
	assert.Equal(t, 1, rec.ARViewCount)
	assert.Equal(t, 1, rec.ARPlacementCount)
	assert.Equal(t, 1, rec.TotalLikes)
	assert.Equal(t, 90.0, rec.InteractionDurationSeconds)
	assert.Len(t, rec.InteractionLogs, 4)
}

func TestApplyInteractionRejectsUnknownType(t *testing.T) {
	rec := newRecord()
	err := ApplyInteraction(rec, models.InteractionLog{
		UserID:          "u1",
		InteractionType: "hover",
		Timestamp:       time.Now(),
	})
	require.ErrorIs(t, err, ErrInvalidInteractionType)
	assert.Empty(t, rec.InteractionLogs)
	assert.Zero(t, rec.ViewCount)
}

func TestApplyInteractionRejectsNegativeDuration(t *testing.T) {
	rec := newRecord()
	err := ApplyInteraction(rec, models.InteractionLog{
		UserID:          "u1",
		InteractionType: models.InteractionView,
		DurationSeconds: -1,
		Timestamp:       time.Now(),
	})
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestUniqueViewersSingleEntryPerUser(t *testing.T) {
	rec := newRecord()
	base := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	// Mixed view/ar_view events from the same user collapse into one entry
	// whose TotalViews equals the event count.
	events := []string{
		models.InteractionView,
		models.InteractionARView,
		models.InteractionView,
		models.InteractionView,
		models.InteractionARView,
	}
	for i, itype := range events {
		logEvent(t, rec, "u1", itype, 0, base.Add(time.Duration(i)*time.Minute))
	}

	require.Len(t, rec.UniqueViewers, 1)
	viewer := rec.UniqueViewers[0]
	assert.Equal(t, "u1", viewer.UserID)
	assert.Equal(t, len(events), viewer.TotalViews)
	assert.Equal(t, base, viewer.FirstViewedAt)
	assert.Equal(t, base.Add(4*time.Minute), viewer.LastViewedAt)
}

func TestUnlikeNeverGoesNegative(t *testing.T) {
	rec := newRecord()
	now := time.Now()

	logEvent(t, rec, "u1", models.InteractionUnlike, 0, now)
	assert.Equal(t, 0, rec.TotalLikes)

	logEvent(t, rec, "u1", models.InteractionLike, 0, now)
	logEvent(t, rec, "u1", models.InteractionUnlike, 0, now)
	logEvent(t, rec, "u1", models.InteractionUnlike, 0, now)
	logEvent(t, rec, "u1", models.InteractionUnlike, 0, now)
	assert.Equal(t, 0, rec.TotalLikes)
}

func TestFeedbackUpsertByUser(t *testing.T) {
	rec := newRecord()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ApplyFeedback(rec, "u1", 2, "meh", now))
	require.NoError(t, ApplyFeedback(rec, "u1", 5, "actually great", now.Add(time.Hour)))

	require.Len(t, rec.Feedbacks, 1)
	assert.Equal(t, 5, rec.Feedbacks[0].Rating)
	assert.Equal(t, "actually great", rec.Feedbacks[0].Comment)
	assert.Equal(t, now.Add(time.Hour), rec.Feedbacks[0].CreatedAt)
	assert.Equal(t, 5.0, rec.AverageRating)
}

func TestFeedbackRejectsOutOfRangeRating(t *testing.T) {
	rec := newRecord()
	for _, rating := range []int{0, -1, 6, 100} {
		err := ApplyFeedback(rec, "u1", rating, "", time.Now())
		require.ErrorIs(t, err, ErrInvalidRating, "rating %d", rating)
	}
	assert.Empty(t, rec.Feedbacks)
}

func TestAverageRating(t *testing.T) {
	rec := newRecord()
	now := time.Now()

	assert.Equal(t, 0.0, rec.AverageRating)

	require.NoError(t, ApplyFeedback(rec, "u1", 5, "", now))
	require.NoError(t, ApplyFeedback(rec, "u2", 3, "", now))
	require.NoError(t, ApplyFeedback(rec, "u3", 4, "", now))
	assert.Equal(t, 4.0, rec.AverageRating)

	// Non-terminating mean rounds to one decimal.
	require.NoError(t, ApplyFeedback(rec, "u4", 5, "", now))
	require.NoError(t, ApplyFeedback(rec, "u5", 5, "", now))
	require.NoError(t, ApplyFeedback(rec, "u6", 5, "", now))
	assert.Equal(t, 4.5, rec.AverageRating)
}

func TestConversionRate(t *testing.T) {
	rec := newRecord()
	rec.ARPlacementCount = 7
	Recompute(rec)
	assert.Equal(t, 0.0, rec.ConversionRate, "no AR views means zero conversion regardless of placements")

	rec = newRecord()
	rec.ARViewCount = 10
	rec.ARPlacementCount = 3
	Recompute(rec)
	assert.Equal(t, 30.0, rec.ConversionRate)
}

func TestEngagementScoreBounds(t *testing.T) {
	viewCounts := []int{0, 1, 50, 100, 10000}
	durations := []float64{0, 120, 3600, 1e6}
	ratings := []int{0, 1, 3, 5}
	placements := []int{0, 5, 10, 1000} // 1000 drives conversion far past 100%

	for _, views := range viewCounts {
		for _, dur := range durations {
			for _, rating := range ratings {
				for _, placed := range placements {
					rec := newRecord()
					rec.ViewCount = views
					rec.InteractionDurationSeconds = dur
					rec.ARViewCount = 10
					rec.ARPlacementCount = placed
					if rating > 0 {
						rec.Feedbacks = []models.FeedbackEntry{{UserID: "u1", Rating: rating}}
					}
					Recompute(rec)

					label := fmt.Sprintf("views=%d dur=%v rating=%d placed=%d", views, dur, rating, placed)
					assert.GreaterOrEqual(t, rec.EngagementScore, 0, label)
					assert.LessOrEqual(t, rec.EngagementScore, 100, label)
				}
			}
		}
	}
}

func TestEngagementScoreMaxedOut(t *testing.T) {
	rec := newRecord()
	rec.ViewCount = 100
	rec.InteractionDurationSeconds = 3600
	rec.ARViewCount = 10
	rec.ARPlacementCount = 10
	rec.Feedbacks = []models.FeedbackEntry{{UserID: "u1", Rating: 5}}
	Recompute(rec)
	assert.Equal(t, 100, rec.EngagementScore)
}

func TestEngagementScoreCappedWhenPlacementsExceedARViews(t *testing.T) {
	rec := newRecord()
	now := time.Now()

	// Placements do not require a prior AR view, so conversion can blow past
	// 100%; the score term must saturate instead of following it.
	logEvent(t, rec, "u1", models.InteractionARView, 0, now)
	for i := 0; i < 10; i++ {
		logEvent(t, rec, "u1", models.InteractionARPlacement, 0, now)
	}

	assert.Equal(t, 1000.0, rec.ConversionRate)
	assert.Equal(t, 20, rec.EngagementScore, "only the saturated conversion term contributes")
	assert.LessOrEqual(t, rec.EngagementScore, 100)
}

func TestFullFunnelScenario(t *testing.T) {
	rec := newRecord()
	base := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	logEvent(t, rec, "u1", models.InteractionView, 0, base)
	logEvent(t, rec, "u1", models.InteractionARView, 0, base.Add(time.Minute))
	logEvent(t, rec, "u1", models.InteractionARPlacement, 0, base.Add(2*time.Minute))

	assert.Equal(t, 1, rec.ViewCount)
	assert.Equal(t, 1, rec.ARViewCount)
	assert.Equal(t, 1, rec.ARPlacementCount)
	assert.Equal(t, 100.0, rec.ConversionRate)
	require.Len(t, rec.UniqueViewers, 1)
	assert.Equal(t, "u1", rec.UniqueViewers[0].UserID)
	// Both view and ar_view count as visits for the viewer history.
	assert.Equal(t, 2, rec.UniqueViewers[0].TotalViews)
}

func TestWeekKey(t *testing.T) {
	tests := []struct {
		date time.Time
		want string
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2024-W01"},
		{time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), "2024-W01"},
		{time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), "2024-W02"},
		{time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), "2024-W29"},
		{time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "2024-W53"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-W01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeekKey(tt.date), tt.date.Format("2006-01-02"))
	}
}

func TestRefreshWeeklyTrends(t *testing.T) {
	rec := newRecord()
	// Wednesday; the trend window opens the preceding Sunday.
	now := time.Date(2024, 7, 17, 15, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -8)

	logEvent(t, rec, "u1", models.InteractionView, 30, weekAgo)
	logEvent(t, rec, "u1", models.InteractionView, 10, now.Add(-time.Hour))
	logEvent(t, rec, "u2", models.InteractionARView, 45, now.Add(-30*time.Minute))
	logEvent(t, rec, "u2", models.InteractionARPlacement, 0, now.Add(-20*time.Minute))

	RefreshWeeklyTrends(rec, now)

	require.Len(t, rec.WeeklyTrends, 1)
	trend := rec.WeeklyTrends[0]
	assert.Equal(t, WeekKey(now), trend.WeekKey)
	assert.Equal(t, 1, trend.TotalViews, "event from last week stays out of this bucket")
	assert.Equal(t, 1, trend.TotalARViews)
	assert.Equal(t, 1, trend.TotalARPlacements)
	assert.Equal(t, 55.0, trend.TotalInteractionTimeSeconds)
	assert.Equal(t, 2, trend.UniqueUsers)
}

func TestRefreshWeeklyTrendsIdempotent(t *testing.T) {
	rec := newRecord()
	now := time.Date(2024, 7, 17, 15, 0, 0, 0, time.UTC)

	logEvent(t, rec, "u1", models.InteractionView, 10, now.Add(-time.Hour))

	RefreshWeeklyTrends(rec, now)
	require.Len(t, rec.WeeklyTrends, 1)
	first := rec.WeeklyTrends[0]

	RefreshWeeklyTrends(rec, now.Add(time.Minute))
	require.Len(t, rec.WeeklyTrends, 1)
	assert.Equal(t, first, rec.WeeklyTrends[0])
}

func TestPruneLogs(t *testing.T) {
	rec := newRecord()
	now := time.Date(2024, 7, 17, 15, 0, 0, 0, time.UTC)

	logEvent(t, rec, "u1", models.InteractionView, 10, now.AddDate(0, 0, -200))
	logEvent(t, rec, "u2", models.InteractionView, 20, now.AddDate(0, 0, -190))
	logEvent(t, rec, "u3", models.InteractionView, 30, now)

	cutoff := now.AddDate(0, 0, -180)
	pruned := PruneLogs(rec, cutoff)

	require.Len(t, pruned, 2)
	require.Len(t, rec.InteractionLogs, 1)
	assert.Equal(t, "u3", rec.InteractionLogs[0].UserID)
	// Counters keep the full history; only the raw log shrinks.
	assert.Equal(t, 3, rec.ViewCount)
	assert.Equal(t, 60.0, rec.InteractionDurationSeconds)

	assert.Empty(t, PruneLogs(rec, cutoff))
}
