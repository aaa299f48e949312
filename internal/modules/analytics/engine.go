package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tileverse/core/internal/models"
)

// Validation errors surfaced as 400s by the handler.
var (
	ErrInvalidInteractionType = errors.New("invalid interaction type")
	ErrInvalidDuration        = errors.New("duration must be non-negative")
	ErrInvalidRating          = errors.New("rating must be an integer between 1 and 5")
	ErrInvalidMetric          = errors.New("unknown ranking metric")
)

// Engagement score policy constants. Weights and normalization caps are fixed,
// not configurable.
const (
	viewWeight     = 0.3
	durationWeight = 0.2
	ratingWeight   = 0.3
	cvrWeight      = 0.2

	viewCap     = 100.0  // views
	durationCap = 3600.0 // seconds
)

// ApplyInteraction folds one interaction event into the record: appends the
// raw log entry, bumps the matching counter, accumulates duration, maintains
// the unique-viewer list and recomputes derived metrics. Pure with respect to
// the store; callers persist afterwards.
func ApplyInteraction(rec *models.TileAnalyticsModel, ev models.InteractionLog) error {
	if ev.DurationSeconds < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, ev.DurationSeconds)
	}

	switch ev.InteractionType {
	case models.InteractionView:
		rec.ViewCount++
	case models.InteractionARView:
		rec.ARViewCount++
	case models.InteractionARPlacement:
		rec.ARPlacementCount++
	case models.InteractionLike:
		rec.TotalLikes++
	case models.InteractionUnlike:
		if rec.TotalLikes > 0 {
			rec.TotalLikes--
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidInteractionType, ev.InteractionType)
	}

	rec.InteractionLogs = append(rec.InteractionLogs, ev)
	rec.InteractionDurationSeconds += ev.DurationSeconds

	if ev.InteractionType == models.InteractionView || ev.InteractionType == models.InteractionARView {
		touchViewer(rec, ev.UserID, ev.Timestamp)
	}

	Recompute(rec)
	return nil
}

// ApplyFeedback records a user's rating. A user has at most one feedback
// entry; resubmission overwrites rating, comment and timestamp in place.
func ApplyFeedback(rec *models.TileAnalyticsModel, userID string, rating int, comment string, now time.Time) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	updated := false
	for i := range rec.Feedbacks {
		if rec.Feedbacks[i].UserID == userID {
			rec.Feedbacks[i].Rating = rating
			rec.Feedbacks[i].Comment = comment
			rec.Feedbacks[i].CreatedAt = now
			updated = true
			break
		}
	}
	if !updated {
		rec.Feedbacks = append(rec.Feedbacks, models.FeedbackEntry{
			UserID:    userID,
			Rating:    rating,
			Comment:   comment,
			CreatedAt: now,
		})
	}

	Recompute(rec)
	return nil
}

// Recompute refreshes every derived field from the record's stored state.
// Derived fields are never mutated anywhere else.
func Recompute(rec *models.TileAnalyticsModel) {
	rec.AverageRating = averageRating(rec.Feedbacks)

	if rec.ARViewCount > 0 {
		rec.ConversionRate = round1(float64(rec.ARPlacementCount) / float64(rec.ARViewCount) * 100)
	} else {
		rec.ConversionRate = 0
	}

	viewScore := math.Min(float64(rec.ViewCount)/viewCap, 1)
	durationScore := math.Min(rec.InteractionDurationSeconds/durationCap, 1)
	ratingScore := rec.AverageRating / 5
	// Conversion can exceed 100% (placements do not require a prior AR view),
	// so this term needs the same cap as views and duration to keep the score
	// inside [0,100].
	cvrScore := math.Min(rec.ConversionRate/100, 1)

	score := 100 * (viewWeight*viewScore + durationWeight*durationScore + ratingWeight*ratingScore + cvrWeight*cvrScore)
	rec.EngagementScore = int(math.Round(score))
}

// RefreshWeeklyTrends recomputes the bucket for the week containing now from
// the full interaction log. Idempotent: re-running without new events leaves
// the bucket unchanged.
func RefreshWeeklyTrends(rec *models.TileAnalyticsModel, now time.Time) {
	key := WeekKey(now)
	start := weekStart(now)

	trend := models.WeeklyTrend{WeekKey: key}
	users := make(map[string]struct{})
	for _, log := range rec.InteractionLogs {
		if log.Timestamp.Before(start) {
			continue
		}
		switch log.InteractionType {
		case models.InteractionView:
			trend.TotalViews++
		case models.InteractionARView:
			trend.TotalARViews++
		case models.InteractionARPlacement:
			trend.TotalARPlacements++
		}
		trend.TotalInteractionTimeSeconds += log.DurationSeconds
		if log.UserID != "" {
			users[log.UserID] = struct{}{}
		}
	}
	trend.UniqueUsers = len(users)
	trend.AverageRating = rec.AverageRating

	for i := range rec.WeeklyTrends {
		if rec.WeeklyTrends[i].WeekKey == key {
			rec.WeeklyTrends[i] = trend
			return
		}
	}
	rec.WeeklyTrends = append(rec.WeeklyTrends, trend)
}

// PruneLogs drops interaction log entries older than cutoff and returns them
// so the caller can archive the raw events before they disappear. Counters,
// viewers and past weekly trends are untouched; only the raw log shrinks.
func PruneLogs(rec *models.TileAnalyticsModel, cutoff time.Time) []models.InteractionLog {
	var pruned, kept []models.InteractionLog
	for _, log := range rec.InteractionLogs {
		if log.Timestamp.Before(cutoff) {
			pruned = append(pruned, log)
		} else {
			kept = append(kept, log)
		}
	}
	if len(pruned) > 0 {
		rec.InteractionLogs = kept
	}
	return pruned
}

// WeekKey formats the year-week bucket key, e.g. "2024-W29". The week number
// is ceil(dayOfYear/7) relative to Jan 1 — the numbering the legacy deployment
// used, kept for dashboard compatibility. Not ISO-8601; weeks near year
// boundaries differ from the ISO calendar.
func WeekKey(t time.Time) string {
	week := (t.YearDay() + 6) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}

// weekStart returns the most recent Sunday at local midnight.
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
}

func touchViewer(rec *models.TileAnalyticsModel, userID string, at time.Time) {
	if userID == "" {
		return
	}
	for i := range rec.UniqueViewers {
		if rec.UniqueViewers[i].UserID == userID {
			rec.UniqueViewers[i].TotalViews++
			rec.UniqueViewers[i].LastViewedAt = at
			return
		}
	}
	rec.UniqueViewers = append(rec.UniqueViewers, models.ViewerEntry{
		UserID:        userID,
		FirstViewedAt: at,
		LastViewedAt:  at,
		TotalViews:    1,
	})
}

func averageRating(feedbacks []models.FeedbackEntry) float64 {
	if len(feedbacks) == 0 {
		return 0
	}
	sum := 0
	for _, f := range feedbacks {
		sum += f.Rating
	}
	return round1(float64(sum) / float64(len(feedbacks)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
