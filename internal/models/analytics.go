package models

import "time"

// Interaction types accepted by the analytics engine.
const (
	InteractionView        = "view"
	InteractionARView      = "ar_view"
	InteractionARPlacement = "ar_placement"
	InteractionLike        = "like"
	InteractionUnlike      = "unlike"
)

// ViewerEntry tracks one distinct user who viewed or AR-viewed a tile.
type ViewerEntry struct {
	UserID        string    `json:"user_id"`
	FirstViewedAt time.Time `json:"first_viewed_at"`
	LastViewedAt  time.Time `json:"last_viewed_at"`
	TotalViews    int       `json:"total_views"`
}

// FeedbackEntry is a single user's rating of a tile. At most one entry per
// user; resubmission overwrites rating, comment and timestamp in place.
type FeedbackEntry struct {
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InteractionLog is one raw interaction event, appended in arrival order.
type InteractionLog struct {
	UserID          string            `json:"user_id"`
	InteractionType string            `json:"interaction_type"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	DeviceInfo      map[string]string `json:"device_info,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// WeeklyTrend is one week's interaction summary, keyed by a "YYYY-Wnn" string.
type WeeklyTrend struct {
	WeekKey                     string  `json:"week_key"`
	TotalViews                  int     `json:"total_views"`
	TotalARViews                int     `json:"total_ar_views"`
	TotalARPlacements           int     `json:"total_ar_placements"`
	TotalInteractionTimeSeconds float64 `json:"total_interaction_time_seconds"`
	UniqueUsers                 int     `json:"unique_users"`
	AverageRating               float64 `json:"average_rating"`
}

// TileAnalyticsModel aggregates all interaction data for one tile. Counters
// and derived metrics live in real columns so ranking queries can sort in SQL;
// the embedded collections are JSON columns, matching the whole-record shape
// of the original document store.
//
// Derived fields (AverageRating, ConversionRate, EngagementScore) are pure
// functions of the stored fields and are recomputed before every save, never
// mutated independently.
type TileAnalyticsModel struct {
	Base
	TileID  string `json:"tile_id"  gorm:"uniqueIndex;not null"`
	TileRef string `json:"tile_ref" gorm:"index"`

	ViewCount                  int     `json:"view_count"`
	ARViewCount                int     `json:"ar_view_count"`
	ARPlacementCount           int     `json:"ar_placement_count"`
	TotalLikes                 int     `json:"total_likes"`
	InteractionDurationSeconds float64 `json:"interaction_duration_seconds"`

	UniqueViewers   []ViewerEntry    `json:"unique_viewers"   gorm:"serializer:json;type:longtext"`
	Feedbacks       []FeedbackEntry  `json:"feedbacks"        gorm:"serializer:json;type:longtext"`
	InteractionLogs []InteractionLog `json:"interaction_logs" gorm:"serializer:json;type:longtext"`
	WeeklyTrends    []WeeklyTrend    `json:"weekly_trends"    gorm:"serializer:json;type:longtext"`

	AverageRating   float64 `json:"average_rating"`
	ConversionRate  float64 `json:"conversion_rate"`
	EngagementScore int     `json:"engagement_score"`
}

func (TileAnalyticsModel) TableName() string { return "tile_analytics" }
