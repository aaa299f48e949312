package analytics

// LogInteractionDTO is the body of POST /analytics/tiles/:id/interactions.
type LogInteractionDTO struct {
	Type            string            `json:"type" binding:"required"`
	DurationSeconds float64           `json:"duration_seconds"`
	SessionID       string            `json:"session_id"`
	DeviceInfo      map[string]string `json:"device_info"`
}

// FeedbackDTO is the body of POST /analytics/tiles/:id/feedback.
type FeedbackDTO struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// InteractionResult echoes the updated counters after an interaction.
type InteractionResult struct {
	ViewCount        int `json:"view_count"`
	ARViewCount      int `json:"ar_view_count"`
	ARPlacementCount int `json:"ar_placement_count"`
	TotalLikes       int `json:"total_likes"`
	EngagementScore  int `json:"engagement_score"`
}

// FeedbackResult echoes the rating aggregate after a feedback upsert.
type FeedbackResult struct {
	AverageRating float64 `json:"average_rating"`
	FeedbackCount int     `json:"feedback_count"`
}

// RetentionBuckets splits unique viewers by visit depth. Returning counts
// everyone with more than one view, so loyal viewers appear in both buckets.
type RetentionBuckets struct {
	OneTime   int `json:"one_time"`
	Returning int `json:"returning"`
	Loyal     int `json:"loyal"`
}

// EngagementSummary describes one tile's viewer engagement.
type EngagementSummary struct {
	UniqueViewerCount int              `json:"unique_viewer_count"`
	AvgViewsPerUser   float64          `json:"avg_views_per_user"`
	Retention         RetentionBuckets `json:"retention"`
}

// AggregateSummary rolls counters up across the whole catalog.
type AggregateSummary struct {
	TileCount               int64   `json:"tile_count"`
	TotalViews              int64   `json:"total_views"`
	TotalARViews            int64   `json:"total_ar_views"`
	TotalARPlacements       int64   `json:"total_ar_placements"`
	TotalLikes              int64   `json:"total_likes"`
	TotalInteractionSeconds float64 `json:"total_interaction_seconds"`
	AvgEngagementScore      float64 `json:"avg_engagement_score"`
	AvgRating               float64 `json:"avg_rating"`
}
