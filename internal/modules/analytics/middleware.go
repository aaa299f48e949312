package analytics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/middleware"
	"github.com/tileverse/core/internal/models"
	"go.uber.org/zap"
)

// viewedTileKey carries the resolved tile ID from the detail handler to the
// middleware. The handler sets it after lookup, so the ID is always the real
// tile ID even when the request addressed the tile by slug.
const viewedTileKey = "analytics_viewed_tile"

// MarkViewed flags the request as a tile detail view for the auto logger.
// Call it with the resolved tile ID before writing the response.
func MarkViewed(c *gin.Context, tileID string) {
	c.Set(viewedTileKey, tileID)
}

// Middleware records a view interaction whenever an authenticated user
// fetches a tile detail page. The detail handler marks the request via
// MarkViewed, so the middleware needs no knowledge of route shapes. Logging
// happens after the response, off the request goroutine; failures are logged
// and swallowed so analytics can never break the primary request.
func Middleware(svc *Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // handle the request first to get the status code

		tileID := c.GetString(viewedTileKey)
		if c.Request.Method != "GET" || tileID == "" {
			return
		}
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}

		userID := middleware.CurrentUserID(c)
		if userID == "" {
			return
		}

		deviceInfo := map[string]string{"user_agent": c.GetHeader("User-Agent")}
		sessionID := c.GetHeader("X-Session-Id")

		go func() {
			_, err := svc.LogInteraction(tileID, userID, models.InteractionView, 0, sessionID, deviceInfo, time.Now())
			if err != nil {
				logger.Warn("auto view logging failed",
					zap.String("tile_id", tileID),
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
		}()
	}
}
