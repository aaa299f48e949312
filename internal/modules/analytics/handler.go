package analytics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/middleware"
	"github.com/tileverse/core/internal/pkg/response"
)

// Handler exposes the analytics API. Writes are open to any authenticated
// user; reads and deletes are admin-only.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts analytics routes onto the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/analytics")

	authed := g.Group("", authMW)
	authed.POST("/tiles/:id/interactions", h.logInteraction)
	authed.POST("/tiles/:id/feedback", h.addFeedback)

	admin := g.Group("", authMW, adminMW)
	admin.GET("/tiles/:id", h.getByTile)
	admin.GET("/tiles/:id/trends", h.trends)
	admin.GET("/tiles/:id/engagement", h.engagement)
	admin.GET("/top", h.topPerforming)
	admin.GET("/summary", h.summary)
	admin.DELETE("/tiles/:id", h.delete)
}

// logInteraction POST /analytics/tiles/:id/interactions
func (h *Handler) logInteraction(c *gin.Context) {
	var dto LogInteractionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.LogInteraction(
		c.Param("id"),
		middleware.CurrentUserID(c),
		dto.Type,
		dto.DurationSeconds,
		dto.SessionID,
		dto.DeviceInfo,
		time.Now(),
	)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, result)
}

// addFeedback POST /analytics/tiles/:id/feedback
func (h *Handler) addFeedback(c *gin.Context) {
	var dto FeedbackDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.AddFeedback(
		c.Param("id"),
		middleware.CurrentUserID(c),
		dto.Rating,
		dto.Comment,
		time.Now(),
	)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, result)
}

// getByTile GET /analytics/tiles/:id
func (h *Handler) getByTile(c *gin.Context) {
	rec, err := h.svc.GetByTileID(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, rec)
}

// trends GET /analytics/tiles/:id/trends
func (h *Handler) trends(c *gin.Context) {
	trends, err := h.svc.RefreshTrends(c.Param("id"), time.Now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, trends)
}

// engagement GET /analytics/tiles/:id/engagement
func (h *Handler) engagement(c *gin.Context) {
	summary, err := h.svc.EngagementSummary(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, summary)
}

// topPerforming GET /analytics/top?metric=viewCount&limit=10
func (h *Handler) topPerforming(c *gin.Context) {
	metric := c.DefaultQuery("metric", "engagementScore")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	recs, err := h.svc.TopPerforming(metric, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, recs)
}

// summary GET /analytics/summary
func (h *Handler) summary(c *gin.Context) {
	summary, err := h.svc.AggregateSummary(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, summary)
}

// delete DELETE /analytics/tiles/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTileNotFound), errors.Is(err, ErrAnalyticsNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrInvalidInteractionType),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidRating),
		errors.Is(err, ErrInvalidMetric):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
