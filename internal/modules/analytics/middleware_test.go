package analytics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tileverse/core/internal/middleware"
	"github.com/tileverse/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// detailRouter mirrors the tile detail flow: resolve the reference by ID or
// slug, then mark the request with the resolved tile ID.
func detailRouter(db *gorm.DB, svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) { c.Set(middleware.ContextKeyUserID, userID) })
	}
	r.Use(Middleware(svc, zap.NewNop()))
	r.GET("/tiles/:id", func(c *gin.Context) {
		ref := c.Param("id")
		var tile models.TileModel
		if err := db.Where("id = ? OR slug = ?", ref, ref).First(&tile).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		MarkViewed(c, tile.ID)
		c.JSON(http.StatusOK, gin.H{"id": tile.ID})
	})
	return r
}

func TestMiddlewareLogsViewForSlugFetch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, zap.NewNop())
	tile := createTile(t, db, "Terrazzo Classic")

	r := detailRouter(db, svc, "u1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tiles/"+tile.Slug, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The log write runs off the request goroutine.
	require.Eventually(t, func() bool {
		rec, err := svc.GetByTileID(tile.ID)
		return err == nil && rec.ViewCount == 1
	}, 2*time.Second, 10*time.Millisecond, "slug fetch should log a view against the resolved tile ID")

	rec, err := svc.GetByTileID(tile.ID)
	require.NoError(t, err)
	require.Len(t, rec.UniqueViewers, 1)
	assert.Equal(t, "u1", rec.UniqueViewers[0].UserID)
}

func TestMiddlewareSkipsAnonymousAndMissedFetches(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, zap.NewNop())
	tile := createTile(t, db, "Marble Hex")

	anon := detailRouter(db, svc, "")
	w := httptest.NewRecorder()
	anon.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tiles/"+tile.Slug, nil))
	require.Equal(t, http.StatusOK, w.Code)

	authed := detailRouter(db, svc, "u1")
	w = httptest.NewRecorder()
	authed.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tiles/no-such-tile", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	time.Sleep(150 * time.Millisecond)
	_, err := svc.GetByTileID(tile.ID)
	assert.ErrorIs(t, err, ErrAnalyticsNotFound, "neither request should have produced a view")
}
