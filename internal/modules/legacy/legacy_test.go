package legacy

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tileverse/core/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.TileModel{}, &models.TileAnalyticsModel{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func buildDumpZip(t *testing.T, entries map[string][]byte) *zip.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, payload := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func marshalBSONDocs(t *testing.T, docs []bson.M) []byte {
	t.Helper()

	var buf bytes.Buffer
	for _, doc := range docs {
		payload, err := bson.Marshal(doc)
		require.NoError(t, err)
		buf.Write(payload)
	}
	return buf.Bytes()
}

func TestImportZipBSONDump(t *testing.T) {
	db := setupTestDB(t)
	im := NewImporter(db, zap.NewNop())

	tileID := primitive.NewObjectID()
	viewedAt := time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

	tiles := marshalBSONDocs(t, []bson.M{
		{
			"_id":        tileID,
			"name":       "Carrara White",
			"slug":       "carrara-white",
			"category":   "marble",
			"price":      49.9,
			"arModelUrl": "https://cdn.example.com/models/carrara.usdz",
			"inStock":    true,
			"createdAt":  primitive.NewDateTimeFromTime(viewedAt),
			"images": bson.A{
				bson.M{"name": "front", "src": "https://cdn.example.com/img/carrara.jpg"},
			},
		},
		{"_id": primitive.NewObjectID(), "name": "", "slug": "broken"}, // skipped
	})

	analyticsDump := marshalBSONDocs(t, []bson.M{
		{
			"_id":                 primitive.NewObjectID(),
			"tileId":              tileID.Hex(),
			"viewCount":           int32(10),
			"arViewCount":         int32(4),
			"arPlacementCount":    int32(2),
			"totalLikes":          int32(3),
			"interactionDuration": 120.5,
			"uniqueViewers": bson.A{
				bson.M{"user_id": "u1", "total_views": int32(10), "first_viewed_at": primitive.NewDateTimeFromTime(viewedAt)},
			},
			"feedbacks": bson.A{
				bson.M{"user_id": "u1", "rating": int32(4), "created_at": primitive.NewDateTimeFromTime(viewedAt)},
			},
		},
	})

	zr := buildDumpZip(t, map[string][]byte{
		"dump/tiles.bson":            tiles,
		"dump/tiles.metadata.json":   []byte(`{"indexes":[]}`),
		"dump/tileanalytics.bson":    analyticsDump,
		"dump/unrelated_notes.bson":  marshalBSONDocs(t, []bson.M{{"_id": primitive.NewObjectID()}}),
		"dump/readme.txt":            []byte("ignore me"),
	})

	result, err := im.ImportZip(zr)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TilesImported)
	assert.Equal(t, 1, result.AnalyticsImported)
	assert.Equal(t, 1, result.Skipped)

	var tile models.TileModel
	require.NoError(t, db.First(&tile, "id = ?", tileID.Hex()).Error)
	assert.Equal(t, "carrara-white", tile.Slug)
	assert.Equal(t, "USD", tile.Currency)
	require.Len(t, tile.Images, 1)
	assert.Equal(t, "front", tile.Images[0].Name)

	var rec models.TileAnalyticsModel
	require.NoError(t, db.First(&rec, "tile_id = ?", tileID.Hex()).Error)
	assert.Equal(t, 10, rec.ViewCount)
	assert.Equal(t, 4, rec.ARViewCount)
	assert.Equal(t, 120.5, rec.InteractionDurationSeconds)
	require.Len(t, rec.Feedbacks, 1)
	assert.Equal(t, 4.0, rec.AverageRating, "derived metrics recomputed on import")
	assert.Equal(t, 50.0, rec.ConversionRate)
}

func TestImportZipJSONCollections(t *testing.T) {
	db := setupTestDB(t)
	im := NewImporter(db, zap.NewNop())

	zr := buildDumpZip(t, map[string][]byte{
		"tiles.json": []byte(`[
			{"_id": "legacy-1", "name": "Basalt Black", "slug": "basalt-black", "price": 25}
		]`),
	})

	result, err := im.ImportZip(zr)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TilesImported)

	var tile models.TileModel
	require.NoError(t, db.First(&tile, "slug = ?", "basalt-black").Error)
	assert.Equal(t, "legacy-1", tile.ID)
}

func TestImportZipIdempotent(t *testing.T) {
	db := setupTestDB(t)
	im := NewImporter(db, zap.NewNop())

	payload := []byte(`[{"_id": "legacy-1", "name": "Basalt Black", "slug": "basalt-black"}]`)

	_, err := im.ImportZip(buildDumpZip(t, map[string][]byte{"tiles.json": payload}))
	require.NoError(t, err)

	result, err := im.ImportZip(buildDumpZip(t, map[string][]byte{"tiles.json": payload}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.TilesImported)
	assert.Equal(t, 1, result.Skipped)
}

func TestImportZipNoCollections(t *testing.T) {
	im := NewImporter(setupTestDB(t), zap.NewNop())

	_, err := im.ImportZip(buildDumpZip(t, map[string][]byte{"readme.txt": []byte("hi")}))
	require.Error(t, err)
}
