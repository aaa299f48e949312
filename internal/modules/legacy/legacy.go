package legacy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/tileverse/core/internal/models"
	"github.com/tileverse/core/internal/modules/analytics"
	"github.com/tileverse/core/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Importer loads a mongodump archive of the legacy catalog service and maps
// its collections onto the relational schema. Documents keep their ObjectID
// hex as the row ID so existing analytics references stay valid.
type Importer struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewImporter(db *gorm.DB, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{db: db, logger: logger}
}

// ImportResult summarizes one dump import.
type ImportResult struct {
	TilesImported     int `json:"tiles_imported"`
	AnalyticsImported int `json:"analytics_imported"`
	Skipped           int `json:"skipped"`
}

// collection aliases: mongodump file base name -> logical collection.
var collectionAliases = map[string]string{
	"tiles":         "tiles",
	"products":      "tiles",
	"tileanalytics": "analytics",
	"analytics":     "analytics",
}

// ImportZip reads a mongodump ZIP (tiles.bson, tileanalytics.bson, or the
// same collections as JSON arrays) and upserts its contents. Runs in one
// transaction so a malformed dump leaves nothing behind.
func (im *Importer) ImportZip(zr *zip.Reader) (*ImportResult, error) {
	docsByCollection := map[string][]map[string]interface{}{}

	for _, file := range zr.File {
		collection, format, ok := parseDumpEntry(file.Name)
		if !ok {
			continue
		}
		rows, err := decodeDumpRows(file, format)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", file.Name, err)
		}
		docsByCollection[collection] = append(docsByCollection[collection], rows...)
	}
	if len(docsByCollection) == 0 {
		return nil, fmt.Errorf("no importable collections found in archive")
	}

	var result ImportResult
	err := im.db.Transaction(func(tx *gorm.DB) error {
		// Tiles first: analytics rows reference them.
		for _, doc := range docsByCollection["tiles"] {
			imported, err := im.importTile(tx, doc)
			if err != nil {
				return err
			}
			if imported {
				result.TilesImported++
			} else {
				result.Skipped++
			}
		}
		for _, doc := range docsByCollection["analytics"] {
			imported, err := im.importAnalytics(tx, doc)
			if err != nil {
				return err
			}
			if imported {
				result.AnalyticsImported++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.logger.Info("legacy dump imported",
		zap.Int("tiles", result.TilesImported),
		zap.Int("analytics", result.AnalyticsImported),
		zap.Int("skipped", result.Skipped),
	)
	return &result, nil
}

func (im *Importer) importTile(tx *gorm.DB, doc map[string]interface{}) (bool, error) {
	doc = normalizeDoc(doc)

	tile := models.TileModel{
		Name:        asString(doc["name"]),
		Slug:        asString(doc["slug"]),
		Description: asString(doc["description"]),
		Category:    asString(doc["category"]),
		Material:    asString(doc["material"]),
		SizeLabel:   asString(doc["size"]),
		Price:       asFloat(doc["price"]),
		Currency:    asString(doc["currency"]),
		ARModelURL:  asString(doc["arModelUrl"]),
		InStock:     asBool(doc["inStock"], true),
	}
	tile.ID = asString(doc["_id"])
	if tile.Name == "" || tile.Slug == "" {
		return false, nil
	}
	if tile.Currency == "" {
		tile.Currency = "USD"
	}
	if images, err := remarshal[[]models.Image](doc["images"]); err == nil {
		tile.Images = images
	}
	if created, ok := asTime(doc["createdAt"]); ok {
		tile.CreatedAt = created
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tile)
	if res.Error != nil {
		// A tile with a different ID but the same slug is a duplicate, not
		// a reason to abort the whole dump.
		if isDuplicateErr(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("import tile %q: %w", tile.Slug, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (im *Importer) importAnalytics(tx *gorm.DB, doc map[string]interface{}) (bool, error) {
	doc = normalizeDoc(doc)

	tileID := asString(doc["tileId"])
	if tileID == "" {
		tileID = asString(doc["productId"])
	}
	if tileID == "" {
		return false, nil
	}

	rec := models.TileAnalyticsModel{
		TileID:                     tileID,
		TileRef:                    tileID,
		ViewCount:                  asInt(doc["viewCount"]),
		ARViewCount:                asInt(doc["arViewCount"]),
		ARPlacementCount:           asInt(doc["arPlacementCount"]),
		TotalLikes:                 asInt(doc["totalLikes"]),
		InteractionDurationSeconds: asFloat(doc["interactionDuration"]),
	}
	rec.ID = asString(doc["_id"])

	if viewers, err := remarshal[[]models.ViewerEntry](doc["uniqueViewers"]); err == nil {
		rec.UniqueViewers = viewers
	}
	if feedbacks, err := remarshal[[]models.FeedbackEntry](doc["feedbacks"]); err == nil {
		rec.Feedbacks = feedbacks
	}
	if logs, err := remarshal[[]models.InteractionLog](doc["interactionLogs"]); err == nil {
		rec.InteractionLogs = logs
	}
	if trends, err := remarshal[[]models.WeeklyTrend](doc["weeklyTrends"]); err == nil {
		rec.WeeklyTrends = trends
	}
	analytics.Recompute(&rec)

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tile_id"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		if isDuplicateErr(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("import analytics for tile %q: %w", tileID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func isDuplicateErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

func parseDumpEntry(name string) (collection string, format string, ok bool) {
	base := strings.ToLower(strings.TrimSpace(path.Base(name)))
	if base == "" || strings.HasSuffix(base, ".metadata.json") {
		return "", "", false
	}

	var raw string
	switch {
	case strings.HasSuffix(base, ".bson"):
		raw, format = strings.TrimSuffix(base, ".bson"), "bson"
	case strings.HasSuffix(base, ".json"):
		raw, format = strings.TrimSuffix(base, ".json"), "json"
	default:
		return "", "", false
	}
	collection, ok = collectionAliases[raw]
	return collection, format, ok
}

func decodeDumpRows(file *zip.File, format string) ([]map[string]interface{}, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	switch format {
	case "bson":
		return decodeBSONRows(data)
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return []map[string]interface{}{}, nil
		}
		var rows []map[string]interface{}
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
}

// decodeBSONRows walks a mongodump .bson payload: a plain concatenation of
// length-prefixed documents.
func decodeBSONRows(payload []byte) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0)
	cursor := 0
	for cursor < len(payload) {
		if cursor+4 > len(payload) {
			return nil, fmt.Errorf("invalid bson payload")
		}
		docLen := int(int32(binary.LittleEndian.Uint32(payload[cursor : cursor+4])))
		if docLen <= 0 || cursor+docLen > len(payload) {
			return nil, fmt.Errorf("invalid bson document length")
		}
		var row map[string]interface{}
		if err := bson.Unmarshal(payload[cursor:cursor+docLen], &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		cursor += docLen
	}
	return rows, nil
}

func normalizeDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		out[key] = normalizeBSONValue(value)
	}
	return out
}

func normalizeBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.M:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalizeBSONValue(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, item := range v {
			out[item.Key] = normalizeBSONValue(item.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSONValue(item))
		}
		return out
	case map[string]interface{}:
		return normalizeDoc(v)
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSONValue(item))
		}
		return out
	default:
		return value
	}
}

// remarshal converts a loosely-typed BSON value into a concrete model type
// by round-tripping through JSON.
func remarshal[T any](value interface{}) (T, error) {
	var out T
	if value == nil {
		return out, fmt.Errorf("nil value")
	}
	data, err := json.Marshal(normalizeBSONValue(value))
	if err != nil {
		return out, err
	}
	return out, json.Unmarshal(data, &out)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asInt(v interface{}) int {
	return int(asFloat(v))
}

func asBool(v interface{}, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type Handler struct{ importer *Importer }

func NewHandler(importer *Importer) *Handler { return &Handler{importer: importer} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/legacy", authMW, adminMW)
	g.POST("/import", h.importDump)
}

// importDump POST /legacy/import, multipart field "file" holding the ZIP.
func (h *Handler) importDump(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing dump file")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "not a valid zip archive")
		return
	}

	result, err := h.importer.ImportZip(zr)
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	response.OK(c, result)
}
