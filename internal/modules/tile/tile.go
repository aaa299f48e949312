package tile

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/models"
	"github.com/tileverse/core/internal/modules/analytics"
	"github.com/tileverse/core/internal/pkg/pagination"
	"github.com/tileverse/core/internal/pkg/response"
	"gorm.io/gorm"
)

type CreateTileDTO struct {
	Name        string         `json:"name" binding:"required"`
	Slug        string         `json:"slug" binding:"required"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Material    string         `json:"material"`
	Size        string         `json:"size"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	Images      []models.Image `json:"images"`
	ARModelURL  string         `json:"ar_model_url"`
	InStock     *bool          `json:"in_stock"`
}

type UpdateTileDTO struct {
	Name        *string        `json:"name"`
	Slug        *string        `json:"slug"`
	Description *string        `json:"description"`
	Category    *string        `json:"category"`
	Material    *string        `json:"material"`
	Size        *string        `json:"size"`
	Price       *float64       `json:"price"`
	Currency    *string        `json:"currency"`
	Images      []models.Image `json:"images"`
	ARModelURL  *string        `json:"ar_model_url"`
	InStock     *bool          `json:"in_stock"`
}

type tileResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Material    string         `json:"material"`
	Size        string         `json:"size"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	Images      []models.Image `json:"images"`
	ARModelURL  string         `json:"ar_model_url"`
	InStock     bool           `json:"in_stock"`
	Created     time.Time      `json:"created"`
	Modified    time.Time      `json:"modified"`
}

func toResponse(t *models.TileModel) tileResponse {
	images := t.Images
	if images == nil {
		images = []models.Image{}
	}
	return tileResponse{
		ID: t.ID, Name: t.Name, Slug: t.Slug, Description: t.Description,
		Category: t.Category, Material: t.Material, Size: t.SizeLabel,
		Price: t.Price, Currency: t.Currency, Images: images,
		ARModelURL: t.ARModelURL, InStock: t.InStock,
		Created: t.CreatedAt, Modified: t.UpdatedAt,
	}
}

// ListQuery is the public catalog filter set.
type ListQuery struct {
	Category    string
	Material    string
	InStockOnly bool
	Search      string
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) List(q pagination.Query, f ListQuery) ([]models.TileModel, response.Pagination, error) {
	tx := s.db.Model(&models.TileModel{}).Order("created_at DESC")
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	if f.Material != "" {
		tx = tx.Where("material = ?", f.Material)
	}
	if f.InStockOnly {
		tx = tx.Where("in_stock = ?", true)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		tx = tx.Where("name LIKE ? OR description LIKE ?", like, like)
	}
	var items []models.TileModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetByID(id string) (*models.TileModel, error) {
	var t models.TileModel
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Service) GetBySlug(slug string) (*models.TileModel, error) {
	var t models.TileModel
	if err := s.db.First(&t, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Service) Create(dto *CreateTileDTO) (*models.TileModel, error) {
	var count int64
	s.db.Model(&models.TileModel{}).Where("slug = ?", dto.Slug).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("slug already exists")
	}
	t := models.TileModel{
		Name: dto.Name, Slug: dto.Slug, Description: dto.Description,
		Category: dto.Category, Material: dto.Material, SizeLabel: dto.Size,
		Price: dto.Price, Currency: dto.Currency, Images: dto.Images,
		ARModelURL: dto.ARModelURL, InStock: true,
	}
	if dto.Currency == "" {
		t.Currency = "USD"
	}
	if dto.InStock != nil {
		t.InStock = *dto.InStock
	}
	return &t, s.db.Create(&t).Error
}

func (s *Service) Update(id string, dto *UpdateTileDTO) (*models.TileModel, error) {
	t, err := s.GetByID(id)
	if err != nil || t == nil {
		return t, err
	}
	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = *dto.Name
	}
	if dto.Slug != nil && *dto.Slug != t.Slug {
		var count int64
		s.db.Model(&models.TileModel{}).Where("slug = ?", *dto.Slug).Count(&count)
		if count > 0 {
			return nil, fmt.Errorf("slug already exists")
		}
		updates["slug"] = *dto.Slug
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if dto.Category != nil {
		updates["category"] = *dto.Category
	}
	if dto.Material != nil {
		updates["material"] = *dto.Material
	}
	if dto.Size != nil {
		updates["size_label"] = *dto.Size
	}
	if dto.Price != nil {
		updates["price"] = *dto.Price
	}
	if dto.Currency != nil {
		updates["currency"] = *dto.Currency
	}
	if dto.Images != nil {
		updates["images"] = dto.Images
	}
	if dto.ARModelURL != nil {
		updates["ar_model_url"] = *dto.ARModelURL
	}
	if dto.InStock != nil {
		updates["in_stock"] = *dto.InStock
	}
	return t, s.db.Model(t).Updates(updates).Error
}

// Delete soft-deletes the tile and hard-deletes its analytics record, so a
// later tile with the same ID never inherits stale counters.
func (s *Service) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.TileModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("tile_id = ?", id).Delete(&models.TileAnalyticsModel{}).Error
	})
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/tiles")
	g.GET("", h.list)
	g.GET("/:id", h.get)

	a := g.Group("", authMW, adminMW)
	a.POST("", h.create)
	a.PUT("/:id", h.update)
	a.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	f := ListQuery{
		Category:    c.Query("category"),
		Material:    c.Query("material"),
		InStockOnly: c.Query("in_stock") == "true",
		Search:      c.Query("q"),
	}
	items, pag, err := h.svc.List(q, f)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]tileResponse, len(items))
	for i, t := range items {
		out[i] = toResponse(&t)
	}
	response.Paged(c, out, pag)
}

// get resolves by ID first, then by slug, so storefront URLs can use either.
func (h *Handler) get(c *gin.Context) {
	ref := c.Param("id")
	t, err := h.svc.GetByID(ref)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if t == nil {
		t, err = h.svc.GetBySlug(ref)
		if err != nil {
			response.InternalError(c, err)
			return
		}
	}
	if t == nil {
		response.NotFound(c)
		return
	}
	analytics.MarkViewed(c, t.ID)
	response.OK(c, toResponse(t))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateTileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.Create(&dto)
	if err != nil {
		if err.Error() == "slug already exists" {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(t))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateTileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		if err.Error() == "slug already exists" {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if t == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(t))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
