package contact

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/models"
	"github.com/tileverse/core/internal/pkg/pagination"
	"github.com/tileverse/core/internal/pkg/response"
	"gorm.io/gorm"
)

type CreateContactDTO struct {
	Name    string `json:"name"    binding:"required"`
	Email   string `json:"email"   binding:"required,email"`
	Subject string `json:"subject"`
	Body    string `json:"body"    binding:"required"`
}

type contactResponse struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Read    bool      `json:"read"`
	Created time.Time `json:"created"`
}

func toResponse(m *models.ContactModel) contactResponse {
	return contactResponse{
		ID: m.ID, Name: m.Name, Email: m.Email,
		Subject: m.Subject, Body: m.Body, Read: m.Read,
		Created: m.CreatedAt,
	}
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) Create(dto *CreateContactDTO) (*models.ContactModel, error) {
	m := models.ContactModel{
		Name: dto.Name, Email: dto.Email,
		Subject: dto.Subject, Body: dto.Body,
	}
	return &m, s.db.Create(&m).Error
}

func (s *Service) List(q pagination.Query, unreadOnly bool) ([]models.ContactModel, response.Pagination, error) {
	tx := s.db.Model(&models.ContactModel{}).Order("created_at DESC")
	if unreadOnly {
		tx = tx.Where("`read` = ?", false)
	}
	var items []models.ContactModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// MarkRead flags a message as read and returns it.
func (s *Service) MarkRead(id string) (*models.ContactModel, error) {
	var m models.ContactModel
	if err := s.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !m.Read {
		if err := s.db.Model(&m).Update("read", true).Error; err != nil {
			return nil, err
		}
		m.Read = true
	}
	return &m, nil
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.ContactModel{}, "id = ?", id).Error
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/contacts")
	g.POST("", h.create)

	a := g.Group("", authMW, adminMW)
	a.GET("", h.list)
	a.PATCH("/:id/read", h.markRead)
	a.DELETE("/:id", h.delete)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateContactDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Create(&dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(m))
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q, c.Query("unread") == "true")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]contactResponse, len(items))
	for i := range items {
		out[i] = toResponse(&items[i])
	}
	response.Paged(c, out, pag)
}

func (h *Handler) markRead(c *gin.Context) {
	m, err := h.svc.MarkRead(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(m))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
