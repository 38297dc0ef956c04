package api

import (
	"net/http"

	"reviewflow/internal/auth"
	"reviewflow/internal/database"
	"reviewflow/internal/models"
	"reviewflow/internal/store"

	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	Store *store.GormStore
}

func NewTemplateHandler(s *store.GormStore) *TemplateHandler {
	return &TemplateHandler{Store: s}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var templates []models.MessageTemplate
	err := database.GormDB.
		Where("business_id = ?", claims.BusinessID).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&templates).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if templates == nil {
		templates = []models.MessageTemplate{}
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

type TemplateRequest struct {
	Name      string `json:"name" binding:"required"`
	Template  string `json:"template" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template := models.MessageTemplate{
		BusinessID: claims.BusinessID,
		Name:       req.Name,
		Template:   req.Template,
		IsDefault:  req.IsDefault,
	}
	if err := h.Store.CreateTemplate(&template); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template"})
		return
	}

	c.JSON(http.StatusCreated, template)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	claims := auth.CurrentUser(c)
	id := c.Param("id")

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.MessageTemplate
	err := database.GormDB.Where("id = ? AND business_id = ?", id, claims.BusinessID).First(&existing).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}

	existing.Name = req.Name
	existing.Template = req.Template
	existing.IsDefault = req.IsDefault
	if err := h.Store.UpdateTemplate(&existing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template"})
		return
	}

	c.JSON(http.StatusOK, existing)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	claims := auth.CurrentUser(c)
	id := c.Param("id")

	result := database.GormDB.
		Where("id = ? AND business_id = ?", id, claims.BusinessID).
		Delete(&models.MessageTemplate{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Template deleted"})
}
