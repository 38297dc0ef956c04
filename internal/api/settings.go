package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"reviewflow/internal/auth"
	"reviewflow/internal/database"
	"reviewflow/internal/models"
	"reviewflow/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SettingsHandler struct {
	Store *store.GormStore
}

func NewSettingsHandler(s *store.GormStore) *SettingsHandler {
	return &SettingsHandler{Store: s}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var settings models.BusinessSettings
	err := database.GormDB.Where("business_id = ?", claims.BusinessID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}

type UpdateSettingsRequest struct {
	ReviewPlatform  string `json:"review_platform"`
	ReviewURL       string `json:"review_url"`
	MessageTemplate string `json:"message_template"`
}

var reviewPlatforms = map[string]bool{
	"google":      true,
	"tripadvisor": true,
	"custom":      true,
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	platform := req.ReviewPlatform
	if platform == "" {
		platform = "custom"
	}
	if !reviewPlatforms[platform] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid review platform"})
		return
	}

	reviewURL := strings.TrimSpace(req.ReviewURL)
	if reviewURL != "" {
		parsed, err := url.Parse(reviewURL)
		if err != nil || !parsed.IsAbs() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Geçerli bir URL girin"})
			return
		}
	}

	settings := models.BusinessSettings{
		BusinessID:      claims.BusinessID,
		ReviewPlatform:  platform,
		ReviewURL:       reviewURL,
		MessageTemplate: req.MessageTemplate,
	}
	if err := h.Store.UpsertSettings(&settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, settings)
}
