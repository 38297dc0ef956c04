package api

import (
	"errors"
	"net/http"
	"strconv"

	"reviewflow/internal/auth"
	"reviewflow/internal/database"
	"reviewflow/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AdminHandler struct{}

func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

func (h *AdminHandler) ListBusinesses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	search := c.Query("search")
	status := c.Query("status")

	query := database.GormDB.Model(&models.Business{})
	if search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var businesses []models.Business
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&businesses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if businesses == nil {
		businesses = []models.Business{}
	}

	c.JSON(http.StatusOK, gin.H{"data": businesses, "count": count})
}

type CreateBusinessRequest struct {
	Name         string `json:"name" binding:"required"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
	UserEmail    string `json:"userEmail"`
	UserPassword string `json:"userPassword"`
}

// CreateBusiness creates a tenant and, when credentials are supplied, its
// first business user.
func (h *AdminHandler) CreateBusiness(c *gin.Context) {
	var req CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = models.BusinessActive
	}
	if status != models.BusinessActive && status != models.BusinessPassive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	business := models.Business{
		Name:   req.Name,
		Status: status,
		Notes:  req.Notes,
	}

	userCreated := false
	err := database.GormDB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&business).Error; err != nil {
			return err
		}
		if req.UserEmail != "" && req.UserPassword != "" {
			if len(req.UserPassword) < 6 {
				return errors.New("password must be at least 6 characters")
			}
			hash, err := auth.HashPassword(req.UserPassword)
			if err != nil {
				return err
			}
			if err := tx.Create(&models.User{
				Email:        req.UserEmail,
				PasswordHash: hash,
				Role:         models.RoleBusiness,
				BusinessID:   business.ID,
			}).Error; err != nil {
				return err
			}
			userCreated = true
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create business: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          business.ID,
		"name":        business.Name,
		"status":      business.Status,
		"notes":       business.Notes,
		"created_at":  business.CreatedAt,
		"userCreated": userCreated,
	})
}

func (h *AdminHandler) GetBusiness(c *gin.Context) {
	id := c.Param("id")

	var business models.Business
	if err := database.GormDB.First(&business, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Business not found"})
		return
	}

	var users []models.User
	database.GormDB.Where("business_id = ?", id).Find(&users)
	if users == nil {
		users = []models.User{}
	}

	c.JSON(http.StatusOK, gin.H{"business": business, "users": users})
}

type UpdateBusinessRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *AdminHandler) UpdateBusiness(c *gin.Context) {
	id := c.Param("id")

	var req UpdateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Status != "" {
		if req.Status != models.BusinessActive && req.Status != models.BusinessPassive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		updates["status"] = req.Status
	}
	updates["notes"] = req.Notes

	result := database.GormDB.Model(&models.Business{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update business"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Business not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Business updated"})
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *AdminHandler) CreateBusinessUser(c *gin.Context) {
	businessID := c.Param("id")

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var business models.Business
	if err := database.GormDB.First(&business, "id = ?", businessID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Business not found"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.RoleBusiness,
		BusinessID:   businessID,
	}
	if err := database.GormDB.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email, "business_id": user.BusinessID})
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

func (h *AdminHandler) ResetUserPassword(c *gin.Context) {
	userID := c.Param("id")

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	result := database.GormDB.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Password updated"})
}

// Stats aggregates platform-wide numbers for the admin dashboard.
func (h *AdminHandler) Stats(c *gin.Context) {
	var total, active, totalMessages int64
	database.GormDB.Model(&models.Business{}).Count(&total)
	database.GormDB.Model(&models.Business{}).Where("status = ?", models.BusinessActive).Count(&active)
	database.GormDB.Model(&models.MessageLog{}).Count(&totalMessages)

	activeRate := 0
	if total > 0 {
		activeRate = int(active * 100 / total)
	}

	var recent []models.Business
	database.GormDB.Order("created_at DESC").Limit(5).Find(&recent)
	if recent == nil {
		recent = []models.Business{}
	}

	c.JSON(http.StatusOK, gin.H{
		"businesses": gin.H{
			"total":      total,
			"active":     active,
			"passive":    total - active,
			"activeRate": activeRate,
		},
		"totalMessages":    totalMessages,
		"recentBusinesses": recent,
	})
}

// MessageStats breaks message volume down per business.
func (h *AdminHandler) MessageStats(c *gin.Context) {
	type row struct {
		BusinessID string `json:"business_id"`
		Name       string `json:"name"`
		Sent       int64  `json:"sent"`
		Failed     int64  `json:"failed"`
	}

	var rows []row
	err := database.GormDB.Model(&models.MessageLog{}).
		Select("message_logs.business_id, businesses.name, "+
			"SUM(CASE WHEN message_logs.status = ? THEN 1 ELSE 0 END) AS sent, "+
			"SUM(CASE WHEN message_logs.status = ? THEN 1 ELSE 0 END) AS failed",
			models.MessageSent, models.MessageFailed).
		Joins("JOIN businesses ON businesses.id = message_logs.business_id").
		Group("message_logs.business_id, businesses.name").
		Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if rows == nil {
		rows = []row{}
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
