package api

import (
	"net/http"
	"strconv"
	"time"

	"reviewflow/internal/auth"
	"reviewflow/internal/database"
	"reviewflow/internal/models"

	"github.com/gin-gonic/gin"
)

type MessageLogHandler struct{}

func NewMessageLogHandler() *MessageLogHandler {
	return &MessageLogHandler{}
}

func (h *MessageLogHandler) ListMessages(c *gin.Context) {
	claims := auth.CurrentUser(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := c.Query("status")

	query := database.GormDB.Model(&models.MessageLog{}).Where("business_id = ?", claims.BusinessID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var logs []models.MessageLog
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []models.MessageLog{}
	}

	c.JSON(http.StatusOK, gin.H{"data": logs, "count": count})
}

// BusinessStats summarizes one tenant's sending activity for the dashboard.
func (h *MessageLogHandler) BusinessStats(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var customerCount, sentCount, failedCount, sentToday int64
	database.GormDB.Model(&models.Customer{}).Where("business_id = ?", claims.BusinessID).Count(&customerCount)
	database.GormDB.Model(&models.MessageLog{}).
		Where("business_id = ? AND status = ?", claims.BusinessID, models.MessageSent).Count(&sentCount)
	database.GormDB.Model(&models.MessageLog{}).
		Where("business_id = ? AND status = ?", claims.BusinessID, models.MessageFailed).Count(&failedCount)

	todayStart := time.Now().Truncate(24 * time.Hour)
	database.GormDB.Model(&models.MessageLog{}).
		Where("business_id = ? AND status = ? AND created_at >= ?", claims.BusinessID, models.MessageSent, todayStart).
		Count(&sentToday)

	c.JSON(http.StatusOK, gin.H{
		"customers":  customerCount,
		"sent":       sentCount,
		"failed":     failedCount,
		"sent_today": sentToday,
	})
}

// BusinessInfo returns the caller's own tenant record.
func (h *MessageLogHandler) BusinessInfo(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var business models.Business
	if err := database.GormDB.First(&business, "id = ?", claims.BusinessID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Business not found"})
		return
	}

	c.JSON(http.StatusOK, business)
}
