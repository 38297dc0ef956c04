package api

import (
	"net/http"
	"regexp"
	"strconv"

	"reviewflow/internal/auth"
	"reviewflow/internal/database"
	"reviewflow/internal/models"

	"github.com/gin-gonic/gin"
)

// e164 per the upstream network's requirements: + then 1-14 digits, no leading zero.
var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

type CustomerHandler struct{}

func NewCustomerHandler() *CustomerHandler {
	return &CustomerHandler{}
}

func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	claims := auth.CurrentUser(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	search := c.Query("search")

	query := database.GormDB.Model(&models.Customer{}).Where("business_id = ?", claims.BusinessID)
	if search != "" {
		query = query.Where("name LIKE ? OR phone LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var customers []models.Customer
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&customers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if customers == nil {
		customers = []models.Customer{}
	}

	c.JSON(http.StatusOK, gin.H{"data": customers, "count": count})
}

type CreateCustomerRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

type BulkCreateRequest struct {
	Customers []CreateCustomerRequest `json:"customers"`
}

// CreateCustomer accepts either a single customer or, for CSV import, a
// {"customers": [...]} batch.
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var bulk BulkCreateRequest
	if err := c.ShouldBindBodyWithJSON(&bulk); err == nil && len(bulk.Customers) > 0 {
		customers := make([]models.Customer, 0, len(bulk.Customers))
		for _, req := range bulk.Customers {
			if !e164.MatchString(req.Phone) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Phone must be in E.164 format: " + req.Phone})
				return
			}
			customers = append(customers, models.Customer{
				BusinessID: claims.BusinessID,
				Name:       req.Name,
				Phone:      req.Phone,
				Category:   req.Category,
				Notes:      req.Notes,
			})
		}
		if err := database.GormDB.Create(&customers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import customers"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"customers": customers})
		return
	}

	var req CreateCustomerRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !e164.MatchString(req.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone must be in E.164 format"})
		return
	}

	customer := models.Customer{
		BusinessID: claims.BusinessID,
		Name:       req.Name,
		Phone:      req.Phone,
		Category:   req.Category,
		Notes:      req.Notes,
	}
	if err := database.GormDB.Create(&customer).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create customer"})
		return
	}

	c.JSON(http.StatusCreated, customer)
}

type UpdateCustomerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	claims := auth.CurrentUser(c)
	id := c.Param("id")

	var req UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Phone != "" && !e164.MatchString(req.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone must be in E.164 format"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	updates["category"] = req.Category
	updates["notes"] = req.Notes

	result := database.GormDB.Model(&models.Customer{}).
		Where("id = ? AND business_id = ?", id, claims.BusinessID).
		Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update customer"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Customer updated"})
}

func (h *CustomerHandler) DeleteCustomer(c *gin.Context) {
	claims := auth.CurrentUser(c)
	id := c.Param("id")

	result := database.GormDB.
		Where("id = ? AND business_id = ?", id, claims.BusinessID).
		Delete(&models.Customer{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete customer"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Customer deleted"})
}
