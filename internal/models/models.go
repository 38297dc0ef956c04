package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business statuses
const (
	BusinessActive  = "active"
	BusinessPassive = "passive"
)

// Connection states (domain vocabulary; the bridge speaks open/close/connecting)
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionPending      = "pending"
)

// Message log statuses
const (
	MessageSent   = "sent"
	MessageFailed = "failed"
)

// User roles
const (
	RoleAdmin    = "admin"
	RoleBusiness = "business"
)

// Business is the tenant root. Every other entity belongs to exactly one business.
type Business struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name"`
	Status        string     `gorm:"type:varchar(20);default:'active'" json:"status"`
	Notes         string     `gorm:"type:text" json:"notes"`
	LastPaymentAt *time.Time `json:"last_payment_at"`
	NextRenewalAt *time.Time `json:"next_renewal_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Business) TableName() string {
	return "businesses"
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User is a login account. Admin users have no business; business users have exactly one.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         string    `gorm:"type:varchar(20);not null" json:"role"`
	BusinessID   string    `gorm:"type:varchar(36);index" json:"business_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Customer is a review-request recipient. Phone is E.164.
// LastMessageAt is written only by the dispatch engine on a successful send.
type Customer struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BusinessID    string     `gorm:"type:varchar(36);index;not null" json:"business_id"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name"`
	Phone         string     `gorm:"type:varchar(20);not null" json:"phone"`
	Category      string     `gorm:"type:varchar(100)" json:"category"`
	Notes         string     `gorm:"type:text" json:"notes"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// MessageTemplate holds a body with {firstName} and {reviewUrl} placeholders.
// At most one template per business has IsDefault set.
type MessageTemplate struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BusinessID string    `gorm:"type:varchar(36);index;not null" json:"business_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Template   string    `gorm:"type:text;not null" json:"template"`
	IsDefault  bool      `gorm:"default:false" json:"is_default"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

func (t *MessageTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// BusinessSettings is one-to-one with Business.
type BusinessSettings struct {
	BusinessID      string    `gorm:"primaryKey;type:varchar(36)" json:"business_id"`
	ReviewPlatform  string    `gorm:"type:varchar(20);default:'custom'" json:"review_platform"`
	ReviewURL       string    `gorm:"type:text" json:"review_url"`
	MessageTemplate string    `gorm:"type:text" json:"message_template"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessSettings) TableName() string {
	return "business_settings"
}

// WhatsAppConnection is the one gateway session per business.
type WhatsAppConnection struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BusinessID   string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"business_id"`
	InstanceName string     `gorm:"type:varchar(255);not null" json:"instance_name"`
	Status       string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	LastSeenAt   *time.Time `json:"last_seen_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WhatsAppConnection) TableName() string {
	return "whatsapp_connections"
}

func (wc *WhatsAppConnection) BeforeCreate(tx *gorm.DB) error {
	if wc.ID == "" {
		wc.ID = uuid.NewString()
	}
	return nil
}

// MessageLog is the append-only audit row for one send attempt. Never updated.
type MessageLog struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BusinessID   string    `gorm:"type:varchar(36);index;not null" json:"business_id"`
	CustomerID   string    `gorm:"type:varchar(36);index;not null" json:"customer_id"`
	Status       string    `gorm:"type:varchar(20);not null" json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}

func (m *MessageLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
