package store

import (
	"errors"
	"time"

	"reviewflow/internal/dispatch"
	"reviewflow/internal/models"

	"gorm.io/gorm"
)

// GormStore backs the dispatch engine and connection tracker seams with the
// shared gorm database, and owns the write paths that carry invariants
// (default-template uniqueness, settings upsert).
type GormStore struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Connection(businessID string) (*dispatch.Connection, error) {
	row, err := s.ConnectionRow(businessID)
	if err != nil || row == nil {
		return nil, err
	}
	return &dispatch.Connection{InstanceName: row.InstanceName, Status: row.Status}, nil
}

func (s *GormStore) ConnectionRow(businessID string) (*models.WhatsAppConnection, error) {
	var conn models.WhatsAppConnection
	err := s.DB.Where("business_id = ?", businessID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *GormStore) ConnectionByInstance(instanceName string) (*models.WhatsAppConnection, error) {
	var conn models.WhatsAppConnection
	err := s.DB.Where("instance_name = ?", instanceName).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *GormStore) UpdateConnectionStatus(businessID, status string, lastSeenAt *time.Time) error {
	return s.DB.Model(&models.WhatsAppConnection{}).
		Where("business_id = ?", businessID).
		Updates(map[string]interface{}{
			"status":       status,
			"last_seen_at": lastSeenAt,
		}).Error
}

func (s *GormStore) DeleteConnection(businessID string) error {
	return s.DB.Where("business_id = ?", businessID).Delete(&models.WhatsAppConnection{}).Error
}

func (s *GormStore) Settings(businessID string) (*dispatch.Settings, error) {
	var settings models.BusinessSettings
	err := s.DB.Where("business_id = ?", businessID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dispatch.Settings{
		ReviewURL:       settings.ReviewURL,
		MessageTemplate: settings.MessageTemplate,
	}, nil
}

// ResolveRecipients returns the business's customers among the given ids,
// preserving the order the ids were presented in. Unknown ids are dropped.
func (s *GormStore) ResolveRecipients(businessID string, ids []string) ([]dispatch.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var customers []models.Customer
	if err := s.DB.Where("business_id = ? AND id IN ?", businessID, ids).Find(&customers).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]models.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}

	recipients := make([]dispatch.Recipient, 0, len(customers))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		recipients = append(recipients, dispatch.Recipient{ID: c.ID, Name: c.Name, Phone: c.Phone})
	}
	return recipients, nil
}

func (s *GormStore) TemplateBody(businessID, templateID string) (string, error) {
	query := s.DB.Where("business_id = ?", businessID)
	if templateID != "" {
		query = query.Where("id = ?", templateID)
	} else {
		query = query.Where("is_default = ?", true)
	}

	var template models.MessageTemplate
	err := query.First(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return template.Template, nil
}

func (s *GormStore) AppendLog(businessID, customerID, status, errorMessage string) error {
	return s.DB.Create(&models.MessageLog{
		BusinessID:   businessID,
		CustomerID:   customerID,
		Status:       status,
		ErrorMessage: errorMessage,
	}).Error
}

func (s *GormStore) MarkContacted(customerID string) error {
	now := time.Now()
	return s.DB.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("last_message_at", &now).Error
}

// CreateTemplate inserts a template; when it is flagged default, the previous
// default for the business is unset in the same transaction.
func (s *GormStore) CreateTemplate(template *models.MessageTemplate) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if template.IsDefault {
			if err := clearDefault(tx, template.BusinessID, ""); err != nil {
				return err
			}
		}
		return tx.Create(template).Error
	})
}

// UpdateTemplate applies updates; promoting a template to default demotes any
// other default of the same business in the same transaction.
func (s *GormStore) UpdateTemplate(template *models.MessageTemplate) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if template.IsDefault {
			if err := clearDefault(tx, template.BusinessID, template.ID); err != nil {
				return err
			}
		}
		return tx.Model(&models.MessageTemplate{}).
			Where("id = ? AND business_id = ?", template.ID, template.BusinessID).
			Updates(map[string]interface{}{
				"name":       template.Name,
				"template":   template.Template,
				"is_default": template.IsDefault,
			}).Error
	})
}

func clearDefault(tx *gorm.DB, businessID, exceptID string) error {
	query := tx.Model(&models.MessageTemplate{}).
		Where("business_id = ? AND is_default = ?", businessID, true)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	return query.Update("is_default", false).Error
}

// UpsertSettings creates or replaces the business's settings row.
func (s *GormStore) UpsertSettings(settings *models.BusinessSettings) error {
	var existing models.BusinessSettings
	err := s.DB.Where("business_id = ?", settings.BusinessID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(settings).Error
	}
	if err != nil {
		return err
	}
	return s.DB.Model(&models.BusinessSettings{}).
		Where("business_id = ?", settings.BusinessID).
		Updates(map[string]interface{}{
			"review_platform":  settings.ReviewPlatform,
			"review_url":       settings.ReviewURL,
			"message_template": settings.MessageTemplate,
		}).Error
}
