package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of every change to an album entry.
type AuditLog struct {
	ID         uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	Actor      string                 `json:"actor" gorm:"type:varchar(255);not null;index"`
	Action     string                 `json:"action" gorm:"type:varchar(50);not null;index"`
	ResourceID *uuid.UUID             `json:"resourceID,omitempty" gorm:"type:uuid;index"`
	Details    map[string]interface{} `json:"details,omitempty" gorm:"serializer:json"`
	IPAddress  string                 `json:"ipAddress" gorm:"type:varchar(45)"`
	RequestID  string                 `json:"requestID,omitempty" gorm:"type:varchar(64)"`
	CreatedAt  time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	AuditActionCreate      = "atividade.create"
	AuditActionUpdate      = "atividade.update"
	AuditActionDelete      = "atividade.delete"
	AuditActionPhotoUpload = "atividade.photo_upload"
)
