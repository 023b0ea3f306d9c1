package services

import (
	"sync"
	"time"

	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEntry struct {
	Actor      string
	Action     string
	ResourceID *uuid.UUID
	Details    map[string]interface{}
	IPAddress  string
	RequestID  string
}

// AuditService writes audit rows from a single background goroutine.
// LogAsync never blocks; entries are dropped when the queue is full.
type AuditService struct {
	DB        *gorm.DB
	queue     chan models.AuditLog
	done      chan struct{}
	closeOnce sync.Once
}

func NewAuditService(db *gorm.DB, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:    db,
		queue: make(chan models.AuditLog, queueSize),
		done:  make(chan struct{}),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	actor := entry.Actor
	if actor == "" {
		actor = "anonymous"
	}
	row := models.AuditLog{
		Actor:      actor,
		Action:     entry.Action,
		ResourceID: entry.ResourceID,
		Details:    entry.Details,
		IPAddress:  entry.IPAddress,
		RequestID:  entry.RequestID,
		CreatedAt:  time.Now().UTC(),
	}

	select {
	case s.queue <- row:
	default:
		metrics.AuditEntriesDropped.Inc()
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// Close stops accepting entries and waits for the queue to drain.
// LogAsync must not be called after Close.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}

// Recent returns the newest audit rows for one record, newest first.
func (s *AuditService) Recent(resourceID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	logs := []models.AuditLog{}
	err := s.DB.Where("resource_id = ?", resourceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
