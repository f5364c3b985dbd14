package payment

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository defines the interface for payment data access.
type Repository interface {
	WebhookEventExists(ctx context.Context, eventID string) (bool, error)
	CreateWebhookEvent(ctx context.Context, event *WebhookEvent) error
	MarkWebhookEventProcessed(ctx context.Context, eventID string, processErr error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WebhookEventExists(ctx context.Context, eventID string) (bool, error) {
	var event WebhookEvent
	err := r.db.WithContext(ctx).
		Select("id").
		First(&event, "id = ? AND processed_at IS NOT NULL", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) CreateWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	return r.db.WithContext(ctx).Save(event).Error
}

func (r *repository) MarkWebhookEventProcessed(ctx context.Context, eventID string, processErr error) error {
	updates := map[string]any{"processed_at": time.Now()}
	if processErr != nil {
		updates["process_error"] = processErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(updates).Error
}
