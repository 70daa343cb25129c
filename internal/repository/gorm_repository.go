// internal/repository/gorm_repository.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/broadcast-backend/internal/database"
	"github.com/javajoker/broadcast-backend/internal/models"
)

// GormRepository stores the ledgers in postgres.
type GormRepository struct {
	db   *gorm.DB
	inTx bool
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return database.WithTransaction(ctx, r.db, func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx, inTx: true})
	})
}

func (r *GormRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormRepository) CreateBroadcast(ctx context.Context, b *models.Broadcast, requests []models.Request) error {
	return r.WithTx(ctx, func(tx Repository) error {
		db := tx.(*GormRepository).conn(ctx)
		if err := db.Create(b).Error; err != nil {
			return fmt.Errorf("failed to create broadcast: %w", err)
		}
		for i := range requests {
			requests[i].BroadcastID = b.ID
		}
		if len(requests) > 0 {
			if err := db.Omit(clause.Associations).Create(&requests).Error; err != nil {
				return fmt.Errorf("failed to create requests: %w", err)
			}
		}
		return nil
	})
}

func (r *GormRepository) GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	var b models.Broadcast
	if err := r.conn(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *GormRepository) LockBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	var b models.Broadcast
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *GormRepository) broadcastQuery(ctx context.Context, filter BroadcastFilter) *gorm.DB {
	query := r.conn(ctx).Model(&models.Broadcast{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

func (r *GormRepository) ListBroadcasts(ctx context.Context, filter BroadcastFilter) ([]models.Broadcast, int64, error) {
	var total int64
	if err := r.broadcastQuery(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}

	var broadcasts []models.Broadcast
	query := r.broadcastQuery(ctx, filter).Order("created_at DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&broadcasts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	return broadcasts, total, nil
}

func (r *GormRepository) CountBroadcasts(ctx context.Context, filter BroadcastFilter) (int64, error) {
	var total int64
	err := r.broadcastQuery(ctx, filter).Count(&total).Error
	return total, err
}

func (r *GormRepository) TransitionBroadcast(ctx context.Context, id uuid.UUID, from models.BroadcastStatus, changes BroadcastChanges) (bool, error) {
	result := r.conn(ctx).Model(&models.Broadcast{}).
		Where("id = ? AND status = ?", id, from).
		Updates(changes.columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormRepository) ListBroadcastsPastExpiry(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error) {
	var broadcasts []models.Broadcast
	err := r.conn(ctx).
		Where("status = ? AND expires_at < ?", models.BroadcastStatusActive, now).
		Order("expires_at").
		Limit(limit).
		Find(&broadcasts).Error
	return broadcasts, err
}

func (r *GormRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var req models.Request
	err := r.conn(ctx).
		Preload("Broadcast").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *GormRepository) ListRequests(ctx context.Context, broadcastID uuid.UUID) ([]models.Request, error) {
	var requests []models.Request
	err := r.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		Where("broadcast_id = ?", broadcastID).
		Order("created_at").
		Find(&requests).Error
	return requests, err
}

func (r *GormRepository) ListMerchantRequests(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error) {
	base := func() *gorm.DB {
		query := r.conn(ctx).Model(&models.Request{}).Where("merchant_id = ?", filter.MerchantID)
		if len(filter.Statuses) > 0 {
			query = query.Where("status IN ?", filter.Statuses)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	var requests []models.Request
	query := base().
		Preload("Broadcast").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		Order("created_at DESC").
		Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, total, nil
}

func (r *GormRepository) CountMerchantRequests(ctx context.Context, merchantID uuid.UUID, statuses []models.RequestStatus) (int64, error) {
	var total int64
	query := r.conn(ctx).Model(&models.Request{}).Where("merchant_id = ?", merchantID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Count(&total).Error
	return total, err
}

func (r *GormRepository) TransitionRequest(ctx context.Context, id uuid.UUID, from []models.RequestStatus, changes RequestChanges) (bool, error) {
	result := r.conn(ctx).Model(&models.Request{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(changes.columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormRepository) SaveQuote(ctx context.Context, quote Quote) (bool, error) {
	var saved bool
	err := r.WithTx(ctx, func(tx Repository) error {
		db := tx.(*GormRepository).conn(ctx)
		result := db.Model(&models.Request{}).
			Where("id = ? AND status = ?", quote.RequestID, models.RequestStatusPending).
			Updates(map[string]interface{}{
				"status":             models.RequestStatusPriced,
				"subtotal":           quote.Subtotal,
				"delivery_fee":       quote.DeliveryFee,
				"total":              quote.Total,
				"items_count":        len(quote.Items),
				"merchant_notes":     quote.MerchantNotes,
				"priced_at":          quote.PricedAt,
				"pricing_expires_at": quote.PricingExpiresAt,
				"order_reference":    quote.OrderReference,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}

		items := make([]models.LineItem, len(quote.Items))
		for i, item := range quote.Items {
			item.RequestID = quote.RequestID
			items[i] = item
		}
		if len(items) > 0 {
			if err := db.Create(&items).Error; err != nil {
				return fmt.Errorf("failed to create line items: %w", err)
			}
		}
		saved = true
		return nil
	})
	return saved, err
}

func (r *GormRepository) ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var requests []models.Request
	err := r.conn(ctx).
		Select("custom_order_requests.*").
		Joins("JOIN custom_order_broadcasts b ON b.id = custom_order_requests.broadcast_id").
		Where("custom_order_requests.status = ? AND b.pricing_deadline < ?", models.RequestStatusPending, now).
		Order("b.pricing_deadline").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *GormRepository) ListStaleQuotes(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var requests []models.Request
	err := r.conn(ctx).
		Select("custom_order_requests.*").
		Joins("JOIN custom_order_broadcasts b ON b.id = custom_order_requests.broadcast_id").
		Where("custom_order_requests.status = ? AND custom_order_requests.pricing_expires_at < ? AND b.status = ?",
			models.RequestStatusPriced, now, models.BroadcastStatusActive).
		Order("custom_order_requests.pricing_expires_at").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *GormRepository) AppendEvents(ctx context.Context, events ...models.BridgeEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if events[i].Status == "" {
			events[i].Status = models.BridgeEventStatusPending
		}
	}
	return r.conn(ctx).Create(&events).Error
}

func (r *GormRepository) ListDueEvents(ctx context.Context, now time.Time, limit int) ([]models.BridgeEvent, error) {
	var events []models.BridgeEvent
	// An event waits while an earlier one for the same order is undelivered.
	err := r.conn(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.BridgeEventStatusPending, now).
		Where(`NOT EXISTS (
			SELECT 1 FROM bridge_events prior
			WHERE prior.order_reference = bridge_events.order_reference
			AND prior.status IN ?
			AND (prior.created_at < bridge_events.created_at
				OR (prior.created_at = bridge_events.created_at AND prior.id < bridge_events.id)))`,
			[]models.BridgeEventStatus{models.BridgeEventStatusPending, models.BridgeEventStatusFailed}).
		Order("created_at").
		Order("id").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *GormRepository) MarkEventDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.conn(ctx).Model(&models.BridgeEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.BridgeEventStatusDispatched,
			"dispatched_at": at,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) RecordEventFailure(ctx context.Context, id uuid.UUID, failure EventFailure) error {
	cols := map[string]interface{}{
		"attempts":        failure.Attempts,
		"last_error":      failure.LastError,
		"next_attempt_at": failure.NextAttemptAt,
	}
	if failure.Final {
		cols["status"] = models.BridgeEventStatusFailed
	}
	result := r.conn(ctx).Model(&models.BridgeEvent{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.conn(ctx).Create(entry).Error
}
