package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

type interactionModel struct {
	InteractionID uuid.UUID `gorm:"column:interaction_id;primaryKey"`
	UserID        string    `gorm:"column:user_id"`
	Prompt        string    `gorm:"column:prompt"`
	Response      *string   `gorm:"column:response"`
	Model         *string   `gorm:"column:model"`
	Tokens        *int      `gorm:"column:tokens"`
	LatencyMs     *int64    `gorm:"column:latency_ms"`
	Error         *string   `gorm:"column:error"`
	TraceID       string    `gorm:"column:trace_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (interactionModel) TableName() string { return "interactions" }

// InteractionRepository persists interaction rows in Postgres.
type InteractionRepository struct {
	db    *gorm.DB
	nowFn func() time.Time
}

var _ ports.InteractionRepository = (*InteractionRepository)(nil)

func NewInteractionRepository(db *gorm.DB) *InteractionRepository {
	return &InteractionRepository{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (r *InteractionRepository) Create(ctx context.Context, params ports.CreateInteractionParams) (uuid.UUID, error) {
	now := r.nowFn()
	row := interactionModel{
		InteractionID: uuid.New(),
		UserID:        params.UserID,
		Prompt:        params.Prompt,
		TraceID:       params.TraceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert interaction: %w", err)
	}
	return row.InteractionID, nil
}

func (r *InteractionRepository) Update(ctx context.Context, id uuid.UUID, update domain.InteractionUpdate) error {
	values := map[string]any{"updated_at": r.nowFn()}
	if update.Response != nil {
		values["response"] = *update.Response
	}
	if update.Model != nil {
		values["model"] = *update.Model
	}
	if update.Tokens != nil {
		values["tokens"] = *update.Tokens
	}
	if update.LatencyMs != nil {
		values["latency_ms"] = *update.LatencyMs
	}
	if update.Error != nil {
		values["error"] = *update.Error
	}

	res := r.db.WithContext(ctx).
		Model(&interactionModel{}).
		Where("interaction_id = ?", id).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update interaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: interaction %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *InteractionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Interaction, error) {
	var row interactionModel
	err := r.db.WithContext(ctx).
		Where("interaction_id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Interaction{}, fmt.Errorf("%w: interaction %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("select interaction: %w", err)
	}
	return toDomainInteraction(row), nil
}

func (r *InteractionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Interaction, error) {
	var rows []interactionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	out := make([]domain.Interaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainInteraction(row))
	}
	return out, nil
}

func (r *InteractionRepository) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func toDomainInteraction(row interactionModel) domain.Interaction {
	return domain.Interaction{
		InteractionID: row.InteractionID,
		UserID:        row.UserID,
		Prompt:        row.Prompt,
		Response:      row.Response,
		Model:         row.Model,
		Tokens:        row.Tokens,
		LatencyMs:     row.LatencyMs,
		Error:         row.Error,
		TraceID:       row.TraceID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
