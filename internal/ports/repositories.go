package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/promptrelay/chat-api/internal/domain"
)

// CreateInteractionParams captures the pre-call state of a chat request.
// The row is written before the LLM call so failed generations still leave
// an audit trail.
type CreateInteractionParams struct {
	UserID  string
	Prompt  string
	TraceID string
}

// InteractionRepository persists chat interaction records.
type InteractionRepository interface {
	Create(ctx context.Context, params CreateInteractionParams) (uuid.UUID, error)
	Update(ctx context.Context, interactionID uuid.UUID, update domain.InteractionUpdate) error
	GetByID(ctx context.Context, interactionID uuid.UUID) (domain.Interaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Interaction, error)
	HealthCheck(ctx context.Context) error
}
