package workshop

import (
	"context"

	"outofschool/internal/core/id"
	"outofschool/internal/domain"
)

// Repository defines workshop-specific data access.
type Repository interface {
	domain.Repository[id.ID, *Workshop]

	// ListByProvider returns a lazy query over the visible workshops of a provider.
	ListByProvider(providerID id.ID) domain.Query[*Workshop]

	// SearchByTitle matches titles containing text, case-insensitively.
	SearchByTitle(ctx context.Context, text string, limit int) ([]*Workshop, error)
}
