package provider

import (
	"context"

	"outofschool/internal/core/id"
	"outofschool/internal/domain"
)

// Repository defines provider-specific data access.
type Repository interface {
	domain.Repository[id.ID, *Provider]

	// GetByEdrpouIpn returns the visible provider with the given code, or nil.
	GetByEdrpouIpn(ctx context.Context, code string) (*Provider, error)

	ExistsByEdrpouIpn(ctx context.Context, code string) (bool, error)
}
