package catalog_repo

import (
	"context"

	"outofschool/internal/core/id"
	"outofschool/internal/domain/catalogs/provider"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/repo"
)

// ProviderRepo implements provider.Repository.
type ProviderRepo struct {
	*repo.SoftDeleteRepo[id.ID, *provider.Provider]
}

var _ provider.Repository = (*ProviderRepo)(nil)

// NewProviderRepo creates a new provider repository.
func NewProviderRepo(session *postgres.Session) *ProviderRepo {
	return &ProviderRepo{
		SoftDeleteRepo: repo.NewSoftDeleteRepo[id.ID, *provider.Provider](session, provider.Entity),
	}
}

func byEdrpouIpn(code string) filter.Predicate[*provider.Provider] {
	return filter.Eq[*provider.Provider]("edrpou_ipn", code)
}

// GetByEdrpouIpn returns the provider with its legal address loaded.
func (r *ProviderRepo) GetByEdrpouIpn(ctx context.Context, code string) (*provider.Provider, error) {
	return r.Query().Where(byEdrpouIpn(code)).Include("LegalAddress").First(ctx)
}

// ExistsByEdrpouIpn checks if a visible provider with given code exists.
func (r *ProviderRepo) ExistsByEdrpouIpn(ctx context.Context, code string) (bool, error) {
	return r.Any(ctx, byEdrpouIpn(code))
}
