// Package catalog_repo provides PostgreSQL implementations of the catalog
// repositories: the generic repositories bound to each catalog's descriptor,
// plus the catalog-specific lookups.
package catalog_repo

import (
	"strings"

	"outofschool/internal/core/id"
	"outofschool/internal/domain/catalogs/address"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/repo"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// contains builds an ILIKE pattern matching text anywhere.
func contains(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

// AddressRepo stores addresses. Addresses are deleted physically.
type AddressRepo struct {
	*repo.BaseRepo[id.Long, *address.Address]
}

// NewAddressRepo creates a new address repository.
func NewAddressRepo(session *postgres.Session) *AddressRepo {
	return &AddressRepo{
		BaseRepo: repo.NewBaseRepo[id.Long, *address.Address](session, address.Entity),
	}
}
