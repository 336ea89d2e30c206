// Package provider provides the Provider catalog: organizations running workshops.
package provider

import (
	"context"
	"regexp"
	"strings"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/core/id"
	"outofschool/internal/domain/catalogs/address"
	"outofschool/internal/metadata"
)

// Provider is an organization (or individual entrepreneur) offering workshops.
type Provider struct {
	entity.BaseEntity
	entity.SoftDeleted

	FullTitle string `db:"full_title" json:"fullTitle"`

	// EdrpouIpn is the 8-digit EDRPOU code or the 10-digit individual tax number.
	EdrpouIpn string `db:"edrpou_ipn" json:"edrpouIpn"`

	Director string `db:"director" json:"director"`

	LegalAddressID *id.Long         `db:"legal_address_id" json:"legalAddressId,omitempty"`
	LegalAddress   *address.Address `db:"-" json:"legalAddress,omitempty"`
}

// Entity describes Provider for the data-access layer.
var Entity = describe()

func describe() *metadata.Entity {
	b := metadata.New[*Provider]("Provider", "providers").SoftDelete("is_deleted")
	metadata.Key(b, "ID", "id", func(p *Provider) id.ID { return p.ID })
	metadata.Scalar(b, "FullTitle", "full_title", func(p *Provider) string { return p.FullTitle }, metadata.MaxLength(120))
	metadata.Scalar(b, "EdrpouIpn", "edrpou_ipn", func(p *Provider) string { return p.EdrpouIpn }, metadata.MaxLength(12))
	metadata.Scalar(b, "Director", "director", func(p *Provider) string { return p.Director }, metadata.MaxLength(50))
	metadata.Scalar(b, "LegalAddressID", "legal_address_id", func(p *Provider) *id.Long { return p.LegalAddressID })
	metadata.Scalar(b, "IsDeleted", "is_deleted", func(p *Provider) bool { return p.Deleted })
	metadata.BelongsTo(b, "LegalAddress", "legal_address_id", address.Entity,
		func(p *Provider) *address.Address { return p.LegalAddress },
		func(p *Provider, a *address.Address) { p.LegalAddress = a })
	return b.Build()
}

// NewProvider creates a Provider with a generated key.
func NewProvider(fullTitle, edrpouIpn string) *Provider {
	return &Provider{
		BaseEntity: entity.NewBaseEntity(),
		FullTitle:  fullTitle,
		EdrpouIpn:  edrpouIpn,
	}
}

var edrpouIpnPattern = regexp.MustCompile(`^(\d{8}|\d{10})$`)

// Validate implements entity.Validatable interface.
func (p *Provider) Validate(ctx context.Context) error {
	if strings.TrimSpace(p.FullTitle) == "" {
		return apperror.NewValidation("full title is required").WithDetail("field", "fullTitle")
	}
	if !edrpouIpnPattern.MatchString(p.EdrpouIpn) {
		return apperror.NewValidation("EDRPOU must have 8 digits, IPN 10 digits").
			WithDetail("field", "edrpouIpn").
			WithDetail("value", p.EdrpouIpn)
	}
	return nil
}

// SetLegalAddress links a and keeps the foreign key in sync.
func (p *Provider) SetLegalAddress(a *address.Address) {
	p.LegalAddress = a
	if a == nil {
		p.LegalAddressID = nil
		return
	}
	key := a.ID
	p.LegalAddressID = &key
}
