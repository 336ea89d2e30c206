// Package address provides postal addresses referenced by providers.
package address

import (
	"context"
	"fmt"
	"strings"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/metadata"
)

// Address is a postal address keyed by an identity column.
type Address struct {
	entity.LongEntity

	District       string `db:"district" json:"district"`
	City           string `db:"city" json:"city"`
	Region         string `db:"region" json:"region"`
	Street         string `db:"street" json:"street"`
	BuildingNumber string `db:"building_number" json:"buildingNumber"`
}

// Entity describes Address for the data-access layer.
var Entity = describe()

func describe() *metadata.Entity {
	b := metadata.New[*Address]("Address", "addresses")
	metadata.Key(b, "ID", "id", func(a *Address) int64 { return a.ID })
	metadata.Scalar(b, "District", "district", func(a *Address) string { return a.District }, metadata.MaxLength(60))
	metadata.Scalar(b, "City", "city", func(a *Address) string { return a.City }, metadata.MaxLength(60))
	metadata.Scalar(b, "Region", "region", func(a *Address) string { return a.Region }, metadata.MaxLength(60))
	metadata.Scalar(b, "Street", "street", func(a *Address) string { return a.Street }, metadata.MaxLength(60))
	metadata.Scalar(b, "BuildingNumber", "building_number", func(a *Address) string { return a.BuildingNumber }, metadata.MaxLength(15))
	return b.Build()
}

// Validate implements entity.Validatable interface.
func (a *Address) Validate(ctx context.Context) error {
	if strings.TrimSpace(a.City) == "" {
		return apperror.NewValidation("city is required").WithDetail("field", "city")
	}
	if strings.TrimSpace(a.Street) == "" {
		return apperror.NewValidation("street is required").WithDetail("field", "street")
	}
	if strings.TrimSpace(a.BuildingNumber) == "" {
		return apperror.NewValidation("building number is required").WithDetail("field", "buildingNumber")
	}
	return nil
}

// String renders the address the way the changes log shows it.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s, %s, %s, %s, %s", a.District, a.City, a.Region, a.Street, a.BuildingNumber)
}
