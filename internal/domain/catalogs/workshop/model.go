// Package workshop provides the Workshop catalog: classes offered by providers.
package workshop

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/core/id"
	"outofschool/internal/domain/catalogs/provider"
	"outofschool/internal/domain/catalogs/teacher"
	"outofschool/internal/metadata"
)

// Workshop is a class offered by a provider.
type Workshop struct {
	entity.BaseEntity
	entity.SoftDeleted
	entity.VersionField
	entity.Business

	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	CategoryID  int64           `db:"category_id" json:"categoryId"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ProviderID  id.ID           `db:"provider_id" json:"providerId"`

	Provider *provider.Provider `db:"-" json:"provider,omitempty"`
	Teachers []*teacher.Teacher `db:"-" json:"teachers,omitempty"`
}

// Entity describes Workshop for the data-access layer.
var Entity = describe()

func describe() *metadata.Entity {
	b := metadata.New[*Workshop]("Workshop", "workshops").
		SoftDelete("is_deleted").
		Versioned("version")
	metadata.Key(b, "ID", "id", func(w *Workshop) id.ID { return w.ID })
	metadata.Scalar(b, "Title", "title", func(w *Workshop) string { return w.Title }, metadata.MaxLength(60))
	metadata.Scalar(b, "Description", "description", func(w *Workshop) string { return w.Description }, metadata.MaxLength(500))
	metadata.Scalar(b, "CategoryID", "category_id", func(w *Workshop) int64 { return w.CategoryID })
	metadata.Scalar(b, "Price", "price", func(w *Workshop) decimal.Decimal { return w.Price })
	metadata.Scalar(b, "ProviderID", "provider_id", func(w *Workshop) id.ID { return w.ProviderID })
	metadata.Scalar(b, "IsDeleted", "is_deleted", func(w *Workshop) bool { return w.Deleted })
	metadata.Scalar(b, "Version", "version", func(w *Workshop) int { return w.Version })
	metadata.Scalar(b, "CreatedAt", "created_at", func(w *Workshop) time.Time { return w.CreatedAt })
	metadata.Scalar(b, "CreatedBy", "created_by", func(w *Workshop) string { return w.CreatedBy }, metadata.MaxLength(255))
	metadata.Scalar(b, "UpdatedAt", "updated_at", func(w *Workshop) *time.Time { return w.UpdatedAt })
	metadata.Scalar(b, "ModifiedBy", "modified_by", func(w *Workshop) string { return w.ModifiedBy }, metadata.MaxLength(255))
	metadata.Scalar(b, "DeleteDate", "delete_date", func(w *Workshop) *time.Time { return w.DeleteDate })
	metadata.Scalar(b, "DeletedBy", "deleted_by", func(w *Workshop) string { return w.DeletedBy }, metadata.MaxLength(255))
	metadata.Scalar(b, "IsSystemProtected", "is_system_protected", func(w *Workshop) bool { return w.SystemProtected })
	metadata.BelongsTo(b, "Provider", "provider_id", provider.Entity,
		func(w *Workshop) *provider.Provider { return w.Provider },
		func(w *Workshop, p *provider.Provider) { w.Provider = p })
	metadata.HasMany(b, "Teachers", "workshop_id", teacher.Entity,
		func(w *Workshop) []*teacher.Teacher { return w.Teachers },
		func(w *Workshop, ts []*teacher.Teacher) { w.Teachers = ts })
	return b.Build()
}

// NewWorkshop creates a Workshop with a generated key.
func NewWorkshop(title string, providerID id.ID, categoryID int64, price decimal.Decimal) *Workshop {
	return &Workshop{
		BaseEntity:   entity.NewBaseEntity(),
		VersionField: entity.VersionField{Version: 1},
		Title:        title,
		CategoryID:   categoryID,
		Price:        price,
		ProviderID:   providerID,
	}
}

// Validate implements entity.Validatable interface.
func (w *Workshop) Validate(ctx context.Context) error {
	if strings.TrimSpace(w.Title) == "" {
		return apperror.NewValidation("title is required").WithDetail("field", "title")
	}
	if id.IsNil(w.ProviderID) {
		return apperror.NewValidation("provider is required").WithDetail("field", "providerId")
	}
	if w.Price.IsNegative() {
		return apperror.NewValidation("price must not be negative").
			WithDetail("field", "price").
			WithDetail("value", w.Price.String())
	}
	return nil
}
