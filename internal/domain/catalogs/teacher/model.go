// Package teacher provides teachers leading workshops.
package teacher

import (
	"context"
	"strings"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/core/id"
	"outofschool/internal/metadata"
)

// Teacher leads one workshop.
type Teacher struct {
	entity.BaseEntity
	entity.SoftDeleted

	FirstName  string `db:"first_name" json:"firstName"`
	LastName   string `db:"last_name" json:"lastName"`
	WorkshopID id.ID  `db:"workshop_id" json:"workshopId"`
}

// Entity describes Teacher for the data-access layer.
var Entity = describe()

func describe() *metadata.Entity {
	b := metadata.New[*Teacher]("Teacher", "teachers").SoftDelete("is_deleted")
	metadata.Key(b, "ID", "id", func(t *Teacher) id.ID { return t.ID })
	metadata.Scalar(b, "FirstName", "first_name", func(t *Teacher) string { return t.FirstName }, metadata.MaxLength(60))
	metadata.Scalar(b, "LastName", "last_name", func(t *Teacher) string { return t.LastName }, metadata.MaxLength(60))
	metadata.Scalar(b, "WorkshopID", "workshop_id", func(t *Teacher) id.ID { return t.WorkshopID })
	metadata.Scalar(b, "IsDeleted", "is_deleted", func(t *Teacher) bool { return t.Deleted })
	return b.Build()
}

// NewTeacher creates a Teacher of the given workshop.
func NewTeacher(firstName, lastName string, workshopID id.ID) *Teacher {
	return &Teacher{
		BaseEntity: entity.NewBaseEntity(),
		FirstName:  firstName,
		LastName:   lastName,
		WorkshopID: workshopID,
	}
}

// Validate implements entity.Validatable interface.
func (t *Teacher) Validate(ctx context.Context) error {
	if strings.TrimSpace(t.FirstName) == "" || strings.TrimSpace(t.LastName) == "" {
		return apperror.NewValidation("teacher name is required").WithDetail("field", "name")
	}
	if id.IsNil(t.WorkshopID) {
		return apperror.NewValidation("workshop is required").WithDetail("field", "workshopId")
	}
	return nil
}

// FullName returns "First Last".
func (t *Teacher) FullName() string {
	return t.FirstName + " " + t.LastName
}
