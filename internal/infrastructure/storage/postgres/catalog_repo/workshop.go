package catalog_repo

import (
	"context"

	"outofschool/internal/core/id"
	"outofschool/internal/domain"
	"outofschool/internal/domain/catalogs/teacher"
	"outofschool/internal/domain/catalogs/workshop"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/repo"
)

// WorkshopRepo implements workshop.Repository.
type WorkshopRepo struct {
	*repo.SoftDeleteRepo[id.ID, *workshop.Workshop]
}

var _ workshop.Repository = (*WorkshopRepo)(nil)

// NewWorkshopRepo creates a new workshop repository.
func NewWorkshopRepo(session *postgres.Session) *WorkshopRepo {
	return &WorkshopRepo{
		SoftDeleteRepo: repo.NewSoftDeleteRepo[id.ID, *workshop.Workshop](session, workshop.Entity),
	}
}

func (r *WorkshopRepo) ListByProvider(providerID id.ID) domain.Query[*workshop.Workshop] {
	return r.Query().
		Where(filter.Eq[*workshop.Workshop]("provider_id", providerID)).
		OrderBy(domain.Asc("title"))
}

func (r *WorkshopRepo) SearchByTitle(ctx context.Context, text string, limit int) ([]*workshop.Workshop, error) {
	return r.Query().
		Where(filter.ILike[*workshop.Workshop]("title", contains(text))).
		OrderBy(domain.Asc("title"), domain.Asc("id")).
		Take(limit).
		NoTracking().
		List(ctx)
}

// TeacherRepo stores workshop teachers.
type TeacherRepo struct {
	*repo.SoftDeleteRepo[id.ID, *teacher.Teacher]
}

// NewTeacherRepo creates a new teacher repository.
func NewTeacherRepo(session *postgres.Session) *TeacherRepo {
	return &TeacherRepo{
		SoftDeleteRepo: repo.NewSoftDeleteRepo[id.ID, *teacher.Teacher](session, teacher.Entity),
	}
}

// ListByWorkshop returns the visible teachers of a workshop ordered by name.
func (r *TeacherRepo) ListByWorkshop(ctx context.Context, workshopID id.ID) ([]*teacher.Teacher, error) {
	return r.Query().
		Where(filter.Eq[*teacher.Teacher]("workshop_id", workshopID)).
		OrderBy(domain.Asc("last_name"), domain.Asc("first_name")).
		List(ctx)
}
