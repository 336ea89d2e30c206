package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/entity"
	"outofschool/internal/core/id"
	"outofschool/internal/domain/filter"
)

type club struct {
	entity.BaseEntity
	entity.SoftDeleted
	Title string
}

func (c *club) Validate(context.Context) error {
	if c.Title == "" {
		return apperror.NewValidation("title is required")
	}
	return nil
}

// memRepo keeps visible rows in memory and logs the calls made inside transactions.
type memRepo struct {
	Repository[id.ID, *club]

	rows    map[id.ID]*club
	calls   []string
	updated []*club
	listed  QueryOptions[*club]
}

func newMemRepo(rows ...*club) *memRepo {
	r := &memRepo{rows: make(map[id.ID]*club)}
	for _, c := range rows {
		r.rows[c.ID] = c
	}
	return r
}

func (r *memRepo) Create(_ context.Context, c *club) (*club, error) {
	r.calls = append(r.calls, "create")
	r.rows[c.ID] = c
	return c, nil
}

func (r *memRepo) Update(_ context.Context, c *club) (*club, error) {
	r.calls = append(r.calls, "update")
	r.updated = append(r.updated, c)
	return c, nil
}

func (r *memRepo) GetByID(_ context.Context, key id.ID) (*club, error) {
	c, ok := r.rows[key]
	if !ok || c.IsDeleted() {
		return nil, nil
	}
	return c, nil
}

func (r *memRepo) Count(context.Context, filter.Predicate[*club]) (int64, error) {
	return int64(len(r.rows)), nil
}

func (r *memRepo) Get(opts QueryOptions[*club]) Query[*club] {
	r.listed = opts
	var items []*club
	for _, c := range r.rows {
		items = append(items, c)
	}
	return listQuery{items: items}
}

func (r *memRepo) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls = append(r.calls, "begin")
	return fn(ctx)
}

type listQuery struct {
	Query[*club]
	items []*club
}

func (q listQuery) List(context.Context) ([]*club, error) { return q.items, nil }

type changesSpy struct {
	repo *memRepo
	err  error
}

func (s *changesSpy) AddEntityChanges(_ context.Context, e any, _ string) (int, error) {
	s.repo.calls = append(s.repo.calls, "changes")
	return 1, s.err
}

func newClubService(repo *memRepo, changes ChangesRecorder) *CatalogService[id.ID, *club] {
	return NewCatalogService(CatalogServiceConfig[id.ID, *club]{
		Repo:       repo,
		Changes:    changes,
		EntityName: "Club",
	})
}

func TestCatalogService_CreateValidatesAndRunsHooks(t *testing.T) {
	repo := newMemRepo()
	svc := newClubService(repo, nil)

	var seen []HookEvent
	svc.Hooks().On(BeforeCreate, func(context.Context, *club) error {
		seen = append(seen, BeforeCreate)
		return nil
	})
	svc.Hooks().On(AfterCreate, func(context.Context, *club) error {
		seen = append(seen, AfterCreate)
		return errors.New("ignored")
	})

	_, err := svc.Create(context.Background(), &club{BaseEntity: entity.NewBaseEntity()})
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, repo.calls)

	_, err = svc.Create(context.Background(), &club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"})
	require.NoError(t, err)
	assert.Equal(t, []string{"create"}, repo.calls)
	assert.Equal(t, []HookEvent{BeforeCreate, AfterCreate}, seen)
}

func TestCatalogService_BeforeHookAborts(t *testing.T) {
	repo := newMemRepo()
	svc := newClubService(repo, nil)
	svc.Hooks().On(BeforeCreate, func(context.Context, *club) error { return apperror.NewConflict("closed") })

	_, err := svc.Create(context.Background(), &club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"})
	assert.Error(t, err)
	assert.Empty(t, repo.calls)
}

func TestCatalogService_GetByIDMissingIsNotFound(t *testing.T) {
	svc := newClubService(newMemRepo(), nil)

	_, err := svc.GetByID(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestCatalogService_UpdateRecordsChangesInsideTransaction(t *testing.T) {
	c := &club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"}
	repo := newMemRepo(c)
	svc := newClubService(repo, &changesSpy{repo: repo})

	c.Title = "Go"
	_, err := svc.Update(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "changes", "update"}, repo.calls)
}

func TestCatalogService_UpdateFailsWhenRecordingFails(t *testing.T) {
	c := &club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"}
	repo := newMemRepo(c)
	svc := newClubService(repo, &changesSpy{repo: repo, err: apperror.NewUnsupportedKeyType("Club", "string")})

	_, err := svc.Update(context.Background(), c)
	assert.True(t, apperror.IsUnsupportedKeyType(err))
	assert.Empty(t, repo.updated)
}

func TestCatalogService_DeleteMarksAndUpdates(t *testing.T) {
	c := &club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"}
	repo := newMemRepo(c)
	svc := newClubService(repo, &changesSpy{repo: repo})

	require.NoError(t, svc.Delete(context.Background(), c.ID))
	assert.True(t, c.IsDeleted())
	assert.Equal(t, []*club{c}, repo.updated)

	exists, err := svc.Exists(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.True(t, apperror.IsNotFound(svc.Delete(context.Background(), c.ID)))
}

func TestCatalogService_ListReturnsPageAndTotal(t *testing.T) {
	repo := newMemRepo(
		&club{BaseEntity: entity.NewBaseEntity(), Title: "Chess"},
		&club{BaseEntity: entity.NewBaseEntity(), Title: "Go"},
	)
	svc := newClubService(repo, nil)

	opts := QueryOptions[*club]{Skip: 0, Take: 10, OrderBy: []Order{Asc("title")}}
	res, err := svc.List(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, []Order{Asc("title")}, repo.listed.OrderBy)
}
