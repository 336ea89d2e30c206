//go:build integration

package catalog_repo

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"outofschool/internal/core/apperror"
	appctx "outofschool/internal/core/context"
	"outofschool/internal/core/id"
	"outofschool/internal/domain"
	"outofschool/internal/domain/catalogs/address"
	"outofschool/internal/domain/catalogs/provider"
	"outofschool/internal/domain/catalogs/teacher"
	"outofschool/internal/domain/catalogs/workshop"
	"outofschool/internal/domain/changeslog"
	"outofschool/internal/domain/filter"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/changeslog_repo"
	"outofschool/internal/infrastructure/storage/postgres/repo"
	"outofschool/internal/metadata"
)

func startPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("outofschool"),
		tcpostgres.WithUsername("oos"),
		tcpostgres.WithPassword("oos"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(pool))
	return pool
}

// stack is what one request sees: a fresh session and the repositories over it.
type stack struct {
	session   *postgres.Session
	addresses *AddressRepo
	providers *ProviderRepo
	workshops *WorkshopRepo
	teachers  *TeacherRepo
	changes   *changeslog.Service
	recorder  *changeslog_repo.Recorder

	workshopSvc *domain.CatalogService[id.ID, *workshop.Workshop]
	providerSvc *domain.CatalogService[id.ID, *provider.Provider]
}

func newStack(t *testing.T, pool *postgres.Pool) *stack {
	t.Helper()
	txm := postgres.NewTxManager(pool, postgres.DefaultTxOptions(), postgres.DefaultRetryPolicy())
	registry := metadata.NewRegistry(address.Entity, provider.Entity, teacher.Entity, workshop.Entity, changeslog.Entity)
	session := postgres.NewSession(txm, registry)

	archiver, err := postgres.NewArchiver()
	require.NoError(t, err)

	s := &stack{
		session:   session,
		addresses: NewAddressRepo(session),
		providers: NewProviderRepo(session),
		workshops: NewWorkshopRepo(session),
		teachers:  NewTeacherRepo(session),
		recorder:  changeslog_repo.NewRecorder(session, archiver),
	}
	s.changes = changeslog.NewService(changeslog.Config{TrackedProperties: map[string][]string{
		"Provider": {"FullTitle", "EdrpouIpn", "Director", "LegalAddress"},
		"Workshop": {"Title", "Price", "IsDeleted"},
	}}, s.recorder, changeslog_repo.NewRepository(session), nil)

	s.workshopSvc = domain.NewCatalogService(domain.CatalogServiceConfig[id.ID, *workshop.Workshop]{
		Repo: s.workshops, Changes: s.changes, EntityName: "Workshop",
	})
	s.providerSvc = domain.NewCatalogService(domain.CatalogServiceConfig[id.ID, *provider.Provider]{
		Repo: s.providers, Changes: s.changes, EntityName: "Provider",
	})
	return s
}

func seedProvider(t *testing.T, ctx context.Context, s *stack, code string) *provider.Provider {
	t.Helper()
	addr, err := s.addresses.Create(ctx, &address.Address{
		District: "Podilskyi", City: "Kyiv", Region: "Kyiv", Street: "Sahaidachnoho", BuildingNumber: "5",
	})
	require.NoError(t, err)
	require.NotZero(t, addr.ID)

	p := provider.NewProvider("Kyiv Chess School", code)
	p.SetLegalAddress(addr)
	_, err = s.providerSvc.Create(ctx, p)
	require.NoError(t, err)
	return p
}

func TestIntegration_SoftDeleteHidesRows(t *testing.T) {
	pool := startPostgres(t)
	ctx := appctx.WithUserID(context.Background(), "user-1")
	s := newStack(t, pool)

	p := seedProvider(t, ctx, s, "11111111")
	chess := workshop.NewWorkshop("Chess", p.ID, 1, decimal.RequireFromString("450"))
	goGame := workshop.NewWorkshop("Go", p.ID, 1, decimal.RequireFromString("380"))
	_, err := s.workshops.CreateMany(ctx, []*workshop.Workshop{chess, goGame})
	require.NoError(t, err)

	require.NoError(t, s.workshopSvc.Delete(ctx, chess.ID))

	got, err := s.workshops.GetByID(ctx, chess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.workshops.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	visible, err := s.workshops.Any(ctx, filter.Eq[*workshop.Workshop]("title", "Chess"))
	require.NoError(t, err)
	assert.False(t, visible)

	raw := repo.NewBaseRepo[id.ID, *workshop.Workshop](s.session, workshop.Entity)
	all, err := raw.GetByFilterNoTracking(filter.Eq[*workshop.Workshop]("provider_id", p.ID)).List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	history, err := s.changes.GetChangesLog(ctx, changeslog.Filter{EntityType: "Workshop", EntityID: chess.ID.String()})
	require.NoError(t, err)
	require.Equal(t, int64(1), history.TotalCount)
	assert.Equal(t, "IsDeleted", history.Items[0].PropertyName)
	assert.Equal(t, "false", *history.Items[0].OldValue)
	assert.Equal(t, "true", *history.Items[0].NewValue)
	assert.Equal(t, "user-1", *history.Items[0].UserID)
}

func TestIntegration_OrderingPagingAndIncludes(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := newStack(t, pool)

	p := seedProvider(t, ctx, s, "22222222")
	ws := []*workshop.Workshop{
		workshop.NewWorkshop("Drawing", p.ID, 2, decimal.RequireFromString("300")),
		workshop.NewWorkshop("Chess", p.ID, 1, decimal.RequireFromString("450")),
		workshop.NewWorkshop("Go", p.ID, 1, decimal.RequireFromString("300")),
	}
	_, err := s.workshops.CreateMany(ctx, ws)
	require.NoError(t, err)
	_, err = s.teachers.CreateMany(ctx, []*teacher.Teacher{
		teacher.NewTeacher("Anna", "Shevchuk", ws[1].ID),
		teacher.NewTeacher("Ihor", "Melnyk", ws[1].ID),
	})
	require.NoError(t, err)

	byPrice, err := s.workshops.Get(domain.QueryOptions[*workshop.Workshop]{
		OrderBy: []domain.Order{domain.Asc("price"), domain.Desc("title")},
	}).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Drawing", "Chess"}, titles(byPrice))

	page, err := s.workshopSvc.List(ctx, domain.QueryOptions[*workshop.Workshop]{
		Skip:     1,
		Take:     1,
		OrderBy:  []domain.Order{domain.Asc("title")},
		Includes: []string{"Provider", "Teachers"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Drawing", page.Items[0].Title)
	require.NotNil(t, page.Items[0].Provider)
	assert.Equal(t, p.ID, page.Items[0].Provider.ID)

	chess, err := s.workshops.GetByFilter(ctx, filter.Eq[*workshop.Workshop]("title", "Chess"), "Teachers")
	require.NoError(t, err)
	require.Len(t, chess, 1)
	assert.Len(t, chess[0].Teachers, 2)

	found, err := s.workshops.SearchByTitle(ctx, "dr", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drawing"}, titles(found))
}

func TestIntegration_AuditIsAtomicWithUpdate(t *testing.T) {
	pool := startPostgres(t)
	ctx := appctx.WithUserID(context.Background(), "editor")
	s := newStack(t, pool)
	seedProvider(t, ctx, s, "33333333")

	reader := newStack(t, pool)
	p, err := reader.providers.GetByEdrpouIpn(ctx, "33333333")
	require.NoError(t, err)
	require.NotNil(t, p.LegalAddress)
	oldAddress := p.LegalAddress.String()

	p.FullTitle = "Kyiv Chess & Go School"
	p.LegalAddress.BuildingNumber = "7"
	err = reader.session.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := reader.addresses.Update(ctx, p.LegalAddress); err != nil {
			return err
		}
		_, err := reader.providerSvc.Update(ctx, p)
		return err
	})
	require.NoError(t, err)

	history, err := reader.changes.GetChangesLog(ctx, changeslog.Filter{EntityType: "Provider", EntityID: p.ID.String()})
	require.NoError(t, err)
	require.Equal(t, int64(2), history.TotalCount)

	byProperty := map[string]*changeslog.ChangesLog{}
	for _, rec := range history.Items {
		byProperty[rec.PropertyName] = rec
	}
	assert.Equal(t, "Kyiv Chess School", *byProperty["FullTitle"].OldValue)
	assert.Equal(t, "Kyiv Chess & Go School", *byProperty["FullTitle"].NewValue)
	assert.Equal(t, oldAddress, *byProperty["LegalAddress"].OldValue)
	assert.Equal(t, "Podilskyi, Kyiv, Kyiv, Sahaidachnoho, 7", *byProperty["LegalAddress"].NewValue)

	// A failing update writes no audit rows.
	p.FullTitle = "Renamed"
	p.EdrpouIpn = "not-a-code"
	_, err = reader.providerSvc.Update(ctx, p)
	assert.True(t, apperror.IsValidation(err))

	n, err := reader.changes.GetChangesLog(ctx, changeslog.Filter{EntityType: "Provider"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.TotalCount)
}

func TestIntegration_VersionConflict(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := newStack(t, pool)

	p := seedProvider(t, ctx, s, "44444444")
	w, err := s.workshops.Create(ctx, workshop.NewWorkshop("Chess", p.ID, 1, decimal.RequireFromString("450")))
	require.NoError(t, err)

	first, second := newStack(t, pool), newStack(t, pool)
	a, err := first.workshops.GetByID(ctx, w.ID)
	require.NoError(t, err)
	b, err := second.workshops.GetByID(ctx, w.ID)
	require.NoError(t, err)

	a.Price = decimal.RequireFromString("500")
	_, err = first.workshopSvc.Update(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Version)

	b.Price = decimal.RequireFromString("300")
	_, err = second.workshopSvc.Update(ctx, b)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestIntegration_StampsDetailsAndProtection(t *testing.T) {
	pool := startPostgres(t)
	author := appctx.WithUserID(context.Background(), "author")
	editor := appctx.WithUserID(context.Background(), "editor")
	s := newStack(t, pool)

	p := seedProvider(t, author, s, "55555555")
	w, err := s.workshops.Create(author, workshop.NewWorkshop("Chess", p.ID, 1, decimal.RequireFromString("450")))
	require.NoError(t, err)
	assert.Equal(t, "author", w.CreatedBy)
	assert.False(t, w.CreatedAt.IsZero())
	assert.Nil(t, w.UpdatedAt)

	updated, err := newStack(t, pool).workshops.ReadAndUpdateWith(editor, w.ID, func(cur *workshop.Workshop) *workshop.Workshop {
		cur.Title = "Go"
		return cur
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	detailed, err := newStack(t, pool).workshops.GetByIDWithDetails(author, w.ID, "Provider")
	require.NoError(t, err)
	require.NotNil(t, detailed)
	require.NotNil(t, detailed.Provider)
	assert.Equal(t, "Kyiv Chess School", detailed.Provider.FullTitle)
	assert.Equal(t, "Go", detailed.Title)
	assert.Equal(t, "author", detailed.CreatedBy)
	assert.Equal(t, "editor", detailed.ModifiedBy)
	assert.NotNil(t, detailed.UpdatedAt)

	_, err = newStack(t, pool).workshops.ReadAndUpdateWith(editor, id.New(), func(cur *workshop.Workshop) *workshop.Workshop {
		return cur
	})
	assert.True(t, apperror.IsConcurrentModification(err))

	_, err = pool.Exec(author, "UPDATE workshops SET is_system_protected = TRUE WHERE id = $1", w.ID.String())
	require.NoError(t, err)

	guarded := newStack(t, pool)
	err = guarded.workshopSvc.Delete(editor, w.ID)
	assert.True(t, apperror.IsProtected(err))

	still, err := newStack(t, pool).workshops.GetByID(author, w.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Nil(t, still.DeleteDate)

	history, err := guarded.changes.GetChangesLog(author, changeslog.Filter{EntityType: "Workshop", PropertyName: "IsDeleted"})
	require.NoError(t, err)
	assert.Zero(t, history.TotalCount)
}

func titles(ws []*workshop.Workshop) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Title)
	}
	return out
}
