// Package main provides a CLI tool for seeding the database with demo catalogs
// and exercising the audited update path end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"outofschool/internal/config"
	appctx "outofschool/internal/core/context"
	"outofschool/internal/core/id"
	"outofschool/internal/core/tx"
	"outofschool/internal/domain"
	"outofschool/internal/domain/catalogs/address"
	"outofschool/internal/domain/catalogs/provider"
	"outofschool/internal/domain/catalogs/teacher"
	"outofschool/internal/domain/catalogs/workshop"
	"outofschool/internal/domain/changeslog"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/catalog_repo"
	"outofschool/internal/infrastructure/storage/postgres/changeslog_repo"
	"outofschool/internal/metadata"
	"outofschool/pkg/logger"
)

const seedUser = "seed"

func main() {
	configDir := pflag.String("config", ".", "directory containing config.yaml")
	reset := pflag.Bool("reset", false, "drop all tables before seeding")
	pflag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := runContext(log)

	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if *reset {
		log.Warn("reverting all migrations")
		if err := postgres.MigrateDown(pool); err != nil {
			log.Fatalw("failed to revert migrations", "error", err)
		}
	}

	if err := postgres.Migrate(pool); err != nil {
		log.Fatalw("failed to apply migrations", "error", err)
	}

	app, err := newApp(cfg, pool)
	if err != nil {
		log.Fatalw("failed to wire services", "error", err)
	}

	if err := app.seed(ctx); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	pool.LogStats(ctx)
	log.Info("seeding completed successfully")
}

// runContext is the context of one seeding run: it carries the logger, the
// acting user and a fresh trace so every log line of the run can be correlated.
func runContext(log *logger.Logger) context.Context {
	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithUserID(ctx, seedUser)
	return appctx.WithTrace(ctx, appctx.NewTraceContext())
}

type app struct {
	txm       *postgres.TxManager
	addresses *catalog_repo.AddressRepo
	providers *catalog_repo.ProviderRepo
	workshops *catalog_repo.WorkshopRepo
	teachers  *catalog_repo.TeacherRepo

	providerSvc *domain.CatalogService[id.ID, *provider.Provider]
	workshopSvc *domain.CatalogService[id.ID, *workshop.Workshop]
	changes     *changeslog.Service
}

func newApp(cfg *config.Config, pool *postgres.Pool) (*app, error) {
	txm := postgres.NewTxManager(pool, cfg.TxOptions(), cfg.Tx.Retry)
	registry := metadata.NewRegistry(address.Entity, provider.Entity, teacher.Entity, workshop.Entity, changeslog.Entity)
	session := postgres.NewSession(txm, registry)

	archiver, err := postgres.NewArchiver()
	if err != nil {
		return nil, err
	}

	projector := changeslog.NewProjector()
	changeslog.RegisterFormatter(projector, (*address.Address).String)

	changes := changeslog.NewService(
		cfg.ChangesLog,
		changeslog_repo.NewRecorder(session, archiver),
		changeslog_repo.NewRepository(session),
		projector.Project,
	)

	a := &app{
		txm:       txm,
		addresses: catalog_repo.NewAddressRepo(session),
		providers: catalog_repo.NewProviderRepo(session),
		workshops: catalog_repo.NewWorkshopRepo(session),
		teachers:  catalog_repo.NewTeacherRepo(session),
		changes:   changes,
	}
	a.providerSvc = domain.NewCatalogService(domain.CatalogServiceConfig[id.ID, *provider.Provider]{
		Repo: a.providers, Changes: changes, EntityName: provider.Entity.Name,
	})
	a.workshopSvc = domain.NewCatalogService(domain.CatalogServiceConfig[id.ID, *workshop.Workshop]{
		Repo: a.workshops, Changes: changes, EntityName: workshop.Entity.Name,
	})
	return a, nil
}

func (a *app) seed(ctx context.Context) error {
	const edrpou = "12345678"

	exists, err := a.providers.ExistsByEdrpouIpn(ctx, edrpou)
	if err != nil {
		return err
	}
	if exists {
		logger.Info(ctx, "demo provider already present, skipping inserts", "edrpouIpn", edrpou)
	} else if err := a.insertDemo(ctx, edrpou); err != nil {
		return err
	}

	p, err := a.providers.GetByEdrpouIpn(ctx, edrpou)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("demo provider %s not found", edrpou)
	}

	// An audited update: the legal address and the director change in one transaction.
	p, err = tx.Run(ctx, a.txm, func(ctx context.Context) (*provider.Provider, error) {
		if p.LegalAddress != nil {
			p.LegalAddress.BuildingNumber += "A"
			if _, err := a.addresses.Update(ctx, p.LegalAddress); err != nil {
				return nil, err
			}
		}
		p.Director = "Olena Kovalenko"
		return a.providerSvc.Update(ctx, p)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "provider updated", "id", p.ID, "legalAddress", p.LegalAddress.String())

	page, err := a.workshopSvc.List(ctx, domain.QueryOptions[*workshop.Workshop]{
		Take:     10,
		OrderBy:  []domain.Order{domain.Asc("title")},
		Includes: []string{"Teachers"},
	})
	if err != nil {
		return err
	}
	for _, w := range page.Items {
		logger.Info(ctx, "workshop", "title", w.Title, "price", w.Price.String(), "teachers", len(w.Teachers))
	}

	// Retire the Go workshop; its row stays in the table but disappears from reads.
	found, err := a.workshops.SearchByTitle(ctx, "Go", 10)
	if err != nil {
		return err
	}
	for _, w := range found {
		if w.Title != "Go" {
			continue
		}
		if err := a.workshopSvc.Delete(ctx, w.ID); err != nil {
			return err
		}
		logger.Info(ctx, "workshop retired", "id", w.ID)
	}

	var history domain.ListResult[*changeslog.ChangesLog]
	err = a.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		history, err = a.changes.GetChangesLog(ctx, changeslog.Filter{EntityType: provider.Entity.Name, Size: 20})
		return err
	})
	if err != nil {
		return err
	}
	for _, rec := range history.Items {
		logger.Info(ctx, "change",
			"property", rec.PropertyName,
			"old", deref(rec.OldValue),
			"new", deref(rec.NewValue),
			"at", rec.UpdatedDate)
	}
	logger.Info(ctx, "changes log", "total", history.TotalCount)
	return nil
}

func (a *app) insertDemo(ctx context.Context, edrpou string) error {
	return a.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		addr, err := a.addresses.Create(ctx, &address.Address{
			District:       "Shevchenkivskyi",
			City:           "Kyiv",
			Region:         "Kyiv",
			Street:         "Khreshchatyk",
			BuildingNumber: "22",
		})
		if err != nil {
			return err
		}

		p := provider.NewProvider("Kyiv Chess School", edrpou)
		p.Director = "Petro Bondarenko"
		p.SetLegalAddress(addr)
		if _, err := a.providerSvc.Create(ctx, p); err != nil {
			return err
		}

		chess := workshop.NewWorkshop("Chess", p.ID, 1, decimal.RequireFromString("450.00"))
		chess.Description = "Openings, tactics and endgames for beginners"
		goGame := workshop.NewWorkshop("Go", p.ID, 1, decimal.RequireFromString("380.00"))
		if _, err := a.workshops.CreateMany(ctx, []*workshop.Workshop{chess, goGame}); err != nil {
			return err
		}

		_, err = a.teachers.CreateMany(ctx, []*teacher.Teacher{
			teacher.NewTeacher("Anna", "Shevchuk", chess.ID),
			teacher.NewTeacher("Ihor", "Melnyk", goGame.ID),
		})
		return err
	})
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
