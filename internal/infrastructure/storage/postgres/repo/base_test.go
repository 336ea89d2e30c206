package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outofschool/internal/core/apperror"
	appctx "outofschool/internal/core/context"
	"outofschool/internal/core/id"
	"outofschool/internal/domain"
	"outofschool/internal/domain/catalogs/address"
	"outofschool/internal/domain/catalogs/provider"
	"outofschool/internal/domain/catalogs/teacher"
	"outofschool/internal/domain/catalogs/workshop"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/metadata"
)

var (
	_ domain.Repository[id.ID, *workshop.Workshop] = (*SoftDeleteRepo[id.ID, *workshop.Workshop])(nil)
	_ domain.Repository[id.Long, *address.Address] = (*BaseRepo[id.Long, *address.Address])(nil)
)

func newSession(db postgres.DB) *postgres.Session {
	txm := postgres.NewTxManager(db, postgres.DefaultTxOptions(), postgres.DefaultRetryPolicy())
	registry := metadata.NewRegistry(address.Entity, provider.Entity, teacher.Entity, workshop.Entity)
	return postgres.NewSession(txm, registry)
}

func TestBaseRepo_InsertOmitsZeroKey(t *testing.T) {
	r := NewBaseRepo[id.Long, *address.Address](newSession(nil), address.Entity)
	a := &address.Address{City: "Kyiv", Street: "Khreshchatyk", BuildingNumber: "1"}

	sql, args, err := r.insert(a, true).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO addresses (district,city,region,street,building_number) VALUES ($1,$2,$3,$4,$5)", sql)
	assert.Equal(t, []any{"", "Kyiv", "", "Khreshchatyk", "1"}, args)
}

func TestBaseRepo_UpdateWithoutMatchingRowIsConcurrencyError(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 0"}
	r := NewBaseRepo[id.Long, *address.Address](newSession(db), address.Entity)

	_, err := r.Update(context.Background(), &address.Address{City: "Lviv"})

	assert.True(t, apperror.IsConcurrentModification(err))
	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].rolledBack)
	assert.Contains(t, db.txs[0].sqls[1], "UPDATE addresses SET district = $1")
}

func TestBaseRepo_DeleteWithoutMatchingRowIsConcurrencyError(t *testing.T) {
	db := &fakeDB{tag: "DELETE 0"}
	r := NewBaseRepo[id.Long, *address.Address](newSession(db), address.Entity)
	a := &address.Address{}
	a.ID = 7

	err := r.Delete(context.Background(), a)

	assert.True(t, apperror.IsConcurrentModification(err))
	assert.Equal(t, "DELETE FROM addresses WHERE id = $1", db.txs[0].sqls[1])
}

func TestBaseRepo_DeleteDetachesEntity(t *testing.T) {
	db := &fakeDB{tag: "DELETE 1"}
	s := newSession(db)
	r := NewBaseRepo[id.Long, *address.Address](s, address.Entity)
	a := &address.Address{}
	a.ID = 7
	s.Tracker().Attach(a)

	require.NoError(t, r.Delete(context.Background(), a))

	_, tracked := s.Tracker().Entry(a)
	assert.False(t, tracked)
	assert.True(t, db.txs[0].committed)
}

func TestBaseRepo_VersionedUpdate(t *testing.T) {
	db := &fakeDB{version: 4}
	s := newSession(db)
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](s, workshop.Entity)
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.NewFromInt(100))
	w.Version = 3
	entry, _ := s.Tracker().Attach(w)
	w.Title = "Go"

	_, err := r.Update(context.Background(), w)

	require.NoError(t, err)
	assert.Equal(t, 4, w.Version)
	assert.False(t, entry.IsModified(), "snapshot refreshed after commit")

	sql := db.txs[0].sqls[1]
	assert.Contains(t, sql, "version = version + 1")
	assert.Contains(t, sql, "AND version = $")
	assert.Contains(t, sql, "RETURNING version")
	assert.NotContains(t, sql, "SET id =")
}

func TestBaseRepo_VersionMismatchIsConcurrencyError(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](newSession(db), workshop.Entity)
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.Zero)

	_, err := r.Update(context.Background(), w)

	assert.True(t, apperror.IsConcurrentModification(err))
	assert.Equal(t, 1, w.Version, "version untouched on failure")
}

func lastArg(args []any) any { return args[len(args)-1] }

func TestBaseRepo_UpdateNeverClearsDeletionFlag(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 1"}
	r := NewSoftDeleteRepo[id.ID, *provider.Provider](newSession(db), provider.Entity)
	p := provider.NewProvider("Chess Club", "12345678")
	p.MarkDeleted()

	_, err := r.Update(context.Background(), p)
	require.NoError(t, err)

	p.Deleted = false
	_, err = r.Update(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, db.txs, 2)
	assert.Contains(t, db.txs[1].sqls[1], "is_deleted = is_deleted OR $")
	assert.Contains(t, db.txs[1].args[1], false)
}

func TestBaseRepo_SecondVersionedUpdateInOneTransaction(t *testing.T) {
	db := &fakeDB{version: 4, bump: true}
	s := newSession(db)
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](s, workshop.Entity)
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.NewFromInt(100))
	w.Version = 3

	err := s.TxManager().RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := r.Update(ctx, w); err != nil {
			return err
		}
		w.Title = "Go"
		_, err := r.Update(ctx, w)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 5, w.Version)
	require.Len(t, db.txs, 1)
	assert.Equal(t, 3, lastArg(db.txs[0].args[1]))
	assert.Equal(t, 4, lastArg(db.txs[0].args[2]))
}

func TestBaseRepo_RolledBackUpdateRestoresVersion(t *testing.T) {
	db := &fakeDB{version: 4}
	s := newSession(db)
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](s, workshop.Entity)
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.NewFromInt(100))
	w.Version = 3

	boom := errors.New("later step failed")
	err := s.TxManager().RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := r.Update(ctx, w); err != nil {
			return err
		}
		assert.Equal(t, 4, w.Version)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, w.Version)
	assert.True(t, db.txs[0].rolledBack)
}

func TestBaseRepo_StampsBusinessEntities(t *testing.T) {
	db := &fakeDB{version: 2}
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](newSession(db), workshop.Entity)
	at := time.Date(2024, 9, 25, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at }
	ctx := appctx.WithUserID(context.Background(), "u-1")
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.NewFromInt(100))

	_, err := r.CreateMany(ctx, []*workshop.Workshop{w})
	require.NoError(t, err)
	assert.Equal(t, at, w.CreatedAt)
	assert.Equal(t, "u-1", w.CreatedBy)
	assert.Nil(t, w.UpdatedAt)
	assert.Contains(t, db.txs[0].args[1], "u-1")

	w.MarkDeleted()
	_, err = r.Update(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, w.UpdatedAt)
	assert.Equal(t, at, *w.UpdatedAt)
	assert.Equal(t, "u-1", w.ModifiedBy)
	require.NotNil(t, w.DeleteDate)
	assert.Equal(t, at, *w.DeleteDate)
	assert.Equal(t, "u-1", w.DeletedBy)

	later := at.Add(time.Hour)
	r.now = func() time.Time { return later }
	_, err = r.Update(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, at, *w.DeleteDate, "deletion stamped once")
	assert.Equal(t, later, *w.UpdatedAt)
}

func TestBaseRepo_ProtectedEntityCannotBeDeleted(t *testing.T) {
	db := &fakeDB{tag: "DELETE 1"}
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](newSession(db), workshop.Entity)
	w := workshop.NewWorkshop("Chess", id.New(), 1, decimal.NewFromInt(100))
	w.SystemProtected = true

	err := r.Delete(context.Background(), w)
	assert.True(t, apperror.IsProtected(err))

	w.MarkDeleted()
	_, err = r.Update(context.Background(), w)
	assert.True(t, apperror.IsProtected(err))
	assert.EqualError(t, err, "PROTECTED_OBJECT: Cannot delete a protected object")
	assert.Nil(t, w.DeleteDate)
	assert.Empty(t, db.txs)
}

func TestBaseRepo_ReadAndUpdateWithMissingRowIsConcurrencyError(t *testing.T) {
	db := &fakeDB{}
	r := NewSoftDeleteRepo[id.ID, *workshop.Workshop](newSession(db), workshop.Entity)

	applied := false
	_, err := r.ReadAndUpdateWith(context.Background(), id.New(), func(w *workshop.Workshop) *workshop.Workshop {
		applied = true
		return w
	})

	assert.True(t, apperror.IsConcurrentModification(err))
	assert.False(t, applied)
	assert.Empty(t, db.txs)
}
