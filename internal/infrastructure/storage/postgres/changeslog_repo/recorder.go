// Package changeslog_repo provides the PostgreSQL side of the changes log:
// the recorder that diffs tracked entities into ChangesLog rows and the
// repository reading them back.
package changeslog_repo

import (
	"context"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"outofschool/internal/core/apperror"
	"outofschool/internal/core/id"
	"outofschool/internal/domain/changeslog"
	"outofschool/internal/infrastructure/storage/postgres"
	"outofschool/internal/infrastructure/storage/postgres/repo"
	"outofschool/internal/metadata"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var insertColumns = []string{
	"entity_type", "entity_id_guid", "entity_id_long", "property_name",
	"old_value", "new_value", "values_archive", "updated_date", "user_id",
}

// Recorder implements changeslog.Recorder over a session's change tracker.
type Recorder struct {
	session  *postgres.Session
	archiver *postgres.Archiver
	now      func() time.Time
}

// NewRecorder creates a recorder staging rows into session.
func NewRecorder(session *postgres.Session, archiver *postgres.Archiver) *Recorder {
	return &Recorder{
		session:  session,
		archiver: archiver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordChanges builds one row per tracked property of entity that changed
// since it was attached to the session, and stages the rows so that the next
// SaveChanges inserts them together with the entity's own write.
//
// Scalars are compared directly. A single-valued navigation counts as changed
// when the related entity it points to has modified scalars; its old value is
// the related entity as it was loaded. Collections and unknown names are ignored.
func (r *Recorder) RecordChanges(
	ctx context.Context,
	entity any,
	userID string,
	tracked []string,
	project changeslog.ValueProjector,
) ([]*changeslog.ChangesLog, error) {
	desc, ok := r.session.Registry().Lookup(entity)
	if !ok {
		return nil, apperror.NewValidation("entity type is not mapped").
			WithDetail("type", fmt.Sprintf("%T", entity))
	}

	guid, long, err := entityKey(desc, entity)
	if err != nil {
		return nil, err
	}

	entry, ok := r.session.Tracker().Entry(entity)
	if !ok {
		return nil, nil
	}

	var (
		records []*changeslog.ChangesLog
		queries []postgres.BatchQuery
	)
	for _, name := range tracked {
		f, ok := desc.Field(name)
		if !ok {
			continue
		}

		var oldValue, newValue any
		switch f.Kind {
		case metadata.KindScalar:
			if !entry.IsModified(name) {
				continue
			}
			oldValue, newValue = entry.Original(name), entry.Current(name)
		case metadata.KindReference:
			current := entry.Current(name)
			if current == nil {
				continue
			}
			related, ok := r.session.Tracker().Entry(current)
			if !ok || !related.IsModified() {
				continue
			}
			oldValue, newValue = related.OriginalEntity(), current
		default:
			continue
		}

		rec, err := r.newRecord(desc, f, guid, long, userID,
			projectValue(project, f.Type, oldValue), projectValue(project, f.Type, newValue))
		if err != nil {
			return nil, err
		}

		bq, err := postgres.NewBatchQuery(psql.Insert(changeslog.Entity.Table).
			Columns(insertColumns...).
			Values(rec.EntityType, rec.EntityIDGuid, rec.EntityIDLong, rec.PropertyName,
				rec.OldValue, rec.NewValue, rec.ValuesArchive, rec.UpdatedDate, rec.UserID))
		if err != nil {
			return nil, fmt.Errorf("build changes log insert: %w", err)
		}

		records = append(records, rec)
		queries = append(queries, bq)
	}

	r.session.Stage(ctx, queries...)
	return records, nil
}

func (r *Recorder) newRecord(
	desc *metadata.Entity,
	f *metadata.Field,
	guid *id.ID,
	long *id.Long,
	userID string,
	oldValue, newValue *string,
) (*changeslog.ChangesLog, error) {
	limits := changeslog.Entity

	rec := &changeslog.ChangesLog{
		EntityType:   truncate(desc.Name, limits.MaxLength("EntityType")),
		EntityIDGuid: guid,
		EntityIDLong: long,
		PropertyName: truncate(f.Name, limits.MaxLength("PropertyName")),
		OldValue:     truncatePtr(oldValue, limits.MaxLength("OldValue")),
		NewValue:     truncatePtr(newValue, limits.MaxLength("NewValue")),
		UpdatedDate:  r.now(),
	}
	if userID != "" {
		u := truncate(userID, limits.MaxLength("UserID"))
		rec.UserID = &u
	}

	if !sameString(rec.OldValue, oldValue) || !sameString(rec.NewValue, newValue) {
		archive, err := r.archiver.Pack(changeslog.ArchivedValues{Old: oldValue, New: newValue})
		if err != nil {
			return nil, err
		}
		rec.ValuesArchive = archive
	}
	return rec, nil
}

// FullValues returns the untruncated value pair of rec.
func (r *Recorder) FullValues(rec *changeslog.ChangesLog) (changeslog.ArchivedValues, error) {
	if len(rec.ValuesArchive) == 0 {
		return changeslog.ArchivedValues{Old: rec.OldValue, New: rec.NewValue}, nil
	}
	var v changeslog.ArchivedValues
	err := r.archiver.Unpack(rec.ValuesArchive, &v)
	return v, err
}

// NewRepository returns the repository reading changes log rows.
func NewRepository(session *postgres.Session) *repo.BaseRepo[id.Long, *changeslog.ChangesLog] {
	return repo.NewBaseRepo[id.Long, *changeslog.ChangesLog](session, changeslog.Entity)
}

var guidType = reflect.TypeFor[uuid.UUID]()

// entityKey maps the key of entity onto the two key columns of the log.
func entityKey(desc *metadata.Entity, entity any) (*id.ID, *id.Long, error) {
	t := desc.Key.Type
	switch {
	case t == guidType:
		g := desc.Key.Get(entity).(uuid.UUID)
		return &g, nil, nil
	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
		l := reflect.ValueOf(desc.Key.Get(entity)).Int()
		return nil, &l, nil
	default:
		return nil, nil, apperror.NewUnsupportedKeyType(desc.Name, t.String())
	}
}

func projectValue(project changeslog.ValueProjector, declared reflect.Type, v any) *string {
	if v == nil {
		return nil
	}
	s := project(declared, v)
	return &s
}

// truncate cuts s to at most max characters; max <= 0 means unbounded.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func truncatePtr(s *string, max int) *string {
	if s == nil {
		return nil
	}
	t := truncate(*s, max)
	return &t
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
