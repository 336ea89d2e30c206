package changeslog

import (
	"context"
	"reflect"
	"strings"
	"time"

	"outofschool/internal/core/apperror"
	appctx "outofschool/internal/core/context"
	"outofschool/internal/core/id"
	"outofschool/internal/domain"
	"outofschool/internal/domain/filter"
	"outofschool/pkg/logger"
)

// Config lists, per entity type name, the properties whose changes are logged.
// Type names match case-insensitively.
type Config struct {
	TrackedProperties map[string][]string `mapstructure:"trackedProperties"`
}

// Recorder stages ChangesLog rows for the tracked, modified properties of entity.
// The rows are written together with the next save of the session entity belongs to.
type Recorder interface {
	RecordChanges(ctx context.Context, entity any, userID string, tracked []string, project ValueProjector) ([]*ChangesLog, error)
}

// Filter selects changes log rows. EntityType is required.
type Filter struct {
	EntityType   string
	PropertyName string

	// EntityID is a UUID or an integer key.
	EntityID string

	// DateFrom and DateTo are inclusive calendar days.
	DateFrom *time.Time
	DateTo   *time.Time

	// SearchString matches any of its space or comma separated words
	// against old value, new value and user.
	SearchString string

	From int
	Size int
}

// Validate checks paging and the required entity type.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.EntityType) == "" {
		return apperror.NewValidation("entity type is required").WithDetail("field", "entityType")
	}
	if f.From < 0 {
		return apperror.NewValidation("from must not be negative").WithDetail("field", "from")
	}
	if f.Size < 0 {
		return apperror.NewValidation("size must not be negative").WithDetail("field", "size")
	}
	return nil
}

// Service records and queries the changes log.
type Service struct {
	tracked   map[string][]string
	recorder  Recorder
	repo      domain.Repository[id.Long, *ChangesLog]
	projector ValueProjector
}

// NewService creates a Service. A nil projector means DefaultProjector.
func NewService(cfg Config, recorder Recorder, repo domain.Repository[id.Long, *ChangesLog], projector ValueProjector) *Service {
	if projector == nil {
		projector = DefaultProjector
	}
	tracked := make(map[string][]string, len(cfg.TrackedProperties))
	for name, props := range cfg.TrackedProperties {
		tracked[strings.ToLower(name)] = props
	}
	return &Service{tracked: tracked, recorder: recorder, repo: repo, projector: projector}
}

// AddEntityChanges stages log rows for the configured properties of entity and
// returns how many were staged. Entity types without configuration are skipped.
// An empty userID falls back to the user of ctx.
func (s *Service) AddEntityChanges(ctx context.Context, entity any, userID string) (int, error) {
	entityType := TypeName(entity)
	tracked, ok := s.tracked[strings.ToLower(entityType)]
	if !ok || len(tracked) == 0 {
		logger.Debug(ctx, "changes log is not configured", "entity", entityType)
		return 0, nil
	}

	if userID == "" {
		userID = appctx.GetUserID(ctx)
	}

	logger.Debug(ctx, "recording entity changes", "entity", entityType, "properties", tracked)

	added, err := s.recorder.RecordChanges(ctx, entity, userID, tracked, s.projector)
	if err != nil {
		return 0, err
	}

	logger.Debug(ctx, "entity changes recorded", "entity", entityType, "count", len(added))
	return len(added), nil
}

// GetChangesLog returns a page of rows matching f, newest first.
func (s *Service) GetChangesLog(ctx context.Context, f Filter) (domain.ListResult[*ChangesLog], error) {
	if err := f.Validate(); err != nil {
		return domain.ListResult[*ChangesLog]{}, err
	}

	where, err := queryFilter(f)
	if err != nil {
		return domain.ListResult[*ChangesLog]{}, err
	}

	total, err := s.repo.Count(ctx, where)
	if err != nil {
		return domain.ListResult[*ChangesLog]{}, err
	}

	items, err := s.repo.Get(domain.QueryOptions[*ChangesLog]{
		Skip:       f.From,
		Take:       f.Size,
		Where:      where,
		OrderBy:    []domain.Order{domain.Desc("updated_date"), domain.Desc("id")},
		NoTracking: true,
	}).List(ctx)
	if err != nil {
		return domain.ListResult[*ChangesLog]{}, err
	}

	return domain.ListResult[*ChangesLog]{
		Items:      items,
		TotalCount: total,
		Limit:      f.Size,
		Offset:     f.From,
	}, nil
}

// TypeName is the configuration key of entity: its struct type name.
func TypeName(entity any) string {
	t := reflect.TypeOf(entity)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func queryFilter(f Filter) (filter.Predicate[*ChangesLog], error) {
	where := filter.Eq[*ChangesLog]("entity_type", f.EntityType)

	if f.PropertyName != "" {
		where = filter.Rewrite(where, filter.Eq[*ChangesLog]("property_name", f.PropertyName))
	}

	if f.EntityID != "" {
		guid, long, ok := id.ParseAny(f.EntityID)
		switch {
		case !ok:
			return nil, apperror.NewValidation("entity id must be a UUID or an integer").
				WithDetail("field", "entityId").
				WithDetail("value", f.EntityID)
		case guid != nil:
			where = filter.Rewrite(where, filter.Eq[*ChangesLog]("entity_id_guid", *guid))
		default:
			where = filter.Rewrite(where, filter.Eq[*ChangesLog]("entity_id_long", *long))
		}
	}

	if f.DateFrom != nil {
		where = filter.Rewrite(where, filter.GtOrEq[*ChangesLog]("updated_date", startOfDay(*f.DateFrom)))
	}
	if f.DateTo != nil {
		where = filter.Rewrite(where, filter.Lt[*ChangesLog]("updated_date", startOfDay(*f.DateTo).AddDate(0, 0, 1)))
	}

	words := strings.FieldsFunc(f.SearchString, func(r rune) bool { return r == ' ' || r == ',' })
	if len(words) > 0 {
		var matches []filter.Predicate[*ChangesLog]
		for _, w := range words {
			pattern := "%" + likeEscaper.Replace(w) + "%"
			matches = append(matches,
				filter.ILike[*ChangesLog]("old_value", pattern),
				filter.ILike[*ChangesLog]("new_value", pattern),
				filter.ILike[*ChangesLog]("user_id", pattern),
			)
		}
		where = filter.Rewrite(where, filter.Or(matches...))
	}

	return where, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
