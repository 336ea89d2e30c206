// Package changeslog provides the audit trail of tracked entity properties:
// one ChangesLog row per modified property, recorded atomically with the write
// that modified it.
package changeslog

import (
	"time"

	"outofschool/internal/core/entity"
	"outofschool/internal/core/id"
	"outofschool/internal/metadata"
)

// ChangesLog records one property change of one entity.
// Exactly one of EntityIDGuid and EntityIDLong is set.
type ChangesLog struct {
	entity.LongEntity

	EntityType   string   `db:"entity_type" json:"entityType"`
	EntityIDGuid *id.ID   `db:"entity_id_guid" json:"entityIdGuid,omitempty"`
	EntityIDLong *id.Long `db:"entity_id_long" json:"entityIdLong,omitempty"`
	PropertyName string   `db:"property_name" json:"propertyName"`

	// OldValue and NewValue are projected display strings, nil when the raw value was nil.
	OldValue *string `db:"old_value" json:"oldValue"`
	NewValue *string `db:"new_value" json:"newValue"`

	// ValuesArchive holds the untruncated pair when either value was cut to fit.
	ValuesArchive []byte `db:"values_archive" json:"-"`

	UpdatedDate time.Time `db:"updated_date" json:"updatedDate"`
	UserID      *string   `db:"user_id" json:"userId"`
}

// Entity describes ChangesLog for the data-access layer.
var Entity = describe()

func describe() *metadata.Entity {
	b := metadata.New[*ChangesLog]("ChangesLog", "changes_log")
	metadata.Key(b, "ID", "id", func(c *ChangesLog) id.Long { return c.ID })
	metadata.Scalar(b, "EntityType", "entity_type", func(c *ChangesLog) string { return c.EntityType }, metadata.MaxLength(128))
	metadata.Scalar(b, "EntityIDGuid", "entity_id_guid", func(c *ChangesLog) *id.ID { return c.EntityIDGuid })
	metadata.Scalar(b, "EntityIDLong", "entity_id_long", func(c *ChangesLog) *id.Long { return c.EntityIDLong })
	metadata.Scalar(b, "PropertyName", "property_name", func(c *ChangesLog) string { return c.PropertyName }, metadata.MaxLength(128))
	metadata.Scalar(b, "OldValue", "old_value", func(c *ChangesLog) *string { return c.OldValue }, metadata.MaxLength(500))
	metadata.Scalar(b, "NewValue", "new_value", func(c *ChangesLog) *string { return c.NewValue }, metadata.MaxLength(500))
	metadata.Scalar(b, "ValuesArchive", "values_archive", func(c *ChangesLog) []byte { return c.ValuesArchive })
	metadata.Scalar(b, "UpdatedDate", "updated_date", func(c *ChangesLog) time.Time { return c.UpdatedDate })
	metadata.Scalar(b, "UserID", "user_id", func(c *ChangesLog) *string { return c.UserID }, metadata.MaxLength(255))
	return b.Build()
}

// ArchivedValues is the untruncated value pair kept in ValuesArchive.
type ArchivedValues struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}
