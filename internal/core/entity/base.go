// Package entity provides the capabilities every persisted record exposes to the
// generic data-access layer, plus embeddable base structs implementing them.
package entity

import (
	"context"
	"time"

	"outofschool/internal/core/id"
)

// Keyed is any record identified by a key of type K.
// The key is immutable once assigned.
type Keyed[K comparable] interface {
	GetID() K
}

// SoftDeletable is a Keyed record carrying a logical deletion flag.
// Once set, the flag is never cleared by the data-access layer.
type SoftDeletable[K comparable] interface {
	Keyed[K]
	IsDeleted() bool
	MarkDeleted()
}

// Versioned records take part in optimistic locking.
type Versioned interface {
	GetVersion() int
	SetVersion(v int)
}

// BusinessEntity records are stamped with who changed them and when on every save.
// System-protected records refuse deletion.
type BusinessEntity interface {
	StampCreated(at time.Time, by string)
	StampModified(at time.Time, by string)
	StampDeleted(at time.Time, by string)
	DeleteStamped() bool
	IsSystemProtected() bool
}

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity is the base for UUID-keyed records.
type BaseEntity struct {
	ID id.ID `db:"id" json:"id"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{ID: id.New()}
}

func (b *BaseEntity) GetID() id.ID { return b.ID }

// LongEntity is the base for identity-column records.
// A zero ID lets the database assign the key on insert.
type LongEntity struct {
	ID id.Long `db:"id" json:"id"`
}

func (b *LongEntity) GetID() id.Long { return b.ID }

// SoftDeleted adds the logical deletion flag.
type SoftDeleted struct {
	Deleted bool `db:"is_deleted" json:"isDeleted"`
}

func (s *SoftDeleted) IsDeleted() bool { return s.Deleted }

// MarkDeleted sets the deletion flag. There is deliberately no inverse.
func (s *SoftDeleted) MarkDeleted() { s.Deleted = true }

// VersionField carries the optimistic locking counter (incremented on each update).
type VersionField struct {
	Version int `db:"version" json:"version"`
}

func (v *VersionField) GetVersion() int  { return v.Version }
func (v *VersionField) SetVersion(n int) { v.Version = n }

// Business carries the save stamps of a BusinessEntity.
type Business struct {
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy       string     `db:"created_by" json:"createdBy"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
	ModifiedBy      string     `db:"modified_by" json:"modifiedBy,omitempty"`
	DeleteDate      *time.Time `db:"delete_date" json:"deleteDate,omitempty"`
	DeletedBy       string     `db:"deleted_by" json:"deletedBy,omitempty"`
	SystemProtected bool       `db:"is_system_protected" json:"isSystemProtected"`
}

func (b *Business) StampCreated(at time.Time, by string) {
	b.CreatedAt = at
	b.CreatedBy = by
}

func (b *Business) StampModified(at time.Time, by string) {
	b.UpdatedAt = &at
	b.ModifiedBy = by
}

func (b *Business) StampDeleted(at time.Time, by string) {
	b.DeleteDate = &at
	b.DeletedBy = by
}

func (b *Business) DeleteStamped() bool     { return b.DeleteDate != nil }
func (b *Business) IsSystemProtected() bool { return b.SystemProtected }
