package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"outofschool/internal/core/id"
)

type sample struct {
	BaseEntity
	SoftDeleted
	VersionField
	Business
}

func TestSample_Capabilities(t *testing.T) {
	s := &sample{BaseEntity: NewBaseEntity(), VersionField: VersionField{Version: 1}}

	var keyed SoftDeletable[id.ID] = s
	assert.False(t, keyed.IsDeleted())
	keyed.MarkDeleted()
	assert.True(t, keyed.IsDeleted())

	var v Versioned = s
	v.SetVersion(3)
	assert.Equal(t, 3, s.GetVersion())
}

func TestLongEntity_ZeroKey(t *testing.T) {
	var e LongEntity
	assert.Zero(t, e.GetID())
}

func TestBusiness_Stamps(t *testing.T) {
	s := &sample{BaseEntity: NewBaseEntity()}
	at := time.Date(2024, 9, 25, 10, 0, 0, 0, time.UTC)

	var b BusinessEntity = s
	b.StampCreated(at, "u-1")
	assert.Equal(t, at, s.CreatedAt)
	assert.Equal(t, "u-1", s.CreatedBy)
	assert.Nil(t, s.UpdatedAt)

	b.StampModified(at.Add(time.Hour), "u-2")
	assert.Equal(t, at.Add(time.Hour), *s.UpdatedAt)
	assert.Equal(t, "u-2", s.ModifiedBy)

	assert.False(t, b.DeleteStamped())
	b.StampDeleted(at, "u-3")
	assert.True(t, b.DeleteStamped())
	assert.Equal(t, "u-3", s.DeletedBy)
	assert.False(t, b.IsSystemProtected())
}
