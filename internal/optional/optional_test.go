package optional_test

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

func TestOptional(t *testing.T) {
	t.Run("can create new optional with value", func(t *testing.T) {
		x := optional.New(55)
		v, ok := x.Value()
		assert.True(t, ok)
		assert.Equal(t, 55, v)
		assert.False(t, x.IsEmpty())
	})
	t.Run("zero value is empty", func(t *testing.T) {
		var x optional.Optional[int]
		assert.True(t, x.IsEmpty())
		assert.Equal(t, 0, x.ValueOrZero())
		assert.Equal(t, 7, x.ValueOrFallback(7))
	})
	t.Run("can set and clear", func(t *testing.T) {
		var x optional.Optional[int64]
		x.Set(45)
		assert.EqualValues(t, 45, x.ValueOrZero())
		x.Clear()
		assert.True(t, x.IsEmpty())
	})
	t.Run("can print", func(t *testing.T) {
		assert.Equal(t, "12", fmt.Sprint(optional.New(12)))
		assert.Equal(t, "<empty>", fmt.Sprint(optional.Optional[int]{}))
	})
	t.Run("should treat zero time as empty", func(t *testing.T) {
		assert.True(t, optional.FromTimeWithZero(time.Time{}).IsEmpty())
		assert.False(t, optional.FromTimeWithZero(time.Now()).IsEmpty())
	})
}

func TestNullTypes(t *testing.T) {
	t.Run("int64 round trip", func(t *testing.T) {
		n := optional.ToNullInt64(optional.New[int32](42))
		assert.Equal(t, sql.NullInt64{Int64: 42, Valid: true}, n)
		o := optional.FromNullInt64[int32](n)
		assert.EqualValues(t, 42, o.ValueOrZero())
		assert.True(t, optional.FromNullInt64[int32](sql.NullInt64{}).IsEmpty())
	})
	t.Run("string", func(t *testing.T) {
		assert.False(t, optional.ToNullString(optional.Optional[string]{}).Valid)
		assert.Equal(t, "x", optional.FromNullString(sql.NullString{String: "x", Valid: true}).ValueOrZero())
	})
	t.Run("time", func(t *testing.T) {
		now := time.Now().UTC()
		assert.Equal(t, now, optional.FromNullTime(optional.ToNullTime(optional.New(now))).ValueOrZero())
		assert.False(t, optional.ToNullTime(optional.Optional[time.Time]{}).Valid)
	})
}
