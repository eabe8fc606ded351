package optional

import (
	"database/sql"
	"time"

	"golang.org/x/exp/constraints"
)

func FromNullInt64[T constraints.Integer](v sql.NullInt64) Optional[T] {
	if !v.Valid {
		return Optional[T]{}
	}
	return New(T(v.Int64))
}

func FromNullString(v sql.NullString) Optional[string] {
	if !v.Valid {
		return Optional[string]{}
	}
	return New(v.String)
}

func FromNullTime(v sql.NullTime) Optional[time.Time] {
	if !v.Valid {
		return Optional[time.Time]{}
	}
	return New(v.Time.UTC())
}

func ToNullInt64[T constraints.Integer](o Optional[T]) sql.NullInt64 {
	if o.IsEmpty() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(o.ValueOrZero()), Valid: true}
}

func ToNullString(o Optional[string]) sql.NullString {
	if o.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: o.ValueOrZero(), Valid: true}
}

func ToNullTime(o Optional[time.Time]) sql.NullTime {
	if o.IsEmpty() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: o.ValueOrZero(), Valid: true}
}
