package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErikKalkoken/go-set"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

type UpdateOrCreateStructureParams struct {
	ID              int64
	CorporationID   int32
	FuelExpires     optional.Optional[time.Time]
	Name            string
	ReinforceHour   int
	State           string
	StateTimerEnd   optional.Optional[time.Time]
	StateTimerStart optional.Optional[time.Time]
	SystemID        int32
	SystemName      string
	TypeID          int32
	TypeName        string
}

func (st *Storage) UpdateOrCreateStructure(ctx context.Context, arg UpdateOrCreateStructureParams) error {
	if arg.ID <= 0 || arg.CorporationID == 0 {
		return fmt.Errorf("update or create structure %d: %w", arg.ID, app.ErrInvalid)
	}
	_, err := st.dbRW.ExecContext(ctx, `
		INSERT INTO structures (
			id, corporation_id, fuel_expires, name, reinforce_hour, state,
			state_timer_end, state_timer_start, system_id, system_name, type_id, type_name, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			corporation_id = excluded.corporation_id,
			fuel_expires = excluded.fuel_expires,
			name = excluded.name,
			reinforce_hour = excluded.reinforce_hour,
			state = excluded.state,
			state_timer_end = excluded.state_timer_end,
			state_timer_start = excluded.state_timer_start,
			system_id = excluded.system_id,
			system_name = excluded.system_name,
			type_id = excluded.type_id,
			type_name = excluded.type_name,
			updated_at = excluded.updated_at;`,
		arg.ID,
		arg.CorporationID,
		toNullTimeUTC(arg.FuelExpires),
		arg.Name,
		arg.ReinforceHour,
		arg.State,
		toNullTimeUTC(arg.StateTimerEnd),
		toNullTimeUTC(arg.StateTimerStart),
		arg.SystemID,
		arg.SystemName,
		arg.TypeID,
		arg.TypeName,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update or create structure %d: %w", arg.ID, err)
	}
	return nil
}

const selectStructureSQL = `
	SELECT id, corporation_id, fuel_expires, name, reinforce_hour, state,
		state_timer_end, state_timer_start, system_id, system_name, type_id, type_name, updated_at
	FROM structures `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStructure(r rowScanner) (*app.Structure, error) {
	var s app.Structure
	var fuelExpires, stateTimerEnd, stateTimerStart sql.NullTime
	err := r.Scan(
		&s.ID,
		&s.CorporationID,
		&fuelExpires,
		&s.Name,
		&s.ReinforceHour,
		&s.State,
		&stateTimerEnd,
		&stateTimerStart,
		&s.SystemID,
		&s.SystemName,
		&s.TypeID,
		&s.TypeName,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.FuelExpires = optional.FromNullTime(fuelExpires)
	s.StateTimerEnd = optional.FromNullTime(stateTimerEnd)
	s.StateTimerStart = optional.FromNullTime(stateTimerStart)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (st *Storage) GetStructure(ctx context.Context, structureID int64) (*app.Structure, error) {
	s, err := scanStructure(st.dbRO.QueryRowContext(ctx, selectStructureSQL+`WHERE id = ?;`, structureID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = app.ErrNotFound
		}
		return nil, fmt.Errorf("get structure %d: %w", structureID, err)
	}
	return s, nil
}

func (st *Storage) ListStructures(ctx context.Context) ([]*app.Structure, error) {
	oo, err := st.listStructures(ctx, selectStructureSQL+`ORDER BY name, id;`)
	if err != nil {
		return nil, fmt.Errorf("list structures: %w", err)
	}
	return oo, nil
}

// ListStructuresWithLowFuel returns structures with fuel expiring before a time,
// ordered by fuel expiry. Structures with a type name in excludedTypes are skipped.
func (st *Storage) ListStructuresWithLowFuel(ctx context.Context, before time.Time, excludedTypes set.Set[string]) ([]*app.Structure, error) {
	query := selectStructureSQL + `WHERE fuel_expires IS NOT NULL AND fuel_expires < ?`
	args := []any{before.UTC()}
	if n := excludedTypes.Size(); n > 0 {
		query += ` AND type_name NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", n), ",") + `)`
		for s := range excludedTypes.All() {
			args = append(args, s)
		}
	}
	query += ` ORDER BY fuel_expires, id;`
	oo, err := st.listStructures(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list structures with low fuel: %w", err)
	}
	return oo, nil
}

func (st *Storage) listStructures(ctx context.Context, query string, args ...any) ([]*app.Structure, error) {
	rows, err := st.dbRO.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	oo := make([]*app.Structure, 0)
	for rows.Next() {
		s, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		oo = append(oo, s)
	}
	return oo, rows.Err()
}

// ListStructureIDsForCorporation returns the IDs of all structures of a corporation.
func (st *Storage) ListStructureIDsForCorporation(ctx context.Context, corporationID int32) (set.Set[int64], error) {
	var ids set.Set[int64]
	rows, err := st.dbRO.QueryContext(ctx, `SELECT id FROM structures WHERE corporation_id = ?;`, corporationID)
	if err != nil {
		return ids, fmt.Errorf("list structure IDs for corporation %d: %w", corporationID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return ids, fmt.Errorf("list structure IDs for corporation %d: %w", corporationID, err)
		}
		ids.Add(id)
	}
	return ids, rows.Err()
}

// DeleteStructures deletes structures by ID.
// Timers of deleted structures are kept and become unlinked.
func (st *Storage) DeleteStructures(ctx context.Context, ids set.Set[int64]) error {
	if ids.Size() == 0 {
		return nil
	}
	tx, err := st.dbRW.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete structures: %w", err)
	}
	defer tx.Rollback()
	for id := range ids.All() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM structures WHERE id = ?;`, id); err != nil {
			return fmt.Errorf("delete structure %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete structures: %w", err)
	}
	return nil
}

// toNullTimeUTC converts an optional time to a null time in UTC.
// Times are stored in UTC so that they compare correctly as text.
func toNullTimeUTC(o optional.Optional[time.Time]) sql.NullTime {
	v, ok := o.Value()
	if !ok {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
