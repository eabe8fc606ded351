package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

type UpdateOrCreateOpenStructureTimerParams struct {
	AllianceName    optional.Optional[string]
	CorporationName string
	Name            string
	Now             time.Time
	State           app.TimerState
	StructureID     optional.Optional[int64] // set for timers linked to a known structure
	SystemName      string
	Timer           time.Time
	Type            app.TimerType
}

// UpdateOrCreateOpenStructureTimer updates the open timer matching arg or creates a new one.
// It returns the timer and reports whether it was created.
//
// Timers linked to a structure match by structure and state.
// Unlinked timers match by system name, name and state.
// A timer is open when its timer is not before now.
// When more than one open timer matches, the one expiring first is updated.
//
// Matching and writing happen in one transaction.
func (st *Storage) UpdateOrCreateOpenStructureTimer(ctx context.Context, arg UpdateOrCreateOpenStructureTimerParams) (timer *app.StructureTimer, created bool, err error) {
	wrapErr := func(err error) error {
		return fmt.Errorf("update or create open structure timer %s/%s/%s: %w", arg.SystemName, arg.Name, arg.State, err)
	}
	if !arg.State.IsValid() || arg.Type == "" || arg.Timer.IsZero() {
		return nil, false, wrapErr(app.ErrInvalid)
	}
	now := arg.Now.UTC()
	tx, err := st.dbRW.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, wrapErr(err)
	}
	defer tx.Rollback()
	var row *sql.Row
	if structureID, ok := arg.StructureID.Value(); ok {
		row = tx.QueryRowContext(ctx, `
			SELECT id FROM structure_timers
			WHERE structure_id = ? AND state = ? AND timer >= ?
			ORDER BY timer, id
			LIMIT 1;`,
			structureID, arg.State, now,
		)
	} else {
		row = tx.QueryRowContext(ctx, `
			SELECT id FROM structure_timers
			WHERE structure_id IS NULL AND system_name = ? AND name = ? AND state = ? AND timer >= ?
			ORDER BY timer, id
			LIMIT 1;`,
			arg.SystemName, arg.Name, arg.State, now,
		)
	}
	var id int64
	err = row.Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r, err := tx.ExecContext(ctx, `
			INSERT INTO structure_timers (
				alliance_name, corporation_name, created_at, name, state,
				structure_id, system_name, timer, type, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			optional.ToNullString(arg.AllianceName),
			arg.CorporationName,
			now,
			arg.Name,
			arg.State,
			optional.ToNullInt64(arg.StructureID),
			arg.SystemName,
			arg.Timer.UTC(),
			arg.Type,
			now,
		)
		if err != nil {
			return nil, false, wrapErr(err)
		}
		id, err = r.LastInsertId()
		if err != nil {
			return nil, false, wrapErr(err)
		}
		created = true
	case err != nil:
		return nil, false, wrapErr(err)
	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE structure_timers SET
				alliance_name = ?,
				corporation_name = ?,
				name = ?,
				system_name = ?,
				timer = ?,
				updated_at = ?
			WHERE id = ?;`,
			optional.ToNullString(arg.AllianceName),
			arg.CorporationName,
			arg.Name,
			arg.SystemName,
			arg.Timer.UTC(),
			now,
			id,
		)
		if err != nil {
			return nil, false, wrapErr(err)
		}
	}
	timer, err = scanStructureTimer(tx.QueryRowContext(ctx, selectStructureTimerSQL+`WHERE id = ?;`, id))
	if err != nil {
		return nil, false, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, wrapErr(err)
	}
	return timer, created, nil
}

const selectStructureTimerSQL = `
	SELECT id, alliance_name, corporation_name, created_at, name, state,
		structure_id, system_name, timer, type, updated_at
	FROM structure_timers `

func scanStructureTimer(r rowScanner) (*app.StructureTimer, error) {
	var t app.StructureTimer
	var allianceName sql.NullString
	var structureID sql.NullInt64
	err := r.Scan(
		&t.ID,
		&allianceName,
		&t.CorporationName,
		&t.CreatedAt,
		&t.Name,
		&t.State,
		&structureID,
		&t.SystemName,
		&t.Timer,
		&t.Type,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AllianceName = optional.FromNullString(allianceName)
	t.StructureID = optional.FromNullInt64[int64](structureID)
	t.CreatedAt = t.CreatedAt.UTC()
	t.Timer = t.Timer.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// ListOpenStructureTimers returns all timers which are open at now, ordered by timer.
func (st *Storage) ListOpenStructureTimers(ctx context.Context, now time.Time) ([]*app.StructureTimer, error) {
	rows, err := st.dbRO.QueryContext(ctx, selectStructureTimerSQL+`
		WHERE timer >= ?
		ORDER BY timer, id;`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list open structure timers: %w", err)
	}
	defer rows.Close()
	oo := make([]*app.StructureTimer, 0)
	for rows.Next() {
		t, err := scanStructureTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("list open structure timers: %w", err)
		}
		oo = append(oo, t)
	}
	return oo, rows.Err()
}

// ListStructureTimers returns all timers, ordered by timer.
func (st *Storage) ListStructureTimers(ctx context.Context) ([]*app.StructureTimer, error) {
	rows, err := st.dbRO.QueryContext(ctx, selectStructureTimerSQL+`ORDER BY timer, id;`)
	if err != nil {
		return nil, fmt.Errorf("list structure timers: %w", err)
	}
	defer rows.Close()
	oo := make([]*app.StructureTimer, 0)
	for rows.Next() {
		t, err := scanStructureTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("list structure timers: %w", err)
		}
		oo = append(oo, t)
	}
	return oo, rows.Err()
}
