package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

type UpdateOrCreateCorporationParams struct {
	ID           int32
	AllianceID   optional.Optional[int32]
	AllianceName optional.Optional[string]
	Name         string
}

func (st *Storage) UpdateOrCreateCorporation(ctx context.Context, arg UpdateOrCreateCorporationParams) error {
	if arg.ID == 0 {
		return fmt.Errorf("update or create corporation: %+v: %w", arg, app.ErrInvalid)
	}
	_, err := st.dbRW.ExecContext(ctx, `
		INSERT INTO corporations (id, alliance_id, alliance_name, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			alliance_id = excluded.alliance_id,
			alliance_name = excluded.alliance_name,
			name = excluded.name;`,
		arg.ID,
		optional.ToNullInt64(arg.AllianceID),
		optional.ToNullString(arg.AllianceName),
		arg.Name,
	)
	if err != nil {
		return fmt.Errorf("update or create corporation %d: %w", arg.ID, err)
	}
	return nil
}

func (st *Storage) GetCorporation(ctx context.Context, corporationID int32) (*app.Corporation, error) {
	var c app.Corporation
	var allianceID sql.NullInt64
	var allianceName sql.NullString
	err := st.dbRO.QueryRowContext(ctx, `
		SELECT id, alliance_id, alliance_name, name
		FROM corporations
		WHERE id = ?;`,
		corporationID,
	).Scan(&c.ID, &allianceID, &allianceName, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = app.ErrNotFound
		}
		return nil, fmt.Errorf("get corporation %d: %w", corporationID, err)
	}
	c.AllianceID = optional.FromNullInt64[int32](allianceID)
	c.AllianceName = optional.FromNullString(allianceName)
	return &c, nil
}

// ListCorporationIDs returns the IDs of all managed corporations.
func (st *Storage) ListCorporationIDs(ctx context.Context) ([]int32, error) {
	ids, err := queryInt32s(ctx, st.dbRO, `SELECT id FROM corporations ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list corporation IDs: %w", err)
	}
	return ids, nil
}

func (st *Storage) DeleteCorporation(ctx context.Context, corporationID int32) error {
	_, err := st.dbRW.ExecContext(ctx, `DELETE FROM corporations WHERE id = ?;`, corporationID)
	if err != nil {
		return fmt.Errorf("delete corporation %d: %w", corporationID, err)
	}
	return nil
}

func queryInt32s(ctx context.Context, db *sql.DB, query string, args ...any) ([]int32, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]int32, 0)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
