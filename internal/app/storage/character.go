package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErikKalkoken/go-set"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

type UpdateOrCreateCharacterParams struct {
	ID             int32
	AccessToken    string
	CorporationID  int32
	Name           string
	Scopes         set.Set[string]
	TokenExpiresAt optional.Optional[time.Time]
}

// UpdateOrCreateCharacter updates or creates a character and replaces its scopes.
func (st *Storage) UpdateOrCreateCharacter(ctx context.Context, arg UpdateOrCreateCharacterParams) error {
	wrapErr := func(err error) error {
		return fmt.Errorf("update or create character %d: %w", arg.ID, err)
	}
	if arg.ID == 0 || arg.CorporationID == 0 {
		return wrapErr(app.ErrInvalid)
	}
	tx, err := st.dbRW.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO characters (id, access_token, corporation_id, name, token_expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			corporation_id = excluded.corporation_id,
			name = excluded.name,
			token_expires_at = excluded.token_expires_at;`,
		arg.ID,
		arg.AccessToken,
		arg.CorporationID,
		arg.Name,
		optional.ToNullTime(arg.TokenExpiresAt),
	)
	if err != nil {
		return wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM character_scopes WHERE character_id = ?;`, arg.ID); err != nil {
		return wrapErr(err)
	}
	for s := range arg.Scopes.All() {
		_, err := tx.ExecContext(ctx, `INSERT INTO character_scopes (character_id, scope) VALUES (?, ?);`, arg.ID, s)
		if err != nil {
			return wrapErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (st *Storage) GetCharacter(ctx context.Context, characterID int32) (*app.Character, error) {
	var c app.Character
	var expiresAt sql.NullTime
	err := st.dbRO.QueryRowContext(ctx, `
		SELECT id, access_token, corporation_id, name, token_expires_at
		FROM characters
		WHERE id = ?;`,
		characterID,
	).Scan(&c.ID, &c.AccessToken, &c.CorporationID, &c.Name, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = app.ErrNotFound
		}
		return nil, fmt.Errorf("get character %d: %w", characterID, err)
	}
	c.TokenExpiresAt = optional.FromNullTime(expiresAt)
	scopes, err := st.listCharacterScopes(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("get character %d: %w", characterID, err)
	}
	c.Scopes = scopes
	return &c, nil
}

func (st *Storage) listCharacterScopes(ctx context.Context, characterID int32) (set.Set[string], error) {
	var scopes set.Set[string]
	rows, err := st.dbRO.QueryContext(ctx, `SELECT scope FROM character_scopes WHERE character_id = ?;`, characterID)
	if err != nil {
		return scopes, err
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return scopes, err
		}
		scopes.Add(s)
	}
	return scopes, rows.Err()
}

// ListCharacterIDsForNotificationPolling returns the IDs of characters,
// which have granted the scope for reading notifications
// and belong to a corporation which owns at least one structure.
func (st *Storage) ListCharacterIDsForNotificationPolling(ctx context.Context) ([]int32, error) {
	ids, err := queryInt32s(ctx, st.dbRO, `
		SELECT DISTINCT c.id
		FROM characters c
		JOIN character_scopes cs ON cs.character_id = c.id
		WHERE cs.scope = ?
		AND c.corporation_id IN (SELECT DISTINCT corporation_id FROM structures)
		ORDER BY c.id;`,
		app.ScopeReadNotifications,
	)
	if err != nil {
		return nil, fmt.Errorf("list characters for notification polling: %w", err)
	}
	return ids, nil
}

// GetCharacterWithScopeForCorporation returns a character of a corporation,
// which has granted a scope and holds an access token.
// It returns [app.ErrNotFound] when no such character exists.
func (st *Storage) GetCharacterWithScopeForCorporation(ctx context.Context, corporationID int32, scope string) (*app.Character, error) {
	ids, err := queryInt32s(ctx, st.dbRO, `
		SELECT c.id
		FROM characters c
		JOIN character_scopes cs ON cs.character_id = c.id
		WHERE c.corporation_id = ? AND cs.scope = ? AND c.access_token != ''
		ORDER BY c.token_expires_at DESC, c.id;`,
		corporationID,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("get character with scope %s for corporation %d: %w", scope, corporationID, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("get character with scope %s for corporation %d: %w", scope, corporationID, app.ErrNotFound)
	}
	return st.GetCharacter(ctx, ids[0])
}

func (st *Storage) DeleteCharacter(ctx context.Context, characterID int32) error {
	_, err := st.dbRW.ExecContext(ctx, `DELETE FROM characters WHERE id = ?;`, characterID)
	if err != nil {
		return fmt.Errorf("delete character %d: %w", characterID, err)
	}
	return nil
}
