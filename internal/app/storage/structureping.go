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

type GetOrCreateStructurePingParams struct {
	EventTime        time.Time
	NotificationID   int64
	NotificationType string
	ReportedByID     optional.Optional[int32]
	StructureID      int64
	Summary          string
	Text             optional.Optional[string]
}

// GetOrCreateStructurePing returns the ping for a notification and creates it when it does not exist.
// Created reports whether the ping was created by this call.
// An existing ping is returned unchanged.
func (st *Storage) GetOrCreateStructurePing(ctx context.Context, arg GetOrCreateStructurePingParams) (ping *app.StructurePing, created bool, err error) {
	if arg.NotificationID == 0 {
		return nil, false, fmt.Errorf("get or create structure ping: %+v: %w", arg, app.ErrInvalid)
	}
	r, err := st.dbRW.ExecContext(ctx, `
		INSERT INTO structure_pings (
			event_time, notification_id, notification_type, reported_by_id, structure_id, summary, text
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (notification_id) DO NOTHING;`,
		arg.EventTime.UTC(),
		arg.NotificationID,
		arg.NotificationType,
		optional.ToNullInt64(arg.ReportedByID),
		arg.StructureID,
		arg.Summary,
		optional.ToNullString(arg.Text),
	)
	if err != nil {
		return nil, false, fmt.Errorf("get or create structure ping %d: %w", arg.NotificationID, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get or create structure ping %d: %w", arg.NotificationID, err)
	}
	ping, err = st.GetStructurePing(ctx, arg.NotificationID)
	if err != nil {
		return nil, false, err
	}
	return ping, n == 1, nil
}

const selectStructurePingSQL = `
	SELECT id, discord_success, event_time, notification_id, notification_type,
		reported_by_id, structure_id, summary, text
	FROM structure_pings `

func scanStructurePing(r rowScanner) (*app.StructurePing, error) {
	var p app.StructurePing
	var reportedByID sql.NullInt64
	var text sql.NullString
	err := r.Scan(
		&p.ID,
		&p.DiscordSuccess,
		&p.EventTime,
		&p.NotificationID,
		&p.NotificationType,
		&reportedByID,
		&p.StructureID,
		&p.Summary,
		&text,
	)
	if err != nil {
		return nil, err
	}
	p.EventTime = p.EventTime.UTC()
	p.ReportedByID = optional.FromNullInt64[int32](reportedByID)
	p.Text = optional.FromNullString(text)
	return &p, nil
}

// GetStructurePing returns the ping for a notification.
func (st *Storage) GetStructurePing(ctx context.Context, notificationID int64) (*app.StructurePing, error) {
	p, err := scanStructurePing(st.dbRW.QueryRowContext(ctx, selectStructurePingSQL+`WHERE notification_id = ?;`, notificationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = app.ErrNotFound
		}
		return nil, fmt.Errorf("get structure ping %d: %w", notificationID, err)
	}
	return p, nil
}

// GetLatestStructurePingExcluding returns the most recent ping for a structure,
// ignoring the ping of the given notification.
// It returns [app.ErrNotFound] when there is no such ping.
func (st *Storage) GetLatestStructurePingExcluding(ctx context.Context, structureID, notificationID int64) (*app.StructurePing, error) {
	p, err := scanStructurePing(st.dbRW.QueryRowContext(ctx, selectStructurePingSQL+`
		WHERE structure_id = ? AND notification_id != ?
		ORDER BY event_time DESC, id DESC
		LIMIT 1;`,
		structureID,
		notificationID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = app.ErrNotFound
		}
		return nil, fmt.Errorf("get latest structure ping for %d: %w", structureID, err)
	}
	return p, nil
}

func (st *Storage) UpdateStructurePingDiscordSuccess(ctx context.Context, notificationID int64, success bool) error {
	_, err := st.dbRW.ExecContext(ctx, `
		UPDATE structure_pings SET discord_success = ?
		WHERE notification_id = ?;`,
		success,
		notificationID,
	)
	if err != nil {
		return fmt.Errorf("update discord success for structure ping %d: %w", notificationID, err)
	}
	return nil
}

// DeleteStructurePingsBefore deletes all pings with an event time before t
// and returns the number of deleted pings.
func (st *Storage) DeleteStructurePingsBefore(ctx context.Context, t time.Time) (int64, error) {
	r, err := st.dbRW.ExecContext(ctx, `DELETE FROM structure_pings WHERE event_time < ?;`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete structure pings before %s: %w", t, err)
	}
	return r.RowsAffected()
}
