package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage/testutil"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

func TestStructurePing(t *testing.T) {
	db, st, factory := testutil.New()
	defer db.Close()
	ctx := context.Background()
	t.Run("should create new ping", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c := factory.CreateCharacter()
		eventTime := time.Date(2025, 5, 26, 1, 39, 10, 0, time.UTC)
		// when
		p, created, err := st.GetOrCreateStructurePing(ctx, storage.GetOrCreateStructurePingParams{
			EventTime:        eventTime,
			NotificationID:   42,
			NotificationType: "StructureLostShields",
			ReportedByID:     optional.New(c.ID),
			StructureID:      1049253339308,
			Summary:          "summary",
			Text:             optional.New("text"),
		})
		// then
		if assert.NoError(t, err) {
			assert.True(t, created)
			assert.Equal(t, eventTime, p.EventTime)
			assert.EqualValues(t, 42, p.NotificationID)
			assert.Equal(t, "StructureLostShields", p.NotificationType)
			assert.Equal(t, c.ID, p.ReportedByID.ValueOrZero())
			assert.EqualValues(t, 1049253339308, p.StructureID)
			assert.Equal(t, "summary", p.Summary)
			assert.Equal(t, "text", p.Text.ValueOrZero())
			assert.False(t, p.DiscordSuccess)
		}
	})
	t.Run("should return existing ping unchanged", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		p1 := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7})
		// when
		p2, created, err := st.GetOrCreateStructurePing(ctx, storage.GetOrCreateStructurePingParams{
			EventTime:        time.Now(),
			NotificationID:   p1.NotificationID,
			NotificationType: "StructureDestroyed",
			StructureID:      8,
			Summary:          "other",
		})
		// then
		if assert.NoError(t, err) {
			assert.False(t, created)
			assert.Equal(t, p1, p2)
		}
	})
	t.Run("should update discord success", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		p := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7})
		// when
		err := st.UpdateStructurePingDiscordSuccess(ctx, p.NotificationID, true)
		// then
		if assert.NoError(t, err) {
			p2, err := st.GetStructurePing(ctx, p.NotificationID)
			require.NoError(t, err)
			assert.True(t, p2.DiscordSuccess)
		}
	})
	t.Run("should return latest other ping for structure", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		now := time.Now().UTC().Truncate(time.Second)
		factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7, EventTime: now.Add(-3 * time.Hour)})
		p2 := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7, EventTime: now.Add(-2 * time.Hour)})
		p3 := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7, EventTime: now})
		factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 8, EventTime: now.Add(-time.Hour)})
		// when
		got, err := st.GetLatestStructurePingExcluding(ctx, 7, p3.NotificationID)
		// then
		if assert.NoError(t, err) {
			assert.Equal(t, p2.NotificationID, got.NotificationID)
		}
	})
	t.Run("should report not found when no other ping exists", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		p := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7})
		// when
		_, err := st.GetLatestStructurePingExcluding(ctx, 7, p.NotificationID)
		// then
		assert.ErrorIs(t, err, app.ErrNotFound)
	})
	t.Run("should delete old pings", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		now := time.Now().UTC()
		factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7, EventTime: now.Add(-100 * 24 * time.Hour)})
		p := factory.CreateStructurePing(storage.GetOrCreateStructurePingParams{StructureID: 7, EventTime: now})
		// when
		n, err := st.DeleteStructurePingsBefore(ctx, now.Add(-90*24*time.Hour))
		// then
		if assert.NoError(t, err) {
			assert.EqualValues(t, 1, n)
			_, err := st.GetStructurePing(ctx, p.NotificationID)
			assert.NoError(t, err)
		}
	})
}
