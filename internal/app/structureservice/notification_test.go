package structureservice_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage/testutil"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

func TestProcessCharacterNotifications(t *testing.T) {
	env := newTestEnv()
	defer env.db.Close()
	ctx := context.Background()
	eventTime := now.Add(-50 * time.Second)
	// timer ends 2025-05-27 12:00:00 UTC
	makeText := func(structureID int64) string {
		return fmt.Sprintf("solarsystemID: 30002537\nstructureID: &id001 %d\nstructureTypeID: 35826\nreinforceExitTime: 133928208000000000\n", structureID)
	}
	t.Run("should record ping, post alert and create timer for new reinforcement", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.alerts.messages = nil
		corporation := env.factory.CreateCorporationWithAlliance()
		c := env.factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{CorporationID: corporation.ID})
		s := env.factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: corporation.ID})
		env.esi.notifications[c.ID] = []app.CharacterNotification{
			{
				NotificationID: 1001,
				Text:           makeText(s.ID),
				Timestamp:      eventTime,
				Type:           app.StructureLostShields,
			},
			{
				NotificationID: 1002,
				Text:           "characterID: 42\n",
				Timestamp:      eventTime,
				Type:           "CorpAllBillMsg",
			},
		}
		// when
		r, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, 1, r.Found)
		assert.Equal(t, 1, r.New)
		p, err := env.st.GetStructurePing(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, s.ID, p.StructureID)
		assert.Equal(t, c.ID, p.ReportedByID.ValueOrZero())
		assert.True(t, p.DiscordSuccess)
		_, err = env.st.GetStructurePing(ctx, 1002)
		assert.ErrorIs(t, err, app.ErrNotFound)
		if m := env.alerts.Messages(); assert.Len(t, m, 1) {
			assert.Contains(t, m[0], fmt.Sprintf("Structure: %s (%d)", s.Name, s.ID))
		}
		timers, err := env.st.ListOpenStructureTimers(ctx, now)
		require.NoError(t, err)
		if assert.Len(t, timers, 1) {
			x := timers[0]
			assert.Equal(t, app.TimerStateArmor, x.State)
			assert.Equal(t, time.Date(2025, 5, 27, 12, 0, 0, 0, time.UTC), x.Timer)
			assert.Equal(t, corporation.Name, x.CorporationName)
			assert.Equal(t, corporation.AllianceName, x.AllianceName)
			assert.Equal(t, s.ID, x.StructureID.ValueOrZero())
		}
	})
	t.Run("should not alert or duplicate when processing the same notifications again", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.alerts.messages = nil
		c := env.factory.CreateCharacter()
		s := env.factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c.CorporationID})
		env.esi.notifications[c.ID] = []app.CharacterNotification{{
			NotificationID: 1001,
			Text:           makeText(s.ID),
			Timestamp:      eventTime,
			Type:           app.StructureLostShields,
		}}
		// when
		r1, err1 := env.s.ProcessCharacterNotifications(ctx, c.ID)
		r2, err2 := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, 1, r1.New)
		assert.Equal(t, 1, r2.Found)
		assert.Equal(t, 0, r2.New)
		assert.Len(t, env.alerts.Messages(), 1)
		timers, err := env.st.ListStructureTimers(ctx)
		require.NoError(t, err)
		assert.Len(t, timers, 1)
	})
	t.Run("should alert only once for repeated attacks on the same structure", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.alerts.messages = nil
		c := env.factory.CreateCharacter()
		env.esi.notifications[c.ID] = []app.CharacterNotification{
			{
				NotificationID: 1001,
				Text:           "structureID: 1000000000099\n",
				Timestamp:      now.Add(-10 * time.Minute),
				Type:           app.StructureUnderAttack,
			},
			{
				NotificationID: 1002,
				Text:           "structureID: 1000000000099\n",
				Timestamp:      now.Add(-5 * time.Minute),
				Type:           app.StructureUnderAttack,
			},
		}
		// when
		r, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, 2, r.Found)
		assert.Equal(t, 1, r.New)
		assert.Len(t, env.alerts.Messages(), 1)
	})
	t.Run("should not alert old events", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.alerts.messages = nil
		c := env.factory.CreateCharacter()
		env.esi.notifications[c.ID] = []app.CharacterNotification{{
			NotificationID: 1001,
			Text:           "structureID: 1000000000099\n",
			Timestamp:      now.Add(-3 * time.Hour),
			Type:           app.StructureUnderAttack,
		}}
		// when
		r, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, 1, r.Found)
		assert.Equal(t, 0, r.New)
		assert.Len(t, env.alerts.Messages(), 0)
	})
	t.Run("should keep ping when alert can not be posted", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.alerts.err = errors.New("discord down")
		defer func() {
			env.alerts.err = nil
		}()
		c := env.factory.CreateCharacter()
		env.esi.notifications[c.ID] = []app.CharacterNotification{{
			NotificationID: 1001,
			Text:           "structureID: 1000000000099\n",
			Timestamp:      eventTime,
			Type:           app.StructureUnderAttack,
		}}
		// when
		_, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		p, err := env.st.GetStructurePing(ctx, 1001)
		require.NoError(t, err)
		assert.False(t, p.DiscordSuccess)
	})
	t.Run("should resolve system names of unknown structures from ESI", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		c := env.factory.CreateCharacter()
		env.esi.systems[30002537] = "Amamake"
		defer delete(env.esi.systems, 30002537)
		env.esi.notifications[c.ID] = []app.CharacterNotification{{
			NotificationID: 1001,
			Text:           makeText(1000000000099),
			Timestamp:      eventTime,
			Type:           app.StructureLostShields,
		}}
		// when
		_, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		timers, err := env.st.ListStructureTimers(ctx)
		require.NoError(t, err)
		if assert.Len(t, timers, 1) {
			assert.Equal(t, "Amamake", timers[0].SystemName)
			assert.Equal(t, "Structure 1000000000099", timers[0].Name)
		}
	})
	t.Run("should fall back to system ID when name can not be fetched", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		c := env.factory.CreateCharacter()
		env.esi.notifications[c.ID] = []app.CharacterNotification{{
			NotificationID: 1001,
			Text:           makeText(1000000000099),
			Timestamp:      eventTime,
			Type:           app.StructureLostShields,
		}}
		// when
		_, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		require.NoError(t, err)
		timers, err := env.st.ListStructureTimers(ctx)
		require.NoError(t, err)
		if assert.Len(t, timers, 1) {
			assert.Equal(t, "System 30002537", timers[0].SystemName)
		}
	})
	t.Run("should return error when ESI fails", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		env.esi.err = errors.New("ESI down")
		defer func() {
			env.esi.err = nil
		}()
		c := env.factory.CreateCharacter()
		// when
		_, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		assert.Error(t, err)
	})
	t.Run("should return error when character has no valid token", func(t *testing.T) {
		// given
		testutil.TruncateTables(env.db)
		c := env.factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			TokenExpiresAt: optional.New(now.Add(-time.Hour)),
		})
		// when
		_, err := env.s.ProcessCharacterNotifications(ctx, c.ID)
		// then
		assert.ErrorIs(t, err, app.ErrInvalid)
	})
}
