package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErikKalkoken/go-set"
	"github.com/stretchr/testify/assert"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage/testutil"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

func TestCharacter(t *testing.T) {
	db, st, factory := testutil.New()
	defer db.Close()
	ctx := context.Background()
	t.Run("should create and get character", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		corp := factory.CreateCorporation()
		expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		// when
		err := st.UpdateOrCreateCharacter(ctx, storage.UpdateOrCreateCharacterParams{
			ID:             90000001,
			AccessToken:    "token",
			CorporationID:  corp.ID,
			Name:           "Bruce Wayne",
			Scopes:         set.Of(app.ScopeReadNotifications),
			TokenExpiresAt: optional.New(expires),
		})
		// then
		if assert.NoError(t, err) {
			c, err := st.GetCharacter(ctx, 90000001)
			if assert.NoError(t, err) {
				assert.Equal(t, "token", c.AccessToken)
				assert.Equal(t, corp.ID, c.CorporationID)
				assert.Equal(t, "Bruce Wayne", c.Name)
				assert.True(t, c.Scopes.Equal(set.Of(app.ScopeReadNotifications)))
				assert.Equal(t, expires, c.TokenExpiresAt.ValueOrZero())
			}
		}
	})
	t.Run("should replace scopes on update", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c1 := factory.CreateCharacter()
		// when
		err := st.UpdateOrCreateCharacter(ctx, storage.UpdateOrCreateCharacterParams{
			ID:            c1.ID,
			AccessToken:   c1.AccessToken,
			CorporationID: c1.CorporationID,
			Name:          c1.Name,
			Scopes:        set.Of(app.ScopeReadStructures),
		})
		// then
		if assert.NoError(t, err) {
			c2, err := st.GetCharacter(ctx, c1.ID)
			if assert.NoError(t, err) {
				assert.True(t, c2.Scopes.Equal(set.Of(app.ScopeReadStructures)))
			}
		}
	})
	t.Run("should report not found", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		// when
		_, err := st.GetCharacter(ctx, 42)
		// then
		assert.ErrorIs(t, err, app.ErrNotFound)
	})
	t.Run("should list characters for notification polling", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		corp1 := factory.CreateCorporation()
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: corp1.ID})
		c1 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{CorporationID: corp1.ID})
		factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			CorporationID: corp1.ID,
			Scopes:        set.Of(app.ScopeReadStructures),
		})
		factory.CreateCharacter() // corporation without structures
		// when
		ids, err := st.ListCharacterIDsForNotificationPolling(ctx)
		// then
		if assert.NoError(t, err) {
			assert.Equal(t, []int32{c1.ID}, ids)
		}
	})
	t.Run("should return character with scope for corporation", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		corp := factory.CreateCorporation()
		factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			CorporationID: corp.ID,
			Scopes:        set.Of(app.ScopeReadNotifications),
		})
		c2 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			CorporationID: corp.ID,
			Scopes:        set.Of(app.ScopeReadStructures),
		})
		// when
		c, err := st.GetCharacterWithScopeForCorporation(ctx, corp.ID, app.ScopeReadStructures)
		// then
		if assert.NoError(t, err) {
			assert.Equal(t, c2.ID, c.ID)
		}
	})
	t.Run("should report not found when no character has the scope", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		corp := factory.CreateCorporation()
		factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			CorporationID: corp.ID,
			Scopes:        set.Of(app.ScopeReadNotifications),
		})
		// when
		_, err := st.GetCharacterWithScopeForCorporation(ctx, corp.ID, app.ScopeReadStructures)
		// then
		assert.ErrorIs(t, err, app.ErrNotFound)
	})
}

func TestCorporation(t *testing.T) {
	db, st, factory := testutil.New()
	defer db.Close()
	ctx := context.Background()
	t.Run("should create corporation with alliance", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		// when
		err := st.UpdateOrCreateCorporation(ctx, storage.UpdateOrCreateCorporationParams{
			ID:           98000001,
			AllianceID:   optional.New[int32](99000001),
			AllianceName: optional.New("Alliance"),
			Name:         "Corp",
		})
		// then
		if assert.NoError(t, err) {
			c, err := st.GetCorporation(ctx, 98000001)
			if assert.NoError(t, err) {
				assert.Equal(t, "Corp", c.Name)
				assert.Equal(t, int32(99000001), c.AllianceID.ValueOrZero())
				assert.Equal(t, "Alliance", c.AllianceName.ValueOrZero())
			}
		}
	})
	t.Run("should list corporation IDs", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c1 := factory.CreateCorporation()
		c2 := factory.CreateCorporation()
		// when
		ids, err := st.ListCorporationIDs(ctx)
		// then
		if assert.NoError(t, err) {
			assert.ElementsMatch(t, []int32{c1.ID, c2.ID}, ids)
		}
	})
}
