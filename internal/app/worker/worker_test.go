package worker_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ErikKalkoken/go-set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage/testutil"
	"github.com/ErikKalkoken/structurewatch/internal/app/structureservice"
	"github.com/ErikKalkoken/structurewatch/internal/app/worker"
)

type fakeService struct {
	mu             sync.Mutex
	characterIDs   []int32
	corporationIDs []int32
	err            error
	lowFuelCalls   int
	cleanupAge     time.Duration
}

func (f *fakeService) DeleteStalePings(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupAge = maxAge
	return 0, f.err
}

func (f *fakeService) NotifyLowFuel(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowFuelCalls++
	return 0, f.err
}

func (f *fakeService) ProcessCharacterNotifications(ctx context.Context, characterID int32) (structureservice.ProcessCharacterNotificationsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characterIDs = append(f.characterIDs, characterID)
	return structureservice.ProcessCharacterNotificationsResult{Found: 1}, f.err
}

func (f *fakeService) UpdateCorporationStructures(ctx context.Context, corporationID int32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corporationIDs = append(f.corporationIDs, corporationID)
	return 0, f.err
}

func (f *fakeService) CharacterIDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(slices.Values(f.characterIDs))
}

func (f *fakeService) CorporationIDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(slices.Values(f.corporationIDs))
}

func noDowntime() time.Duration {
	return 0
}

func TestWorker(t *testing.T) {
	db, st, factory := testutil.New()
	defer db.Close()
	ctx := context.Background()
	newWorker := func(s worker.StructureService, downtime func() time.Duration) *worker.Worker {
		w, err := worker.New(worker.Params{
			Downtime:         downtime,
			Schedules:        worker.DefaultSchedules(),
			Storage:          st,
			Stagger:          -1,
			StructureService: s,
		})
		if err != nil {
			t.Fatal(err)
		}
		return w
	}
	t.Run("should poll characters in the bucket of the minute", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c1 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000001})
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c1.CorporationID})
		c2 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000011, CorporationID: c1.CorporationID})
		c3 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000002, CorporationID: c1.CorporationID})
		c4 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000021}) // no structures
		c5 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{
			ID:            90000031,
			CorporationID: c1.CorporationID,
			Scopes:        set.Of(app.ScopeReadStructures),
		})
		s := &fakeService{}
		w := newWorker(s, noDowntime)
		// when
		err := w.PollNotifications(ctx, 41)
		// then
		require.NoError(t, err)
		got := s.CharacterIDs()
		assert.Equal(t, []int32{c1.ID, c2.ID}, got)
		assert.NotContains(t, got, c3.ID)
		assert.NotContains(t, got, c4.ID)
		assert.NotContains(t, got, c5.ID)
	})
	t.Run("should poll all characters when minute is negative", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c1 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000001})
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c1.CorporationID})
		c2 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000002, CorporationID: c1.CorporationID})
		s := &fakeService{}
		w := newWorker(s, noDowntime)
		// when
		err := w.PollNotifications(ctx, -1)
		// then
		require.NoError(t, err)
		assert.Equal(t, []int32{c1.ID, c2.ID}, s.CharacterIDs())
	})
	t.Run("should continue with other characters when one fails", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c1 := factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000001})
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c1.CorporationID})
		factory.CreateCharacter(storage.UpdateOrCreateCharacterParams{ID: 90000002, CorporationID: c1.CorporationID})
		s := &fakeService{err: errors.New("failed")}
		w := newWorker(s, noDowntime)
		// when
		err := w.PollNotifications(ctx, -1)
		// then
		require.NoError(t, err)
		assert.Len(t, s.CharacterIDs(), 2)
	})
	t.Run("should update structures of all corporations", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		corp1 := factory.CreateCorporation()
		corp2 := factory.CreateCorporation()
		s := &fakeService{}
		w := newWorker(s, noDowntime)
		// when
		err := w.UpdateStructures(ctx)
		// then
		require.NoError(t, err)
		assert.Equal(t, []int32{corp1.ID, corp2.ID}, s.CorporationIDs())
	})
	t.Run("should run all tasks once", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c := factory.CreateCharacter()
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c.CorporationID})
		s := &fakeService{}
		w := newWorker(s, noDowntime)
		// when
		err := w.RunOnce(ctx)
		// then
		require.NoError(t, err)
		assert.Equal(t, []int32{c.ID}, s.CharacterIDs())
		assert.Equal(t, []int32{c.CorporationID}, s.CorporationIDs())
		assert.Equal(t, 1, s.lowFuelCalls)
		assert.Equal(t, 90*24*time.Hour, s.cleanupAge)
	})
	t.Run("should report failed tasks when running once", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		s := &fakeService{err: errors.New("failed")}
		w := newWorker(s, noDowntime)
		// when
		err := w.RunOnce(ctx)
		// then
		assert.Error(t, err)
	})
	t.Run("should skip polling during downtime", func(t *testing.T) {
		// given
		testutil.TruncateTables(db)
		c := factory.CreateCharacter()
		factory.CreateStructure(storage.UpdateOrCreateStructureParams{CorporationID: c.CorporationID})
		s := &fakeService{}
		w := newWorker(s, func() time.Duration {
			return time.Minute
		})
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		// when
		err := w.RunOnce(ctx)
		// then
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, s.CharacterIDs(), 0)
		assert.Equal(t, 0, s.lowFuelCalls)
	})
}

func TestNew(t *testing.T) {
	t.Run("should return error for invalid schedule", func(t *testing.T) {
		_, err := worker.New(worker.Params{
			Schedules: worker.Schedules{Notifications: "invalid"},
		})
		assert.Error(t, err)
	})
	t.Run("should allow disabling tasks", func(t *testing.T) {
		w, err := worker.New(worker.Params{
			Schedules: worker.Schedules{Notifications: "* * * * *"},
		})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		w.Start(ctx)
		w.Stop(ctx)
	})
}
