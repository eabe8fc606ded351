package structureservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ErikKalkoken/go-set"
	"github.com/dustin/go-humanize/english"
	"golang.org/x/sync/errgroup"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
)

// UpdateCorporationStructures updates the structures of a corporation from ESI
// and returns the number of structures received.
//
// Structures of the corporation no longer reported by ESI are deleted.
// Corporations without a character who can read structures are skipped.
func (s *StructureService) UpdateCorporationStructures(ctx context.Context, corporationID int32) (int, error) {
	wrapErr := func(err error) error {
		return fmt.Errorf("update structures for corporation %d: %w", corporationID, err)
	}
	c, err := s.st.GetCharacterWithScopeForCorporation(ctx, corporationID, app.ScopeReadStructures)
	if errors.Is(err, app.ErrNotFound) {
		slog.Debug("Corporation has no character with structures scope. Skipping", "corporationID", corporationID)
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr(err)
	}
	if !c.HasValidToken(s.now()) {
		return 0, wrapErr(fmt.Errorf("character %d: no valid token: %w", c.ID, app.ErrInvalid))
	}
	structures, err := s.esi.CorporationStructures(ctx, corporationID, c.ID, c.AccessToken)
	if err != nil {
		return 0, wrapErr(err)
	}
	systemNames, typeNames, err := s.resolveStructureNames(ctx, structures)
	if err != nil {
		return 0, wrapErr(err)
	}
	var incoming set.Set[int64]
	for _, o := range structures {
		err := s.st.UpdateOrCreateStructure(ctx, storage.UpdateOrCreateStructureParams{
			ID:              o.ID,
			CorporationID:   corporationID,
			FuelExpires:     o.FuelExpires,
			Name:            o.Name,
			ReinforceHour:   o.ReinforceHour,
			State:           o.State,
			StateTimerEnd:   o.StateTimerEnd,
			StateTimerStart: o.StateTimerStart,
			SystemID:        o.SystemID,
			SystemName:      systemNames[o.SystemID],
			TypeID:          o.TypeID,
			TypeName:        typeNames[o.TypeID],
		})
		if err != nil {
			return 0, wrapErr(err)
		}
		incoming.Add(o.ID)
	}
	existing, err := s.st.ListStructureIDsForCorporation(ctx, corporationID)
	if err != nil {
		return 0, wrapErr(err)
	}
	var stale set.Set[int64]
	for id := range existing.All() {
		if !incoming.Contains(id) {
			stale.Add(id)
		}
	}
	if stale.Size() > 0 {
		if err := s.st.DeleteStructures(ctx, stale); err != nil {
			return 0, wrapErr(err)
		}
		slog.Info("Deleted structures no longer reported", "corporationID", corporationID, "ids", stale)
	}
	slog.Info("Updated structures", "corporationID", corporationID, "count", len(structures))
	return len(structures), nil
}

// resolveStructureNames fetches the names of all solar systems and types of structures.
func (s *StructureService) resolveStructureNames(ctx context.Context, structures []app.Structure) (map[int32]string, map[int32]string, error) {
	var systemIDs, typeIDs set.Set[int32]
	for _, o := range structures {
		systemIDs.Add(o.SystemID)
		typeIDs.Add(o.TypeID)
	}
	var mu sync.Mutex
	systemNames := make(map[int32]string)
	typeNames := make(map[int32]string)
	g := new(errgroup.Group)
	g.SetLimit(s.concurrencyLimit)
	for id := range systemIDs.All() {
		g.Go(func() error {
			n, err := s.esi.SolarSystemName(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			systemNames[id] = n
			return nil
		})
	}
	for id := range typeIDs.All() {
		g.Go(func() error {
			n, err := s.esi.TypeName(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			typeNames[id] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return systemNames, typeNames, nil
}

const lowFuelThreshold = 7 * 24 * time.Hour

// Types of structures which are excluded from low fuel reports.
var lowFuelExcludedTypes = set.Of(
	"Metenox Moon Drill",
	"Ansiblex Jump Gate",
	"Ansiblex Jump Bridge",
)

// NotifyLowFuel posts a report of all structures running out of fuel within 7 days
// and returns the number of reported structures.
// No report is posted when there are no such structures.
func (s *StructureService) NotifyLowFuel(ctx context.Context) (int, error) {
	now := s.now()
	structures, err := s.st.ListStructuresWithLowFuel(ctx, now.Add(lowFuelThreshold), lowFuelExcludedTypes)
	if err != nil {
		return 0, fmt.Errorf("notify low fuel: %w", err)
	}
	if len(structures) == 0 {
		slog.Info("No structures with low fuel to report")
		return 0, nil
	}
	text := formatLowFuelReport(structures, now)
	if err := s.alerts.PostMessage(ctx, s.channelID, text); err != nil {
		return 0, fmt.Errorf("notify low fuel: %w", err)
	}
	slog.Info("Reported structures with low fuel", "count", len(structures))
	return len(structures), nil
}

func formatLowFuelReport(structures []*app.Structure, now time.Time) string {
	lines := []string{"**Structures with less than 7 days of fuel**"}
	for _, o := range structures {
		days := max(0, int(o.FuelExpires.ValueOrZero().Sub(now)/(24*time.Hour)))
		var remaining string
		if days == 0 {
			remaining = "<1 day"
		} else {
			remaining = english.Plural(days, "day", "")
		}
		lines = append(lines, fmt.Sprintf("• **%s** (%s) – %s – %s", o.Name, o.TypeName, o.SystemName, remaining))
	}
	return strings.Join(lines, "\n")
}
