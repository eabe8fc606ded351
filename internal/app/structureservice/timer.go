package structureservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/metrics"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// EnsureTimerParams are the parameters for [StructureService.EnsureTimer].
type EnsureTimerParams struct {
	AllianceName     optional.Optional[string]
	CorporationName  string
	Event            app.NotificationEvent
	NotificationType app.EveNotificationType
	// Optional resolver for names of solar systems, which are not known locally.
	ResolveSystemName SystemNameResolver
}

// EnsureTimer creates or updates the open reinforcement timer for a notification event.
//
// It returns the timer or nil when the notification does not call for a timer,
// e.g. because it is not a reinforcement, has no timer or is about an unknown structure type.
func (s *StructureService) EnsureTimer(ctx context.Context, arg EnsureTimerParams) (*app.StructureTimer, error) {
	ev := arg.Event
	timerEnd, ok := ev.TimerEnd.Value()
	if !ok {
		return nil, nil
	}
	state, ok := arg.NotificationType.ReinforcementState()
	if !ok {
		return nil, nil
	}
	var structure *app.Structure
	var timerType app.TimerType
	var name, systemName string
	if ev.StructureID > 0 {
		o, err := s.st.GetStructure(ctx, ev.StructureID)
		switch {
		case errors.Is(err, app.ErrNotFound):
			// structure is not in the inventory
		case err != nil:
			return nil, fmt.Errorf("ensure timer for structure %d: %w", ev.StructureID, err)
		default:
			structure = o
			timerType, _ = app.TimerTypeForEveType(o.TypeID)
			name = o.Name
			systemName = o.SystemName
		}
	}
	if timerType == "" {
		if typeID, ok := ev.TypeID.Value(); ok {
			timerType, _ = app.TimerTypeForEveType(typeID)
		}
	}
	if timerType == "" {
		slog.Debug("No timer type for notification", "structureID", ev.StructureID, "typeID", ev.TypeID)
		return nil, nil
	}
	if systemName == "" {
		if systemID, ok := ev.SolarSystemID.Value(); ok && arg.ResolveSystemName != nil {
			n, err := arg.ResolveSystemName(ctx, systemID)
			if err != nil {
				slog.Warn("Failed to resolve solar system name", "systemID", systemID, "error", err)
			} else {
				systemName = n
			}
		}
	}
	if systemName == "" {
		systemName = "Unknown"
	}
	if name == "" {
		switch {
		case ev.StructureID > 0:
			name = fmt.Sprintf("Structure %d", ev.StructureID)
		case ev.HasStructureID():
			name = "Orbital"
		default:
			name = "Unknown structure"
		}
	}
	p := storage.UpdateOrCreateOpenStructureTimerParams{
		AllianceName:    arg.AllianceName,
		CorporationName: arg.CorporationName,
		Name:            name,
		Now:             s.now(),
		State:           state,
		SystemName:      systemName,
		Timer:           timerEnd,
		Type:            timerType,
	}
	if structure != nil {
		p.StructureID = optional.New(structure.ID)
	}
	return s.writeTimer(ctx, p)
}

func (s *StructureService) writeTimer(ctx context.Context, arg storage.UpdateOrCreateOpenStructureTimerParams) (*app.StructureTimer, error) {
	timer, created, err := s.st.UpdateOrCreateOpenStructureTimer(ctx, arg)
	if err != nil {
		return nil, err
	}
	metrics.RecordTimer(string(timer.State), created)
	if created {
		slog.Info("Created structure timer", "id", timer.ID, "state", timer.State, "name", timer.Name, "timer", timer.Timer)
	} else {
		slog.Info("Updated structure timer", "id", timer.ID, "state", timer.State, "name", timer.Name, "timer", timer.Timer)
	}
	return timer, nil
}

// SelectedItem is the information shown in the "selected item" window of the Eve client
// for a reinforced structure.
type SelectedItem struct {
	IsOrbital bool
	Location  string // solar system for structures, planet for orbitals
	Name      string
	Timer     time.Time
}

const selectedItemTimerLayout = "2006.01.02 15:04:05"

var (
	selectedItemOrbitalRE   = regexp.MustCompile(`^(.*) \((.*)\) \[(.*)\]`)
	selectedItemStructureRE = regexp.MustCompile(`^(.*) - (.*)`)
	selectedItemTimerRE     = regexp.MustCompile(` until (.*)`)
)

// ParseSelectedItem parses the text copied from the "selected item" window of the Eve client.
//
// Orbitals are shown as:
//
//	Orbital Skyhook (KBP7-G III) [Sukanan Inititive]
//	0.5 AU
//	Reinforced until 2024.07.17 11:10:47
//
// And other structures as:
//
//	Sosala - WATERMELLON
//	0 m
//	Reinforced until 2024.06.23 23:20:58
func ParseSelectedItem(text string) (SelectedItem, error) {
	var r SelectedItem
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.TrimSpace(first)
	if m := selectedItemOrbitalRE.FindStringSubmatch(first); m != nil {
		r.IsOrbital = true
		r.Name = m[1]
		r.Location = m[2]
	} else if m := selectedItemStructureRE.FindStringSubmatch(first); m != nil {
		r.Location = m[1]
		r.Name = m[2]
	} else {
		return r, fmt.Errorf("parse selected item: no structure: %w", app.ErrInvalid)
	}
	m := selectedItemTimerRE.FindStringSubmatch(text)
	if m == nil {
		return r, fmt.Errorf("parse selected item: no timer: %w", app.ErrInvalid)
	}
	t, err := time.Parse(selectedItemTimerLayout, strings.TrimSpace(m[1]))
	if err != nil {
		return r, fmt.Errorf("parse selected item: %w: %w", app.ErrInvalid, err)
	}
	r.Timer = t
	return r, nil
}

// CreateTimerFromSelectedItemParams are the parameters for [StructureService.CreateTimerFromSelectedItem].
type CreateTimerFromSelectedItemParams struct {
	AllianceName    optional.Optional[string]
	CorporationName string
	State           app.TimerState
	Text            string // copied from the selected item window
	// Optional. Orbitals default to skyhooks.
	Type app.TimerType
}

// CreateTimerFromSelectedItem creates or updates an open timer from a selected item window text.
func (s *StructureService) CreateTimerFromSelectedItem(ctx context.Context, arg CreateTimerFromSelectedItemParams) (*app.StructureTimer, error) {
	item, err := ParseSelectedItem(arg.Text)
	if err != nil {
		return nil, err
	}
	if !arg.State.IsValid() {
		return nil, fmt.Errorf("create timer from selected item: state %q: %w", arg.State, app.ErrInvalid)
	}
	timerType := arg.Type
	if timerType == "" {
		if !item.IsOrbital {
			return nil, fmt.Errorf("create timer from selected item: missing type: %w", app.ErrInvalid)
		}
		timerType = app.TimerTypeOrbitalSkyhook
	}
	now := s.now()
	if item.Timer.Before(now) {
		return nil, fmt.Errorf("create timer from selected item: timer %s has passed: %w", item.Timer, app.ErrInvalid)
	}
	return s.writeTimer(ctx, storage.UpdateOrCreateOpenStructureTimerParams{
		AllianceName:    arg.AllianceName,
		CorporationName: arg.CorporationName,
		Name:            item.Name,
		Now:             now,
		State:           arg.State,
		SystemName:      item.Location,
		Timer:           item.Timer,
		Type:            timerType,
	})
}
