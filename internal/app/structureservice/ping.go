package structureservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/evenotification"
	"github.com/ErikKalkoken/structurewatch/internal/metrics"
)

const (
	// pings for events older than this are never alerted
	maxEventAge = 20 * time.Minute
	// alerts for the same structure are suppressed within this window
	alertWindow = time.Hour
)

// IsNewEvent reports whether a ping is about a new attack and should be alerted.
//
// Events older than 20 minutes at now are not new.
// Otherwise an event is new when it is the first for its structure
// or when the latest other ping for the structure is at least one hour older.
func (s *StructureService) IsNewEvent(ctx context.Context, ping *app.StructurePing, now time.Time) (bool, error) {
	if now.Sub(ping.EventTime) > maxEventAge {
		return false, nil
	}
	latest, err := s.st.GetLatestStructurePingExcluding(ctx, ping.StructureID, ping.NotificationID)
	if errors.Is(err, app.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("is new event %d: %w", ping.NotificationID, err)
	}
	if ping.EventTime.Sub(latest.EventTime) < alertWindow {
		return false, nil
	}
	return true, nil
}

// FormatAlert returns the alert message for a ping.
func (s *StructureService) FormatAlert(ctx context.Context, ping *app.StructurePing) (string, error) {
	var b strings.Builder
	b.WriteString("@everyone \n:scream: STRUCTURE UNDER ATTACK :scream: \n")
	var structure *app.Structure
	if ping.StructureID > 0 {
		o, err := s.st.GetStructure(ctx, ping.StructureID)
		if err != nil && !errors.Is(err, app.ErrNotFound) {
			return "", fmt.Errorf("format alert %d: %w", ping.NotificationID, err)
		}
		structure = o
	}
	switch {
	case structure != nil:
		fmt.Fprintf(&b, "Structure: %s (%d) \n", structure.Name, structure.ID)
		fmt.Fprintf(&b, "Type: %s (%d) \n", structure.TypeName, structure.TypeID)
		fmt.Fprintf(&b, "Location: %s \n", structure.SystemName)
	case ping.IsOrbital():
		details := ping.Summary
		if details == "" {
			details = "-"
		}
		excerpt := evenotification.Excerpt(details, evenotification.ExcerptLength)
		if excerpt != details {
			excerpt += "…"
		}
		fmt.Fprintf(&b, "Structure: Orbital (e.g. Skyhook) - not in structure list \nDetails: %s \n", excerpt)
	case ping.StructureID == app.UnknownStructureID:
		b.WriteString("Structure: Unknown \n")
	default:
		fmt.Fprintf(&b, "Structure: %d (not in database) \n", ping.StructureID)
	}
	fmt.Fprintf(&b, "Event: %s (%d) \n", ping.NotificationType, ping.NotificationID)
	fmt.Fprintf(&b, "Time: %s \n", ping.EventTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	if line := s.attackerLine(ctx, ping.Text.ValueOrZero()); line != "" {
		fmt.Fprintf(&b, "Attacker: %s \n", line)
	}
	return b.String(), nil
}

// attackerLine returns a description of the aggressor in a notification text
// in the form "Character (Corporation) [Alliance]".
// It returns an empty string when there is no aggressor or the names can not be resolved.
func (s *StructureService) attackerLine(ctx context.Context, text string) string {
	agg := evenotification.ParseAggressor(text)
	if agg.IsEmpty() {
		return ""
	}
	ids := agg.IDs()
	ee, err := s.esi.ResolveNames(ctx, ids)
	if err != nil {
		slog.Debug("Failed to resolve aggressor names", "ids", ids, "error", err)
		return ""
	}
	names := make(map[int32]string)
	for _, e := range ee {
		names[e.ID] = e.Name
	}
	nameOrUnknown := func(id int32, ok bool) string {
		if !ok {
			return "?"
		}
		n := names[id]
		if n == "" {
			return "?"
		}
		return n
	}
	character := nameOrUnknown(agg.CharacterID.Value())
	corporation := nameOrUnknown(agg.CorporationID.Value())
	if id, ok := agg.AllianceID.Value(); ok {
		if alliance := names[id]; alliance != "" {
			return fmt.Sprintf("%s (%s) [%s]", character, corporation, alliance)
		}
	}
	return fmt.Sprintf("%s (%s)", character, corporation)
}

// sendAlert posts the alert for a ping and flags the ping as delivered.
func (s *StructureService) sendAlert(ctx context.Context, ping *app.StructurePing) error {
	text, err := s.FormatAlert(ctx, ping)
	if err != nil {
		return err
	}
	err = s.alerts.PostMessage(ctx, s.channelID, text)
	metrics.RecordAlert(err)
	if err != nil {
		return fmt.Errorf("send alert for notification %d: %w", ping.NotificationID, err)
	}
	return s.st.UpdateStructurePingDiscordSuccess(ctx, ping.NotificationID, true)
}
