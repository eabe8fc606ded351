package structureservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/evenotification"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/metrics"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// ProcessCharacterNotificationsResult is the result of processing the notifications of a character.
type ProcessCharacterNotificationsResult struct {
	Found int // structure combat notifications received
	New   int // notifications which were alerted as new events
}

// ProcessCharacterNotifications fetches the notifications of a character from ESI
// and processes all structure combat notifications.
//
// Every combat notification is recorded once as ping.
// Newly recorded pings about new events are alerted.
// Reinforcements create or update open timers.
// Only one run per character is executed at the same time. Concurrent calls share the result.
func (s *StructureService) ProcessCharacterNotifications(ctx context.Context, characterID int32) (ProcessCharacterNotificationsResult, error) {
	key := fmt.Sprintf("process-notifications-%d", characterID)
	x, err, _ := s.sfg.Do(key, func() (any, error) {
		return s.processCharacterNotifications(ctx, characterID)
	})
	if err != nil {
		return ProcessCharacterNotificationsResult{}, fmt.Errorf("process notifications for character %d: %w", characterID, err)
	}
	return x.(ProcessCharacterNotificationsResult), nil
}

func (s *StructureService) processCharacterNotifications(ctx context.Context, characterID int32) (ProcessCharacterNotificationsResult, error) {
	var r ProcessCharacterNotificationsResult
	c, err := s.st.GetCharacter(ctx, characterID)
	if err != nil {
		return r, err
	}
	if !c.HasValidToken(s.now()) {
		return r, fmt.Errorf("no valid token: %w", app.ErrInvalid)
	}
	corporationName := "Unknown"
	var allianceName optional.Optional[string]
	corporation, err := s.st.GetCorporation(ctx, c.CorporationID)
	if errors.Is(err, app.ErrNotFound) {
		slog.Warn("Corporation of character not found", "characterID", c.ID, "corporationID", c.CorporationID)
	} else if err != nil {
		return r, err
	} else {
		corporationName = corporation.Name
		allianceName = corporation.AllianceName
	}
	notifications, err := s.esi.CharacterNotifications(ctx, c.ID, c.AccessToken)
	if err != nil {
		return r, err
	}
	slog.Debug("Received notifications from ESI", "characterID", c.ID, "count", len(notifications))
	resolveSystemName := func(ctx context.Context, systemID int32) (string, error) {
		n, err := s.esi.SolarSystemName(ctx, systemID)
		if err != nil {
			slog.Warn("Failed to fetch solar system name", "systemID", systemID, "error", err)
			return fmt.Sprintf("System %d", systemID), nil
		}
		return n, nil
	}
	for _, n := range notifications {
		if !n.Type.IsStructureCombat() {
			continue
		}
		ev := evenotification.ParseStructureNotification(n.Text)
		ping, created, err := s.st.GetOrCreateStructurePing(ctx, storage.GetOrCreateStructurePingParams{
			EventTime:        n.Timestamp,
			NotificationID:   n.NotificationID,
			NotificationType: string(n.Type),
			ReportedByID:     optional.New(c.ID),
			StructureID:      ev.StructureID,
			Summary:          ev.Excerpt,
			Text:             optional.New(n.Text),
		})
		if err != nil {
			return r, err
		}
		if created {
			isNew, err := s.IsNewEvent(ctx, ping, s.now())
			if err != nil {
				return r, err
			}
			slog.Info(
				"Found new structure notification",
				"notificationID", ping.NotificationID,
				"type", ping.NotificationType,
				"structureID", ping.StructureID,
				"eventTime", ping.EventTime,
				"isNew", isNew,
			)
			metrics.RecordNotification(ping.NotificationType, isNew)
			if isNew {
				if err := s.sendAlert(ctx, ping); err != nil {
					slog.Error("Failed to send alert", "notificationID", ping.NotificationID, "error", err)
				}
				r.New++
			}
		}
		_, err = s.EnsureTimer(ctx, EnsureTimerParams{
			AllianceName:      allianceName,
			CorporationName:   corporationName,
			Event:             ev,
			NotificationType:  n.Type,
			ResolveSystemName: resolveSystemName,
		})
		if err != nil {
			slog.Error("Failed to ensure timer", "notificationID", n.NotificationID, "error", err)
		}
		r.Found++
	}
	return r, nil
}
