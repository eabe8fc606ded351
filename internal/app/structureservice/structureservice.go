// Package structureservice watches the structures of the managed corporations.
//
// It turns structure notifications into alerts and reinforcement timers,
// keeps the structure inventory in sync with ESI and reports structures running low on fuel.
package structureservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
)

// ESIClient is a client for the ESI endpoints used by the service.
type ESIClient interface {
	CharacterNotifications(ctx context.Context, characterID int32, accessToken string) ([]app.CharacterNotification, error)
	CorporationStructures(ctx context.Context, corporationID, characterID int32, accessToken string) ([]app.Structure, error)
	ResolveNames(ctx context.Context, ids []int32) ([]app.EveEntity, error)
	SolarSystemName(ctx context.Context, systemID int32) (string, error)
	TypeName(ctx context.Context, typeID int32) (string, error)
}

// AlertChannel posts messages to a chat channel.
type AlertChannel interface {
	PostMessage(ctx context.Context, channelID string, text string) error
}

// SystemNameResolver returns the name of a solar system.
type SystemNameResolver func(ctx context.Context, systemID int32) (string, error)

// StructureService watches the structures of the managed corporations.
type StructureService struct {
	alerts           AlertChannel
	channelID        string
	concurrencyLimit int
	esi              ESIClient
	now              func() time.Time
	sfg              *singleflight.Group
	st               *storage.Storage
}

type Params struct {
	AlertChannel AlertChannel
	ChannelID    string // channel for alerts and fuel reports
	ESIClient    ESIClient
	Storage      *storage.Storage
	// optional
	ConcurrencyLimit int // max number of concurrent ESI calls when syncing structures
	Now              func() time.Time
}

// New creates a new structure service and returns it.
func New(arg Params) *StructureService {
	s := &StructureService{
		alerts:           arg.AlertChannel,
		channelID:        arg.ChannelID,
		concurrencyLimit: 5,
		esi:              arg.ESIClient,
		now:              arg.Now,
		sfg:              new(singleflight.Group),
		st:               arg.Storage,
	}
	if s.now == nil {
		s.now = func() time.Time {
			return time.Now().UTC()
		}
	}
	if arg.ConcurrencyLimit > 0 {
		s.concurrencyLimit = arg.ConcurrencyLimit
	}
	return s
}

// DeleteStalePings deletes pings with events older than maxAge and returns how many were deleted.
func (s *StructureService) DeleteStalePings(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("delete stale pings: max age %s: %w", maxAge, app.ErrInvalid)
	}
	n, err := s.st.DeleteStructurePingsBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Deleted stale structure pings", "count", n)
	}
	return n, nil
}
