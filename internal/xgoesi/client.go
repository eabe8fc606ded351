// Package xgoesi extends the goesi package with a client for the ESI endpoints
// used by this app and with support for ESI rate limits and the daily downtime.
package xgoesi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/antihax/goesi"
	"github.com/antihax/goesi/esi"
	esioptional "github.com/antihax/goesi/optional"
	"github.com/sony/gobreaker"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// Operation IDs of the ESI endpoints used by the client.
const (
	opCharacterNotifications = "GetCharactersCharacterIdNotifications"
	opCorporationStructures  = "GetCorporationsCorporationIdStructures"
	opSolarSystem            = "GetUniverseSystemsSystemId"
	opType                   = "GetUniverseTypesTypeId"
	opUniverseNames          = "PostUniverseNames"
)

const (
	defaultTimeout    = 30 * time.Second
	universeNamesMax  = 1000 // PostUniverseNames max is 1000 IDs
	breakerMaxFailure = 5
)

// StatusError is returned when ESI responded with an error status code.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e StatusError) Error() string {
	return fmt.Sprintf("ESI status %d: %s", e.StatusCode, e.Err)
}

func (e StatusError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is a [StatusError] with the given status code.
func IsStatus(err error, statusCode int) bool {
	var se StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}

// Client is a client for the ESI endpoints used by this app.
//
// All calls run with a timeout and behind a circuit breaker,
// which opens after consecutive failures and rejects calls until ESI recovers.
// Client errors (e.g. 404 Not Found) do not count as failures.
type Client struct {
	cb      *gobreaker.CircuitBreaker
	esi     *goesi.APIClient
	timeout time.Duration
}

// ClientParams are the parameters for creating a new Client.
type ClientParams struct {
	// HTTP client used for all requests. Uses the default client when nil.
	HTTPClient *http.Client
	// Timeout for each call. Uses a default when zero.
	Timeout   time.Duration
	UserAgent string
	// Optional callback for state changes of the circuit breaker.
	OnStateChange func(name string, from, to gobreaker.State)
}

// NewClient returns a new Client.
func NewClient(arg ClientParams) *Client {
	c := &Client{
		esi:     goesi.NewAPIClient(arg.HTTPClient, arg.UserAgent),
		timeout: arg.Timeout,
	}
	if c.timeout == 0 {
		c.timeout = defaultTimeout
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "esi",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker changed state", "name", name, "from", from, "to", to)
			if arg.OnStateChange != nil {
				arg.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: isSuccessful,
	})
	return c
}

// isSuccessful reports whether an error should not count as failure for the circuit breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusTooManyRequests, StatusTooManyErrors:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

// execute runs an ESI call with a timeout and through the circuit breaker.
func execute[T any](ctx context.Context, c *Client, operationID string, fn func(ctx context.Context) (T, *http.Response, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = NewContextWithOperationID(ctx, operationID)
	x, err := c.cb.Execute(func() (any, error) {
		v, r, err := fn(ctx)
		if err != nil {
			if r != nil && r.StatusCode >= 400 {
				return nil, StatusError{StatusCode: r.StatusCode, Err: err}
			}
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", operationID, err)
	}
	return x.(T), nil
}

// CharacterNotifications returns the latest notifications of a character.
func (c *Client) CharacterNotifications(ctx context.Context, characterID int32, accessToken string) ([]app.CharacterNotification, error) {
	ctx = NewContextWithAuth(ctx, characterID, accessToken)
	data, err := execute(ctx, c, opCharacterNotifications, func(ctx context.Context) ([]esi.GetCharactersCharacterIdNotifications200Ok, *http.Response, error) {
		return c.esi.ESI.CharacterApi.GetCharactersCharacterIdNotifications(ctx, characterID, nil)
	})
	if err != nil {
		return nil, err
	}
	oo := make([]app.CharacterNotification, 0, len(data))
	for _, n := range data {
		oo = append(oo, app.CharacterNotification{
			NotificationID: n.NotificationId,
			Text:           n.Text,
			Timestamp:      n.Timestamp.UTC(),
			Type:           app.EveNotificationType(n.Type_),
		})
	}
	return oo, nil
}

// CorporationStructures returns the structures of a corporation.
// The names of systems and types are not resolved.
func (c *Client) CorporationStructures(ctx context.Context, corporationID, characterID int32, accessToken string) ([]app.Structure, error) {
	ctx = NewContextWithAuth(ctx, characterID, accessToken)
	data, err := executePaged(ctx, c, opCorporationStructures, func(ctx context.Context, page int32) ([]esi.GetCorporationsCorporationIdStructures200Ok, *http.Response, error) {
		return c.esi.ESI.CorporationApi.GetCorporationsCorporationIdStructures(ctx, corporationID, &esi.GetCorporationsCorporationIdStructuresOpts{
			Page: esioptional.NewInt32(page),
		})
	})
	if err != nil {
		return nil, err
	}
	oo := make([]app.Structure, 0, len(data))
	for _, s := range data {
		oo = append(oo, app.Structure{
			ID:              s.StructureId,
			CorporationID:   corporationID,
			FuelExpires:     optional.FromTimeWithZero(s.FuelExpires.UTC()),
			Name:            s.Name,
			ReinforceHour:   int(s.ReinforceHour),
			State:           s.State,
			StateTimerEnd:   optional.FromTimeWithZero(s.StateTimerEnd.UTC()),
			StateTimerStart: optional.FromTimeWithZero(s.StateTimerStart.UTC()),
			SystemID:        s.SystemId,
			TypeID:          s.TypeId,
		})
	}
	return oo, nil
}

// SolarSystemName returns the name of a solar system.
func (c *Client) SolarSystemName(ctx context.Context, systemID int32) (string, error) {
	x, err := execute(ctx, c, opSolarSystem, func(ctx context.Context) (esi.GetUniverseSystemsSystemIdOk, *http.Response, error) {
		return c.esi.ESI.UniverseApi.GetUniverseSystemsSystemId(ctx, systemID, nil)
	})
	if err != nil {
		return "", err
	}
	return x.Name, nil
}

// TypeName returns the name of an Eve type.
func (c *Client) TypeName(ctx context.Context, typeID int32) (string, error) {
	x, err := execute(ctx, c, opType, func(ctx context.Context) (esi.GetUniverseTypesTypeIdOk, *http.Response, error) {
		return c.esi.ESI.UniverseApi.GetUniverseTypesTypeId(ctx, typeID, nil)
	})
	if err != nil {
		return "", err
	}
	return x.Name, nil
}

// ResolveNames returns the entities for IDs.
// IDs which ESI can not resolve are skipped.
func (c *Client) ResolveNames(ctx context.Context, ids []int32) ([]app.EveEntity, error) {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	var r []app.EveEntity
	for chunk := range slices.Chunk(ids, universeNamesMax) {
		ee, err := c.resolveNames(ctx, chunk)
		if err != nil {
			return nil, err
		}
		r = append(r, ee...)
	}
	return r, nil
}

// resolveNames resolves a chunk of IDs.
// Since ESI rejects the whole request when one ID is invalid,
// the chunk is split until the invalid IDs are isolated.
func (c *Client) resolveNames(ctx context.Context, ids []int32) ([]app.EveEntity, error) {
	if len(ids) == 0 {
		return []app.EveEntity{}, nil
	}
	data, err := execute(ctx, c, opUniverseNames, func(ctx context.Context) ([]esi.PostUniverseNames200Ok, *http.Response, error) {
		return c.esi.ESI.UniverseApi.PostUniverseNames(ctx, ids, nil)
	})
	if IsStatus(err, http.StatusNotFound) {
		if len(ids) == 1 {
			slog.Warn("Found unresolvable ID", "id", ids[0])
			return []app.EveEntity{}, nil
		}
		i := len(ids) / 2
		ee1, err := c.resolveNames(ctx, ids[:i])
		if err != nil {
			return nil, err
		}
		ee2, err := c.resolveNames(ctx, ids[i:])
		if err != nil {
			return nil, err
		}
		return slices.Concat(ee1, ee2), nil
	}
	if err != nil {
		return nil, err
	}
	ee := make([]app.EveEntity, 0, len(data))
	for _, o := range data {
		ee = append(ee, app.EveEntity{
			Category: app.EveEntityCategoryFromESI(o.Category),
			ID:       o.Id,
			Name:     o.Name,
		})
	}
	return ee, nil
}
