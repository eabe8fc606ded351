package app

import (
	"time"

	"github.com/ErikKalkoken/go-set"

	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// Character is an Eve Online character which has granted ESI access to this app.
type Character struct {
	ID             int32
	AccessToken    string
	CorporationID  int32
	Name           string
	Scopes         set.Set[string]
	TokenExpiresAt optional.Optional[time.Time]
}

// HasValidToken reports whether the character has an access token, which is not expired at now.
func (c Character) HasValidToken(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	v, ok := c.TokenExpiresAt.Value()
	if !ok {
		return true
	}
	return v.After(now)
}

// Corporation is a corporation managed by this app.
type Corporation struct {
	ID           int32
	AllianceID   optional.Optional[int32]
	AllianceName optional.Optional[string]
	Name         string
}
