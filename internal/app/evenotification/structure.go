package evenotification

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// ExcerptLength is the maximum number of characters of a notification kept as excerpt.
const ExcerptLength = 200

type structureField uint

const (
	fieldStructureID structureField = iota
	fieldSolarSystemID
	fieldPlanetID
	fieldTypeID
	fieldTimestamp
	fieldVulnerableTime
	fieldReinforceExitTime
)

// structureFieldKeys lists the recognized line prefixes in order of precedence.
var structureFieldKeys = []struct {
	prefix string
	field  structureField
}{
	{"structureID:", fieldStructureID},
	{"structureId:", fieldStructureID},
	{"solarSystemID:", fieldSolarSystemID},
	{"solarsystemID:", fieldSolarSystemID},
	{"planetID:", fieldPlanetID},
	{"typeID:", fieldTypeID},
	{"structureTypeID:", fieldTypeID},
	{"timestamp:", fieldTimestamp},
	{"vulnerableTime:", fieldVulnerableTime},
	{"reinforceExitTime:", fieldReinforceExitTime},
}

// scanStructureFields returns the raw values of all recognized fields in text.
// The first valid value for a field wins.
func scanStructureFields(text string) map[structureField]int64 {
	values := make(map[structureField]int64)
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		for _, k := range structureFieldKeys {
			if !strings.HasPrefix(line, k.prefix) {
				continue
			}
			if _, found := values[k.field]; found {
				break
			}
			if v, ok := lastInt(line[len(k.prefix):], 64); ok {
				values[k.field] = v
			}
			break
		}
	}
	return values
}

// ParseStructureNotification parses the body of a structure or orbital notification.
//
// Structure notifications identify the structure through a structure ID.
// Orbital notifications (e.g. skyhooks) do not,
// so a stable synthetic negative ID is derived from their solar system, planet and type.
// Parsing never fails. Fields which can not be parsed are left empty.
func ParseStructureNotification(text string) app.NotificationEvent {
	values := scanStructureFields(text)
	ev := app.NotificationEvent{
		Excerpt:     Excerpt(text, ExcerptLength),
		StructureID: app.UnknownStructureID,
	}
	if v, ok := values[fieldSolarSystemID]; ok && v >= math.MinInt32 && v <= math.MaxInt32 {
		ev.SolarSystemID.Set(int32(v))
	}
	if v, ok := values[fieldTypeID]; ok && v >= math.MinInt32 && v <= math.MaxInt32 {
		ev.TypeID.Set(int32(v))
	}
	timer, ok := values[fieldReinforceExitTime]
	if !ok || timer == 0 {
		timer, ok = values[fieldVulnerableTime]
	}
	if ok {
		var ts optional.Optional[int64]
		if v, found := values[fieldTimestamp]; found {
			ts.Set(v)
		}
		ev.TimerEnd = resolveTimerEnd(timer, ts)
	}
	if v, ok := values[fieldStructureID]; ok {
		ev.StructureID = v
	} else {
		systemID, hasSystem := values[fieldSolarSystemID]
		planetID, hasPlanet := values[fieldPlanetID]
		if hasSystem && hasPlanet {
			ev.StructureID = SyntheticStructureID(systemID, planetID, values[fieldTypeID])
		}
	}
	return ev
}

// SyntheticStructureID returns a deterministic negative ID for a structure without an ID,
// e.g. an orbital skyhook.
func SyntheticStructureID(solarSystemID, planetID, typeID int64) int64 {
	const m = math.MaxInt64
	// the products are reduced separately so they can not overflow
	x := mulMod(solarSystemID, 1_000_000_000, m)
	x = addMod(x, mulMod(planetID, 1_000_000, m), m)
	x = addMod(x, floorMod(typeID, m), m)
	if x == 0 {
		return -m // keeps synthetic IDs negative
	}
	return -x
}

func floorMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func addMod(a, b, m int64) int64 {
	// a and b are both in [0, m) and m is MaxInt64, so a+b can only overflow into negative
	s := a + b
	if s < 0 || s >= m {
		s -= m
	}
	return s
}

func mulMod(a, b, m int64) int64 {
	a = floorMod(a, m)
	var r int64
	for b > 0 {
		if b&1 == 1 {
			r = addMod(r, a, m)
		}
		a = addMod(a, a, m)
		b >>= 1
	}
	return r
}

// Excerpt returns the first n characters of s.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var i, count int
	for i = range s {
		if count == n {
			break
		}
		count++
	}
	return s[:i]
}
