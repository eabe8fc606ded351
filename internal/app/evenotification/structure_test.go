package evenotification_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/evenotification"
)

func TestParseStructureNotification(t *testing.T) {
	t.Run("should parse structure lost shields with offset timer", func(t *testing.T) {
		// given
		text := `
solarsystemID: 30002537
structureID: &id001 1049253339308
structureShowInfoData:
- showinfo
- 35826
- *id001
structureTypeID: 35826
timeLeft: 1724307328541
timestamp: 133926971500000000
vulnerableTime: 9000000000
`
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		assert.EqualValues(t, 1049253339308, ev.StructureID)
		assert.True(t, ev.HasStructureID())
		assert.Equal(t, int32(30002537), ev.SolarSystemID.ValueOrZero())
		assert.Equal(t, int32(35826), ev.TypeID.ValueOrZero())
		end, ok := ev.TimerEnd.Value()
		if assert.True(t, ok) {
			assert.Greater(t, end.Year(), 2024)
			assert.Less(t, end.Year(), 2030)
			assert.Equal(t, time.Date(2025, 9, 7, 5, 39, 10, 0, time.UTC), end)
		}
	})
	t.Run("should prefer reinforce exit time", func(t *testing.T) {
		// given
		text := `
structureID: 1000000000001
reinforceExitTime: 133926971500000000
vulnerableTime: 9000000000
`
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		end, ok := ev.TimerEnd.Value()
		if assert.True(t, ok) {
			assert.Equal(t, time.Date(2025, 5, 26, 1, 39, 10, 0, time.UTC), end)
		}
	})
	t.Run("should fall back to vulnerable time when reinforce exit time is zero", func(t *testing.T) {
		// given
		text := `
structureID: 1000000000001
reinforceExitTime: 0
vulnerableTime: 133926971500000000
`
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		end, ok := ev.TimerEnd.Value()
		if assert.True(t, ok) {
			assert.Equal(t, 2025, end.Year())
		}
	})
	t.Run("should use first valid value of a field", func(t *testing.T) {
		// given
		text := `
structureID: abc
structureID: 1000000000002
structureId: 1000000000003
`
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		assert.EqualValues(t, 1000000000002, ev.StructureID)
	})
	t.Run("should derive synthetic ID for orbitals", func(t *testing.T) {
		// given
		text := `
aggressorAllianceID: 99006225
aggressorCorpID: 98602531
aggressorID: 95288372
planetID: 40009077
shieldLevel: 0.4
solarSystemID: 30000142
typeID: 81080
`
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		assert.EqualValues(t, -30040151077081080, ev.StructureID)
		assert.True(t, ev.HasStructureID())
		assert.Equal(t, int32(81080), ev.TypeID.ValueOrZero())
		assert.True(t, ev.TimerEnd.IsEmpty())
	})
	t.Run("should return unknown ID when nothing identifies the structure", func(t *testing.T) {
		// when
		ev := evenotification.ParseStructureNotification("solarSystemID: 30000142\n")
		// then
		assert.Equal(t, app.UnknownStructureID, ev.StructureID)
	})
	t.Run("should not fail on garbage", func(t *testing.T) {
		// when
		ev := evenotification.ParseStructureNotification("}}} not yaml {{{\n\x00")
		// then
		assert.Equal(t, app.UnknownStructureID, ev.StructureID)
		assert.True(t, ev.SolarSystemID.IsEmpty())
		assert.True(t, ev.TimerEnd.IsEmpty())
	})
	t.Run("should keep excerpt of text", func(t *testing.T) {
		// given
		text := "structureID: 1000000000001\n" + strings.Repeat("ä", 300)
		// when
		ev := evenotification.ParseStructureNotification(text)
		// then
		assert.Equal(t, evenotification.ExcerptLength, len([]rune(ev.Excerpt)))
	})
}

func TestSyntheticStructureID(t *testing.T) {
	t.Run("should be deterministic and negative", func(t *testing.T) {
		a := evenotification.SyntheticStructureID(30000142, 40009077, 81080)
		b := evenotification.SyntheticStructureID(30000142, 40009077, 81080)
		assert.Equal(t, a, b)
		assert.Less(t, a, int64(0))
	})
	t.Run("should differ for different planets", func(t *testing.T) {
		a := evenotification.SyntheticStructureID(30000142, 40009077, 81080)
		b := evenotification.SyntheticStructureID(30000142, 40009078, 81080)
		assert.NotEqual(t, a, b)
	})
	t.Run("should not overflow on large inputs", func(t *testing.T) {
		got := evenotification.SyntheticStructureID(9223372036, 854775807, 0)
		assert.EqualValues(t, -854774952224193, got)
	})
	t.Run("should stay negative when all inputs are zero", func(t *testing.T) {
		got := evenotification.SyntheticStructureID(0, 0, 0)
		assert.Less(t, got, int64(0))
	})
}

func TestExcerpt(t *testing.T) {
	cases := []struct {
		s    string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"äöüß", 2, "äö"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, evenotification.Excerpt(tc.s, tc.n))
	}
}
