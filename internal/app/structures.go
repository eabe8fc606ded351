package app

import (
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// Structure is an Upwell structure owned by one of the managed corporations.
type Structure struct {
	ID              int64
	CorporationID   int32
	FuelExpires     optional.Optional[time.Time]
	Name            string
	ReinforceHour   int
	State           string
	StateTimerEnd   optional.Optional[time.Time]
	StateTimerStart optional.Optional[time.Time]
	SystemID        int32
	SystemName      string
	TypeID          int32
	TypeName        string
	UpdatedAt       time.Time
}

// UnknownStructureID is used for notifications which do not identify a structure.
const UnknownStructureID int64 = -1

// StructurePing is a combat notification about a structure which has been recorded.
type StructurePing struct {
	ID               int64
	DiscordSuccess   bool
	EventTime        time.Time
	NotificationID   int64
	NotificationType string
	ReportedByID     optional.Optional[int32]
	StructureID      int64
	Summary          string
	Text             optional.Optional[string]
}

// IsOrbital reports whether the ping is about a structure with a synthetic ID, e.g. a skyhook.
func (p StructurePing) IsOrbital() bool {
	return p.StructureID < 0 && p.StructureID != UnknownStructureID
}

// TimerState is the state a structure is in while a reinforcement timer runs.
type TimerState string

const (
	TimerStateAnchoring   TimerState = "anchoring"
	TimerStateArmor       TimerState = "armor"
	TimerStateHull        TimerState = "hull"
	TimerStateUnanchoring TimerState = "unanchoring"
)

func (ts TimerState) IsValid() bool {
	switch ts {
	case TimerStateAnchoring, TimerStateArmor, TimerStateHull, TimerStateUnanchoring:
		return true
	}
	return false
}

func (ts TimerState) Display() string {
	return Titler.String(string(ts))
}

// TimerType is the category slug of a structure a timer is for, e.g. "astrahus".
type TimerType string

// TimerTypeOrbitalSkyhook is the timer type of orbital skyhooks.
const TimerTypeOrbitalSkyhook TimerType = "orbital_skyhook"

// timerTypeForEveType maps Eve types of structures to timer types.
var timerTypeForEveType = map[int32]TimerType{
	35825: "raitaru",
	35826: "astrahus",
	35827: "fortizar",
	35832: "sotiyo",
	35833: "keepstar",
	35834: "azbel",
	35835: "tatara",
	35836: "athanor",
	35840: "ansiblex_jump_gate",
	35841: TimerTypeOrbitalSkyhook,
	35842: "metenox_moon_drill",
}

// TimerTypeForEveType returns the timer type for a structure's Eve type
// and reports whether it was found.
func TimerTypeForEveType(typeID int32) (TimerType, bool) {
	t, ok := timerTypeForEveType[typeID]
	return t, ok
}

// StructureTimer is a reinforcement timer for a structure.
//
// A timer is open as long as its timer has not yet passed.
type StructureTimer struct {
	ID              int64
	AllianceName    optional.Optional[string]
	CorporationName string
	CreatedAt       time.Time
	Name            string
	State           TimerState
	StructureID     optional.Optional[int64]
	SystemName      string
	Timer           time.Time
	Type            TimerType
	UpdatedAt       time.Time
}

// IsOpen reports whether a timer is still running at time now.
func (st StructureTimer) IsOpen(now time.Time) bool {
	return !st.Timer.Before(now)
}
