package app

import (
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// EveNotificationType is the type name of a notification in Eve Online, e.g. "StructureLostArmor".
type EveNotificationType string

// Notification types about combat against structures.
const (
	OrbitalAttacked      EveNotificationType = "OrbitalAttacked"
	OrbitalReinforced    EveNotificationType = "OrbitalReinforced"
	StructureDestroyed   EveNotificationType = "StructureDestroyed"
	StructureLostArmor   EveNotificationType = "StructureLostArmor"
	StructureLostShields EveNotificationType = "StructureLostShields"
	StructureUnderAttack EveNotificationType = "StructureUnderAttack"
)

// IsStructureCombat reports whether a notification type is about an attack on a structure.
func (nt EveNotificationType) IsStructureCombat() bool {
	switch nt {
	case OrbitalAttacked, OrbitalReinforced, StructureDestroyed,
		StructureLostArmor, StructureLostShields, StructureUnderAttack:
		return true
	}
	return false
}

// ReinforcementState returns the timer state a structure enters with this notification
// and reports whether the notification is a reinforcement.
func (nt EveNotificationType) ReinforcementState() (TimerState, bool) {
	switch nt {
	case StructureLostShields, OrbitalReinforced:
		return TimerStateArmor, true
	case StructureLostArmor:
		return TimerStateHull, true
	}
	return "", false
}

// CharacterNotification is a notification received from a character's feed on ESI.
type CharacterNotification struct {
	NotificationID int64
	Text           string
	Timestamp      time.Time
	Type           EveNotificationType
}

// NotificationEvent is the structured information parsed from a structure notification.
type NotificationEvent struct {
	Excerpt       string
	SolarSystemID optional.Optional[int32]
	StructureID   int64
	TimerEnd      optional.Optional[time.Time]
	TypeID        optional.Optional[int32]
}

// HasStructureID reports whether the event identifies a structure, real or synthetic.
func (ne NotificationEvent) HasStructureID() bool {
	return ne.StructureID != UnknownStructureID
}

// Aggressor identifies the attacker in a combat notification.
type Aggressor struct {
	AllianceID    optional.Optional[int32]
	CharacterID   optional.Optional[int32]
	CorporationID optional.Optional[int32]
}

// IsEmpty reports whether no part of the aggressor is known.
func (a Aggressor) IsEmpty() bool {
	return a.CharacterID.IsEmpty() && a.CorporationID.IsEmpty() && a.AllianceID.IsEmpty()
}

// IDs returns the known IDs of an aggressor.
func (a Aggressor) IDs() []int32 {
	ids := make([]int32, 0, 3)
	for _, o := range []optional.Optional[int32]{a.CharacterID, a.CorporationID, a.AllianceID} {
		if v, ok := o.Value(); ok {
			ids = append(ids, v)
		}
	}
	return ids
}
