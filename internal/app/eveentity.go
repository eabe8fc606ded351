package app

// EveEntityCategory represents the category of an EveEntity.
type EveEntityCategory uint

const (
	EveEntityUndefined EveEntityCategory = iota
	EveEntityAlliance
	EveEntityCharacter
	EveEntityCorporation
	EveEntityConstellation
	EveEntityFaction
	EveEntityInventoryType
	EveEntityRegion
	EveEntitySolarSystem
	EveEntityStation
	EveEntityUnknown
)

var eveEntityCategoryFromESI = map[string]EveEntityCategory{
	"alliance":       EveEntityAlliance,
	"character":      EveEntityCharacter,
	"constellation":  EveEntityConstellation,
	"corporation":    EveEntityCorporation,
	"faction":        EveEntityFaction,
	"inventory_type": EveEntityInventoryType,
	"region":         EveEntityRegion,
	"solar_system":   EveEntitySolarSystem,
	"station":        EveEntityStation,
}

// EveEntityCategoryFromESI returns the category for a category name from ESI.
// Unknown names are reported as [EveEntityUnknown].
func EveEntityCategoryFromESI(s string) EveEntityCategory {
	c, ok := eveEntityCategoryFromESI[s]
	if !ok {
		return EveEntityUnknown
	}
	return c
}

// An EveEntity in EveOnline.
type EveEntity struct {
	Category EveEntityCategory
	ID       int32
	Name     string
}
