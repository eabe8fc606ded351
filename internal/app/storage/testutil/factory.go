package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ErikKalkoken/go-set"
	"github.com/icrowley/fake"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// EVE IDs
const (
	startIDAlliance     = 99_000_001
	startIDCharacter    = 90_000_001
	startIDCorporation  = 98_000_001
	startIDNotification = 1_000_000_001
	startIDSolarSystem  = 30_000_001
	startIDStructure    = 1_000_000_000_001
)

// Factory creates objects for tests and stores them in the database.
type Factory struct {
	st   *storage.Storage
	dbRO *sql.DB
}

func NewFactory(st *storage.Storage, dbRO *sql.DB) Factory {
	f := Factory{st: st, dbRO: dbRO}
	return f
}

func (f Factory) RandomTime() time.Time {
	hours := time.Duration(rand.IntN(100_000))
	seconds := time.Duration(rand.IntN(3600))
	d := hours*time.Hour + seconds*time.Second
	return time.Now().Add(-d).UTC()
}

// CreateCorporation creates and returns a new corporation. Empty optional values are not filled.
func (f Factory) CreateCorporation(args ...storage.UpdateOrCreateCorporationParams) *app.Corporation {
	var arg storage.UpdateOrCreateCorporationParams
	if len(args) > 0 {
		arg = args[0]
	}
	if arg.ID == 0 {
		arg.ID = int32(f.calcNewID("corporations", "id", startIDCorporation))
	}
	if arg.Name == "" {
		arg.Name = fake.Company()
	}
	ctx := context.Background()
	if err := f.st.UpdateOrCreateCorporation(ctx, arg); err != nil {
		panic(err)
	}
	o, err := f.st.GetCorporation(ctx, arg.ID)
	if err != nil {
		panic(err)
	}
	return o
}

// CreateCorporationWithAlliance creates and returns a new corporation, which is member of an alliance.
func (f Factory) CreateCorporationWithAlliance() *app.Corporation {
	return f.CreateCorporation(storage.UpdateOrCreateCorporationParams{
		AllianceID:   optional.New(int32(startIDAlliance + rand.IntN(100_000))),
		AllianceName: optional.New(fake.Company() + " Alliance"),
	})
}

// CreateCharacter creates and returns a new character with a valid token.
// When no scopes are given, the character has all scopes used by this app.
func (f Factory) CreateCharacter(args ...storage.UpdateOrCreateCharacterParams) *app.Character {
	var arg storage.UpdateOrCreateCharacterParams
	if len(args) > 0 {
		arg = args[0]
	}
	if arg.ID == 0 {
		arg.ID = int32(f.calcNewID("characters", "id", startIDCharacter))
	}
	if arg.CorporationID == 0 {
		arg.CorporationID = f.CreateCorporation().ID
	}
	if arg.Name == "" {
		arg.Name = fake.FullName()
	}
	if arg.AccessToken == "" {
		arg.AccessToken = fake.CharactersN(32)
	}
	if arg.TokenExpiresAt.IsEmpty() {
		arg.TokenExpiresAt = optional.New(time.Now().Add(20 * time.Minute).UTC())
	}
	if arg.Scopes.Size() == 0 {
		arg.Scopes = set.Of(app.ScopeReadNotifications, app.ScopeReadStructures)
	}
	ctx := context.Background()
	if err := f.st.UpdateOrCreateCharacter(ctx, arg); err != nil {
		panic(err)
	}
	o, err := f.st.GetCharacter(ctx, arg.ID)
	if err != nil {
		panic(err)
	}
	return o
}

// CreateStructure creates and returns a new structure.
func (f Factory) CreateStructure(args ...storage.UpdateOrCreateStructureParams) *app.Structure {
	var arg storage.UpdateOrCreateStructureParams
	if len(args) > 0 {
		arg = args[0]
	}
	if arg.ID == 0 {
		arg.ID = f.calcNewID("structures", "id", startIDStructure)
	}
	if arg.CorporationID == 0 {
		arg.CorporationID = f.CreateCorporation().ID
	}
	if arg.SystemID == 0 {
		arg.SystemID = int32(startIDSolarSystem + rand.IntN(8000))
	}
	if arg.SystemName == "" {
		arg.SystemName = fake.City()
	}
	if arg.TypeID == 0 {
		arg.TypeID = 35826
		arg.TypeName = "Astrahus"
	}
	if arg.TypeName == "" {
		arg.TypeName = fake.Word()
	}
	if arg.Name == "" {
		arg.Name = fmt.Sprintf("%s - %s", arg.SystemName, fake.Word())
	}
	if arg.State == "" {
		arg.State = "shield_vulnerable"
	}
	ctx := context.Background()
	if err := f.st.UpdateOrCreateStructure(ctx, arg); err != nil {
		panic(err)
	}
	o, err := f.st.GetStructure(ctx, arg.ID)
	if err != nil {
		panic(err)
	}
	return o
}

// CreateStructurePing creates and returns a new structure ping.
func (f Factory) CreateStructurePing(args ...storage.GetOrCreateStructurePingParams) *app.StructurePing {
	var arg storage.GetOrCreateStructurePingParams
	if len(args) > 0 {
		arg = args[0]
	}
	if arg.NotificationID == 0 {
		arg.NotificationID = f.calcNewID("structure_pings", "notification_id", startIDNotification)
	}
	if arg.NotificationType == "" {
		arg.NotificationType = string(app.StructureUnderAttack)
	}
	if arg.StructureID == 0 {
		arg.StructureID = f.CreateStructure().ID
	}
	if arg.EventTime.IsZero() {
		arg.EventTime = f.RandomTime()
	}
	if arg.Summary == "" {
		arg.Summary = fake.Sentence()
	}
	ping, _, err := f.st.GetOrCreateStructurePing(context.Background(), arg)
	if err != nil {
		panic(err)
	}
	return ping
}

// CreateStructureTimer creates and returns a new open structure timer.
func (f Factory) CreateStructureTimer(args ...storage.UpdateOrCreateOpenStructureTimerParams) *app.StructureTimer {
	var arg storage.UpdateOrCreateOpenStructureTimerParams
	if len(args) > 0 {
		arg = args[0]
	}
	if arg.Now.IsZero() {
		arg.Now = time.Now().UTC()
	}
	if arg.Timer.IsZero() {
		arg.Timer = arg.Now.Add(time.Duration(1+rand.IntN(72)) * time.Hour)
	}
	if arg.State == "" {
		arg.State = app.TimerStateArmor
	}
	if arg.Type == "" {
		arg.Type = "astrahus"
	}
	if arg.SystemName == "" {
		arg.SystemName = fake.City()
	}
	if arg.Name == "" {
		arg.Name = fake.Word()
	}
	if arg.CorporationName == "" {
		arg.CorporationName = fake.Company()
	}
	t, _, err := f.st.UpdateOrCreateOpenStructureTimer(context.Background(), arg)
	if err != nil {
		panic(err)
	}
	return t
}

func (f Factory) calcNewID(table, idField string, start int64) int64 {
	if start < 1 {
		panic("start must be a positive number")
	}
	var vMax sql.NullInt64
	if err := f.dbRO.QueryRow(fmt.Sprintf("SELECT MAX(%s) FROM %s;", idField, table)).Scan(&vMax); err != nil {
		panic(err)
	}
	return max(vMax.Int64+1, start)
}
