package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ErikKalkoken/go-set"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/structureservice"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// addCharacter registers a character and its corporation with an ESI access token.
func addCharacter(ctx context.Context, st *storage.Storage, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-character", flag.ContinueOnError)
	fs.SetOutput(out)
	characterID := fs.Int("id", 0, "character ID")
	name := fs.String("name", "", "character name")
	corporationID := fs.Int("corporation-id", 0, "corporation ID")
	corporationName := fs.String("corporation", "", "corporation name")
	allianceID := fs.Int("alliance-id", 0, "alliance ID (optional)")
	allianceName := fs.String("alliance", "", "alliance name (optional)")
	token := fs.String("token", "", "ESI access token")
	expires := fs.String("expires", "", "token expiry in RFC3339 format (optional)")
	scopes := fs.String("scopes", app.ScopeReadNotifications+","+app.ScopeReadStructures, "comma separated list of granted scopes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *characterID == 0 || *corporationID == 0 || *token == "" {
		return fmt.Errorf("add character: id, corporation-id and token are required: %w", app.ErrInvalid)
	}
	var expiresAt optional.Optional[time.Time]
	if *expires != "" {
		t, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			return fmt.Errorf("add character: expires: %w", err)
		}
		expiresAt = optional.New(t.UTC())
	}
	corporation := storage.UpdateOrCreateCorporationParams{
		ID:   int32(*corporationID),
		Name: *corporationName,
	}
	if *allianceID != 0 {
		corporation.AllianceID = optional.New(int32(*allianceID))
	}
	if *allianceName != "" {
		corporation.AllianceName = optional.New(*allianceName)
	}
	if err := st.UpdateOrCreateCorporation(ctx, corporation); err != nil {
		return err
	}
	err := st.UpdateOrCreateCharacter(ctx, storage.UpdateOrCreateCharacterParams{
		AccessToken:    *token,
		CorporationID:  int32(*corporationID),
		ID:             int32(*characterID),
		Name:           *name,
		Scopes:         parseScopes(*scopes),
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added character %s (%d) of corporation %s\n", *name, *characterID, *corporationName)
	return nil
}

func parseScopes(s string) set.Set[string] {
	var scopes set.Set[string]
	for x := range strings.SplitSeq(s, ",") {
		x = strings.TrimSpace(x)
		if x != "" {
			scopes.Add(x)
		}
	}
	return scopes
}

// addTimer creates a timer from the text of a selected item window read from in.
func addTimer(ctx context.Context, s *structureservice.StructureService, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("add-timer", flag.ContinueOnError)
	fs.SetOutput(out)
	state := fs.String("state", "", "state of the structure: anchoring, armor, hull or unanchoring")
	timerType := fs.String("type", "", "structure type, e.g. astrahus (optional for orbitals)")
	corporationName := fs.String("corporation", "", "name of the owning corporation")
	allianceName := fs.String("alliance", "", "name of the owning alliance (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("add timer: read text: %w", err)
	}
	arg := structureservice.CreateTimerFromSelectedItemParams{
		CorporationName: *corporationName,
		State:           app.TimerState(strings.ToLower(*state)),
		Text:            string(text),
		Type:            app.TimerType(*timerType),
	}
	if *allianceName != "" {
		arg.AllianceName = optional.New(*allianceName)
	}
	t, err := s.CreateTimerFromSelectedItem(ctx, arg)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		out,
		"Timer %d: %s in %s - %s until %s\n",
		t.ID,
		t.Name,
		t.SystemName,
		t.State.Display(),
		t.Timer.Format(app.DateTimeFormat),
	)
	return nil
}

// listTimers writes the open timers to out, or all timers with the all flag.
func listTimers(ctx context.Context, st *storage.Storage, args []string, now time.Time, out io.Writer) error {
	fs := flag.NewFlagSet("list-timers", flag.ContinueOnError)
	fs.SetOutput(out)
	all := fs.Bool("all", false, "include timers which have passed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var timers []*app.StructureTimer
	var err error
	if *all {
		timers, err = st.ListStructureTimers(ctx)
	} else {
		timers, err = st.ListOpenStructureTimers(ctx, now)
	}
	if err != nil {
		return err
	}
	if len(timers) == 0 {
		fmt.Fprintln(out, "No timers")
		return nil
	}
	for _, t := range timers {
		var passed string
		if !t.IsOpen(now) {
			passed = " (passed)"
		}
		fmt.Fprintf(
			out,
			"%d: %s in %s - %s until %s%s\n",
			t.ID,
			t.Name,
			t.SystemName,
			t.State.Display(),
			t.Timer.Format(app.DateTimeFormat),
			passed,
		)
	}
	return nil
}
