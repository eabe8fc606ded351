package evenotification

import (
	"strconv"
	"strings"

	"github.com/ErikKalkoken/structurewatch/internal/app"
	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

// aggressorState is the state of the aggressor scanner.
type aggressorState uint

const (
	scanning aggressorState = iota
	inCorpLinkList
)

const corpLinkDataPrefix = "corpLinkData:"

// aggressorScanner extracts the aggressor from notification text line by line.
//
// Two formats are supported.
// Orbital notifications have the keys aggressorID, aggressorCorpID and aggressorAllianceID.
// Structure notifications have the keys charID and allianceID
// and the corporation ID as second number in the list following corpLinkData.
type aggressorScanner struct {
	state       aggressorState
	listNumbers []int32
	result      app.Aggressor
}

type aggressorKey struct {
	prefix    string
	field     func(a *app.Aggressor) *optional.Optional[int32]
	onlyEmpty bool
}

var aggressorKeys = []aggressorKey{
	{"aggressorID:", func(a *app.Aggressor) *optional.Optional[int32] { return &a.CharacterID }, false},
	{"aggressorCorpID:", func(a *app.Aggressor) *optional.Optional[int32] { return &a.CorporationID }, false},
	{"aggressorAllianceID:", func(a *app.Aggressor) *optional.Optional[int32] { return &a.AllianceID }, false},
	{"charID:", func(a *app.Aggressor) *optional.Optional[int32] { return &a.CharacterID }, true},
	{"allianceID:", func(a *app.Aggressor) *optional.Optional[int32] { return &a.AllianceID }, true},
}

func (s *aggressorScanner) feed(line string) {
	line = strings.TrimSpace(line)
	if s.state == inCorpLinkList {
		if entry, ok := strings.CutPrefix(line, "-"); ok {
			if v, err := strconv.ParseInt(strings.TrimSpace(entry), 10, 32); err == nil {
				s.listNumbers = append(s.listNumbers, int32(v))
			}
			return
		}
		s.closeList()
	}
	if strings.HasPrefix(line, corpLinkDataPrefix) {
		s.state = inCorpLinkList
		s.listNumbers = s.listNumbers[:0]
		return
	}
	for _, k := range aggressorKeys {
		if !strings.HasPrefix(line, k.prefix) {
			continue
		}
		f := k.field(&s.result)
		if k.onlyEmpty && !f.IsEmpty() {
			return
		}
		if v, ok := lastInt(line[len(k.prefix):], 32); ok && v != 0 {
			f.Set(int32(v))
		}
		return
	}
}

// closeList ends a corpLinkData list and commits the corporation ID when found.
// The first number in the list is a category and the second the corporation ID.
func (s *aggressorScanner) closeList() {
	if len(s.listNumbers) >= 2 && s.result.CorporationID.IsEmpty() {
		s.result.CorporationID.Set(s.listNumbers[1])
	}
	s.state = scanning
	s.listNumbers = s.listNumbers[:0]
}

func (s *aggressorScanner) finish() app.Aggressor {
	if s.state == inCorpLinkList {
		s.closeList()
	}
	return s.result
}

// ParseAggressor extracts the IDs of the attacker from the body of a combat notification.
// IDs which are not present or malformed are left empty.
func ParseAggressor(text string) app.Aggressor {
	var s aggressorScanner
	for line := range strings.Lines(text) {
		s.feed(line)
	}
	return s.finish()
}
