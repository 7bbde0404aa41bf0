package voice

import (
	"github.com/hiragana-park/kotoba/internal/voicevox"
)

// VolumeScale is applied to every query; children's devices tend to be quiet.
const VolumeScale = 1.1

// AccentAdjustment multiplies the pitch of the mora at MoraIndex.
type AccentAdjustment struct {
	MoraIndex       int
	PitchMultiplier float64
}

// Profile holds engine parameters tuned for a character or word.
type Profile struct {
	SpeedScale        float64
	PitchScale        float64
	IntonationScale   float64
	AccentAdjustments []AccentAdjustment
}

// Match tells how a profile was found.
type Match int

const (
	MatchDefault Match = iota
	MatchExact
)

// Single-character vowels are slowed down and pitched so that they are easy
// to tell apart.
var builtinProfiles = map[string]Profile{
	"あ": {SpeedScale: 0.8, PitchScale: 0.0, IntonationScale: 1.0},
	"い": {SpeedScale: 0.8, PitchScale: 0.2, IntonationScale: 1.1},
	"う": {SpeedScale: 0.9, PitchScale: -0.1, IntonationScale: 0.9},
	"え": {SpeedScale: 0.8, PitchScale: 0.1, IntonationScale: 1.0},
	"お": {SpeedScale: 0.9, PitchScale: -0.2, IntonationScale: 1.2},
}

var builtinDefault = Profile{SpeedScale: 0.9, PitchScale: 0.1, IntonationScale: 1.2}

// Table maps exact text to a profile, with an explicit default.
type Table struct {
	profiles map[string]Profile
	def      Profile
}

// NewTable builds a profile table. The map is copied.
func NewTable(profiles map[string]Profile, def Profile) *Table {
	m := make(map[string]Profile, len(profiles))
	for k, v := range profiles {
		m[k] = v
	}
	return &Table{profiles: m, def: def}
}

// DefaultTable returns the built-in profiles.
func DefaultTable() *Table {
	return NewTable(builtinProfiles, builtinDefault)
}

// Lookup returns the profile for text: exact match first, else the default.
func (t *Table) Lookup(text string) (Profile, Match) {
	if p, ok := t.profiles[text]; ok {
		return p, MatchExact
	}
	return t.def, MatchDefault
}

// Apply writes the profile's scales onto q and, for table matches, runs the
// accent adjustment pass. q is modified in place; applying twice compounds
// the pitch multipliers.
func Apply(q *voicevox.AudioQuery, p Profile, m Match) {
	q.SpeedScale = p.SpeedScale
	q.PitchScale = p.PitchScale
	q.IntonationScale = p.IntonationScale
	q.VolumeScale = VolumeScale

	if m == MatchExact && len(p.AccentAdjustments) > 0 {
		ApplyAccentAdjustments(q, p.AccentAdjustments)
	}
}

// ApplyAccentAdjustments walks the morae of every accent phrase in order
// and multiplies the pitch of each mora whose global index has an
// adjustment. A pause mora occupies the slot after its phrase's morae but is
// never adjusted. When several adjustments share an index the first wins.
func ApplyAccentAdjustments(q *voicevox.AudioQuery, adjustments []AccentAdjustment) int {
	applied := 0
	idx := 0
	for i := range q.AccentPhrases {
		phrase := &q.AccentPhrases[i]
		for j := range phrase.Moras {
			if adj, ok := findAdjustment(adjustments, idx); ok {
				phrase.Moras[j].Pitch *= adj.PitchMultiplier
				applied++
			}
			idx++
		}
		if phrase.PauseMora != nil {
			idx++
		}
	}
	return applied
}

func findAdjustment(adjustments []AccentAdjustment, idx int) (AccentAdjustment, bool) {
	for _, a := range adjustments {
		if a.MoraIndex == idx {
			return a, true
		}
	}
	return AccentAdjustment{}, false
}
