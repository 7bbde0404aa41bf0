package voice

import "sort"

// DefaultSpeakerName is used when a request does not name a speaker.
const DefaultSpeakerName = "ずんだもん"

// Speaker maps a caller-facing name to an engine style ID.
type Speaker struct {
	Name        string `json:"name"`
	ID          int    `json:"id"`
	Style       string `json:"style"`
	Description string `json:"description"`
}

// Kid-friendly VOICEVOX voices offered to the app.
var kidsFriendlySpeakers = []Speaker{
	{Name: "四国めたん", ID: 5, Style: "ノーマル", Description: "cute"},
	{Name: "ずんだもん", ID: 3, Style: "ノーマル", Description: "popular with children"},
	{Name: "春日部つむぎ", ID: 8, Style: "ノーマル", Description: "gentle"},
	{Name: "読み聞かせ", ID: 31, Style: "読み聞かせ", Description: "storytelling"},
	{Name: "もち子さん", ID: 20, Style: "ノーマル", Description: "soft Kansai accent"},
	{Name: "剣崎雌雄", ID: 7, Style: "ノーマル", Description: "calm"},
	{Name: "春歌ナナ", ID: 6, Style: "ノーマル", Description: "sing-song"},
}

// Speakers is a set of known speakers plus a default name.
type Speakers struct {
	byName      map[string]Speaker
	defaultName string
	// fixed, when set, answers every name with the same voice.
	fixed *Speaker
}

// NewSpeakers builds a speaker set. defaultName must be one of list.
func NewSpeakers(list []Speaker, defaultName string) *Speakers {
	m := make(map[string]Speaker, len(list))
	for _, s := range list {
		m[s.Name] = s
	}
	return &Speakers{byName: m, defaultName: defaultName}
}

// DefaultSpeakers returns the built-in kid-friendly speaker set.
func DefaultSpeakers() *Speakers {
	return NewSpeakers(kidsFriendlySpeakers, DefaultSpeakerName)
}

// FixedSpeaker returns a set that resolves every name to the given engine
// style ID. Used for secondary engines that only expose one suitable voice.
func FixedSpeaker(id int, label string) *Speakers {
	s := Speaker{Name: label, ID: id, Style: "ノーマル"}
	return &Speakers{byName: map[string]Speaker{label: s}, defaultName: label, fixed: &s}
}

// Resolve looks up a speaker by name. An empty name resolves to the default.
func (s *Speakers) Resolve(name string) (Speaker, bool) {
	if s.fixed != nil {
		return *s.fixed, true
	}
	if name == "" {
		name = s.defaultName
	}
	sp, ok := s.byName[name]
	return sp, ok
}

// DefaultName returns the name used for requests without a speaker.
func (s *Speakers) DefaultName() string { return s.defaultName }

// List returns all speakers sorted by engine ID.
func (s *Speakers) List() []Speaker {
	out := make([]Speaker, 0, len(s.byName))
	for _, sp := range s.byName {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithDefault returns a copy of the set whose default is name. It reports
// false when name is not in the set.
func (s *Speakers) WithDefault(name string) (*Speakers, bool) {
	if _, ok := s.byName[name]; !ok {
		return s, false
	}
	cp := *s
	cp.defaultName = name
	return &cp, true
}
