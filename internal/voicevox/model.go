package voicevox

import "encoding/json"

// Mora is a single beat of an accent phrase. Pitch is the value the
// engine renders; zero means unvoiced.
type Mora struct {
	Text            string   `json:"text"`
	Consonant       *string  `json:"consonant"`
	ConsonantLength *float64 `json:"consonant_length"`
	Vowel           string   `json:"vowel"`
	VowelLength     float64  `json:"vowel_length"`
	Pitch           float64  `json:"pitch"`
}

// AccentPhrase groups morae sharing one accent nucleus. PauseMora, when
// present, follows the phrase's morae.
type AccentPhrase struct {
	Moras           []Mora `json:"moras"`
	Accent          int    `json:"accent"`
	PauseMora       *Mora  `json:"pause_mora"`
	IsInterrogative bool   `json:"is_interrogative"`
}

// AudioQuery is the engine's intermediate representation returned by
// /audio_query and consumed by /synthesis. Optional fields stay nil when
// the engine version does not send them so they round-trip unchanged.
// Top-level keys without a field (e.g. AivisSpeech's tempoDynamicsScale)
// are kept in Extra and sent back as received.
type AudioQuery struct {
	AccentPhrases      []AccentPhrase `json:"accent_phrases"`
	SpeedScale         float64        `json:"speedScale"`
	PitchScale         float64        `json:"pitchScale"`
	IntonationScale    float64        `json:"intonationScale"`
	VolumeScale        float64        `json:"volumeScale"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	PostPhonemeLength  float64        `json:"postPhonemeLength"`
	PauseLength        *float64       `json:"pauseLength,omitempty"`
	PauseLengthScale   *float64       `json:"pauseLengthScale,omitempty"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
	OutputStereo       bool           `json:"outputStereo"`
	Kana               *string        `json:"kana,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// audioQueryFields has AudioQuery's fields without its JSON methods.
type audioQueryFields AudioQuery

var audioQueryKeys = []string{
	"accent_phrases", "speedScale", "pitchScale", "intonationScale", "volumeScale",
	"prePhonemeLength", "postPhonemeLength", "pauseLength", "pauseLengthScale",
	"outputSamplingRate", "outputStereo", "kana",
}

func (q *AudioQuery) UnmarshalJSON(data []byte) error {
	var fields audioQueryFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	for _, k := range audioQueryKeys {
		delete(extra, k)
	}
	if len(extra) == 0 {
		extra = nil
	}
	fields.Extra = extra
	*q = AudioQuery(fields)
	return nil
}

// MarshalJSON writes the typed fields over Extra, so an overridden scale
// always wins.
func (q AudioQuery) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(audioQueryFields(q))
	if err != nil || len(q.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(q.Extra)+len(audioQueryKeys))
	for k, v := range q.Extra {
		merged[k] = v
	}
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(known, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// MoraCount returns the number of index slots a mora walk visits,
// counting pause morae.
func (q *AudioQuery) MoraCount() int {
	n := 0
	for _, p := range q.AccentPhrases {
		n += len(p.Moras)
		if p.PauseMora != nil {
			n++
		}
	}
	return n
}

// Speaker is an entry of the engine's /speakers listing.
type Speaker struct {
	Name        string         `json:"name"`
	SpeakerUUID string         `json:"speaker_uuid"`
	Styles      []SpeakerStyle `json:"styles"`
	Version     string         `json:"version"`
}

// SpeakerStyle is one voice style of a speaker; ID is what /audio_query
// and /synthesis take as "speaker".
type SpeakerStyle struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}
