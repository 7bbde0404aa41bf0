// Package voicevoxtest provides an in-process fake VOICEVOX engine for tests.
package voicevoxtest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/hiragana-park/kotoba/internal/voicevox"
)

// Engine is a fake engine backed by httptest.Server. Every mora of a
// generated query starts with pitch 5.0.
type Engine struct {
	*httptest.Server

	mu             sync.Mutex
	queryCalls     int
	synthesisCalls int
	lastQuery      *voicevox.AudioQuery
	lastSpeaker    string

	// QueryStatus / SynthesisStatus force a non-2xx status when set.
	QueryStatus     int
	SynthesisStatus int
	// SynthesisBody overrides the synthesized bytes when non-nil.
	SynthesisBody []byte
	// PauseAfterEachPhrase adds a pause mora to every accent phrase.
	PauseAfterEachPhrase bool
}

// NewEngine starts a fake engine. Call Close when done.
func NewEngine() *Engine {
	e := &Engine{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audio_query", e.handleAudioQuery)
	mux.HandleFunc("POST /synthesis", e.handleSynthesis)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"0.14.7"`))
	})
	mux.HandleFunc("GET /speakers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"ずんだもん","speaker_uuid":"388f246b","styles":[{"name":"ノーマル","id":3}],"version":"0.14.7"}]`))
	})
	e.Server = httptest.NewServer(mux)
	return e
}

func (e *Engine) handleAudioQuery(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.queryCalls++
	status := e.QueryStatus
	pause := e.PauseAfterEachPhrase
	e.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"detail":"forced failure"}`, status)
		return
	}

	text := r.URL.Query().Get("text")
	if _, err := strconv.Atoi(r.URL.Query().Get("speaker")); err != nil {
		http.Error(w, `{"detail":"bad speaker"}`, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(QueryFor(text, pause))
}

func (e *Engine) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var q voicevox.AudioQuery
	decodeErr := json.Unmarshal(body, &q)

	e.mu.Lock()
	e.synthesisCalls++
	status := e.SynthesisStatus
	override := e.SynthesisBody
	if decodeErr == nil {
		e.lastQuery = &q
	}
	e.lastSpeaker = r.URL.Query().Get("speaker")
	e.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"detail":"forced failure"}`, status)
		return
	}
	if decodeErr != nil {
		http.Error(w, `{"detail":"invalid query"}`, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	if override != nil {
		_, _ = w.Write(override)
		return
	}
	_, _ = w.Write(WAV([]byte(fmt.Sprintf("speaker=%s;morae=%d", r.URL.Query().Get("speaker"), q.MoraCount()))))
}

// QueryCalls returns how many /audio_query requests were served.
func (e *Engine) QueryCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryCalls
}

// SynthesisCalls returns how many /synthesis requests were served.
func (e *Engine) SynthesisCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synthesisCalls
}

// Calls returns the total number of synthesis-related requests.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryCalls + e.synthesisCalls
}

// LastQuery returns the last query received by /synthesis.
func (e *Engine) LastQuery() *voicevox.AudioQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastQuery
}

// LastSpeaker returns the speaker parameter of the last /synthesis call.
func (e *Engine) LastSpeaker() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSpeaker
}

// QueryFor builds a query with one accent phrase holding one mora per rune
// of text, each at pitch 5.0.
func QueryFor(text string, pauseAfterPhrase bool) voicevox.AudioQuery {
	var moras []voicevox.Mora
	for _, r := range text {
		moras = append(moras, voicevox.Mora{Text: string(r), Vowel: "a", VowelLength: 0.1, Pitch: 5.0})
	}
	phrase := voicevox.AccentPhrase{Moras: moras, Accent: 1}
	if pauseAfterPhrase {
		phrase.PauseMora = &voicevox.Mora{Text: "、", Vowel: "pau", VowelLength: 0.3}
	}
	return voicevox.AudioQuery{
		AccentPhrases:      []voicevox.AccentPhrase{phrase},
		SpeedScale:         1,
		PitchScale:         0,
		IntonationScale:    1,
		VolumeScale:        1,
		PrePhonemeLength:   0.1,
		PostPhonemeLength:  0.1,
		OutputSamplingRate: 24000,
	}
}

// WAV wraps payload in a minimal 44-byte PCM WAV header.
func WAV(payload []byte) []byte {
	buf := make([]byte, voicevox.WavHeaderSize, voicevox.WavHeaderSize+len(payload))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(payload)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 24000)
	binary.LittleEndian.PutUint32(buf[28:32], 48000)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(payload)))
	return append(buf, payload...)
}
