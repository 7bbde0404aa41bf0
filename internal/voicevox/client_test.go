package voicevox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hiragana-park/kotoba/internal/voicevox"
	"github.com/hiragana-park/kotoba/internal/voicevox/voicevoxtest"
)

func TestNewClientDefaults(t *testing.T) {
	c := voicevox.NewClient(voicevox.Config{})
	if c.BaseURL() != voicevox.DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), voicevox.DefaultBaseURL)
	}
}

func TestAudioQueryRequest(t *testing.T) {
	var gotMethod, gotPath, gotText, gotSpeaker string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotText = r.URL.Query().Get("text")
		gotSpeaker = r.URL.Query().Get("speaker")
		_ = json.NewEncoder(w).Encode(voicevoxtest.QueryFor(gotText, false))
	}))
	defer srv.Close()

	c := voicevox.NewClient(voicevox.Config{BaseURL: srv.URL})
	q, err := c.AudioQuery(context.Background(), "あいす", 3)
	if err != nil {
		t.Fatalf("AudioQuery() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/audio_query" {
		t.Errorf("path = %s, want /audio_query", gotPath)
	}
	if gotText != "あいす" {
		t.Errorf("text = %q, want %q", gotText, "あいす")
	}
	if gotSpeaker != "3" {
		t.Errorf("speaker = %q, want 3", gotSpeaker)
	}
	if q.MoraCount() != 3 {
		t.Errorf("MoraCount() = %d, want 3", q.MoraCount())
	}
}

func TestAudioQueryPreservesOptionalFields(t *testing.T) {
	raw := `{"accent_phrases":[{"moras":[{"text":"ア","consonant":null,"consonant_length":null,"vowel":"a","vowel_length":0.1,"pitch":5.5}],"accent":1,"pause_mora":null,"is_interrogative":false}],
"speedScale":1,"pitchScale":0,"intonationScale":1,"volumeScale":1,"prePhonemeLength":0.1,"postPhonemeLength":0.1,
"pauseLength":null,"pauseLengthScale":1,"outputSamplingRate":24000,"outputStereo":false,"kana":"'ア"}`

	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audio_query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(raw))
	})
	mux.HandleFunc("POST /synthesis", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		_, _ = w.Write(voicevoxtest.WAV(nil))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := voicevox.NewClient(voicevox.Config{BaseURL: srv.URL})
	q, err := c.AudioQuery(context.Background(), "あ", 3)
	if err != nil {
		t.Fatalf("AudioQuery() error = %v", err)
	}
	if _, err := c.Synthesis(context.Background(), q, 3); err != nil {
		t.Fatalf("Synthesis() error = %v", err)
	}

	for _, want := range []string{`"kana":"'ア"`, `"pauseLengthScale":1`, `"consonant":null`, `"pause_mora":null`} {
		if !strings.Contains(seen, want) {
			t.Errorf("synthesis body missing %s: %s", want, seen)
		}
	}
	if strings.Contains(seen, `"pauseLength"`) {
		t.Errorf("absent pauseLength should stay absent: %s", seen)
	}
}

func TestSynthesisKeepsUnknownQueryKeys(t *testing.T) {
	raw := `{"accent_phrases":[],"speedScale":1,"pitchScale":0,"intonationScale":1,"volumeScale":1,
"prePhonemeLength":0.1,"postPhonemeLength":0.1,"outputSamplingRate":44100,"outputStereo":false,
"tempoDynamicsScale":1.3,"style":{"name":"ノーマル","id":888753760}}`

	var seen map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audio_query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(raw))
	})
	mux.HandleFunc("POST /synthesis", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&seen)
		_, _ = w.Write(voicevoxtest.WAV(nil))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := voicevox.NewClient(voicevox.Config{BaseURL: srv.URL})
	q, err := c.AudioQuery(context.Background(), "あ", 888753760)
	if err != nil {
		t.Fatalf("AudioQuery() error = %v", err)
	}
	if len(q.Extra) != 2 {
		t.Errorf("Extra = %v, want tempoDynamicsScale and style", q.Extra)
	}

	q.SpeedScale = 0.9
	q.Extra["speedScale"] = json.RawMessage(`5`)
	if _, err := c.Synthesis(context.Background(), q, 888753760); err != nil {
		t.Fatalf("Synthesis() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"tempoDynamicsScale", `1.3`},
		{"style", `{"name":"ノーマル","id":888753760}`},
		{"speedScale", `0.9`},
		{"outputSamplingRate", `44100`},
	}
	for _, tt := range tests {
		if got := string(seen[tt.key]); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestAudioQueryWithoutUnknownKeys(t *testing.T) {
	q := voicevoxtest.QueryFor("あ", false)
	b, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back voicevox.AudioQuery
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Extra != nil {
		t.Errorf("Extra = %v, want nil", back.Extra)
	}
	if back.MoraCount() != 1 {
		t.Errorf("MoraCount() = %d, want 1", back.MoraCount())
	}
}

func TestSynthesisSendsQuery(t *testing.T) {
	engine := voicevoxtest.NewEngine()
	defer engine.Close()

	c := voicevox.NewClient(voicevox.Config{BaseURL: engine.URL})
	q := voicevoxtest.QueryFor("あい", false)
	q.SpeedScale = 0.8

	wav, err := c.Synthesis(context.Background(), &q, 8)
	if err != nil {
		t.Fatalf("Synthesis() error = %v", err)
	}
	if err := voicevox.ValidateWAV(wav); err != nil {
		t.Errorf("returned audio is not WAV: %v", err)
	}
	if engine.LastSpeaker() != "8" {
		t.Errorf("speaker = %q, want 8", engine.LastSpeaker())
	}
	if got := engine.LastQuery().SpeedScale; got != 0.8 {
		t.Errorf("speedScale = %v, want 0.8", got)
	}
}

func TestClientErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		engine := voicevoxtest.NewEngine()
		defer engine.Close()
		engine.QueryStatus = http.StatusInternalServerError

		c := voicevox.NewClient(voicevox.Config{BaseURL: engine.URL})
		_, err := c.AudioQuery(context.Background(), "あ", 3)

		var apiErr *voicevox.ErrAPIResponse
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *ErrAPIResponse", err)
		}
		if apiErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", apiErr.StatusCode)
		}
		if apiErr.Endpoint != "/audio_query" {
			t.Errorf("endpoint = %q", apiErr.Endpoint)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		engine := voicevoxtest.NewEngine()
		url := engine.URL
		engine.Close()

		c := voicevox.NewClient(voicevox.Config{BaseURL: url})
		_, err := c.AudioQuery(context.Background(), "あ", 3)

		var netErr *voicevox.ErrAPINetwork
		if !errors.As(err, &netErr) {
			t.Fatalf("error = %v, want *ErrAPINetwork", err)
		}
	})

	t.Run("malformed query JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		c := voicevox.NewClient(voicevox.Config{BaseURL: srv.URL})
		_, err := c.AudioQuery(context.Background(), "あ", 3)

		var jsonErr *voicevox.ErrInvalidJSON
		if !errors.As(err, &jsonErr) {
			t.Fatalf("error = %v, want *ErrInvalidJSON", err)
		}
	})

	t.Run("short synthesis body", func(t *testing.T) {
		engine := voicevoxtest.NewEngine()
		defer engine.Close()
		engine.SynthesisBody = []byte("tiny")

		c := voicevox.NewClient(voicevox.Config{BaseURL: engine.URL})
		q := voicevoxtest.QueryFor("あ", false)
		_, err := c.Synthesis(context.Background(), &q, 3)

		var wavErr *voicevox.ErrInvalidWAV
		if !errors.As(err, &wavErr) {
			t.Fatalf("error = %v, want *ErrInvalidWAV", err)
		}
	})
}

func TestErrAPIResponseTruncatesBody(t *testing.T) {
	err := &voicevox.ErrAPIResponse{Endpoint: "/synthesis", StatusCode: 500, Body: strings.Repeat("x", 300)}
	if len(err.Error()) > 200 {
		t.Errorf("error message too long: %d chars", len(err.Error()))
	}
}

func TestVersionAndSpeakers(t *testing.T) {
	engine := voicevoxtest.NewEngine()
	defer engine.Close()
	c := voicevox.NewClient(voicevox.Config{BaseURL: engine.URL})

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "0.14.7" {
		t.Errorf("Version() = %q, want 0.14.7", v)
	}

	speakers, err := c.Speakers(context.Background())
	if err != nil {
		t.Fatalf("Speakers() error = %v", err)
	}
	if len(speakers) != 1 || speakers[0].Styles[0].ID != 3 {
		t.Errorf("Speakers() = %+v", speakers)
	}
}

func TestValidateWAV(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", voicevoxtest.WAV([]byte("pcm")), false},
		{"too short", []byte("RIFF"), true},
		{"wrong magic", append([]byte("JUNK0000WAVE"), make([]byte, 40)...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := voicevox.ValidateWAV(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWAV() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
