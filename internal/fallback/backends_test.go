package fallback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hiragana-park/kotoba/internal/logging"
	"github.com/hiragana-park/kotoba/internal/tts"
	"github.com/hiragana-park/kotoba/internal/voicevox"
	"github.com/hiragana-park/kotoba/internal/voicevox/voicevoxtest"
)

func TestRemoteBackend(t *testing.T) {
	wav := voicevoxtest.WAV([]byte("remote"))

	tests := []struct {
		name         string
		status       int
		body         any
		wantErr      error
		wantAnyError bool
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: map[string]any{
				"audio":   base64.StdEncoding.EncodeToString(wav),
				"format":  "audio/wav",
				"cached":  true,
				"speaker": "ずんだもん",
			},
		},
		{
			name:   "fallback requested",
			status: http.StatusInternalServerError,
			body: map[string]any{
				"error":    "Failed to generate speech",
				"details":  "synthesis failed",
				"fallback": true,
			},
			wantErr: ErrFallbackRequested,
		},
		{
			name:         "bad request",
			status:       http.StatusBadRequest,
			body:         map[string]any{"error": "Text is required"},
			wantAnyError: true,
		},
		{
			name:         "garbage audio",
			status:       http.StatusOK,
			body:         map[string]any{"audio": "!!not base64!!"},
			wantAnyError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotText string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/synthesize" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req remoteRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				gotText = req.Text
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			b, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewRemoteBackend() error = %v", err)
			}
			if b.Name() != "remote" {
				t.Errorf("Name() = %q", b.Name())
			}

			audio, err := b.Speak(context.Background(), "あ", "ずんだもん")
			if gotText != "あ" {
				t.Errorf("server saw text %q", gotText)
			}
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAnyError:
				if err == nil {
					t.Error("expected an error")
				}
			default:
				if err != nil {
					t.Fatalf("Speak() error = %v", err)
				}
				if string(audio.Data) != string(wav) || !audio.Cached || audio.Format != "audio/wav" {
					t.Errorf("audio = %+v", audio)
				}
			}
		})
	}
}

func TestRemoteFallbackAdvancesChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Failed to generate speech","details":"engine down","fallback":true}`))
	}))
	defer srv.Close()

	remote, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewRemoteBackend() error = %v", err)
	}
	l := &callLog{}
	chain := NewChain(ChainConfig{Backends: []Backend{remote}, Local: ok("local", l)}, logging.Discard())

	out := chain.Speak(context.Background(), "か", "", "")
	if out.Backend != "local" {
		t.Errorf("Backend = %q, want local", out.Backend)
	}
	if len(out.Attempts) != 1 || !errors.Is(out.Attempts[0].Err, ErrFallbackRequested) {
		t.Errorf("attempts = %+v", out.Attempts)
	}
}

func TestSynthesizerBackend(t *testing.T) {
	engine := voicevoxtest.NewEngine()
	defer engine.Close()

	synth := tts.NewSynthesizer(tts.SynthesizerConfig{
		Name:   "voicevox",
		Engine: voicevox.NewClient(voicevox.Config{BaseURL: engine.URL}),
	}, logging.Discard())
	b := NewSynthesizerBackend(synth)

	if b.Name() != "voicevox" {
		t.Errorf("Name() = %q", b.Name())
	}
	a, err := b.Speak(context.Background(), "き", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if a.Format != tts.FormatWAV || a.Cached {
		t.Errorf("audio = %+v", a)
	}
	a, err = b.Speak(context.Background(), "き", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if !a.Cached {
		t.Error("second call should be served from cache")
	}
}
