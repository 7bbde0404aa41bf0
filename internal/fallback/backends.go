package fallback

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hiragana-park/kotoba/internal/tts"
)

// SynthesizerBackend adapts a tts.Synthesizer to the chain.
type SynthesizerBackend struct {
	synth *tts.Synthesizer
}

// NewSynthesizerBackend wraps synth. The backend is named after it.
func NewSynthesizerBackend(synth *tts.Synthesizer) *SynthesizerBackend {
	return &SynthesizerBackend{synth: synth}
}

func (b *SynthesizerBackend) Name() string { return b.synth.Name() }

func (b *SynthesizerBackend) Speak(ctx context.Context, text, speaker string) (*Audio, error) {
	res, err := b.synth.Synthesize(ctx, text, speaker)
	if err != nil {
		return nil, err
	}
	return &Audio{Data: res.Audio, Format: res.Format, Cached: res.Cached}, nil
}

// RemoteBackend calls another kotoba server's POST /synthesize.
type RemoteBackend struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// RemoteConfig configures a RemoteBackend.
type RemoteConfig struct {
	Name       string // defaults to "remote"
	BaseURL    string
	HTTPClient *http.Client
}

// NewRemoteBackend creates a RemoteBackend.
func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	endpoint, err := url.JoinPath(cfg.BaseURL, "synthesize")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteBackend{name: cfg.Name, endpoint: endpoint, httpClient: cfg.HTTPClient}, nil
}

func (b *RemoteBackend) Name() string { return b.name }

type remoteRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

type remoteResponse struct {
	Audio    string `json:"audio"`
	Format   string `json:"format"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error"`
	Details  string `json:"details"`
	Fallback bool   `json:"fallback"`
}

func (b *RemoteBackend) Speak(ctx context.Context, text, speaker string) (*Audio, error) {
	body, err := json.Marshal(remoteRequest{Text: text, Speaker: speaker})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var payload remoteResponse
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && payload.Fallback {
			return nil, fmt.Errorf("%w: %s (%s)", ErrFallbackRequested, payload.Error, payload.Details)
		}
		return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	audio, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("remote returned empty audio")
	}
	return &Audio{Data: audio, Format: payload.Format, Cached: payload.Cached}, nil
}
