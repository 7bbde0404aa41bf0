package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:50021"

	// WavHeaderSize is the size of a canonical RIFF/WAVE header.
	WavHeaderSize = 44

	maxAudioSize    = 20 * 1024 * 1024 // 20MB
	maxErrorBodyLen = 4096
)

// Client talks to a VOICEVOX-compatible engine (VOICEVOX, AivisSpeech, ...).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the engine client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client // shared pooled client; a 30s client is used when nil
}

// NewClient creates a new engine client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// BaseURL returns the engine base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) buildURL(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("parse base URL: %w", err)}
	}
	u = u.JoinPath(endpoint)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// do sends the request and returns the body of a 2xx response, reading at
// most limit bytes.
func (c *Client) do(req *http.Request, endpoint string, limit int64) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, &ErrAPIResponse{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// AudioQuery calls POST /audio_query and returns the decoded query.
func (c *Client) AudioQuery(ctx context.Context, text string, speakerID int) (*AudioQuery, error) {
	const endpoint = "/audio_query"

	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(speakerID))
	u, err := c.buildURL(endpoint, q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, endpoint, maxAudioSize)
	if err != nil {
		return nil, err
	}

	var query AudioQuery
	if err := json.Unmarshal(body, &query); err != nil {
		return nil, &ErrInvalidJSON{Endpoint: endpoint, WrappedErr: err}
	}
	return &query, nil
}

// Synthesis calls POST /synthesis with the (possibly modified) query and
// returns WAV bytes.
func (c *Client) Synthesis(ctx context.Context, query *AudioQuery, speakerID int) ([]byte, error) {
	const endpoint = "/synthesis"

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speakerID))
	u, err := c.buildURL(endpoint, q)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	wav, err := c.do(req, endpoint, maxAudioSize)
	if err != nil {
		return nil, err
	}
	if err := ValidateWAV(wav); err != nil {
		return nil, err
	}
	return wav, nil
}

// Version calls GET /version. Used as a readiness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	const endpoint = "/version"

	u, err := c.buildURL(endpoint, nil)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, endpoint, maxErrorBodyLen)
	if err != nil {
		return "", err
	}

	// The engine returns a JSON string, e.g. "0.14.7".
	var version string
	if err := json.Unmarshal(body, &version); err != nil {
		return "", &ErrInvalidJSON{Endpoint: endpoint, WrappedErr: err}
	}
	return version, nil
}

// Speakers calls GET /speakers.
func (c *Client) Speakers(ctx context.Context) ([]Speaker, error) {
	const endpoint = "/speakers"

	u, err := c.buildURL(endpoint, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, endpoint, maxAudioSize)
	if err != nil {
		return nil, err
	}

	var speakers []Speaker
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, &ErrInvalidJSON{Endpoint: endpoint, WrappedErr: err}
	}
	return speakers, nil
}

// ValidateWAV checks that data starts with a RIFF/WAVE header.
func ValidateWAV(data []byte) error {
	if len(data) < WavHeaderSize {
		return &ErrInvalidWAV{Size: len(data), Details: "shorter than WAV header"}
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return &ErrInvalidWAV{Size: len(data), Details: "missing RIFF/WAVE magic"}
	}
	return nil
}
