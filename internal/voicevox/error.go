package voicevox

import (
	"fmt"
)

// ErrAPINetwork is a transport-level failure talking to the engine
// (connection refused, DNS, timeout). Callers treat it as "engine down".
type ErrAPINetwork struct {
	Endpoint   string
	WrappedErr error
}

func (e *ErrAPINetwork) Error() string {
	return fmt.Sprintf("voicevox network error (%s): %v", e.Endpoint, e.WrappedErr)
}

func (e *ErrAPINetwork) Unwrap() error { return e.WrappedErr }

// ErrAPIResponse means the engine answered with a non-2xx status.
type ErrAPIResponse struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ErrAPIResponse) Error() string {
	body := e.Body
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	return fmt.Sprintf("voicevox API error (%s): status %d: %s", e.Endpoint, e.StatusCode, body)
}

// ErrInvalidJSON means a response body could not be decoded.
type ErrInvalidJSON struct {
	Endpoint   string
	WrappedErr error
}

func (e *ErrInvalidJSON) Error() string {
	return fmt.Sprintf("voicevox invalid JSON (%s): %v", e.Endpoint, e.WrappedErr)
}

func (e *ErrInvalidJSON) Unwrap() error { return e.WrappedErr }

// ErrInvalidWAV means /synthesis returned something that is not a WAV file.
type ErrInvalidWAV struct {
	Size    int
	Details string
}

func (e *ErrInvalidWAV) Error() string {
	return fmt.Sprintf("voicevox invalid WAV (%d bytes): %s", e.Size, e.Details)
}
