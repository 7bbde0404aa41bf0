package tts

import (
	"errors"
	"fmt"

	"github.com/hiragana-park/kotoba/internal/voicevox"
)

var (
	ErrInvalidInput            = errors.New("text is required")
	ErrUnknownSpeaker          = errors.New("unknown speaker")
	ErrQueryConstructionFailed = errors.New("audio query failed")
	ErrSynthesisFailed         = errors.New("synthesis failed")
)

// Stage identifies which engine call failed.
type Stage string

const (
	StageQuery     Stage = "audio_query"
	StageSynthesis Stage = "synthesis"
)

// BackendError wraps an engine failure. It matches ErrQueryConstructionFailed
// or ErrSynthesisFailed with errors.Is depending on Stage.
type BackendError struct {
	Stage      Stage
	Connection bool // engine unreachable rather than misbehaving
	Err        error
}

func newBackendError(stage Stage, err error) *BackendError {
	var netErr *voicevox.ErrAPINetwork
	return &BackendError{
		Stage:      stage,
		Connection: errors.As(err, &netErr),
		Err:        err,
	}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%v: %v", e.sentinel(), e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *BackendError) sentinel() error {
	if e.Stage == StageQuery {
		return ErrQueryConstructionFailed
	}
	return ErrSynthesisFailed
}

// IsConnectionError reports whether err is a backend failure caused by the
// engine being unreachable.
func IsConnectionError(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Connection
}
