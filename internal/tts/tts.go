package tts

import (
	"context"

	"github.com/hiragana-park/kotoba/internal/eventlog"
	"github.com/hiragana-park/kotoba/internal/voicevox"
)

// FormatWAV is the only audio format the engines produce.
const FormatWAV = "audio/wav"

// Engine is the two-step synthesis API of a VOICEVOX-compatible engine.
type Engine interface {
	// AudioQuery builds the intermediate query for text spoken by speakerID.
	AudioQuery(ctx context.Context, text string, speakerID int) (*voicevox.AudioQuery, error)

	// Synthesis renders a (possibly modified) query to WAV bytes.
	Synthesis(ctx context.Context, query *voicevox.AudioQuery, speakerID int) ([]byte, error)
}

// EventRecorder receives synthesis events. *eventlog.Logger satisfies it.
type EventRecorder interface {
	LogAsync(requestID string, eventType eventlog.EventType, data map[string]any)
}

// Result is the outcome of a successful Synthesize call.
type Result struct {
	Audio   []byte
	Format  string
	Cached  bool
	Speaker string
}
