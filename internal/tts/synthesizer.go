package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/hiragana-park/kotoba/internal/cache"
	"github.com/hiragana-park/kotoba/internal/eventlog"
	"github.com/hiragana-park/kotoba/internal/voice"
)

// SynthesizerConfig holds the dependencies of a Synthesizer.
type SynthesizerConfig struct {
	Name     string // label used in logs and events, e.g. "voicevox"
	Engine   Engine
	Cache    *cache.Cache
	Profiles *voice.Table
	Speakers *voice.Speakers
	Events   EventRecorder
	// FoldKeys trims and width-folds text before building cache keys.
	FoldKeys bool
}

// Synthesizer turns (text, speaker) into WAV audio using an engine, a
// voice profile table and a request cache.
type Synthesizer struct {
	name     string
	engine   Engine
	cache    *cache.Cache
	profiles *voice.Table
	speakers *voice.Speakers
	events   EventRecorder
	keyFunc  func(text, speaker string) string
	logger   *log.Logger
}

// NewSynthesizer creates a Synthesizer. Nil tables fall back to the built-in
// speakers and profiles; a nil cache gets a default one.
func NewSynthesizer(cfg SynthesizerConfig, logger *log.Logger) *Synthesizer {
	if cfg.Name == "" {
		cfg.Name = "voicevox"
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.Config{})
	}
	if cfg.Profiles == nil {
		cfg.Profiles = voice.DefaultTable()
	}
	if cfg.Speakers == nil {
		cfg.Speakers = voice.DefaultSpeakers()
	}
	keyFunc := cache.Key
	if cfg.FoldKeys {
		keyFunc = cache.FoldedKey
	}
	return &Synthesizer{
		name:     cfg.Name,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		profiles: cfg.Profiles,
		speakers: cfg.Speakers,
		events:   cfg.Events,
		keyFunc:  keyFunc,
		logger:   logger.WithPrefix(cfg.Name),
	}
}

// Name returns the synthesizer's label.
func (s *Synthesizer) Name() string { return s.name }

// Cache returns the request cache.
func (s *Synthesizer) Cache() *cache.Cache { return s.cache }

// Speakers returns the speaker set.
func (s *Synthesizer) Speakers() *voice.Speakers { return s.speakers }

// Synthesize returns WAV audio for text spoken by speakerName. An empty
// speakerName selects the default speaker. Cached audio is returned without
// calling the engine.
func (s *Synthesizer) Synthesize(ctx context.Context, text, speakerName string) (*Result, error) {
	if text == "" {
		return nil, ErrInvalidInput
	}
	if speakerName == "" {
		speakerName = s.speakers.DefaultName()
	}

	requestID := eventlog.RequestID(ctx)
	key := s.keyFunc(text, speakerName)

	// Check cache
	if entry, ok := s.cache.Get(key); ok {
		s.logger.Debug("using cached audio", "text", text, "speaker", speakerName)
		s.record(requestID, eventlog.EventCacheHit, map[string]any{
			"text":    text,
			"speaker": speakerName,
		})
		return &Result{Audio: entry.Audio, Format: FormatWAV, Cached: true, Speaker: speakerName}, nil
	}

	speaker, ok := s.speakers.Resolve(speakerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpeaker, speakerName)
	}

	s.logger.Debug("generating audio", "text", text, "speaker", speakerName, "speaker_id", speaker.ID)
	start := time.Now()

	// Step 1: build the audio query
	query, err := s.engine.AudioQuery(ctx, text, speaker.ID)
	if err != nil {
		return nil, s.fail(requestID, text, speakerName, newBackendError(StageQuery, err))
	}

	// Tune for children before rendering
	profile, match := s.profiles.Lookup(text)
	voice.Apply(query, profile, match)

	// Step 2: render
	audio, err := s.engine.Synthesis(ctx, query, speaker.ID)
	if err != nil {
		return nil, s.fail(requestID, text, speakerName, newBackendError(StageSynthesis, err))
	}

	stored := s.cache.Put(key, audio)
	elapsed := time.Since(start)

	s.logger.Info("generated audio",
		"text", text,
		"speaker", speakerName,
		"size", humanize.Bytes(uint64(len(audio))),
		"elapsed", elapsed.Round(time.Millisecond),
		"cached", stored,
	)
	s.record(requestID, eventlog.EventSynthesized, map[string]any{
		"text":       text,
		"speaker":    speakerName,
		"bytes":      len(audio),
		"latency_ms": elapsed.Milliseconds(),
	})

	return &Result{Audio: audio, Format: FormatWAV, Cached: false, Speaker: speakerName}, nil
}

func (s *Synthesizer) fail(requestID, text, speaker string, err *BackendError) error {
	s.logger.Warn("synthesis failed",
		"stage", err.Stage,
		"connection", err.Connection,
		"text", text,
		"speaker", speaker,
		"err", err.Err,
	)
	s.record(requestID, eventlog.EventSynthesisFailed, map[string]any{
		"text":       text,
		"speaker":    speaker,
		"stage":      string(err.Stage),
		"connection": err.Connection,
		"error":      err.Err.Error(),
	})
	return err
}

func (s *Synthesizer) record(requestID string, eventType eventlog.EventType, data map[string]any) {
	if s.events == nil {
		return
	}
	data["backend"] = s.name
	s.events.LogAsync(requestID, eventType, data)
}
