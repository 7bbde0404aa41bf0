// Package fallback runs an ordered list of speech backends until one of them
// produces audio. The last resort is local speech, which never fails the
// caller: at worst the outcome is silent.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hiragana-park/kotoba/internal/eventlog"
	"github.com/hiragana-park/kotoba/internal/tts"
)

// ErrFallbackRequested is returned by a backend that answered but asked the
// caller to try the next backend instead.
var ErrFallbackRequested = errors.New("backend requested fallback")

// Audio is what a backend produced. Data may be empty when the backend
// played the speech itself (local speech without stdout output).
type Audio struct {
	Data   []byte
	Format string
	Cached bool
}

// Backend is one entry of the chain.
type Backend interface {
	Name() string
	Speak(ctx context.Context, text, speaker string) (*Audio, error)
}

// Sink receives audio produced by the chain, e.g. to write or play it.
type Sink interface {
	Play(ctx context.Context, backend string, a *Audio) error
}

// Attempt records one failed backend call.
type Attempt struct {
	Backend string `json:"backend"`
	Err     error  `json:"-"`
}

// Outcome describes how a Speak call ended.
type Outcome struct {
	Backend  string
	Audio    *Audio
	Attempts []Attempt
	// Silent is set when every backend, including local speech, failed.
	Silent bool
	// SinkErr is the sink's error for produced audio, if any.
	SinkErr error
}

// ChainConfig holds the chain's backends. Backends are tried in order;
// Local runs last and may be nil.
type ChainConfig struct {
	Backends []Backend
	Local    Backend
	Events   tts.EventRecorder
	Sink     Sink
}

// Chain tries backends in order without retrying any of them.
type Chain struct {
	backends []Backend
	local    Backend
	events   tts.EventRecorder
	sink     Sink
	logger   *log.Logger
}

// NewChain creates a Chain.
func NewChain(cfg ChainConfig, logger *log.Logger) *Chain {
	return &Chain{
		backends: cfg.Backends,
		local:    cfg.Local,
		events:   cfg.Events,
		sink:     cfg.Sink,
		logger:   logger.WithPrefix("fallback"),
	}
}

// WithSink returns a copy of the chain that delivers audio to sink.
func (c *Chain) WithSink(sink Sink) *Chain {
	cp := *c
	cp.sink = sink
	return &cp
}

// Names lists the backend names in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.backends)+1)
	for _, b := range c.backends {
		names = append(names, b.Name())
	}
	if c.local != nil {
		names = append(names, c.local.Name())
	}
	return names
}

// Speak produces speech for text. It starts at the backend named preferred
// (the head of the list when preferred is empty or unknown) and advances on
// every failure. It never returns an error.
func (c *Chain) Speak(ctx context.Context, text, speaker, preferred string) Outcome {
	var out Outcome
	if text == "" {
		out.Silent = true
		return out
	}

	requestID := eventlog.RequestID(ctx)

	for _, b := range c.order(preferred) {
		audio, err := c.try(ctx, b, text, speaker)
		if err == nil {
			out.Backend = b.Name()
			out.Audio = audio
			out.SinkErr = c.deliver(ctx, out)
			return out
		}

		out.Attempts = append(out.Attempts, Attempt{Backend: b.Name(), Err: err})
		c.logger.Warn("backend failed, trying next", "backend", b.Name(), "text", text, "err", err)
		c.record(requestID, eventlog.EventFallbackAttempt, map[string]any{
			"backend": b.Name(),
			"text":    text,
			"error":   err.Error(),
		})
	}

	out.Silent = true
	c.logger.Error("all backends failed, staying silent", "text", text, "attempts", len(out.Attempts))
	c.record(requestID, eventlog.EventFallbackSilent, map[string]any{
		"text":     text,
		"attempts": len(out.Attempts),
	})
	return out
}

// order returns the backends to try for one call.
func (c *Chain) order(preferred string) []Backend {
	start := 0
	if preferred != "" {
		for i, b := range c.backends {
			if b.Name() == preferred {
				start = i
				break
			}
		}
		if c.local != nil && c.local.Name() == preferred {
			start = len(c.backends)
		}
	}

	list := append([]Backend(nil), c.backends[start:]...)
	if c.local != nil {
		list = append(list, c.local)
	}
	return list
}

// try calls one backend, turning a panic into an error so the chain keeps
// its no-error guarantee.
func (c *Chain) try(ctx context.Context, b Backend, text, speaker string) (audio *Audio, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
		}
	}()
	audio, err = b.Speak(ctx, text, speaker)
	if err == nil && audio == nil {
		err = fmt.Errorf("backend %s returned no audio", b.Name())
	}
	return audio, err
}

func (c *Chain) deliver(ctx context.Context, out Outcome) error {
	if c.sink == nil || len(out.Audio.Data) == 0 {
		return nil
	}
	if err := c.sink.Play(ctx, out.Backend, out.Audio); err != nil {
		c.logger.Warn("sink failed", "backend", out.Backend, "err", err)
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

func (c *Chain) record(requestID string, eventType eventlog.EventType, data map[string]any) {
	if c.events == nil {
		return
	}
	c.events.LogAsync(requestID, eventType, data)
}
