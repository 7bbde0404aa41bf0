package fallback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hiragana-park/kotoba/internal/tts"
	"github.com/hiragana-park/kotoba/internal/voicevox"
)

// ErrLocalUnavailable means no local speech command is configured or the
// configured one is not installed.
var ErrLocalUnavailable = errors.New("local speech unavailable")

const defaultLocalTimeout = 10 * time.Second

// LocalBackend speaks through a command on the host, e.g.
// "espeak-ng -v ja --stdout". The text is passed as the last argument.
// Whatever the command writes to stdout is returned as audio; a command that
// plays the speech itself and writes nothing still counts as success.
type LocalBackend struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewLocalBackend parses command into program and arguments. An empty command
// yields a backend that always reports ErrLocalUnavailable.
func NewLocalBackend(command string, timeout time.Duration) *LocalBackend {
	if timeout <= 0 {
		timeout = defaultLocalTimeout
	}
	return &LocalBackend{name: "local", args: strings.Fields(command), timeout: timeout}
}

func (b *LocalBackend) Name() string { return b.name }

// Available reports whether the command can be found.
func (b *LocalBackend) Available() bool {
	if len(b.args) == 0 {
		return false
	}
	_, err := exec.LookPath(b.args[0])
	return err == nil
}

func (b *LocalBackend) Speak(ctx context.Context, text, _ string) (*Audio, error) {
	if !b.Available() {
		return nil, ErrLocalUnavailable
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), b.args[1:]...), text)
	cmd := exec.CommandContext(ctx, b.args[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("local speech interrupted: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("local speech failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("local speech failed: %w", err)
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return &Audio{}, nil
	}
	format := tts.FormatWAV
	if voicevox.ValidateWAV(data) != nil {
		format = "application/octet-stream"
	}
	return &Audio{Data: data, Format: format}, nil
}

// FileSink writes produced audio to a file.
type FileSink struct {
	Path string
}

func (s FileSink) Play(_ context.Context, _ string, a *Audio) error {
	if err := os.WriteFile(s.Path, a.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}
