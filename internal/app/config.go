package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hiragana-park/kotoba/internal/voice"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Primary VOICEVOX engine
	VoicevoxURL    string        `env:"VOICEVOX_URL" envDefault:"http://localhost:50021"`
	DefaultSpeaker string        `env:"DEFAULT_SPEAKER" envDefault:"ずんだもん"`
	TTSTimeout     time.Duration `env:"TTS_TIMEOUT" envDefault:"30s"`

	// Optional secondary VOICEVOX-compatible engine (e.g. AivisSpeech)
	SecondaryTTSURL    string `env:"SECONDARY_TTS_URL"`
	SecondarySpeakerID int    `env:"SECONDARY_SPEAKER_ID" envDefault:"888753760"`

	// Request cache
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	CacheMaxEntries    int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000"`
	CacheMaxBytes      int64         `env:"CACHE_MAX_BYTES" envDefault:"268435456"`
	CacheFoldWidth     bool          `env:"CACHE_FOLD_WIDTH" envDefault:"false"`
	// How often expired audio is swept; 0 disables the sweep.
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"10m"`

	// Last-resort local speech, e.g. "espeak-ng -v ja --stdout"
	LocalSpeechCommand string `env:"LOCAL_SPEECH_COMMAND"`

	// Inbound rate limit per client IP
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Optional synthesis event log
	DatabaseURL string `env:"DATABASE_URL"`

	// Monitoring
	SentryDSN   string `env:"SENTRY_DSN"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Admin endpoints
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfigFromEnv parses the environment and validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if err := validateURL("VOICEVOX_URL", c.VoicevoxURL); err != nil {
		errs = append(errs, err)
	}
	if c.SecondaryTTSURL != "" {
		if err := validateURL("SECONDARY_TTS_URL", c.SecondaryTTSURL); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := voice.DefaultSpeakers().Resolve(c.DefaultSpeaker); !ok {
		errs = append(errs, fmt.Errorf("DEFAULT_SPEAKER %q is not a known speaker", c.DefaultSpeaker))
	}
	if c.TTSTimeout <= 0 {
		errs = append(errs, errors.New("TTS_TIMEOUT must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.CacheMaxEntries <= 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must be positive"))
	}
	if c.CacheMaxBytes <= 0 {
		errs = append(errs, errors.New("CACHE_MAX_BYTES must be positive"))
	}
	if c.CacheSweepInterval < 0 {
		errs = append(errs, errors.New("CACHE_SWEEP_INTERVAL must not be negative"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}
	if c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must not be negative"))
	}

	return errors.Join(errs...)
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}
