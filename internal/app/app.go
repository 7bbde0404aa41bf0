package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hiragana-park/kotoba/internal/cache"
	"github.com/hiragana-park/kotoba/internal/eventlog"
	"github.com/hiragana-park/kotoba/internal/fallback"
	"github.com/hiragana-park/kotoba/internal/httpapi"
	"github.com/hiragana-park/kotoba/internal/jobs"
	"github.com/hiragana-park/kotoba/internal/tts"
	"github.com/hiragana-park/kotoba/internal/voice"
	"github.com/hiragana-park/kotoba/internal/voicevox"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Label of the secondary engine's only voice.
const secondaryVoiceLabel = "secondary"

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	eventLog   *eventlog.Logger
	httpClient *http.Client // Shared HTTP client with connection pooling for the engines

	engine    *voicevox.Client
	primary   *tts.Synthesizer
	secondary *tts.Synthesizer // nil unless SECONDARY_TTS_URL is set
	chain     *fallback.Chain

	sweep        *jobs.CacheSweepJob // nil when CACHE_SWEEP_INTERVAL is 0
	sweepStarted bool
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect event log database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping event log database: %w", err)
		}
		db = pool
	}
	// Migrations in migrations/ are applied externally.
	el := eventlog.New(db)

	// Shared HTTP client with connection pooling.
	// Keeps TCP connections alive to the local engines between requests.
	httpClient := &http.Client{
		Timeout: cfg.TTSTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	speakers, ok := voice.DefaultSpeakers().WithDefault(cfg.DefaultSpeaker)
	if !ok {
		return nil, fmt.Errorf("unknown default speaker %q", cfg.DefaultSpeaker)
	}

	engine := voicevox.NewClient(voicevox.Config{BaseURL: cfg.VoicevoxURL, HTTPClient: httpClient})
	primary := tts.NewSynthesizer(tts.SynthesizerConfig{
		Name:     "voicevox",
		Engine:   engine,
		Cache:    newCache(cfg),
		Speakers: speakers,
		Events:   el,
		FoldKeys: cfg.CacheFoldWidth,
	}, logger)

	backends := []fallback.Backend{fallback.NewSynthesizerBackend(primary)}

	var secondary *tts.Synthesizer
	if cfg.SecondaryTTSURL != "" {
		secondary = tts.NewSynthesizer(tts.SynthesizerConfig{
			Name:     "secondary",
			Engine:   voicevox.NewClient(voicevox.Config{BaseURL: cfg.SecondaryTTSURL, HTTPClient: httpClient}),
			Cache:    newCache(cfg),
			Speakers: voice.FixedSpeaker(cfg.SecondarySpeakerID, secondaryVoiceLabel),
			Events:   el,
			FoldKeys: cfg.CacheFoldWidth,
		}, logger)
		backends = append(backends, fallback.NewSynthesizerBackend(secondary))
	}

	chain := fallback.NewChain(fallback.ChainConfig{
		Backends: backends,
		Local:    fallback.NewLocalBackend(cfg.LocalSpeechCommand, 0),
		Events:   el,
	}, logger)

	var sweep *jobs.CacheSweepJob
	if cfg.CacheSweepInterval > 0 {
		caches := map[string]*cache.Cache{primary.Name(): primary.Cache()}
		if secondary != nil {
			caches[secondary.Name()] = secondary.Cache()
		}
		sweep = jobs.NewCacheSweepJob(caches, logger, cfg.CacheSweepInterval)
	}

	logger.Info("synthesis configured",
		"engine", cfg.VoicevoxURL,
		"secondary", cfg.SecondaryTTSURL,
		"default_speaker", speakers.DefaultName(),
		"chain", chain.Names(),
		"event_log", el.Enabled(),
	)

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		eventLog:   el,
		httpClient: httpClient,
		engine:     engine,
		primary:    primary,
		secondary:  secondary,
		chain:      chain,
		sweep:      sweep,
	}, nil
}

func newCache(cfg Config) *cache.Cache {
	return cache.New(cache.Config{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		MaxBytes:   cfg.CacheMaxBytes,
	})
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		AdminJWTSecret: a.cfg.AdminJWTSecret,
		RateLimitRPS:   a.cfg.RateLimitRPS,
		RateLimitBurst: a.cfg.RateLimitBurst,
	}
	deps := httpapi.Deps{
		Synthesizer: a.primary,
		Chain:       a.chain,
		Engine:      a.engine,
		EventLog:    a.eventLog,
	}
	if a.secondary != nil {
		deps.Secondary = []*tts.Synthesizer{a.secondary}
	}
	return httpapi.NewRouter(routerCfg, deps, a.logger)
}

// Chain returns the fallback chain used by /speak.
func (a *App) Chain() *fallback.Chain { return a.chain }

// CheckEngine logs whether the primary engine answers. It never fails
// startup: the fallback chain covers a missing engine.
func (a *App) CheckEngine(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	version, err := a.engine.Version(ctx)
	if err != nil {
		a.logger.Warn("VOICEVOX engine not reachable, requests will fall back", "url", a.cfg.VoicevoxURL, "err", err)
		return
	}
	a.logger.Info("VOICEVOX engine reachable", "url", a.cfg.VoicevoxURL, "version", version)

	missing, err := a.MissingSpeakers(ctx)
	if err != nil {
		a.logger.Warn("could not list engine speakers", "err", err)
		return
	}
	for _, sp := range missing {
		a.logger.Warn("speaker style not installed on engine", "speaker", sp.Name, "id", sp.ID)
	}
}

// MissingSpeakers returns the configured speakers whose style ID the
// primary engine does not list.
func (a *App) MissingSpeakers(ctx context.Context) ([]voice.Speaker, error) {
	listed, err := a.engine.Speakers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list engine speakers: %w", err)
	}

	ids := make(map[int]bool)
	for _, sp := range listed {
		for _, st := range sp.Styles {
			ids[st.ID] = true
		}
	}

	var missing []voice.Speaker
	for _, sp := range a.primary.Speakers().List() {
		if !ids[sp.ID] {
			missing = append(missing, sp)
		}
	}
	return missing, nil
}

// StartBackground starts background jobs. Close stops them.
func (a *App) StartBackground() {
	if a.sweep != nil && !a.sweepStarted {
		a.sweep.Start()
		a.sweepStarted = true
	}
}

func (a *App) Close() error {
	if a.sweepStarted {
		a.sweep.Stop()
		a.sweepStarted = false
	}
	if a.db != nil {
		a.db.Close()
	}
	a.httpClient.CloseIdleConnections()
	return nil
}
