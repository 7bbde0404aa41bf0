package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/hiragana-park/kotoba/internal/app"
	"github.com/hiragana-park/kotoba/internal/fallback"
	"github.com/hiragana-park/kotoba/internal/voice"
	"github.com/spf13/cobra"
)

var (
	saySpeaker string
	sayBackend string
	sayServer  string
	sayOut     string

	sayCmd = &cobra.Command{
		Use:   "say TEXT",
		Short: "Speak TEXT once through the fallback chain",
		Example: "kotoba say あ --out a.wav\n" +
			"kotoba say いぬ --speaker 四国めたん --server http://localhost:8080 --out inu.wav",
		Args: cobra.ExactArgs(1),
		RunE: runSay,
	}
)

func init() {
	sayCmd.Flags().StringVar(&saySpeaker, "speaker", "", "speaker name (default: DEFAULT_SPEAKER)")
	sayCmd.Flags().StringVar(&sayBackend, "backend", "", "backend to start with, e.g. secondary or local")
	sayCmd.Flags().StringVar(&sayServer, "server", "", "use a running kotoba server instead of the engines directly")
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "", "write the audio to this file")
}

func runSay(cmd *cobra.Command, args []string) error {
	if _, ok := voice.DefaultSpeakers().Resolve(saySpeaker); !ok {
		return fmt.Errorf("unknown speaker %q", saySpeaker)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	chain, closeFn, err := sayChain()
	if err != nil {
		return err
	}
	defer closeFn()

	out := chain.Speak(ctx, args[0], saySpeaker, sayBackend)
	for _, a := range out.Attempts {
		logger.Warn("backend failed", "backend", a.Backend, "err", a.Err)
	}
	if out.Silent {
		return fmt.Errorf("no backend could speak %q", args[0])
	}

	size := 0
	if out.Audio != nil {
		size = len(out.Audio.Data)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "spoken by %s (%s)\n", out.Backend, humanize.Bytes(uint64(size)))
	if out.SinkErr != nil {
		return out.SinkErr
	}
	if sayOut != "" && size > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", sayOut)
	}
	return nil
}

// sayChain builds either a remote chain (server, then local) or the full
// in-process chain.
func sayChain() (*fallback.Chain, func(), error) {
	var sink fallback.Sink
	if sayOut != "" {
		sink = fallback.FileSink{Path: sayOut}
	}
	local := fallback.NewLocalBackend(cfg.LocalSpeechCommand, 0)

	if sayServer != "" {
		remote, err := fallback.NewRemoteBackend(fallback.RemoteConfig{BaseURL: sayServer})
		if err != nil {
			return nil, nil, err
		}
		chain := fallback.NewChain(fallback.ChainConfig{
			Backends: []fallback.Backend{remote},
			Local:    local,
			Sink:     sink,
		}, logger)
		return chain, func() {}, nil
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init app: %w", err)
	}
	a.CheckEngine(context.Background())
	return a.Chain().WithSink(sink), func() { _ = a.Close() }, nil
}
