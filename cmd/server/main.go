package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/phonics/gospeech/internal/bus"
	"github.com/obiente/phonics/gospeech/internal/config"
	serverhttp "github.com/obiente/phonics/gospeech/internal/http"
	"github.com/obiente/phonics/gospeech/internal/native"
	"github.com/obiente/phonics/gospeech/internal/registry"
	"github.com/obiente/phonics/gospeech/internal/speech"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addr, envFile, logLevel string
	cmd := &cobra.Command{
		Use:          "phonics-speech",
		Short:        "Serve the phonics speech bridge over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			setupLogging(logLevel)
			cfg := config.Load()
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (overrides PHONICS_ADDR)")
	cmd.Flags().StringVar(&envFile, "env-file", config.Load().EnvFile, "dotenv file to preload")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	return cmd
}

func setupLogging(flagLevel string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	v := flagLevel
	if v == "" {
		v = os.Getenv("LOG_LEVEL")
	}
	if v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			lvl = l
		}
	}
	log.Logger = log.Level(lvl)
}

func serve(cfg config.Config) error {
	engine, err := native.NewEngine(native.Options{
		SimulateResults: cfg.SimulateResults,
		SimulateDelay:   time.Duration(cfg.SimulateDelayMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	b := bus.New()
	bridge := speech.New(engine, &registry.Cell[speech.Emitter]{})
	bridge.Initialize(b)
	listeners := speech.Attach(b, bridge)
	defer listeners.Close()

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     serverhttp.NewRouter(cfg, b),
		ReadTimeout: 30 * time.Second,
	}

	log.Info().Str("addr", cfg.Addr).Msg("phonics speech server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server failed")
		return err
	}
	return nil
}
