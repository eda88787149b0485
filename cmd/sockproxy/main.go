// Command sockproxy binds a ROUTER frontend and a DEALER backend on two
// inproc:// endpoints and forwards between them: a flag-driven demo
// binary built on cobra for flags and caarlos0/env for
// environment-derived defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sockfix/sockfix"
	"github.com/sockfix/sockfix/proxy"
	"github.com/sockfix/sockfix/socket"
)

type config struct {
	LogLevel string `env:"SOCKFIX_LOG_LEVEL" envDefault:"info"`
	PipeHWM  int    `env:"SOCKFIX_PIPE_HWM" envDefault:"1000"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "sockproxy: reading environment config:", err)
		os.Exit(1)
	}

	var frontendEP, backendEP string

	root := &cobra.Command{
		Use:   "sockproxy",
		Short: "forward messages between a ROUTER frontend and a DEALER backend over inproc",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, frontendEP, backendEP)
		},
	}
	root.Flags().StringVar(&frontendEP, "frontend", "inproc://frontend", "frontend inproc:// endpoint")
	root.Flags().StringVar(&backendEP, "backend", "inproc://backend", "backend inproc:// endpoint")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config, frontendEP, backendEP string) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	zctx := sockfix.NewContext()
	defer zctx.Term()

	frontend, err := zctx.Socket(sockfix.ROUTER, socket.Options{Logger: &logger, PipeHWM: cfg.PipeHWM})
	if err != nil {
		return err
	}
	if err := zctx.Bind(frontend, frontendEP); err != nil {
		return fmt.Errorf("binding frontend %s: %w", frontendEP, err)
	}

	backend, err := zctx.Socket(sockfix.DEALER, socket.Options{Logger: &logger, PipeHWM: cfg.PipeHWM})
	if err != nil {
		return err
	}
	if err := zctx.Bind(backend, backendEP); err != nil {
		return fmt.Errorf("binding backend %s: %w", backendEP, err)
	}

	logger.Info().Str("frontend", frontendEP).Str("backend", backendEP).Msg("sockproxy listening")

	return proxy.Run(ctx, proxy.Options{Frontend: frontend, Backend: backend})
}
