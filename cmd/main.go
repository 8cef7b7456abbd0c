package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/tkahng/nim"
	"github.com/tkahng/nim/config"
	"github.com/tkahng/nim/driver"
	"github.com/tkahng/nim/server"
)

func main() {
	serve := flag.Bool("serve", false, "serve games over WebSocket instead of playing in the terminal")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	cfgPath := flag.String("config", "", "config file, defaults to $XDG_CONFIG_HOME/nim/config.json")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger := newLogger(cfg, os.Stderr)

	if !*serve {
		// interrupting the prompt simply kills the process
		err = playTerminal(context.Background(), logger)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			logger.Fatal().Err(err).Msg("exiting")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exiting")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.InitConfig()
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(cfg.LogLevel()).With().Timestamp().Logger()
}

func playTerminal(ctx context.Context, logger zerolog.Logger) error {
	r := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	session := nim.NewSession(nim.RandomStart(r), nim.NewEngine(nim.WithLogger(logger)))
	d := driver.New(session, os.Stdout,
		driver.WithStyler(driver.TermStyler(termenv.NewOutput(os.Stdout))),
		driver.WithLogger(logger),
	)
	return driver.Play(ctx, os.Stdin, d)
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	srv := server.NewGameServer(server.Config{
		MaxConcurrentGames: cfg.Server.MaxConcurrentGames,
		SessionTimeout:     time.Duration(cfg.Server.SessionTimeout),
		CleanupInterval:    time.Duration(cfg.Server.CleanupInterval),
		MonitorInterval:    time.Duration(cfg.Server.MonitorInterval),
		AllowedOrigins:     cfg.Server.AllowedOrigins,
	}, logger)
	srv.Start()

	// nolint:exhaustruct
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Stop()
		return err
	})

	err := g.Wait()
	logger.Info().Msg("server stopped")
	return err
}
