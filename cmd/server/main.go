package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	assets "github.com/Sprinter100/dobble"
	"github.com/Sprinter100/dobble/internal/config"
	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/identity"
	mcptools "github.com/Sprinter100/dobble/internal/mcp"
	"github.com/Sprinter100/dobble/internal/server"
	"github.com/Sprinter100/dobble/internal/session"
	"github.com/Sprinter100/dobble/internal/storage"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:           "dobble",
		Usage:          "real-time symbol matching game server",
		Version:        version,
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and websocket server",
				Flags:  flags(),
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "serve MCP tools over stdio; the HTTP server runs alongside",
				Flags:  flags(),
				Action: serveMCP,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("dobble")
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address (overrides ADDR/PORT)"},
		&cli.StringFlag{Name: "db", Usage: "SQLite database path (overrides DB_PATH)"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel"},
	}
}

// app is everything a running server needs.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	manager *session.Manager
	tools   *mcptools.Tools
	handler http.Handler
}

func setup(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("addr") {
		cfg.Addr = cmd.String("addr")
	}
	if cmd.IsSet("db") {
		cfg.DBPath = cmd.String("db")
	}
	if cmd.Bool("debug") {
		cfg.LogLevel = zerolog.DebugLevel
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	setupLogging(cfg)

	registry := game.DefaultRegistry()
	catalog, rules, err := cfg.MatchSetup(registry)
	if err != nil {
		return nil, err
	}
	match, err := dobble.New(catalog, rules)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	mgr := session.NewManager(match, store, cfg.DisconnectGrace)
	ident := identity.NewService(store, identity.Options{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TokenTTL,
		Secure: cfg.CookieSecure,
	})
	webFS, err := fs.Sub(assets.WebFS, "web")
	if err != nil {
		store.Close()
		return nil, err
	}

	srv := server.New(registry, mgr, ident, store, webFS)
	tools := mcptools.NewTools(mgr, registry, version)
	srv.Handle("/mcp", tools.Handler())

	log.Info().
		Str("catalog", catalog.Name).
		Int("hand_size", rules.HandSize).
		Int("turns_to_win", rules.TurnsToWin).
		Int("min_players", rules.MinPlayers).
		Dur("lockout", rules.Lockout).
		Bool("strict", rules.Strict).
		Msg("match ready")

	return &app{cfg: cfg, store: store, manager: mgr, tools: tools, handler: srv}, nil
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func (a *app) close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}

// run starts the HTTP server, the cleanup loop and the optional tunnel.
// It returns a function that shuts them down.
func (a *app) run(ctx context.Context) (<-chan error, func()) {
	ctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)

	if a.cfg.DisconnectGrace > 0 {
		go a.manager.CleanupLoop(ctx, time.Second)
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", a.cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.cfg.Ngrok.Enabled {
		go serveNgrok(ctx, a.cfg.Ngrok, a.handler)
	}

	return errCh, func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	errCh, shutdown := a.run(ctx)
	defer shutdown()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	errCh, shutdown := a.run(ctx)
	defer shutdown()

	done := make(chan error, 1)
	go func() { done <- a.tools.ServeStdio() }()

	log.Info().Msg("MCP stdio server ready")
	select {
	case err := <-done:
		return err
	case err := <-errCh:
		return err
	}
}

func serveNgrok(ctx context.Context, cfg config.Ngrok, handler http.Handler) {
	if cfg.AuthToken == "" {
		log.Warn().Msg("ngrok enabled but NGROK_AUTHTOKEN is empty")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		log.Error().Err(err).Msg("start ngrok tunnel")
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("close ngrok tunnel")
		}
	}()

	log.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")
	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Debug().Err(err).Msg("ngrok tunnel closed")
	}
}
