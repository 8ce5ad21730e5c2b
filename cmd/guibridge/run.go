package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/guibridge/pkg/engine"
	"github.com/germanamz/guibridge/pkg/guidir"
)

type runOptions struct {
	configPath string
	dir        string
	envFile    string
	address    string
	logLevel   string
	sayCommand string
	verbose    bool
}

func run(opts runOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d := guidir.New(opts.dir)

	cfg, err := loadConfig(opts.configPath, d)
	if err != nil {
		return err
	}
	cfg.Dir = d.Root()
	if opts.address != "" {
		cfg.WebsocketAddress = opts.address
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := guidir.EnsureStructure(d); err != nil {
		return err
	}

	logger, closer, err := openLogger(d.LogPath(), cfg.WithDefaults().Level())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	host := newCardHost()

	engOpts := []engine.Option{
		engine.WithHost(host),
		engine.WithLogger(logger),
	}
	if opts.sayCommand != "" {
		engOpts = append(engOpts, engine.WithSpeaker(newExecSpeaker(opts.sayCommand, logger)))
	}

	eng, err := engine.New(cfg, engOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	logger.Info("starting", "address", eng.Config().WebsocketAddress, "token", eng.Token())

	// Subscribe before Start: the first status changes and skill updates are
	// published while Start runs.
	sub := eng.Events().Subscribe(bridgeBuffer)

	model := newAppModel(ctx, eng, opts.verbose)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		p.Send(programReadyMsg{program: p, sub: sub})
	}()

	if err := eng.Start(ctx); err != nil {
		// The TUI still runs: it shows the error and offers /reconnect.
		logger.Error("start failed", "error", err)
	}

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// loadConfig reads the config at the resolved path. A missing default config
// is not an error: built-in defaults apply.
func loadConfig(explicit string, d guidir.Dir) (engine.Config, error) {
	path := resolveConfigPath(explicit, d)

	cfg, err := engine.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if explicit == "" && errors.Is(err, os.ErrNotExist) {
		return engine.Config{}, nil
	}
	return engine.Config{}, err
}

// openLogger creates a text logger appending to path. The terminal belongs to
// the TUI, so nothing is logged to stderr.
func openLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path comes from the .guibridge dir
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, f, nil
}
