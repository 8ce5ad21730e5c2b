package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/germanamz/guibridge/pkg/engine"
)

// wizardAnswers holds the raw form values; huh binds to strings.
type wizardAnswers struct {
	Address           string
	CorePort          string
	ReconnectInterval string
	LoaderCommand     string
	LoaderArgs        string
	LaunchLoader      bool
	ShareDelegates    bool
	LogLevel          string
}

func defaultAnswers() wizardAnswers {
	d := engine.Config{}.WithDefaults()
	return wizardAnswers{
		Address:           d.WebsocketAddress,
		CorePort:          strconv.Itoa(d.CorePort),
		ReconnectInterval: d.ReconnectInterval,
		LoaderCommand:     d.CoreLoader.Command,
		LaunchLoader:      true,
		LogLevel:          d.LogLevel,
	}
}

func runWizard() ([]byte, error) {
	a := defaultAnswers()

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Core websocket address").Value(&a.Address).Validate(validateAddress),
			huh.NewInput().Title("Core port").Value(&a.CorePort).Validate(validatePort),
			huh.NewInput().Title("Reconnect interval (e.g. 1s, 500ms)").Value(&a.ReconnectInterval).Validate(validateDuration),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Start the core when it is not running?").Value(&a.LaunchLoader),
			huh.NewInput().Title("Core loader command").Value(&a.LoaderCommand),
			huh.NewInput().Title("Core loader arguments (space separated)").Value(&a.LoaderArgs),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Share delegates between skills showing the same url?").Value(&a.ShareDelegates),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&a.LogLevel),
		),
	).Run(); err != nil {
		return nil, err
	}

	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return cfg.Marshal()
}

// config converts the answers into a validated engine config.
func (a wizardAnswers) config() (engine.Config, error) {
	port, err := strconv.Atoi(strings.TrimSpace(a.CorePort))
	if err != nil {
		return engine.Config{}, fmt.Errorf("core port: %w", err)
	}

	var args []string
	if fields := strings.Fields(a.LoaderArgs); len(fields) > 0 {
		args = fields
	}

	cfg := engine.Config{
		WebsocketAddress:  strings.TrimSpace(a.Address),
		CorePort:          port,
		ReconnectInterval: strings.TrimSpace(a.ReconnectInterval),
		CoreLoader: engine.CoreLoaderConfig{
			Command:  strings.TrimSpace(a.LoaderCommand),
			Args:     args,
			Disabled: !a.LaunchLoader,
		},
		ShareDelegatesAcrossSkills: a.ShareDelegates,
		LogLevel:                   a.LogLevel,
	}

	if err := cfg.WithDefaults().Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

func validateAddress(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
		return fmt.Errorf("must start with ws:// or wss://")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("must be a port between 1 and 65535")
	}
	return nil
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}

	if d, err := time.ParseDuration(s); err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration (e.g. 1s, 500ms)")
	}

	return nil
}
