package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/germanamz/guibridge/pkg/guidir"
)

var errConfigExists = errors.New("config already exists (use --force to overwrite)")

func runInit(dirPath string, force bool) error {
	d := guidir.New(dirPath)

	if _, err := os.Stat(d.ConfigPath()); err == nil && !force {
		return fmt.Errorf("%s: %w", d.ConfigPath(), errConfigExists)
	}

	configYAML, err := runWizard()
	if err != nil {
		return err
	}

	if err := writeConfig(d, configYAML); err != nil {
		return err
	}

	fmt.Printf("Initialized %s\n", d.Root())

	return nil
}

// writeConfig creates the directory layout and writes the config file.
func writeConfig(d guidir.Dir, configYAML []byte) error {
	if err := guidir.EnsureStructure(d); err != nil {
		return err
	}

	if err := os.WriteFile(d.ConfigPath(), configYAML, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
