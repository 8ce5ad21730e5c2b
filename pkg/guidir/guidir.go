// Package guidir resolves paths inside the .guibridge/ directory that holds the
// bridge's configuration and local runtime state.
package guidir

import (
	"fmt"
	"os"
	"path/filepath"
)

const gitignoreContent = "local/\n"

// Dir is a value object that resolves paths within a .guibridge/ directory.
type Dir struct {
	root string
}

// New creates a Dir rooted at root, made absolute. No I/O is performed.
func New(root string) Dir {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	return Dir{root: abs}
}

// Root returns the absolute path to the .guibridge/ directory.
func (d Dir) Root() string { return d.root }

// ConfigPath returns the path to the config file.
func (d Dir) ConfigPath() string { return filepath.Join(d.root, "config.yaml") }

// EnvPath returns the path to the optional .env file next to the config.
func (d Dir) EnvPath() string { return filepath.Join(d.root, ".env") }

// LocalDir returns the path to the gitignored runtime state directory.
func (d Dir) LocalDir() string { return filepath.Join(d.root, "local") }

// LogPath returns the path to the log file inside local/.
func (d Dir) LogPath() string { return filepath.Join(d.root, "local", "guibridge.log") }

// GitignorePath returns the path to the .gitignore file.
func (d Dir) GitignorePath() string { return filepath.Join(d.root, ".gitignore") }

// Exists reports whether the root directory exists.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.root)

	return err == nil && info.IsDir()
}

// EnsureStructure creates local/ and the .gitignore if missing. It is
// idempotent.
func EnsureStructure(d Dir) error {
	if err := os.MkdirAll(d.LocalDir(), 0o750); err != nil {
		return fmt.Errorf("guidir: create local dir: %w", err)
	}

	if _, err := os.Stat(d.GitignorePath()); err == nil {
		return nil
	}

	if err := os.WriteFile(d.GitignorePath(), []byte(gitignoreContent), 0o600); err != nil {
		return fmt.Errorf("guidir: gitignore: %w", err)
	}

	return nil
}
