package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"

	"github.com/germanamz/guibridge/pkg/guidir"
)

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// resolveConfigPath picks the config file: explicit flag, then
// .guibridge/config.yaml.
func resolveConfigPath(explicit string, d guidir.Dir) string {
	if explicit != "" {
		return explicit
	}
	return d.ConfigPath()
}

// mdRenderer renders spoken text, which skills sometimes format as markdown.
var (
	mdRenderer      *glamour.TermRenderer
	mdRendererMu    sync.Mutex
	mdRendererWidth int
)

func initMarkdownRenderer(width int) {
	if width <= 0 {
		width = 80
	}
	mdRendererMu.Lock()
	defer mdRendererMu.Unlock()
	if width == mdRendererWidth && mdRenderer != nil {
		return
	}
	// A fixed style: auto-detection queries the terminal and races with
	// bubbletea's input reader.
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
	mdRendererWidth = width
}

// renderMarkdown converts markdown to terminal output, falling back to the
// plain text.
func renderMarkdown(text string) string {
	mdRendererMu.Lock()
	r := mdRenderer
	mdRendererMu.Unlock()
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

// truncate shortens s to at most width terminal cells, appending "…" when
// cut. Newlines become spaces.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// parseEventCommand splits "/event <id> [json]" arguments into an action id and
// parameters.
func parseEventCommand(args string) (string, map[string]any, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", nil, fmt.Errorf("usage: /event <action id> [json parameters]")
	}

	id, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return id, nil, nil
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(rest), &params); err != nil {
		return "", nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	return id, params, nil
}
