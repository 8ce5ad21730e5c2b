package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/guibridge/pkg/guidir"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		width    int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 8, "this is…"},
		{"line\nbreak", 20, "line break"},
		{"天気予報です", 7, "天気予…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, truncate(tt.input, tt.width), "truncate(%q, %d)", tt.input, tt.width)
	}
}

func TestParseEventCommand(t *testing.T) {
	id, params, err := parseEventCommand("timer.cancel")
	require.NoError(t, err)
	assert.Equal(t, "timer.cancel", id)
	assert.Nil(t, params)

	id, params, err = parseEventCommand(`  page.next {"page": 2} `)
	require.NoError(t, err)
	assert.Equal(t, "page.next", id)
	assert.Equal(t, map[string]any{"page": float64(2)}, params)

	_, _, err = parseEventCommand("")
	assert.Error(t, err)

	_, _, err = parseEventCommand("page.next [1,2]")
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	d := guidir.New("/srv/kiosk/.guibridge")

	assert.Equal(t, "custom.yaml", resolveConfigPath("custom.yaml", d))
	assert.Equal(t, "/srv/kiosk/.guibridge/config.yaml", resolveConfigPath("", d))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnv_Sets(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GUIBRIDGE_DOTENV_TEST=ws://core.lan\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GUIBRIDGE_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "ws://core.lan", os.Getenv("GUIBRIDGE_DOTENV_TEST"))
}

func TestLoadConfig_MissingDefaultUsesBuiltins(t *testing.T) {
	d := guidir.New(filepath.Join(t.TempDir(), ".guibridge"))

	cfg, err := loadConfig("", d)
	require.NoError(t, err)
	assert.Empty(t, cfg.WebsocketAddress)

	_, err = loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), d)
	assert.Error(t, err)
}

func TestRenderMarkdownWithoutRenderer(t *testing.T) {
	mdRendererMu.Lock()
	saved := mdRenderer
	mdRenderer = nil
	mdRendererMu.Unlock()
	t.Cleanup(func() {
		mdRendererMu.Lock()
		mdRenderer = saved
		mdRendererMu.Unlock()
	})

	assert.Equal(t, "plain *text*", renderMarkdown("plain *text*"))
}
