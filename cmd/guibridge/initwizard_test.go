package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/guibridge/pkg/engine"
	"github.com/germanamz/guibridge/pkg/guidir"
)

func TestWizardAnswers_Config(t *testing.T) {
	a := defaultAnswers()
	a.Address = " ws://192.168.1.20 "
	a.CorePort = "8282"
	a.LoaderArgs = "--quiet  --no-audio"
	a.ShareDelegates = true

	cfg, err := a.config()
	require.NoError(t, err)

	assert.Equal(t, "ws://192.168.1.20", cfg.WebsocketAddress)
	assert.Equal(t, 8282, cfg.CorePort)
	assert.Equal(t, []string{"--quiet", "--no-audio"}, cfg.CoreLoader.Args)
	assert.False(t, cfg.CoreLoader.Disabled)
	assert.True(t, cfg.ShareDelegatesAcrossSkills)
}

func TestWizardAnswers_Invalid(t *testing.T) {
	a := defaultAnswers()
	a.CorePort = "eighty"
	_, err := a.config()
	assert.Error(t, err)

	a = defaultAnswers()
	a.Address = "http://core"
	_, err = a.config()
	assert.Error(t, err)
}

func TestWizardAnswers_LoaderDisabled(t *testing.T) {
	a := defaultAnswers()
	a.LaunchLoader = false

	cfg, err := a.config()
	require.NoError(t, err)
	assert.True(t, cfg.CoreLoader.Disabled)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateAddress("ws://core"))
	assert.NoError(t, validateAddress("wss://core"))
	assert.Error(t, validateAddress("core"))

	assert.NoError(t, validatePort("8181"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
	assert.Error(t, validatePort("x"))

	assert.NoError(t, validateDuration(""))
	assert.NoError(t, validateDuration("500ms"))
	assert.Error(t, validateDuration("-1s"))
	assert.Error(t, validateDuration("soon"))
}

func TestWriteConfig(t *testing.T) {
	d := guidir.New(filepath.Join(t.TempDir(), ".guibridge"))

	cfg, err := defaultAnswers().config()
	require.NoError(t, err)
	data, err := cfg.Marshal()
	require.NoError(t, err)

	require.NoError(t, writeConfig(d, data))
	assert.FileExists(t, d.GitignorePath())

	loaded, err := engine.LoadConfig(d.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestRunInit_RefusesToOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".guibridge")
	d := guidir.New(dir)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(d.ConfigPath(), []byte("core_port: 1\n"), 0o600))

	err := runInit(dir, false)
	assert.ErrorIs(t, err, errConfigExists)
}
