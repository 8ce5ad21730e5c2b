package launcher

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecDefaults(t *testing.T) {
	e := NewExec("", nil, nil)

	assert.Equal(t, DefaultCommand, e.Command)
	assert.NotNil(t, e.Logger)
	assert.Nil(t, e.Done())
}

func TestFunc(t *testing.T) {
	called := 0
	var l Launcher = Func(func() { called++ })

	l.Launch()
	assert.Equal(t, 1, called)
}

func TestExecRunsCommand(t *testing.T) {
	var out bytes.Buffer
	e := NewExec("echo", []string{"core up"}, nil)
	e.Stdout = &out

	e.Launch()

	done := e.Done()
	require.NotNil(t, done)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	assert.Equal(t, "core up\n", out.String())
}

func TestExecSkipsWhileRunning(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := NewExec("sleep", []string{"0.2"}, logger)

	e.Launch()
	first := e.Done()
	e.Launch()

	assert.Equal(t, first, e.Done())
	assert.Contains(t, logs.String(), "already running")

	<-first
}

func TestExecStartFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	e := NewExec(filepath.Join(t.TempDir(), "no-such-loader"), nil, logger)
	e.Launch()

	assert.Nil(t, e.Done())
	assert.Contains(t, logs.String(), "cannot start core loader")
}
