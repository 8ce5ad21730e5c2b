package main

import (
	"log/slog"
	osexec "os/exec"
	"strings"
)

// execSpeaker hands each utterance to an external text-to-speech program as
// its last argument.
type execSpeaker struct {
	command string
	args    []string
	log     *slog.Logger
}

func newExecSpeaker(commandLine string, log *slog.Logger) *execSpeaker {
	fields := strings.Fields(commandLine)
	s := &execSpeaker{log: log}
	if len(fields) > 0 {
		s.command = fields[0]
		s.args = fields[1:]
	}
	return s
}

func (s *execSpeaker) Say(text string) {
	if s.command == "" {
		return
	}

	args := append(append([]string(nil), s.args...), text)
	cmd := osexec.Command(s.command, args...) //nolint:gosec // program chosen by the operator via --say

	if err := cmd.Start(); err != nil {
		s.log.Warn("speaker failed", "command", s.command, "error", err)
		return
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.Debug("speaker exited", "command", s.command, "error", err)
		}
	}()
}
