// Command guibridge connects to a voice-assistant core and renders the skills
// it shows in the terminal. "guibridge init" writes a config interactively.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		initCmd := flag.NewFlagSet("init", flag.ExitOnError)
		initCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: guibridge init [flags]\n\nCreate a .guibridge directory with a config written by an interactive wizard.\n\nFlags:\n")
			initCmd.PrintDefaults()
		}
		dir := initCmd.String("dir", ".guibridge", "path to .guibridge directory")
		force := initCmd.Bool("force", false, "overwrite an existing config")
		_ = initCmd.Parse(os.Args[2:])

		if err := runInit(*dir, *force); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: guibridge [flags]\n       guibridge init [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  init    Create a .guibridge directory and config\n")
	}

	var opts runOptions
	flag.StringVar(&opts.configPath, "config", "", "path to configuration file (default: .guibridge/config.yaml, built-in defaults if missing)")
	flag.StringVar(&opts.dir, "dir", ".guibridge", "path to .guibridge directory")
	flag.StringVar(&opts.envFile, "env", ".env", "path to .env file (ignored if missing)")
	flag.StringVar(&opts.address, "address", "", "websocket address of the core (overrides websocket_address)")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flag.StringVar(&opts.sayCommand, "say", "", "text-to-speech program invoked with each spoken utterance (e.g. espeak)")
	flag.BoolVar(&opts.verbose, "verbose", false, "show every message type received from the core")
	flag.Parse()

	if err := loadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
