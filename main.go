package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/mirrorbucket/credmon/cmd"
)

// main is the entry point of the application. Signal handling lives in
// the monitor command, which needs a graceful shutdown rather than an
// immediate exit.
func main() {
	configureLogLevelFromEnv()
	cmd.Execute()
}

// configureLogLevelFromEnv enables debug logging early when
// DEBUG_CREDMON is set, before any command parses its own
// configuration.
func configureLogLevelFromEnv() {
	if os.Getenv("DEBUG_CREDMON") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
