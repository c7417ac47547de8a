// Command httpfs serves one directory over a minimal HTTP-like protocol:
// GET reads a file or lists a directory, POST creates or overwrites a file.
//
//	httpfs [-v] [-p port] [-d directory]
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/SuperTylerX/COMP445-A2/internal/config"
	"github.com/SuperTylerX/COMP445-A2/internal/server"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Parse(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	log := cfg.Logger(os.Stderr)

	// --- Server ---
	s, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	// Stop on Ctrl-C or SIGTERM, letting open connections finish.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		s.Stop()
	}()

	if err := s.Serve(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	s.Stop()
}
