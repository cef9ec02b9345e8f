package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a channel closed on the first SIGINT or SIGTERM.
// A second signal is left to the default handler, so it kills the process.
func setupSignalHandler(stderr io.Writer) <-chan struct{} {
	shutdown := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		signal.Stop(sigChan)

		fmt.Fprintf(stderr, "\nReceived signal: %v, saving hash caches...\n", sig)
		close(shutdown)
	}()

	return shutdown
}
