package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdown blocks until an OS interrupt or termination signal is
// received, then cancels the provided context to initiate graceful shutdown.
func WaitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("received signal %v, initiating shutdown", sig)
		cancel()
	case <-ctx.Done():
	}
}

// PrintBanner prints the CueMap startup banner to stdout.
func PrintBanner() {
	banner := `
  ____        __  __
 / ___|_   _ / _|\ \ / /_ _ _ __
| |   | | | | |_  \ V / _` + "`" + ` | '_ \
| |___| |_| |  _|  | | (_| | |_) |
 \____|\__,_|_|    |_|\__,_| .__/
                           |_|
  cue-based temporal memory for LLMs
`
	fmt.Print(banner)
}
