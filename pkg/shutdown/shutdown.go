// Package shutdown coordinates a graceful stop: signal handling, HTTP
// drain, then store close, in that order.
package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// DrainTimeout bounds how long in-flight requests may run after a stop
// signal before the listener is torn down.
const DrainTimeout = 10 * time.Second

// Closer is anything that must be released after the HTTP server drains.
type Closer interface {
	Close() error
}

// Wait blocks until SIGINT or SIGTERM, then drains srv and closes the
// closers in order. Returns once everything is released.
func Wait(srv *http.Server, closers ...Closer) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	logger.Info("signal_received", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("close_failed", "error", err)
		}
	}
	logger.Info("shutdown_complete")
}
