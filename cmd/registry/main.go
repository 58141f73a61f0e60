// Package main implements the primus registry, a small service registry
// speaking the subset of the Consul agent API the nodes use.
//
// The registry keeps its catalog in memory and checks the health route of
// every registered node. A node turns critical after three failed checks
// in a row, and the other nodes stop giving it work.
//
// Configuration:
//   - REGISTRY_LISTEN: listen address (default ":8500")
//   - HEALTH_INTERVAL: health check interval (default "5s")
//   - LOG_LEVEL: logrus level (default "info")
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/config"
	"github.com/dreamware/primus/internal/logging"
	"github.com/dreamware/primus/internal/registry"
)

var logFatal = logrus.Fatalf

func main() {
	cfg, err := config.LoadRegistry(os.Getenv)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		logFatal("logging: %v", err)
		return
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if err := run(cfg, log, stop, nil); err != nil {
		logFatal("registry: %v", err)
	}
}

// run serves the registry until stop fires. ready, when set, receives the
// listen address once the server accepts connections.
func run(cfg config.Registry, log *logrus.Logger, stop <-chan os.Signal, ready chan<- string) error {
	catalog := registry.NewCatalog()

	monitor := registry.NewHealthMonitor(cfg.HealthInterval, log)
	monitor.SetOnChange(catalog.SetHealth)
	go monitor.Start(context.Background(), catalog.Targets)
	defer monitor.Stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	s := &http.Server{
		Handler:           registry.NewServer(catalog, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("serve")
		}
	}()
	log.WithField("listen", ln.Addr().String()).Info("registry listening")
	if ready != nil {
		ready <- ln.Addr().String()
	}

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	log.Info("registry stopped")
	return nil
}
