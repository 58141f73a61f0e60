// Package main implements the primus node, one peer of the distributed
// prime checker.
//
// Every node runs the same binary. After registering with the service
// registry the nodes elect a leader with the Bully algorithm; the leader
// hands out the proposer, acceptor and learner roles and feeds numbers
// from its backlog through a Paxos-style verification round:
//
//	┌──────────┐  sub-range   ┌──────────┐   verdict   ┌──────────┐
//	│  leader  │ ───────────▶ │ proposer │ ──────────▶ │ acceptor │
//	└──────────┘              └──────────┘             └──────────┘
//	     ▲                                                  │ verified
//	     │              consensus   ┌──────────┐            │
//	     └───────────────────────── │ learner  │ ◀──────────┘
//	                                └──────────┘
//
// Configuration (environment, optionally on top of a PRIMUS_CONFIG file):
//   - REGISTRY_ADDR: registry base URL (required)
//   - NODE_LISTEN: listen address (default ":8080")
//   - NODE_IP, NODE_PORT: address announced to the other peers
//     (default 127.0.0.1 and the listen port)
//   - APP_NAME: service name in the registry (default "primus")
//   - SIDECAR_LISTEN: also serve a relay on this address
//   - SIDECAR_ADDR: send every peer call through this relay
//   - NUMBERS_FILE, RESULTS_FILE: backlog and results of the leader
//   - LOG_LEVEL: logrus level (default "info")
//
// Example:
//
//	REGISTRY_ADDR=http://127.0.0.1:8500 NODE_LISTEN=:8081 ./node
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
	"github.com/dreamware/primus/internal/peer"
	"github.com/dreamware/primus/internal/registry"
	"github.com/dreamware/primus/internal/transport"
)

// logFatal is a variable to allow mocking fatal exits in tests.
var logFatal = logrus.Fatalf

const (
	registerAttempts = 10
	registerWait     = 400 * time.Millisecond
)

func main() {
	cfg, err := config.LoadNode(os.Getenv)
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

	if err := run(cfg, log, stop); err != nil {
		logFatal("node: %v", err)
	}
}

// run serves the node until stop fires, then deregisters it.
func run(cfg config.Node, log *logrus.Logger, stop <-chan os.Signal) error {
	client := &http.Client{Timeout: cfg.RequestTimeout}

	opts := []transport.Option{transport.WithClient(client), transport.WithLogger(log)}
	if cfg.SidecarAddr != "" {
		opts = append(opts, transport.WithRelay(cfg.SidecarAddr))
	}

	p, err := peer.New(peer.Options{
		Config:    cfg,
		Gateway:   registry.NewClient(cfg.RegistryAddr, cfg.AppName, client),
		Transport: transport.NewHTTP(opts...),
		Log:       log,
	})
	if err != nil {
		return err
	}
	nlog := log.WithField("node", p.Self.ID())

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	s := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers := []*http.Server{s}
	serve(s, ln, nlog)
	nlog.WithFields(logrus.Fields{"listen": ln.Addr().String(), "public": p.Descriptor().Addr()}).Info("node listening")

	if cfg.SidecarListen != "" {
		sln, err := net.Listen("tcp", cfg.SidecarListen)
		if err != nil {
			_ = s.Close()
			return err
		}
		relay := &http.Server{
			Handler:           transport.NewRelay(log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, relay)
		serve(relay, sln, nlog)
		nlog.WithField("listen", sln.Addr().String()).Info("sidecar relay listening")
	}

	if err := register(context.Background(), p, registerAttempts, registerWait, nlog); err != nil {
		for _, srv := range servers {
			_ = srv.Close()
		}
		return err
	}

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Shutdown(ctx); err != nil {
		nlog.WithError(err).Warn("shutdown")
	}
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			nlog.WithError(err).Warn("server shutdown")
		}
	}
	nlog.Info("node stopped")
	return nil
}

func serve(s *http.Server, ln net.Listener, log logrus.FieldLogger) {
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("serve")
		}
	}()
}

// register retries the registration to ride out a registry that is still
// starting.
func register(ctx context.Context, p *peer.Peer, attempts int, wait time.Duration, log logrus.FieldLogger) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = p.Register(ctx); lastErr == nil {
			return nil
		}
		log.WithError(lastErr).Warnf("register retry %d", i+1)
		time.Sleep(wait)
	}
	return lastErr
}
