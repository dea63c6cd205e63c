// dhcpcore-client acquires and keeps a DHCPv4 lease on one interface and
// reports binding changes to hook scripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/client"
	"github.com/athena-dhcpd/dhcpcore/internal/config"
	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/logging"
	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/dhcpcore/config.toml", "path to configuration file")
	release := flag.Bool("release-on-exit", false, "send DHCPRELEASE when shutting down")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Client.LogLevel, cfg.Client.LogFormat, os.Stdout)
	logger.Info("dhcpcore-client starting",
		"version", version,
		"config", *configPath,
		"interface", cfg.Client.Interface)

	if err := run(cfg, *release, logger); err != nil {
		logger.Error("dhcpcore-client failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, releaseOnExit bool, logger *slog.Logger) error {
	iface, err := net.InterfaceByName(cfg.Client.Interface)
	if err != nil {
		return fmt.Errorf("looking up interface %s: %w", cfg.Client.Interface, err)
	}
	if len(iface.HardwareAddr) == 0 {
		return fmt.Errorf("interface %s has no hardware address", iface.Name)
	}

	store, err := client.NewBindingStore(cfg.Client.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()

	prior, err := store.Load(iface.Name)
	if err != nil {
		logger.Warn("ignoring unreadable saved binding", "error", err)
		prior = nil
	}
	if prior != nil {
		logger.Info("found saved binding", "binding", prior.String())
	}

	bus := events.NewBus(cfg.Hooks.EventBufferSize, logger)
	go bus.Start()
	defer bus.Stop()

	dispatcher := events.NewDispatcher(bus, logger, cfg.Hooks.ScriptConcurrency)
	for _, h := range cfg.ScriptHooks() {
		dispatcher.AddScript(h)
	}
	go dispatcher.Start()
	defer dispatcher.Stop()

	id := clientID(cfg.Client.ClientID, iface.HardwareAddr)
	session := client.NewSession(client.SessionConfig{
		Interface:      iface.Name,
		MAC:            iface.HardwareAddr,
		ClientID:       &id,
		Hostname:       cfg.Client.Hostname,
		RequestedLease: cfg.RequestedLease(),
		RetransmitBase: cfg.RetransmitBase(),
		RetransmitMax:  cfg.RetransmitMax(),
		MaxAttempts:    cfg.Client.MaxAttempts,
		OfferPolicy:    client.FirstOffer{},
	}, prior, logger)

	transport, err := client.NewUDPTransport(iface.Name, "")
	if err != nil {
		return err
	}
	defer transport.Close()

	mode := dhcpv4.Lenient
	if cfg.Client.StrictOptions {
		mode = dhcpv4.Strict
	}
	runner := client.NewRunner(session, transport, store, bus, mode, logger)
	metrics.ServerStartTime.SetToCurrentTime()
	metrics.ServerInfo.WithLabelValues(version).Set(1)

	var metricsServer *http.Server
	if cfg.Client.MetricsAddress != "" {
		metricsServer = metrics.NewServer(cfg.Client.MetricsAddress)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "address", cfg.Client.MetricsAddress)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	}

	if releaseOnExit {
		releaseCtx, releaseCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := runner.Release(releaseCtx); err != nil {
			logger.Warn("releasing lease on exit", "error", err)
		}
		releaseCancel()
	}
	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("dhcpcore-client stopped", "state", string(runner.Status().State))
	return nil
}

// clientID builds option 61: the configured string with type 0, or the
// hardware address with type 1.
func clientID(configured string, mac net.HardwareAddr) dhcpv4.ClientID {
	if configured == "" {
		return dhcpv4.HardwareClientID(mac)
	}
	return dhcpv4.ClientID{Type: 0, Data: []byte(configured)}
}
