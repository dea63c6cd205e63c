// dhcpcored is the DHCPv4 server daemon: one subnet, one interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/athena-dhcpd/dhcpcore/internal/config"
	"github.com/athena-dhcpd/dhcpcore/internal/dhcp"
	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/lease"
	"github.com/athena-dhcpd/dhcpcore/internal/logging"
	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
	"github.com/athena-dhcpd/dhcpcore/internal/quarantine"
	"github.com/athena-dhcpd/dhcpcore/pkg/dhcpv4"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/dhcpcore/config.toml", "path to configuration file")
	debugPort := flag.String("debug-port", "", "enable pprof debug server on this port (e.g. 6060)")
	flag.Parse()

	if *debugPort != "" {
		runtime.SetMutexProfileFraction(5)
		runtime.SetBlockProfileRate(1)
		go func() {
			addr := "127.0.0.1:" + *debugPort
			fmt.Fprintf(os.Stderr, "pprof debug server on http://%s/debug/pprof/\n", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server failed: %v\n", err)
			}
		}()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if cfg.Network() == nil {
		fmt.Fprintf(os.Stderr, "FATAL: no [subnet] configured in %s\n", *configPath)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	logger.Info("dhcpcored starting",
		"version", version,
		"config", *configPath,
		"interface", cfg.Server.Interface,
		"network", cfg.Subnet.Network)

	if err := run(cfg, logger); err != nil {
		logger.Error("dhcpcored failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverID, err := serverIdentifier(cfg)
	if err != nil {
		return err
	}

	store, err := lease.NewStore(cfg.Server.LeaseDB)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("lease database opened", "path", cfg.Server.LeaseDB, "lease_count", store.Count())

	// Quarantine records share the lease database file.
	q, err := quarantine.NewTable(store.DB(), cfg.QuarantineTime(), cfg.Server.MaxDeclines)
	if err != nil {
		return fmt.Errorf("opening quarantine table: %w", err)
	}
	if n := q.Count(); n > 0 {
		logger.Info("quarantined addresses restored", "count", n, "permanent", q.PermanentCount())
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

	engine, err := dhcp.NewEngine(dhcp.EngineConfig{
		ServerID:     serverID,
		Network:      cfg.Network(),
		RangeStart:   net.ParseIP(cfg.Subnet.RangeStart),
		RangeEnd:     net.ParseIP(cfg.Subnet.RangeEnd),
		LeaseTime:    cfg.LeaseTime(),
		RenewalTime:  cfg.RenewalTime(),
		RebindTime:   cfg.RebindTime(),
		OfferTimeout: cfg.OfferTimeout(),
		Routers:      config.ParseIPs(cfg.Subnet.Routers),
		DNSServers:   config.ParseIPs(cfg.Subnet.DNSServers),
		NTPServers:   config.ParseIPs(cfg.Subnet.NTPServers),
		DomainName:   cfg.Subnet.DomainName,
		DomainSearch: cfg.Subnet.DomainSearch,
		Hostname:     cfg.Server.Hostname,
	}, store, q, bus, logger)
	if err != nil {
		return fmt.Errorf("creating allocation engine: %w", err)
	}

	leases, seq, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading leases: %w", err)
	}
	engine.Restore(leases, seq)

	mode := dhcpv4.Lenient
	if cfg.Server.StrictOptions {
		mode = dhcpv4.Strict
	}
	limiter := dhcp.NewRateLimiter(cfg.Server.RateLimit.Enabled,
		cfg.Server.RateLimit.MaxDiscoversPerSecond,
		cfg.Server.RateLimit.MaxPerMACPerSecond)
	server := dhcp.NewServer(engine, limiter, mode, cfg.Server.Interface, cfg.Server.BindAddress, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting DHCP server: %w", err)
	}
	defer server.Stop()

	metrics.ServerStartTime.SetToCurrentTime()
	metrics.ServerInfo.WithLabelValues(version).Set(1)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		metricsServer = metrics.NewServer(cfg.Server.MetricsAddress)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "address", cfg.Server.MetricsAddress)
	}

	go sweepLoop(ctx, engine, cfg.SweepInterval(), logger)

	logger.Info("dhcpcored ready",
		"server_id", serverID.String(),
		"range", cfg.Subnet.RangeStart+"-"+cfg.Subnet.RangeEnd,
		"lease_time", cfg.LeaseTime().String(),
		"mode", mode.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	logger.Info("dhcpcored stopped")
	return nil
}

// sweepLoop expires leases and lifts quarantines on a fixed interval.
func sweepLoop(ctx context.Context, engine *dhcp.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := engine.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("lease sweep failed", "error", err)
				continue
			}
			if stats.Expired+stats.Reclaimed+stats.Unquarantined > 0 {
				logger.Info("lease sweep",
					"expired", stats.Expired,
					"reclaimed", stats.Reclaimed,
					"unquarantined", stats.Unquarantined)
			}
		}
	}
}

// serverIdentifier returns server.server_id, or the interface's address
// inside the served subnet.
func serverIdentifier(cfg *config.Config) (net.IP, error) {
	if ip := cfg.ServerIP(); ip != nil {
		return ip, nil
	}
	iface, err := net.InterfaceByName(cfg.Server.Interface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", cfg.Server.Interface, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %s: %w", cfg.Server.Interface, err)
	}
	network := cfg.Network()
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil && network.Contains(ipn.IP) {
			return ipn.IP.To4(), nil
		}
	}
	return nil, fmt.Errorf("no server_id configured and %s has no address in %s", cfg.Server.Interface, network)
}
