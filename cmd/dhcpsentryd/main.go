// dhcpsentryd — passive DHCP observation and OS-fingerprinting service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhcpsentry/dhcpsentry/internal/api"
	"github.com/dhcpsentry/dhcpsentry/internal/broadcast"
	"github.com/dhcpsentry/dhcpsentry/internal/config"
	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/dhcp"
	"github.com/dhcpsentry/dhcpsentry/internal/fingerprint"
	"github.com/dhcpsentry/dhcpsentry/internal/history"
	"github.com/dhcpsentry/dhcpsentry/internal/ingest"
	"github.com/dhcpsentry/dhcpsentry/internal/logging"
	"github.com/dhcpsentry/dhcpsentry/internal/metrics"
	"github.com/dhcpsentry/dhcpsentry/internal/reachability"
	"github.com/dhcpsentry/dhcpsentry/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/dhcpsentry/config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, os.Stdout)

	fingerprints := fingerprint.New()
	fingerprints.SetOverrides(fingerprint.LoadMACOverrides(cfg.Detection.MACOverridesPath, logger))

	prober := reachability.NewProber(logger)
	defer prober.Close()

	detector := detect.New(fingerprints, prober, detect.Config{
		EnableSMBProbing:            cfg.Detection.EnableSMBProbing,
		SMBTimeout:                  cfg.Detection.SMBTimeout(),
		SMBProbeConfidenceThreshold: 0,
		SMBCacheTTL:                 cfg.Detection.SMBCacheTTL(),
	}, logger)

	hist := history.New(cfg.History.Capacity)
	hub := broadcast.NewHub(logger)

	var jsonLog *store.JSONLog
	if cfg.Store.JSONLogPath != "" {
		jsonLog, err = store.OpenJSONLog(cfg.Store.JSONLogPath)
		if err != nil {
			logger.Error("failed to open json log, continuing without it", "path", cfg.Store.JSONLogPath, "error", err)
		} else {
			defer jsonLog.Close()
		}
	}

	var sqlStore *store.SQLStore
	if cfg.Store.SQLitePath != "" {
		sqlStore, err = store.OpenSQLStore(cfg.Store.SQLitePath, cfg.Store.MaxOpenConns)
		if err != nil {
			logger.Error("failed to open sqlite store, continuing without it", "path", cfg.Store.SQLitePath, "error", err)
		} else {
			defer sqlStore.Close()
		}
	}

	processor := ingest.New(detector, jsonLog, sqlStore, hist, hub, logger)

	dhcpServer := dhcp.NewServer(cfg.Listen.Address, cfg.Listen.Interface, logger, processor.Handle, func(data []byte, src *net.UDPAddr, err error) {
		metrics.PacketDecodeErrors.Inc()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dhcpServer.Start(ctx); err != nil {
		logger.Error("failed to start dhcp listener", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(hist, sqlStore, hub, logger)
	httpServer := &http.Server{Addr: cfg.API.Address, Handler: apiServer}
	go func() {
		logger.Info("api server listening", "address", cfg.API.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	dhcpServer.Stop()
	httpServer.Shutdown(shutdownCtx) //nolint:errcheck

	logger.Info("dhcpsentryd stopped")
}
