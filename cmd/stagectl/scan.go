package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hdrlab/linstage/pkg/backend/zaber"
	"github.com/hdrlab/linstage/pkg/discovery"
	"github.com/hdrlab/linstage/pkg/persistence"
	"github.com/hdrlab/linstage/pkg/stage"
)

// hardwareDiscovery probes serial ports and, if enabled, browses mDNS.
func hardwareDiscovery(cfg *Config, backend *zaber.Backend, logger *slog.Logger) (discovery.Chain, func()) {
	chain := discovery.Chain{discovery.NewSerialScanner(backend, logger)}
	stop := func() {}
	if cfg.MDNS {
		browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
			Interface: cfg.MDNSInterface,
			Logger:    logger,
		})
		chain = append(chain, browser)
		stop = browser.Stop
	}
	return chain, stop
}

// autoDiscovery resolves an auto port: the saved scan first, then hardware.
func autoDiscovery(cfg *Config, backend *zaber.Backend, logger *slog.Logger) (stage.Discoverer, func()) {
	hw, stop := hardwareDiscovery(cfg, backend, logger)
	chain := append(discovery.Chain{persistence.DeviceFile{Path: cfg.DevicesFile}}, hw...)
	return chain, stop
}

// runScan discovers devices, prints and saves them.
func runScan(ctx context.Context, cfg *Config, d stage.Discoverer, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	fmt.Fprintln(out, "Scanning for Zaber devices...")
	started := time.Now()
	devices, err := d.Discover(ctx)
	if err != nil && len(devices) == 0 {
		return fmt.Errorf("scan: %w", err)
	}

	printDevices(out, devices)
	fmt.Fprintf(out, "Found %d device(s) in %s\n", len(devices), time.Since(started).Round(time.Millisecond))

	if cfg.DevicesFile != "" {
		if err := persistence.SaveDevices(cfg.DevicesFile, devices, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved to %s\n", cfg.DevicesFile)
	}
	return nil
}

func printDevices(out io.Writer, devices []stage.DeviceInfo) {
	for i, d := range devices {
		fmt.Fprintf(out, "  [%d] %-24s id=%-6d sn=%-10s %s fw=%s axes=%d\n",
			i, d.Port, d.DeviceID, d.SerialNumber, d.Name, d.FirmwareVersion, d.AxisCount)
	}
}
