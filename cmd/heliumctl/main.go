// Command heliumctl is a thin demonstration harness over the carbon
// library: open a serial port, run a handful of commands against the Atom
// module, optionally exercise a channel, and exit. It is not the
// host-facing CLI or application layer the library's CORE deliberately
// stops short of; it exists only to exercise the wiring end to end.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/helium/carbon/channel"
	"github.com/helium/carbon/command"
	"github.com/helium/carbon/heliummetrics"
	"github.com/helium/carbon/serialport"
	"github.com/helium/carbon/session"
	"github.com/helium/carbon/transaction"
)

// cleanupMu guards cleanups, the set of teardown steps registered as
// resources are opened. The signal handler runs them before exiting so a
// Ctrl+C still closes the serial port and shuts the metrics server down
// instead of abandoning them to process exit.
var (
	cleanupMu sync.Mutex
	cleanups  []func()
)

func onCleanup(fn func()) {
	cleanupMu.Lock()
	cleanups = append(cleanups, fn)
	cleanupMu.Unlock()
}

func runCleanups() {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Printf("heliumctl %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func(l *slog.Logger) {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		runCleanups()
		os.Exit(130)
	}(l)
	defer runCleanups()

	if cfg.metricsAddr != "" {
		srv := heliummetrics.StartHTTP(cfg.metricsAddr)
		onCleanup(func() { _ = srv.Shutdown(context.Background()) })
	}

	port, err := serialport.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		l.Error("serial_open_error", "error", err)
		os.Exit(1)
	}
	onCleanup(func() { port.Close() })

	ctx := session.NewContext(port)

	info, status := command.Info(ctx)
	if status != transaction.StatusOK {
		l.Error("info_failed", "status", status.String())
		os.Exit(1)
	}
	l.Info("info", "mac", info.MAC, "uptime", info.Uptime, "fw_version", info.FWVersion, "radio_count", info.RadioCount)

	connStatus := command.Connected(ctx)
	l.Info("connected", "status", connStatus.String())

	if ctx.NeedsReset() {
		l.Warn("atom_needs_reset")
	}

	if cfg.channelName != "" {
		id, chStatus := channel.Create(ctx, cfg.channelName)
		if chStatus != channel.StatusOK {
			l.Error("channel_create_failed", "channel", cfg.channelName, "status", chStatus.String())
			os.Exit(1)
		}
		l.Info("channel_created", "channel", cfg.channelName, "id", id)

		if cfg.sendPayload != "" {
			result, sendStatus := channel.Send(ctx, id, []byte(cfg.sendPayload))
			if sendStatus != channel.StatusOK {
				l.Error("channel_send_failed", "id", id, "status", sendStatus.String())
				os.Exit(1)
			}
			l.Info("channel_sent", "id", id, "result", result)
		}
	}

	if cfg.metricsAddr != "" {
		// give the metrics server a moment to be scraped before the
		// process that would otherwise exit immediately after one-shot
		// command execution.
		time.Sleep(2 * time.Second)
	}
}
