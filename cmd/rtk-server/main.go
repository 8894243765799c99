// Command rtk-server runs the tick-driven session core: it accepts legacy
// game clients, deciphers their frames and dispatches them on a single
// event loop until SIGINT, SIGTERM or the console's quit command.
//
// Usage:
//
//	rtk-server [flags]
//
// Flags:
//
//	-config        YAML config file (flags override its values)
//	-listen        Listen address (default: :2000)
//	-max-sessions  Session registry capacity (default: 1024)
//	-seed          Cipher seed
//	-log-level     debug, info, warn or error
//	-log-file      Also write operational logs to this file
//	-dump-file     Write a hex/character dump of inbound packets
//	-capture-file  Write a binary packet capture (read with rtk-dump)
//	-date-format   strftime layout for dump timestamps
//	-admin         Serve /metrics, /healthz and /status on this address
//	-advertise     Announce the server over mDNS
//	-console       Read operator commands from the terminal
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retrotk/rtk-go/pkg/config"
	"github.com/retrotk/rtk-go/pkg/console"
	"github.com/retrotk/rtk-go/pkg/discovery"
	"github.com/retrotk/rtk-go/pkg/dispatch"
	rtklog "github.com/retrotk/rtk-go/pkg/log"
	"github.com/retrotk/rtk-go/pkg/loop"
	"github.com/retrotk/rtk-go/pkg/metrics"
	"github.com/retrotk/rtk-go/pkg/pump"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/timer"
	"github.com/retrotk/rtk-go/pkg/transport"
	"github.com/retrotk/rtk-go/pkg/version"
)

// reapInterval is how often idle sessions are checked.
const reapInterval = 10 * time.Second

var (
	configFile  = flag.String("config", "", "YAML config file")
	listenAddr  = flag.String("listen", "", "Listen address")
	maxSessions = flag.Int("max-sessions", 0, "Session registry capacity")
	seed        = flag.String("seed", "", "Cipher seed")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile     = flag.String("log-file", "", "Also write logs to this file")
	dumpFile    = flag.String("dump-file", "", "Hex/character packet dump file")
	captureFile = flag.String("capture-file", "", "Binary packet capture file")
	dateFormat  = flag.String("date-format", "", "strftime layout for dump timestamps")
	adminAddr   = flag.String("admin", "", "Admin HTTP address")
	advertise   = flag.Bool("advertise", false, "Announce over mDNS")
	useConsole  = flag.Bool("console", false, "Enable the operator console")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads -config and applies the flags that were set explicitly.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddress = *listenAddr
		case "max-sessions":
			cfg.MaxSessions = *maxSessions
		case "seed":
			cfg.CipherSeed = *seed
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		case "dump-file":
			cfg.DumpFile = *dumpFile
		case "capture-file":
			cfg.CaptureFile = *captureFile
		case "date-format":
			cfg.DateFormat = *dateFormat
		case "admin":
			cfg.AdminAddress = *adminAddr
		case "advertise":
			cfg.Advertise = *advertise
		case "console":
			cfg.Console = *useConsole
		}
	})
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	fmt.Print(version.Banner("rtk-server"))

	var (
		stdout io.Writer = os.Stdout
		cons   *console.Console
	)
	var lp *loop.Loop
	if cfg.Console {
		var err error
		cons, err = console.New(console.Config{
			Sink:   submitter(func(line string) bool { return lp.Submit(line) }),
			OnQuit: func() { lp.RequestShutdown() },
		})
		if err != nil {
			return err
		}
		stdout = cons.Stdout()
	}

	logOut := stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(stdout, f)
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.Level()}))

	capture, closeCapture, err := openCapture(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := transport.Listen(ctx, transport.TCPConfig{
		Address: cfg.ListenAddress,
		Logger:  logger.With("component", "transport"),
	})
	if err != nil {
		return err
	}
	logger.Info("listening", "address", ln.Addr().String())

	m := metrics.New(metrics.Config{})
	registry := session.NewRegistry(cfg.MaxSessions, logger.With("component", "session"))

	clock := tick.NewClock()
	timers := timer.NewQueue(logger.With("component", "timer"))
	ops := &operator{registry: registry, timers: timers, out: stdout}

	lp, err = loop.New(loop.Config{
		Registry: registry,
		Clock:    clock,
		Timers:   timers,
		Pump: pump.New(pump.Config{
			Registry:       registry,
			Listener:       ln,
			Seed:           cfg.CipherSeed,
			MaxReadPerTick: cfg.MaxReadPerTick,
			Capture:        capture,
			Logger:         logger.With("component", "pump"),
			Metrics:        m,
		}),
		Dispatcher: dispatch.New(dispatch.Config{
			Registry:       registry,
			MaxFrameLength: cfg.MaxFrameLength,
			Logger:         logger.With("component", "dispatch"),
			Metrics:        m,
		}),
		Hooks: loop.Hooks{
			OnTerminate: func() {
				logger.Info("terminating", "sessions", registry.Len())
				ln.Close()
			},
			ParseInput: ops.parse,
		},
		IdleInterval: cfg.IdleInterval,
		Logger:       logger.With("component", "loop"),
		Metrics:      m,
	})
	if err != nil {
		return err
	}
	ops.status = lp.Status

	if cfg.SessionTimeout > 0 {
		timeout := cfg.SessionTimeout
		_, err := timers.After(clock.NowFresh(), reapInterval, reapInterval, registry, func(now tick.Tick, _ *timer.Event) {
			for range registry.ReapIdle(now, timeout) {
				m.Teardown("idle")
			}
		})
		if err != nil {
			return err
		}
	}

	signal.Ignore(syscall.SIGPIPE)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal", "signal", sig.String())
		lp.RequestShutdown()
	}()

	if cfg.AdminAddress != "" {
		admin, err := metrics.ListenAdmin(cfg.AdminAddress,
			metrics.NewRouter(m, func() any { return lp.Status() }),
			logger.With("component", "admin"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			admin.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Advertise {
		adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		info := &discovery.ServerInfo{
			Instance:       cfg.InstanceName,
			Port:           listenPort(ln.Addr()),
			Revision:       version.Revision(),
			Capacity:       cfg.MaxSessions,
			MaxFrameLength: cfg.MaxFrameLength,
		}
		if err := adv.Advertise(info); err != nil {
			logger.Warn("mDNS advertise failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	if cons != nil {
		go cons.Run(ctx)
	}

	if err := lp.Run(ctx); err != nil {
		return err
	}
	logger.Info("stopped", "iterations", lp.Status().Iterations)
	return nil
}

// openCapture builds the packet capture sinks named by cfg. The returned
// logger is nil when capture is disabled.
func openCapture(cfg config.Config, logger *slog.Logger) (rtklog.Logger, func(), error) {
	var (
		sinks   []rtklog.Logger
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	if cfg.DumpFile != "" {
		dump, err := rtklog.NewHexDumpFile(cfg.DumpFile, cfg.DateFormat)
		if err != nil {
			return nil, closeAll, fmt.Errorf("open dump file: %w", err)
		}
		sinks = append(sinks, dump)
		closers = append(closers, dump)
		logger.Info("packet dump enabled", "path", cfg.DumpFile)
	}
	if cfg.CaptureFile != "" {
		fl, err := rtklog.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open capture file: %w", err)
		}
		sinks = append(sinks, fl)
		closers = append(closers, fl)
		logger.Info("packet capture enabled", "path", cfg.CaptureFile)
	}
	if cfg.Level() == slog.LevelDebug {
		sinks = append(sinks, rtklog.NewSlogAdapter(logger.With("component", "capture")))
	}

	// Return an untyped nil so callers' nil checks work.
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return rtklog.NewMultiLogger(sinks...), closeAll, nil
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return discovery.DefaultPort
}

type submitter func(line string) bool

func (f submitter) Submit(line string) bool { return f(line) }
