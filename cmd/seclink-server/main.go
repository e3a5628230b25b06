package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hermannm.dev/devlog"

	"github.com/embedsec/seclink/internal/config"
	"github.com/embedsec/seclink/internal/device"
	"github.com/embedsec/seclink/internal/link"
	"github.com/embedsec/seclink/internal/server"
	"github.com/embedsec/seclink/internal/session"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		linkMode    = flag.String("link", "", "link mode override: serial or tcp")
		serialDev   = flag.String("serial-device", "", "serial device override")
		listenAddr  = flag.String("listen", "", "TCP listen address override")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("seclink-server %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *linkMode != "" {
		cfg.Link.Mode = *linkMode
	}
	if *serialDev != "" {
		cfg.Link.Device = *serialDev
	}
	if *listenAddr != "" {
		cfg.Link.Mode = "tcp"
		cfg.Link.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.LevelVar
	level.Set(parseLevel(cfg.LogLevel))
	log := slog.New(devlog.NewHandler(os.Stderr, &devlog.Options{Level: &level}))
	slog.SetDefault(log)

	psk, err := cfg.PSK.Resolve()
	if err != nil {
		log.Error("resolve PSK", "err", err)
		os.Exit(1)
	}

	dev, err := buildDevice(cfg.Device, log)
	if err != nil {
		log.Error("device init failed", "err", err)
		os.Exit(1)
	}

	// The identity keypair and the entropy source are the only fatal
	// dependencies; everything past this point is recoverable.
	key, err := session.GenerateKey(rand.Reader)
	if err != nil {
		log.Error("identity keypair generation failed", "err", err)
		os.Exit(1)
	}
	log.Info("starting", "version", version, "link", cfg.Link.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	switch cfg.Link.Mode {
	case "serial":
		err = runSerial(ctx, cfg, psk, key, dev, log)
	case "tcp":
		err = runTCP(ctx, cfg, psk, key, dev, log)
	default:
		log.Error("unknown link mode", "mode", cfg.Link.Mode)
		os.Exit(1)
	}
	if err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func runSerial(ctx context.Context, cfg *config.ServerConfig, psk [32]byte, key *rsa.PrivateKey, dev device.Device, log *slog.Logger) error {
	lk, err := link.OpenSerial(cfg.Link.Device, cfg.Link.Baud, log)
	if err != nil {
		return err
	}
	if cfg.Link.FrameGapMS > 0 {
		lk.SetFrameGap(time.Duration(cfg.Link.FrameGapMS) * time.Millisecond)
	}
	return serveLink(ctx, cfg, psk, key, dev, lk, log)
}

func runTCP(ctx context.Context, cfg *config.ServerConfig, psk [32]byte, key *rsa.PrivateKey, dev device.Device, log *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Link.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Link.Listen, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	log.Info("tcp link listening", "addr", cfg.Link.Listen)

	// The protocol supports exactly one session; connections are served
	// one at a time.
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info("peer connected", "remote", conn.RemoteAddr())
		lk := link.NewTCPLink(conn, log)
		if cfg.Link.FrameGapMS > 0 {
			lk.SetFrameGap(time.Duration(cfg.Link.FrameGapMS) * time.Millisecond)
		}
		if err := serveLink(ctx, cfg, psk, key, dev, lk, log); err != nil {
			log.Error("connection failed", "err", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func serveLink(ctx context.Context, cfg *config.ServerConfig, psk [32]byte, key *rsa.PrivateKey, dev device.Device, lk link.Link, log *slog.Logger) error {
	eng, err := session.NewEngine(session.Config{
		Link: lk,
		PSK:  psk,
		Key:  key,
	}, log)
	if err != nil {
		return err
	}

	srv := server.New(eng, dev, lk, log)
	if cfg.Status.Enabled {
		api := server.NewStatusAPI(srv, cfg.Status.Listen, log)
		api.Start()
		defer api.Stop()
	}
	return srv.Run(ctx)
}

func buildDevice(cfg config.DeviceConfig, log *slog.Logger) (device.Device, error) {
	switch cfg.Mode {
	case "", "sim":
		return device.NewSim(cfg.SimTemperature), nil
	case "sysfs":
		return device.NewSysfs(device.SysfsPaths{
			LED:     cfg.LED,
			Fault:   cfg.Fault,
			Thermal: cfg.Thermal,
		}, log)
	default:
		return nil, fmt.Errorf("unknown device mode %q", cfg.Mode)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
