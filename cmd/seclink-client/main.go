package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"hermannm.dev/devlog"

	"github.com/embedsec/seclink/internal/config"
	"github.com/embedsec/seclink/internal/link"
	"github.com/embedsec/seclink/internal/session"
)

var version = "dev"

// seclink-client connects to an endpoint, establishes a session, runs the
// given commands, and closes the session.
func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		linkMode    = flag.String("link", "", "link mode override: serial or tcp")
		serialDev   = flag.String("serial-device", "", "serial device override")
		dialAddr    = flag.String("addr", "", "TCP dial address override")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		keepOpen    = flag.Bool("keep-open", false, "leave the session established on exit")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("seclink-client %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.LoadClientConfig(*configPath)
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
	if *dialAddr != "" {
		cfg.Link.Mode = "tcp"
		cfg.Link.Addr = *dialAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.LevelVar
	level.Set(parseLevel(cfg.LogLevel))
	log := slog.New(devlog.NewHandler(os.Stderr, &devlog.Options{Level: &level}))
	slog.SetDefault(log)

	commands := flag.Args()
	if len(commands) == 0 {
		fmt.Fprintln(os.Stderr, "usage: seclink-client [flags] command...")
		fmt.Fprintln(os.Stderr, "commands: toggle-led, temperature, close")
		os.Exit(2)
	}

	psk, err := cfg.PSK.Resolve()
	if err != nil {
		log.Error("resolve PSK", "err", err)
		os.Exit(1)
	}

	lk, err := openLink(cfg.Link, log)
	if err != nil {
		log.Error("open link failed", "err", err)
		os.Exit(1)
	}
	defer lk.Close()

	cli, err := session.NewClient(session.ClientConfig{Link: lk, PSK: psk}, log)
	if err != nil {
		log.Error("client init failed", "err", err)
		os.Exit(1)
	}

	if err := cli.Handshake(); err != nil {
		log.Error("handshake failed", "err", err)
		os.Exit(1)
	}
	if err := cli.Establish(); err != nil {
		log.Error("session establishment failed", "err", err)
		os.Exit(1)
	}

	failed := false
	for _, cmd := range commands {
		switch cmd {
		case "toggle-led":
			levelStr, err := cli.ToggleLED()
			if err != nil {
				log.Error("toggle-led failed", "err", err)
				failed = true
				continue
			}
			fmt.Printf("led: %s\n", levelStr)
		case "temperature":
			temp, err := cli.Temperature()
			if err != nil {
				log.Error("temperature failed", "err", err)
				failed = true
				continue
			}
			fmt.Printf("temperature: %s °C\n", temp)
		case "close":
			if err := cli.CloseSession(); err != nil {
				log.Error("close failed", "err", err)
				failed = true
			}
		default:
			log.Error("unknown command", "command", cmd)
			failed = true
		}
	}

	if cli.Active() && !*keepOpen {
		if err := cli.CloseSession(); err != nil {
			log.Warn("session close failed", "err", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func openLink(cfg config.LinkConfig, log *slog.Logger) (link.Link, error) {
	switch cfg.Mode {
	case "serial":
		lk, err := link.OpenSerial(cfg.Device, cfg.Baud, log)
		if err != nil {
			return nil, err
		}
		if cfg.FrameGapMS > 0 {
			lk.SetFrameGap(time.Duration(cfg.FrameGapMS) * time.Millisecond)
		}
		return lk, nil
	case "tcp":
		lk, err := link.DialTCP(cfg.Addr, log)
		if err != nil {
			return nil, err
		}
		if cfg.FrameGapMS > 0 {
			lk.SetFrameGap(time.Duration(cfg.FrameGapMS) * time.Millisecond)
		}
		return lk, nil
	default:
		return nil, fmt.Errorf("unknown link mode %q", cfg.Mode)
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
