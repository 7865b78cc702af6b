// Package main is the entry point for the luabridge plugin process.
//
// It connects to the host editor, loads every plugin on the runtime
// path, and then serves host callbacks until terminated.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dshills/luabridge/internal/bridge"
	"github.com/dshills/luabridge/internal/config"
	"github.com/dshills/luabridge/internal/host/nvim"
	"github.com/dshills/luabridge/internal/loader"
	"github.com/dshills/luabridge/internal/settings"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", defaultConfigPath(), "path to config file")
		showVersion = flag.Bool("version", false, "print version and exit")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("luabridge %s (%s)\n", version, commit)
		return 0
	}

	// Optional .env for local development overrides.
	_ = godotenv.Load()

	log, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return 1
	}
	if cfg.Host.Address == "" {
		log.Error("no host address configured (set host.address, LUABRIDGE_HOST_ADDRESS, or run inside nvim)")
		return 1
	}

	h, err := nvim.Dial(cfg.Host.Address)
	if err != nil {
		log.Error("host connection failed", zap.Error(err))
		return 1
	}
	defer h.Close()

	registry := bridge.New(h, cfg.SettingsDir, log)
	if err := h.BindDispatch(registry.Dispatch); err != nil {
		log.Error("dispatch binding failed", zap.Error(err))
		return 1
	}

	ld := loader.New(registry,
		loader.WithPaths(cfg.RuntimePath...),
		loader.WithLogger(log),
	)
	defer ld.Close()

	loaded, failed := 0, 0
	for _, res := range ld.LoadAll() {
		if res.Err != nil {
			failed++
		} else {
			loaded++
		}
	}
	log.Info("plugins loaded", zap.Int("loaded", loaded), zap.Int("failed", failed))

	watcher, err := settings.Watch(cfg.SettingsDir, log)
	if err != nil {
		log.Warn("settings watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Info("shutting down")
	return 0
}

// newLogger builds the process logger.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// defaultConfigPath returns the conventional config file location.
func defaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "luabridge", "config.toml")
}
