// Package config loads the bridge's runtime configuration.
//
// Configuration comes from an optional TOML file with environment
// overrides layered on top:
//
//	runtime_path = ["~/.config/luabridge/bundle/foo"]
//	settings_dir = "~/.config/luabridge/settings"
//
//	[host]
//	backend = "nvim"
//	address = "/tmp/nvim.sock"
//
// Environment variables: LUABRIDGE_RUNTIME_PATH (comma separated),
// LUABRIDGE_SETTINGS_DIR, LUABRIDGE_HOST_ADDRESS (falls back to NVIM,
// the address Neovim exports to child processes).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the runtime configuration for the bridge process.
type Config struct {
	// RuntimePath is the ordered list of plugin bundle directories.
	RuntimePath []string `toml:"runtime_path"`

	// SettingsDir is the root for per-plugin settings files.
	SettingsDir string `toml:"settings_dir"`

	// Host selects and addresses the editor connection.
	Host HostConfig `toml:"host"`
}

// HostConfig addresses the editor side.
type HostConfig struct {
	// Backend names the host implementation. Only "nvim" is built in.
	Backend string `toml:"backend"`

	// Address is the host's msgpack-RPC socket.
	Address string `toml:"address"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{
		Host: HostConfig{Backend: "nvim"},
	}
	if base, err := os.UserConfigDir(); err == nil {
		cfg.SettingsDir = filepath.Join(base, "luabridge", "settings")
		cfg.RuntimePath = bundleDirs(filepath.Join(base, "luabridge", "bundle"))
	}
	return cfg
}

// Load reads the TOML file at path over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment overrides onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("LUABRIDGE_RUNTIME_PATH"); v != "" {
		parts := strings.Split(v, ",")
		c.RuntimePath = c.RuntimePath[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.RuntimePath = append(c.RuntimePath, p)
			}
		}
	}
	if v := os.Getenv("LUABRIDGE_SETTINGS_DIR"); v != "" {
		c.SettingsDir = v
	}
	if v := os.Getenv("LUABRIDGE_HOST_ADDRESS"); v != "" {
		c.Host.Address = v
	} else if c.Host.Address == "" {
		c.Host.Address = os.Getenv("NVIM")
	}
}

// bundleDirs lists the immediate subdirectories of root, in name
// order, matching how an editor runtime path enumerates bundles.
func bundleDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs
}
