package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration threaded explicitly through
// every orchestrator/store/supervisor constructor for one command
// invocation. Never read from an ambient global (Design Notes §9).
type Config struct {
	// LogLevel and LogJSON are read from the config file but not applied;
	// pkg/log.Init takes its level and format from the --log-level and
	// --log-json flags.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// SpawnRetries is the port-conflict retry count for spawn (§4.5, Open
	// Question — resolved as orchestrator.SpawnRetryLimit, overridable here).
	SpawnRetries int `yaml:"spawn_retries"`

	// KillOrphans controls whether orchestrator start non-interactively
	// terminates orphaned multiplexer sessions it finds at boot (§4.3).
	KillOrphans bool `yaml:"kill_orphans"`

	// AllowInsecureRemote is read from the config file but not applied; the
	// Dashboard Server's bind address comes from the --allow-insecure-remote
	// flag alone (§4.6).
	AllowInsecureRemote bool `yaml:"allow_insecure_remote"`

	// Multiplexer is the terminal-multiplexer binary name (default "tmux").
	Multiplexer string `yaml:"multiplexer"`

	// BridgeBin is the web-terminal bridge binary name (default "ttyd").
	BridgeBin string `yaml:"bridge_bin"`

	// HomeDir and GlobalDBPath locate the host-global Port Registry.
	HomeDir      string `yaml:"-"`
	GlobalDBPath string `yaml:"-"`
}

// Default returns the built-in defaults, before any file or flag overlay.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogJSON:      false,
		SpawnRetries: 5,
		KillOrphans:  false,
		Multiplexer:  "tmux",
		BridgeBin:    "ttyd",
	}
}

// Load builds a Config by layering an optional ~/.agent-farm/config.yaml
// over the built-in defaults. It never mutates a package-level global;
// the caller applies CLI flag overrides on top of the returned value.
func Load(homeDir string) (Config, error) {
	cfg := Default()
	cfg.HomeDir = homeDir
	cfg.GlobalDBPath = filepath.Join(homeDir, ".agent-farm", "global.db")

	path := filepath.Join(homeDir, ".agent-farm", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	// yaml.Unmarshal only overwrites fields present in the document; restore
	// the derived, non-serialized fields in case the file set them to zero.
	cfg.HomeDir = homeDir
	cfg.GlobalDBPath = filepath.Join(homeDir, ".agent-farm", "global.db")
	return cfg, nil
}
