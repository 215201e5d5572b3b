package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the workflow-scoped configuration file looked up in the
// workflow directory.
const ConfigFileName = "workflow.yaml"

// EnvRemoteURL overrides the configured relay server base URL.
const EnvRemoteURL = "AGENTRELAY_REMOTE_URL"

// Config is the workflow-scoped configuration.
type Config struct {
	// Name identifies the workflow; defaults to the directory base name.
	Name string `yaml:"name"`
	// RemoteURL is the relay server base URL. Empty disables remote mode.
	RemoteURL string `yaml:"remote_url"`
	// FullAuto answers choice interactions automatically after a countdown.
	FullAuto bool `yaml:"full_auto"`
	// AutoSelectDelaySec is the full-auto countdown in seconds.
	AutoSelectDelaySec int `yaml:"auto_select_delay"`
	// Retries is the agent retry budget (attempts = retries + 1).
	Retries int `yaml:"retries"`
}

// DefaultConfig returns the baseline configuration for a directory.
func DefaultConfig(dir string) Config {
	return Config{
		Name:               filepath.Base(dir),
		AutoSelectDelaySec: 10,
		Retries:            2,
	}
}

// LoadConfig reads workflow.yaml from dir, falling back to defaults for a
// missing file. The AGENTRELAY_REMOTE_URL environment variable overrides
// the configured relay URL.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig(dir)

	raw, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read workflow config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse workflow config: %w", err)
		}
		if cfg.Name == "" {
			cfg.Name = filepath.Base(dir)
		}
	}

	if url := os.Getenv(EnvRemoteURL); url != "" {
		cfg.RemoteURL = url
	}
	return cfg, nil
}
