// Package config loads the fetcher configuration from a single YAML file,
// expanding environment variables and filling unset fields from defaults.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	yaml "gopkg.in/yaml.v3"

	"github.com/altafino/invoice-fetcher/internal/types"
)

// ForwardToEnv overrides forward.to when set, so the recipient never has to
// live in the config file.
const ForwardToEnv = "CONTADORA_EMAIL"

// Load reads and parses the configuration file at path. Environment
// variables referenced in the file are expanded before unmarshaling; fields
// the file leaves unset are filled from Default.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &types.Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if v := os.Getenv(ForwardToEnv); v != "" {
		cfg.Forward.To = v
	}

	return cfg, nil
}

// Default returns the built-in configuration values.
func Default() types.Config {
	var d types.Config
	d.Meta.ID = "default"
	d.Meta.Name = "invoice-fetcher"
	d.Meta.Enabled = true
	d.Search.MaxResults = 100
	d.Output.BaseDir = "data"
	d.Output.StateDir = "data/state"
	d.Output.Extensions = []string{"pdf", "json"}
	d.Gmail.CredentialsFile = "config/credentials/credentials.json"
	d.Gmail.TokenFile = "config/credentials/token.json"
	d.Forward.SubjectPrefix = "Facturas"
	d.Logging.Level = "info"
	d.Logging.Format = "text"
	d.Scheduling.FrequencyEvery = "day"
	d.Scheduling.FrequencyAmount = 1
	d.Scheduling.WindowDays = 7
	return d
}
