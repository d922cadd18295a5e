package validation

import (
	"fmt"
	"strings"

	"github.com/altafino/invoice-fetcher/internal/types"
)

// ValidateConfig performs validation on a loaded configuration. sendEnabled
// indicates whether this run will forward the archive by mail, which makes
// the forward address mandatory.
func ValidateConfig(cfg *types.Config, sendEnabled bool) error {
	if err := validateOutput(cfg); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if err := validateGmail(cfg); err != nil {
		return fmt.Errorf("gmail validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := validateScheduling(cfg); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	if sendEnabled && cfg.Forward.To == "" {
		return fmt.Errorf("forward.to (or the CONTADORA_EMAIL variable) is required when sending mail")
	}

	return nil
}

func validateOutput(cfg *types.Config) error {
	if cfg.Output.BaseDir == "" {
		return fmt.Errorf("output.base_dir is required")
	}

	if cfg.Output.StateDir == "" {
		return fmt.Errorf("output.state_dir is required")
	}

	if len(cfg.Output.Extensions) == 0 {
		return fmt.Errorf("output.extensions must not be empty")
	}

	for _, ext := range cfg.Output.Extensions {
		if ext == "" || strings.HasPrefix(ext, ".") {
			return fmt.Errorf("output.extensions: extension %q must be non-empty without a leading dot", ext)
		}
	}

	return nil
}

func validateGmail(cfg *types.Config) error {
	if cfg.Gmail.CredentialsFile == "" {
		return fmt.Errorf("gmail.credentials_file is required")
	}

	if cfg.Gmail.TokenFile == "" {
		return fmt.Errorf("gmail.token_file is required")
	}

	return nil
}

func validateLogging(cfg *types.Config) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"dev":  true,
	}

	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json, dev")
	}

	return nil
}

func validateScheduling(cfg *types.Config) error {
	if !cfg.Scheduling.Enabled {
		return nil // Skip validation if scheduling is disabled
	}

	validFrequencies := map[string]bool{
		"minute": true,
		"hour":   true,
		"day":    true,
		"week":   true,
	}

	if !validFrequencies[cfg.Scheduling.FrequencyEvery] {
		return fmt.Errorf("scheduling.frequency_every must be one of: minute, hour, day, week")
	}

	if cfg.Scheduling.FrequencyAmount < 1 {
		return fmt.Errorf("scheduling.frequency_amount must be greater than 0")
	}

	if cfg.Scheduling.WindowDays < 1 {
		return fmt.Errorf("scheduling.window_days must be greater than 0")
	}

	return nil
}
