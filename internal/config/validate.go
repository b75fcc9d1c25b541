package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	// Origin host is required (print-config works without it).
	if cfg.OriginHost == "" && !cfg.PrintConfig {
		errs = append(errs, ValidationError{
			Field:   "origin",
			Message: "origin media server host is required",
		})
	}

	if cfg.OriginHost != "" && strings.Contains(cfg.OriginHost, "://") {
		errs = append(errs, ValidationError{
			Field:   "origin",
			Message: "must be a host or IP, not a URL",
		})
	}

	if cfg.OriginPort < 1 || cfg.OriginPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "origin_port",
			Message: fmt.Sprintf("must be in 1-65535 (got %d)", cfg.OriginPort),
		})
	}

	if err := validateListenAddr(cfg.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "listen",
			Message: err.Error(),
		})
	}

	if cfg.BindAddr != "" && net.ParseIP(cfg.BindAddr) == nil {
		errs = append(errs, ValidationError{
			Field:   "bind",
			Message: fmt.Sprintf("must be an IP address (got %q)", cfg.BindAddr),
		})
	}

	// Alpha must be in (0, 1]: 0 would freeze the estimate forever.
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		errs = append(errs, ValidationError{
			Field:   "alpha",
			Message: fmt.Sprintf("must be in (0, 1] (got %v)", cfg.Alpha),
		})
	}

	if cfg.ManifestExt == "" || !strings.HasPrefix(cfg.ManifestExt, ".") {
		errs = append(errs, ValidationError{
			Field:   "manifest_ext",
			Message: fmt.Sprintf("must be a dotted extension like .f4m (got %q)", cfg.ManifestExt),
		})
	}

	if cfg.NoListSuffix == "" {
		errs = append(errs, ValidationError{
			Field:   "nolist_suffix",
			Message: "must not be empty",
		})
	}

	if cfg.DialTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "dial_timeout",
			Message: "must be positive",
		})
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "idle_timeout",
			Message: "must be positive",
		})
	}

	if cfg.PathTTL <= 0 {
		errs = append(errs, ValidationError{
			Field:   "path_ttl",
			Message: "must be positive",
		})
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sweep_interval",
			Message: "must be positive",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.StatsInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stats_interval",
			Message: "must be positive",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateListenAddr checks a host:port listen address.
func validateListenAddr(addr string) error {
	if addr == "" {
		return errors.New("must not be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid host:port: %w", err)
	}
	if port == "" || port == "0" {
		return errors.New("must name an explicit port")
	}
	return nil
}
