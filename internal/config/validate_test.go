package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.OriginHost = "10.0.0.1"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() on defaults+origin = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing origin",
			mutate:  func(c *Config) { c.OriginHost = "" },
			wantErr: "origin",
		},
		{
			name:    "origin given as URL",
			mutate:  func(c *Config) { c.OriginHost = "http://origin" },
			wantErr: "origin",
		},
		{
			name:    "origin port too large",
			mutate:  func(c *Config) { c.OriginPort = 70000 },
			wantErr: "origin_port",
		},
		{
			name:    "origin port zero",
			mutate:  func(c *Config) { c.OriginPort = 0 },
			wantErr: "origin_port",
		},
		{
			name:    "alpha zero",
			mutate:  func(c *Config) { c.Alpha = 0 },
			wantErr: "alpha",
		},
		{
			name:    "alpha above one",
			mutate:  func(c *Config) { c.Alpha = 1.5 },
			wantErr: "alpha",
		},
		{
			name:    "listen without port",
			mutate:  func(c *Config) { c.ListenAddr = "127.0.0.1" },
			wantErr: "listen",
		},
		{
			name:    "empty listen",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: "listen",
		},
		{
			name:    "bind is not an IP",
			mutate:  func(c *Config) { c.BindAddr = "not-an-ip" },
			wantErr: "bind",
		},
		{
			name:    "manifest ext without dot",
			mutate:  func(c *Config) { c.ManifestExt = "f4m" },
			wantErr: "manifest_ext",
		},
		{
			name:    "empty nolist suffix",
			mutate:  func(c *Config) { c.NoListSuffix = "" },
			wantErr: "nolist_suffix",
		},
		{
			name:    "non-positive dial timeout",
			mutate:  func(c *Config) { c.DialTimeout = 0 },
			wantErr: "dial_timeout",
		},
		{
			name:    "non-positive idle timeout",
			mutate:  func(c *Config) { c.IdleTimeout = -1 },
			wantErr: "idle_timeout",
		},
		{
			name:    "non-positive path ttl",
			mutate:  func(c *Config) { c.PathTTL = 0 },
			wantErr: "path_ttl",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "log_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// Alpha exactly 1 is legal: pure instantaneous, no smoothing.
func TestValidate_AlphaOne(t *testing.T) {
	cfg := validConfig()
	cfg.Alpha = 1.0
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(alpha=1) = %v", err)
	}
}

// Validate reports every problem at once, not just the first.
func TestValidate_JoinsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Alpha = 0
	cfg.OriginPort = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"alpha", "origin_port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() missing %q: %v", want, err)
		}
	}
}

// BindAddr empty means "kernel picks the source address" and is valid.
func TestValidate_EmptyBind(t *testing.T) {
	cfg := validConfig()
	cfg.BindAddr = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(empty bind) = %v", err)
	}
}
