package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML schema of the config file. Durations are written in
// time.ParseDuration form ("30s", "1h"). Pointer fields distinguish "absent"
// from zero, so a file only overrides what it names.
type fileConfig struct {
	ListenAddr   *string  `yaml:"listen_addr"`
	BindAddr     *string  `yaml:"bind_addr"`
	OriginHost   *string  `yaml:"origin_host"`
	OriginPort   *int     `yaml:"origin_port"`
	Alpha        *float64 `yaml:"alpha"`
	ManifestExt  *string  `yaml:"manifest_ext"`
	NoListSuffix *string  `yaml:"nolist_suffix"`

	DialTimeout   *string `yaml:"dial_timeout"`
	IdleTimeout   *string `yaml:"idle_timeout"`
	PathTTL       *string `yaml:"path_ttl"`
	SweepInterval *string `yaml:"sweep_interval"`

	ChunkLogPath  *string `yaml:"chunk_log"`
	MetricsAddr   *string `yaml:"metrics_addr"`
	Verbose       *bool   `yaml:"verbose"`
	LogFormat     *string `yaml:"log_format"`
	StatsInterval *string `yaml:"stats_interval"`
	TUIEnabled    *bool   `yaml:"tui"`
}

// LoadFile reads a YAML config file and applies its values over cfg. Fields
// absent from the file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.BindAddr, fc.BindAddr)
	setString(&cfg.OriginHost, fc.OriginHost)
	setString(&cfg.ManifestExt, fc.ManifestExt)
	setString(&cfg.NoListSuffix, fc.NoListSuffix)
	setString(&cfg.ChunkLogPath, fc.ChunkLogPath)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.LogFormat, fc.LogFormat)

	if fc.OriginPort != nil {
		cfg.OriginPort = *fc.OriginPort
	}
	if fc.Alpha != nil {
		cfg.Alpha = *fc.Alpha
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.TUIEnabled != nil {
		cfg.TUIEnabled = *fc.TUIEnabled
	}

	setDuration := func(dst *time.Duration, src *string, field string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("config file field %s: %w", field, err)
		}
		*dst = d
		return nil
	}
	if err := setDuration(&cfg.DialTimeout, fc.DialTimeout, "dial_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.IdleTimeout, fc.IdleTimeout, "idle_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.PathTTL, fc.PathTTL, "path_ttl"); err != nil {
		return err
	}
	if err := setDuration(&cfg.SweepInterval, fc.SweepInterval, "sweep_interval"); err != nil {
		return err
	}
	return setDuration(&cfg.StatsInterval, fc.StatsInterval, "stats_interval")
}

// DumpYAML renders the effective configuration in the config-file schema, for
// -print-config.
func DumpYAML(cfg *Config) (string, error) {
	str := func(s string) *string { return &s }

	fc := fileConfig{
		ListenAddr:    &cfg.ListenAddr,
		BindAddr:      &cfg.BindAddr,
		OriginHost:    &cfg.OriginHost,
		OriginPort:    &cfg.OriginPort,
		Alpha:         &cfg.Alpha,
		ManifestExt:   &cfg.ManifestExt,
		NoListSuffix:  &cfg.NoListSuffix,
		DialTimeout:   str(cfg.DialTimeout.String()),
		IdleTimeout:   str(cfg.IdleTimeout.String()),
		PathTTL:       str(cfg.PathTTL.String()),
		SweepInterval: str(cfg.SweepInterval.String()),
		ChunkLogPath:  &cfg.ChunkLogPath,
		MetricsAddr:   &cfg.MetricsAddr,
		Verbose:       &cfg.Verbose,
		LogFormat:     &cfg.LogFormat,
		StatsInterval: str(cfg.StatsInterval.String()),
		TUIEnabled:    &cfg.TUIEnabled,
	}

	out, err := yaml.Marshal(&fc)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}
