package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/goccy/go-yaml"
)

const (
	// defaults
	ScanModeDefault       = ScanModeHeaders
	LogLevelDefault       = LogLevelInfo
	OutputFormatDefault   = OutputFormatText
	MaxLeadingJunkDefault = ogg.DefaultMaxLeadingJunk
	KindsDefault          = "opus,vorbis,flac,speex,theora"

	maxLeadingJunkLimit = 16 << 20
)

type ScanMode string

const (
	ScanModeHeaders ScanMode = "headers"
	ScanModeFull    ScanMode = "full"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

type TaggerConfig struct {
	// scan config
	ScanMode       ScanMode `yaml:"scan_mode,omitempty"`
	SkipChecksums  bool     `yaml:"skip_checksums,omitempty"`
	MaxLeadingJunk int64    `yaml:"max_leading_junk,omitempty"`
	Kinds          string   `yaml:"kinds,omitempty"`

	// rewrite config
	CompactHeaders bool `yaml:"compact_headers,omitempty"`
	KeepBackup     bool `yaml:"keep_backup,omitempty"`

	// output config
	LogLevel     LogLevel     `yaml:"log_level,omitempty"`
	OutputFormat OutputFormat `yaml:"output_format,omitempty"`
}

func (m ScanMode) IsValid() bool {
	switch m {
	case ScanModeHeaders, ScanModeFull:
		return true
	default:
		return false
	}
}

func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) Level() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatYAML, OutputFormatJSON:
		return true
	default:
		return false
	}
}

func (cfg TaggerConfig) IsValid() error {
	if cfg == (TaggerConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if !cfg.ScanMode.IsValid() {
		return fmt.Errorf("ScanMode value is not valid")
	}
	if cfg.MaxLeadingJunk < 1 || cfg.MaxLeadingJunk > maxLeadingJunkLimit {
		return fmt.Errorf("MaxLeadingJunk should be in the range [1, %d]", maxLeadingJunkLimit)
	}
	if cfg.Kinds == "" {
		return fmt.Errorf("Kinds cannot be empty")
	}
	if _, err := cfg.ParseKinds(); err != nil {
		return fmt.Errorf("Kinds parsing failed: %w", err)
	}
	if !cfg.LogLevel.IsValid() {
		return fmt.Errorf("LogLevel value is not valid")
	}
	if !cfg.OutputFormat.IsValid() {
		return fmt.Errorf("OutputFormat value is not valid")
	}

	return nil
}

func (cfg *TaggerConfig) SetDefaults() {
	if cfg.ScanMode == "" {
		cfg.ScanMode = ScanModeDefault
	}

	if cfg.MaxLeadingJunk == 0 {
		cfg.MaxLeadingJunk = MaxLeadingJunkDefault
	}

	if cfg.Kinds == "" {
		cfg.Kinds = KindsDefault
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = LogLevelDefault
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = OutputFormatDefault
	}
}

// ParseKinds returns the stream kinds enabled by the comma separated Kinds
// list, in order.
func (cfg TaggerConfig) ParseKinds() ([]ogg.Kind, error) {
	var kinds []ogg.Kind
	for _, name := range strings.Split(cfg.Kinds, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := ogg.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (cfg TaggerConfig) ScanOptions() ogg.ScanOptions {
	opts := ogg.ScanOptions{
		SkipChecksum:   cfg.SkipChecksums,
		MaxLeadingJunk: cfg.MaxLeadingJunk,
	}
	if cfg.ScanMode == ScanModeFull {
		opts.Mode = ogg.ScanFull
	}
	opts.Kinds, _ = cfg.ParseKinds()
	return opts
}

func (cfg TaggerConfig) RewriteOptions() ogg.RewriteOptions {
	return ogg.RewriteOptions{
		PreservePageCount: !cfg.CompactHeaders,
	}
}

func (cfg TaggerConfig) ToEnv() []string {
	if cfg == (TaggerConfig{}) {
		return nil
	}

	return []string{
		fmt.Sprintf("OGGTAG_SCAN_MODE=%s", cfg.ScanMode),
		fmt.Sprintf("OGGTAG_SKIP_CHECKSUMS=%t", cfg.SkipChecksums),
		fmt.Sprintf("OGGTAG_MAX_LEADING_JUNK=%d", cfg.MaxLeadingJunk),
		fmt.Sprintf("OGGTAG_KINDS=%s", cfg.Kinds),
		fmt.Sprintf("OGGTAG_COMPACT_HEADERS=%t", cfg.CompactHeaders),
		fmt.Sprintf("OGGTAG_KEEP_BACKUP=%t", cfg.KeepBackup),
		fmt.Sprintf("OGGTAG_LOG_LEVEL=%s", cfg.LogLevel),
		fmt.Sprintf("OGGTAG_OUTPUT_FORMAT=%s", cfg.OutputFormat),
	}
}

func (cfg TaggerConfig) ToMap() map[string]any {
	if cfg == (TaggerConfig{}) {
		return nil
	}

	return map[string]any{
		"scan_mode":        cfg.ScanMode,
		"skip_checksums":   cfg.SkipChecksums,
		"max_leading_junk": cfg.MaxLeadingJunk,
		"kinds":            cfg.Kinds,
		"compact_headers":  cfg.CompactHeaders,
		"keep_backup":      cfg.KeepBackup,
		"log_level":        cfg.LogLevel,
		"output_format":    cfg.OutputFormat,
	}
}

func (cfg *TaggerConfig) FromMap(m map[string]any) *TaggerConfig {
	cfg.SkipChecksums, _ = m["skip_checksums"].(bool)
	cfg.CompactHeaders, _ = m["compact_headers"].(bool)
	cfg.KeepBackup, _ = m["keep_backup"].(bool)
	cfg.Kinds, _ = m["kinds"].(string)

	// max_leading_junk can either be an integer or float64 depending whether
	// it's been previously marshaled or not.
	switch v := m["max_leading_junk"].(type) {
	case int:
		cfg.MaxLeadingJunk = int64(v)
	case int64:
		cfg.MaxLeadingJunk = v
	case uint64:
		cfg.MaxLeadingJunk = int64(v)
	case float64:
		cfg.MaxLeadingJunk = int64(v)
	}

	if mode, ok := m["scan_mode"].(string); ok {
		cfg.ScanMode = ScanMode(mode)
	} else {
		cfg.ScanMode, _ = m["scan_mode"].(ScanMode)
	}
	if level, ok := m["log_level"].(string); ok {
		cfg.LogLevel = LogLevel(level)
	} else {
		cfg.LogLevel, _ = m["log_level"].(LogLevel)
	}
	if format, ok := m["output_format"].(string); ok {
		cfg.OutputFormat = OutputFormat(format)
	} else {
		cfg.OutputFormat, _ = m["output_format"].(OutputFormat)
	}

	return cfg
}

func FromEnv() (TaggerConfig, error) {
	var cfg TaggerConfig
	var err error

	if val := os.Getenv("OGGTAG_SCAN_MODE"); val != "" {
		cfg.ScanMode = ScanMode(val)
	}
	if val := os.Getenv("OGGTAG_KINDS"); val != "" {
		cfg.Kinds = val
	}
	if val := os.Getenv("OGGTAG_LOG_LEVEL"); val != "" {
		cfg.LogLevel = LogLevel(val)
	}
	if val := os.Getenv("OGGTAG_OUTPUT_FORMAT"); val != "" {
		cfg.OutputFormat = OutputFormat(val)
	}

	if val := os.Getenv("OGGTAG_MAX_LEADING_JUNK"); val != "" {
		if cfg.MaxLeadingJunk, err = strconv.ParseInt(val, 10, 64); err != nil {
			return cfg, fmt.Errorf("failed to parse OGGTAG_MAX_LEADING_JUNK: %w", err)
		}
	}

	for name, dst := range map[string]*bool{
		"OGGTAG_SKIP_CHECKSUMS":  &cfg.SkipChecksums,
		"OGGTAG_COMPACT_HEADERS": &cfg.CompactHeaders,
		"OGGTAG_KEEP_BACKUP":     &cfg.KeepBackup,
	} {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if *dst, err = strconv.ParseBool(val); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	}

	return cfg, nil
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (TaggerConfig, error) {
	var cfg TaggerConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load reads the config from path, if set, and from the environment
// otherwise. Defaults are applied and the result validated.
func Load(path string) (TaggerConfig, error) {
	var cfg TaggerConfig
	var err error
	if path != "" {
		cfg, err = LoadFile(path)
	} else {
		cfg, err = FromEnv()
	}
	if err != nil {
		return cfg, err
	}

	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
