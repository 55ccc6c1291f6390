// Package config loads the lvbits service configuration.
//
// Configuration comes from a single YAML file named by the --config flag or the
// LVBITS_CONFIG environment variable. Without either, Default is used. Values in
// the file are merged over the defaults; ${VAR} and ${VAR:-default} are expanded in
// path-like fields.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/lvbits/api"
	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/codec/execmodel"
	"github.com/arloliu/lvbits/codec/quant"
	"github.com/arloliu/lvbits/errs"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "LVBITS_CONFIG"

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Codec   CodecConfig   `yaml:"codec"`
	Staging StagingConfig `yaml:"staging"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes limits uploads; larger bodies are rejected with 413.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// CodecConfig selects and tunes the codec model.
type CodecConfig struct {
	// Model is a registered model name, e.g. "quant-zstd" or "exec".
	Model string `yaml:"model"`
	// Device is "auto", "cpu" or "cuda".
	Device string `yaml:"device"`
	// RetryInit lets a request retry a failed model load.
	RetryInit bool `yaml:"retry_init"`
	// Preload loads the model at startup instead of on the first request.
	Preload bool `yaml:"preload"`
	// Serialize forces one codec call at a time.
	Serialize bool       `yaml:"serialize"`
	Exec      ExecConfig `yaml:"exec"`
}

// ExecConfig configures the external process model.
type ExecConfig struct {
	Command string `yaml:"command"`
	// Args are passed before the operation; they must not contain whitespace.
	Args []string `yaml:"args"`
}

// StagingConfig configures transient codec files.
type StagingConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig configures the download artifact store.
type StoreConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	srv := api.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:            srv.Addr,
			ReadTimeout:     srv.ReadTimeout,
			WriteTimeout:    srv.WriteTimeout,
			IdleTimeout:     srv.IdleTimeout,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    srv.MaxBodyBytes,
		},
		Codec: CodecConfig{
			Model:  quant.NameZstd,
			Device: codec.DeviceAuto,
		},
		Staging: StagingConfig{
			Dir: "${TMPDIR:-/tmp}/lvbits-staging",
		},
		Store: StoreConfig{
			MaxEntries: api.DefaultStoreEntries,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads the file named by LVBITS_CONFIG, or returns Default if it is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()

		return cfg, nil
	}

	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration merged over Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Staging.Dir = expandVars(c.Staging.Dir)
	c.Codec.Exec.Command = expandVars(c.Codec.Exec.Command)
	for i, arg := range c.Codec.Exec.Args {
		c.Codec.Exec.Args[i] = expandVars(arg)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}

		return parts[2]
	})
}

var (
	validDevices    = []string{codec.DeviceAuto, "cpu", "cuda", "gpu"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
)

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errList []error

	if c.Server.Addr == "" {
		errList = append(errList, errors.New("server.addr is required"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errList = append(errList, errors.New("server timeouts must not be negative"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errList = append(errList, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}

	if c.Codec.Model == "" {
		errList = append(errList, errors.New("codec.model is required"))
	}
	if !slices.Contains(validDevices, strings.ToLower(c.Codec.Device)) {
		errList = append(errList, fmt.Errorf("codec.device must be one of: %v", validDevices))
	}
	if c.Codec.Model == execmodel.Name && c.Codec.Exec.Command == "" {
		errList = append(errList, errors.New("codec.exec.command is required for the exec model"))
	}

	if c.Staging.Dir == "" {
		errList = append(errList, errors.New("staging.dir is required"))
	}
	if c.Store.MaxEntries <= 0 {
		errList = append(errList, fmt.Errorf("store.max_entries must be positive, got %d", c.Store.MaxEntries))
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		errList = append(errList, fmt.Errorf("log.level must be one of: %v", validLogLevels))
	}
	if !slices.Contains(validLogFormats, strings.ToLower(c.Log.Format)) {
		errList = append(errList, fmt.Errorf("log.format must be one of: %v", validLogFormats))
	}

	if len(errList) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, errors.Join(errList...))
	}

	return nil
}

// APIConfig returns the HTTP server settings.
func (c *Config) APIConfig(version string) api.Config {
	return api.Config{
		Addr:         c.Server.Addr,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		IdleTimeout:  c.Server.IdleTimeout,
		MaxBodyBytes: c.Server.MaxBodyBytes,
		StoreEntries: c.Store.MaxEntries,
		Version:      version,
	}
}

// LoadConfig resolves the device and returns the codec load settings.
func (c *Config) LoadConfig() (codec.LoadConfig, error) {
	device, err := codec.ResolveDevice(c.Codec.Device)
	if err != nil {
		return codec.LoadConfig{}, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	cfg := codec.LoadConfig{Name: c.Codec.Model, Device: device}
	if c.Codec.Exec.Command != "" {
		cfg.Params = map[string]string{
			execmodel.ParamCommand: c.Codec.Exec.Command,
			execmodel.ParamArgs:    strings.Join(c.Codec.Exec.Args, " "),
		}
	}

	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// NewLogger creates the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}
