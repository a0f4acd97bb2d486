// Package config provides configuration management for hops, including
// loading configuration with precedence, environment variable overrides,
// and get/set/list operations for configuration values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/solve"
)

const (
	ConfigFileName        = "hops.yaml"
	DefaultDefinitionsDir = "definitions"
	DefaultSolveTimeout   = 300
	DefaultHTTPTimeout    = 30
)

type HopsLogLevel string

const (
	HopsLogLevelDebug HopsLogLevel = "debug"
	HopsLogLevelInfo  HopsLogLevel = "info"
	HopsLogLevelWarn  HopsLogLevel = "warn"
	HopsLogLevelError HopsLogLevel = "error"
	HopsLogLevelFatal HopsLogLevel = "fatal"
)

func ValidLogLevels() map[HopsLogLevel]struct{} {
	return map[HopsLogLevel]struct{}{
		HopsLogLevelDebug: {},
		HopsLogLevelInfo:  {},
		HopsLogLevelWarn:  {},
		HopsLogLevelError: {},
		HopsLogLevelFatal: {},
	}
}

func IsValidLogLevel(level HopsLogLevel) bool {
	_, ok := ValidLogLevels()[level]
	return ok
}

type HopsLogFormat string

const (
	HopsLogFormatPretty HopsLogFormat = "pretty"
	HopsLogFormatJSON   HopsLogFormat = "json"
)

func ValidLogFormats() map[HopsLogFormat]struct{} {
	return map[HopsLogFormat]struct{}{
		HopsLogFormatPretty: {},
		HopsLogFormatJSON:   {},
	}
}

func IsValidLogFormat(format HopsLogFormat) bool {
	_, ok := ValidLogFormats()[format]
	return ok
}

// HopsConfig holds the settings handed to components, the local solver
// and the worker. Timeouts are in seconds.
type HopsConfig struct {
	// Remote solving
	Servers             []string `yaml:"servers" mapstructure:"servers" validate:"dive,url"`           // compute server base URLs, tried in order
	LaunchWorkerAtStart bool     `yaml:"launch_worker_at_start" mapstructure:"launch_worker_at_start"` // spawn a local solver when no server is configured
	WorkerCommand       []string `yaml:"worker_command" mapstructure:"worker_command"`                 // command for the local solver, defaults to this binary
	SolveTimeout        int      `yaml:"solve_timeout" mapstructure:"solve_timeout" validate:"gte=1"`  // upper bound for one remote solve
	HTTPTimeout         int      `yaml:"http_timeout" mapstructure:"http_timeout" validate:"gte=1"`    // upper bound for one HTTP request
	Headless            bool     `yaml:"headless" mapstructure:"headless"`                             // refuse to solve, for batch hosts
	MCPSolverCommand    []string `yaml:"mcp_solver_command" mapstructure:"mcp_solver_command"`         // stdio MCP server used for mcp: identities

	// Defaults for new components
	CacheInMemory bool `yaml:"cache_in_memory" mapstructure:"cache_in_memory"`
	CacheOnServer bool `yaml:"cache_on_server" mapstructure:"cache_on_server"`

	// Local definitions
	WatchDefinitions bool   `yaml:"watch_definitions" mapstructure:"watch_definitions"` // rebuild when a definition file changes
	DefinitionsDir   string `yaml:"definitions_dir" mapstructure:"definitions_dir"`     // directory scanned by `hops serve`

	LogFormat HopsLogFormat `yaml:"log_format" mapstructure:"log_format"` // "pretty" or "json"
	LogLevel  string        `yaml:"log_level" mapstructure:"log_level"`   // "debug", "info", "warn", "error", "fatal"
}

// DialerOptions returns the transport settings for remote.NewDialer
func (cfg *HopsConfig) DialerOptions() remote.DialerOptions {
	return remote.DialerOptions{
		Servers:     slices.Clone(cfg.Servers),
		HTTPTimeout: time.Duration(cfg.HTTPTimeout) * time.Second,
		MCPCommand:  slices.Clone(cfg.MCPSolverCommand),
	}
}

// CachePolicy returns the cache settings for new components
func (cfg *HopsConfig) CachePolicy() solve.CachePolicy {
	return solve.CachePolicy{
		CacheInMemory: cfg.CacheInMemory,
		CacheOnServer: cfg.CacheOnServer,
	}
}

// SolveOptions returns the orchestrator settings
func (cfg *HopsConfig) SolveOptions() solve.Options {
	return solve.Options{
		Timeout:  time.Duration(cfg.SolveTimeout) * time.Second,
		Headless: cfg.Headless,
	}
}

// NeedsWorker reports whether a local worker has to be started
func (cfg *HopsConfig) NeedsWorker() bool {
	return cfg.LaunchWorkerAtStart && len(cfg.Servers) == 0
}

// ConfigValue represents a configuration value with its source
type ConfigValue struct {
	Value  any
	Source string // "env", "project", "user", or "default"
}

// GetUserConfigDir returns $XDG_CONFIG_HOME/hops, falling back to the
// platform's user config directory
func GetUserConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hops"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "hops"), nil
}

// GetUserConfigPath returns the path to the user-specific config file
func GetUserConfigPath() (string, error) {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// GetProjectConfigPath returns the path to the project-specific config file (./hops.yaml)
// relative to the current working directory
func GetProjectConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setupViper configures Viper with defaults, config file locations, and environment variables
// If configPath is provided (non-empty), loads from that specific path instead of using precedence
func setupViper(configPath string) error {
	viper.Reset()
	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("HOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	// user config first, then the project config merged over it
	if userPath, err := GetUserConfigPath(); err == nil && fileExists(userPath) {
		viper.SetConfigFile(userPath)
		if readErr := viper.ReadInConfig(); readErr != nil {
			zap.L().Debug("Failed to read user config file", zap.String("path", userPath), zap.Error(readErr))
		}
	}

	if projectPath, err := GetProjectConfigPath(); err == nil && fileExists(projectPath) {
		viper.SetConfigFile(projectPath)
		if mergeErr := viper.MergeInConfig(); mergeErr != nil {
			zap.L().Debug("Failed to merge project config file", zap.String("path", projectPath), zap.Error(mergeErr))
		}
	}

	return nil
}

// setDefaults sets default values on v
func setDefaults(v *viper.Viper) {
	v.SetDefault("servers", []string{})
	v.SetDefault("launch_worker_at_start", false)
	v.SetDefault("worker_command", []string{})
	v.SetDefault("solve_timeout", DefaultSolveTimeout)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("headless", false)
	v.SetDefault("mcp_solver_command", []string{})

	v.SetDefault("cache_in_memory", true)
	v.SetDefault("cache_on_server", true)

	v.SetDefault("watch_definitions", true)
	v.SetDefault("definitions_dir", DefaultDefinitionsDir)

	v.SetDefault("log_format", string(HopsLogFormatJSON))
	v.SetDefault("log_level", string(HopsLogLevelInfo))
}

// LoadConfig loads configuration with precedence: project config > user config > defaults
// Environment variables override config file values
// If configPath is provided, loads from that specific path instead
func LoadConfig(configPath string) (*HopsConfig, error) {
	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &HopsConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var configFileDir string
	if configPath != "" {
		configFileDir = filepath.Dir(configPath)
	} else if projectPath, err := GetProjectConfigPath(); err == nil && fileExists(projectPath) {
		configFileDir = filepath.Dir(projectPath)
	}

	if err := postProcessConfig(cfg, configFileDir); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// postProcessConfig resolves a relative definitions_dir against the project
// config's directory, or the user config directory when there is none
func postProcessConfig(cfg *HopsConfig, configFileDir string) error {
	dir := cfg.DefinitionsDir
	if dir == "" {
		dir = DefaultDefinitionsDir
	}

	if !filepath.IsAbs(dir) {
		base := configFileDir
		if base == "" {
			userDir, err := GetUserConfigDir()
			if err != nil {
				return err
			}
			base = userDir
		}
		dir = filepath.Join(base, dir)
	}

	cfg.DefinitionsDir = filepath.Clean(dir)
	return nil
}

var validate = validator.New()

func validateConfig(cfg *HopsConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return fmt.Errorf("invalid config value for %s: failed %q check (got %v)",
				first.Namespace(), first.Tag(), first.Value())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.LogFormat != "" && !IsValidLogFormat(cfg.LogFormat) {
		return fmt.Errorf("log_format must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogFormats()), cfg.LogFormat)
	}
	if cfg.LogLevel != "" && !IsValidLogLevel(HopsLogLevel(cfg.LogLevel)) {
		return fmt.Errorf("log_level must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogLevels()), cfg.LogLevel)
	}

	return nil
}

// getValueSource determines the source of a config value
func getValueSource(key string) string {
	envKey := "HOPS_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if os.Getenv(envKey) != "" {
		return "env"
	}

	// viper doesn't track sources, so each file is read on its own
	if projectPath, err := GetProjectConfigPath(); err == nil && fileExists(projectPath) {
		if fileHasKey(projectPath, key) {
			return "project"
		}
	}

	if userPath, err := GetUserConfigPath(); err == nil && fileExists(userPath) {
		if fileHasKey(userPath, key) {
			return "user"
		}
	}

	return "default"
}

func fileHasKey(path, key string) bool {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return false
	}
	return v.IsSet(key)
}

// GetConfigValue retrieves a configuration value by key, checking environment variables first
// Returns the value and its source ("env", "project", "user", or "default")
func GetConfigValue(key string) (*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	value := viper.Get(key)
	if value == nil {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}

	return &ConfigValue{Value: value, Source: getValueSource(key)}, nil
}

// SetConfigValue sets a configuration value in the project config if one
// exists, otherwise in the user config. The value is parsed and validated
// as the key's type; other keys in the file are left as they are.
func SetConfigValue(key, value string) error {
	configPath, err := GetProjectConfigPath()
	if err != nil || !fileExists(configPath) {
		userPath, userErr := GetUserConfigPath()
		if userErr != nil {
			return fmt.Errorf("failed to get user config path: %w", userErr)
		}
		if err := os.MkdirAll(filepath.Dir(userPath), 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = userPath
	}

	fileValues := map[string]any{}
	if fileExists(configPath) {
		data, err := os.ReadFile(configPath) // #nosec G304 -- path is one of the two config locations
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fileValues); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	typed, err := typedValue(fileValues, key, value)
	if err != nil {
		return err
	}
	fileValues[key] = typed

	data, err := yaml.Marshal(fileValues)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	zap.L().Debug("Config value set", zap.String("key", key), zap.String("path", configPath))
	return nil
}

// typedValue decodes value into the config struct alongside the file's
// existing values and returns it as the struct typed it
func typedValue(fileValues map[string]any, key, value string) (any, error) {
	v := viper.New()
	setDefaults(v)
	for k, val := range fileValues {
		v.Set(k, val)
	}
	v.Set(key, value)

	cfg := &HopsConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	all := map[string]any{}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	typed, ok := all[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return typed, nil
}

// ListConfig returns all configuration keys and values with their sources
func ListConfig() (map[string]*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	result := make(map[string]*ConfigValue)
	for _, key := range viper.AllKeys() {
		result[key] = &ConfigValue{Value: viper.Get(key), Source: getValueSource(key)}
	}
	return result, nil
}
