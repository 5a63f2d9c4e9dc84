package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CAMDUMP_CAMERA_WIDTH
const EnvPrefix = "CAMDUMP"

// Config represents the application configuration
type Config struct {
	Backend    string         `json:"backend" yaml:"backend" mapstructure:"backend"`
	Camera     CameraConfig   `json:"camera" yaml:"camera" mapstructure:"camera"`
	Snapshot   SnapshotConfig `json:"snapshot" yaml:"snapshot" mapstructure:"snapshot"`
	Escapi     EscapiConfig   `json:"escapi" yaml:"escapi" mapstructure:"escapi"`
	WaitForKey bool           `json:"wait_for_key" yaml:"wait_for_key" mapstructure:"wait_for_key"`
	LogLevel   string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool           `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// CameraConfig represents the capture request handed to the backend
type CameraConfig struct {
	Index  int     `json:"index" yaml:"index" mapstructure:"index"`
	Width  int     `json:"width" yaml:"width" mapstructure:"width"`
	Height int     `json:"height" yaml:"height" mapstructure:"height"`
	FPS    float32 `json:"fps" yaml:"fps" mapstructure:"fps"`
	// Zero keeps the capture loop spinning between empty polls
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
}

// SnapshotConfig represents the one-shot frame dump
type SnapshotConfig struct {
	Frame  int    `json:"frame" yaml:"frame" mapstructure:"frame"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	// Caption is stamped onto the saved frame when set. {frame}, {device},
	// {backend}, {size} and {time} are expanded.
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty" mapstructure:"caption"`
}

// EscapiConfig locates the native capture library on Windows
type EscapiConfig struct {
	DLLPath string `json:"dll_path" yaml:"dll_path" mapstructure:"dll_path"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Backend: "auto",
		Camera: CameraConfig{
			Index:  0,
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Snapshot: SnapshotConfig{
			Frame:  10,
			Path:   "image.ppm",
			Format: "ppm",
		},
		Escapi: EscapiConfig{
			DLLPath: "escapi_rust.dll",
		},
		WaitForKey: true,
		LogLevel:   "warn",
		LogPretty:  false,
	}
}

// SetDefaults registers the built-in values with v
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("camera.index", d.Camera.Index)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("camera.poll_interval", d.Camera.PollInterval)
	v.SetDefault("snapshot.frame", d.Snapshot.Frame)
	v.SetDefault("snapshot.path", d.Snapshot.Path)
	v.SetDefault("snapshot.format", d.Snapshot.Format)
	v.SetDefault("snapshot.caption", d.Snapshot.Caption)
	v.SetDefault("escapi.dll_path", d.Escapi.DLLPath)
	v.SetDefault("wait_for_key", d.WaitForKey)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
}

// Validate rejects configurations the harness cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Camera.Index < 0 {
		errs = append(errs, fmt.Errorf("camera.index must not be negative, got %d", c.Camera.Index))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be positive, got %g", c.Camera.FPS))
	}
	if c.Camera.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("camera.poll_interval must not be negative, got %s", c.Camera.PollInterval))
	}
	if c.Snapshot.Frame <= 0 {
		errs = append(errs, fmt.Errorf("snapshot.frame must be positive, got %d", c.Snapshot.Frame))
	}
	if c.Snapshot.Path == "" {
		errs = append(errs, errors.New("snapshot.path must be set"))
	}
	return errors.Join(errs...)
}

// Manager handles configuration
type Manager struct {
	v          *viper.Viper
	configPath string
	config     *Config
}

// NewManager builds the configuration from defaults, an optional YAML file,
// CAMDUMP_* environment variables and whatever flags were bound to v.
// An explicitly named file must exist; the default locations are optional.
func NewManager(v *viper.Viper, configFile string) (*Manager, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{v: v}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("camdump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().Msg("No config file found, using defaults")
	} else {
		m.configPath = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m.config = &cfg

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", cfg.Backend).
		Int("index", cfg.Camera.Index).
		Int("width", cfg.Camera.Width).
		Int("height", cfg.Camera.Height).
		Msg("Config loaded")

	return m, nil
}

// Get returns the loaded configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetViper returns the underlying viper instance
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the file the configuration was read from, if any
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// DefaultDir returns $HOME/.config/camdump
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "camdump"), nil
}

// Save writes cfg to path on fs as YAML, creating parent directories
func Save(fs afero.Fs, cfg *Config, path string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", path).
		Msg("Config saved successfully")
	return nil
}

// Load reads a YAML file written by Save, without viper overlays
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
