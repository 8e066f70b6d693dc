package backend

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Application configuration and settings

type Config struct {
	OutputDirectory    string   `toml:"output_directory" json:"outputDirectory"`
	ExtractorPath      string   `toml:"extractor_path" json:"extractorPath"`   // yt-dlp binary, name or absolute path
	EncoderPath        string   `toml:"encoder_path" json:"encoderPath"`       // ffmpeg binary, empty means bundled or PATH
	CookiesBrowser     string   `toml:"cookies_browser" json:"cookiesBrowser"` // "firefox", "chrome", "librewolf", ... or ""
	ExtractorRetries   int      `toml:"extractor_retries" json:"extractorRetries"`
	AACEncoder         string   `toml:"aac_encoder" json:"aacEncoder"` // "aac", or "aac_at" on macOS ffmpeg builds
	ThumbnailRedirects int      `toml:"thumbnail_redirects" json:"thumbnailRedirects"`
	ThumbnailTimeout   int      `toml:"thumbnail_timeout_seconds" json:"thumbnailTimeoutSeconds"`
	StepTimeout        int      `toml:"step_timeout_seconds" json:"stepTimeoutSeconds"` // 0 disables
	TempRoot           string   `toml:"temp_root" json:"tempRoot"`
	DataDirectory      string   `toml:"data_directory" json:"dataDirectory"`
	ProxyURL           string   `toml:"proxy_url" json:"proxyUrl"`
	LogLevel           string   `toml:"log_level" json:"logLevel"`
	DeviceMounts       []string `toml:"device_mounts" json:"deviceMounts"`
	HistoryEnabled     bool     `toml:"history_enabled" json:"historyEnabled"`
}

var defaultConfig = Config{
	ExtractorPath:      "yt-dlp",
	ExtractorRetries:   3,
	AACEncoder:         "aac",
	ThumbnailRedirects: 5,
	ThumbnailTimeout:   30,
	LogLevel:           "info",
	DeviceMounts:       []string{"/Volumes/iPod", "/Volumes/IPOD", "/Volumes/iPod Classic"},
	HistoryEnabled:     true,
}

// GetDefaultConfig returns a fresh copy of the built-in defaults.
func GetDefaultConfig() *Config {
	cfg := defaultConfig
	cfg.DeviceMounts = append([]string(nil), defaultConfig.DeviceMounts...)
	return &cfg
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if env := os.Getenv("PODFETCH_CONFIG"); env != "" {
		return env
	}
	configDir, _ := os.UserConfigDir()
	return filepath.Join(configDir, "podfetch", "config.toml")
}

// GetDataPath returns the path to app data directory
func GetDataPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".podfetch")
}

// GetDataPathWithEnv is GetDataPath honouring PODFETCH_DATA_DIR.
func GetDataPathWithEnv() string {
	if env := os.Getenv("PODFETCH_DATA_DIR"); env != "" {
		return env
	}
	return GetDataPath()
}

// GetBinPath returns the path to bundled binaries
func GetBinPath() string {
	return filepath.Join(GetDataPathWithEnv(), "bin")
}

// LoadConfig loads configuration from the default location.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(GetConfigPath())
}

// LoadConfigFrom decodes a TOML config file over the defaults.
// A missing file yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	return cfg, nil
}

// LoadConfigWithEnv loads the config file and applies environment overrides.
func LoadConfigWithEnv() (*Config, error) {
	return LoadConfigFromWithEnv(GetConfigPath())
}

// LoadConfigFromWithEnv is LoadConfigWithEnv for an explicit file path.
func LoadConfigFromWithEnv(path string) (*Config, error) {
	cfg, err := LoadConfigFrom(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to the default location.
func SaveConfig(config *Config) error {
	return SaveConfigTo(GetConfigPath(), config)
}

// SaveConfigTo writes config as TOML, creating the parent directory.
func SaveConfigTo(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetDefaultOutputDirectory returns default output path
func GetDefaultOutputDirectory() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Music", "podfetch")
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.ExtractorPath) == "" {
		c.ExtractorPath = defaultConfig.ExtractorPath
	}
	if c.ExtractorRetries <= 0 {
		c.ExtractorRetries = defaultConfig.ExtractorRetries
	}
	if strings.TrimSpace(c.AACEncoder) == "" {
		c.AACEncoder = defaultConfig.AACEncoder
	}
	if c.ThumbnailRedirects <= 0 {
		c.ThumbnailRedirects = defaultConfig.ThumbnailRedirects
	}
	if c.ThumbnailTimeout <= 0 {
		c.ThumbnailTimeout = defaultConfig.ThumbnailTimeout
	}
	if c.StepTimeout < 0 {
		c.StepTimeout = 0
	}
}

func (c *Config) applyEnv() {
	if env := os.Getenv("PODFETCH_OUTPUT_DIR"); env != "" {
		c.OutputDirectory = env
	}
	if env := os.Getenv("PODFETCH_DATA_DIR"); env != "" {
		c.DataDirectory = env
	}
	if env := os.Getenv("PODFETCH_YTDLP"); env != "" {
		c.ExtractorPath = env
	}
	if env := os.Getenv("PODFETCH_FFMPEG"); env != "" {
		c.EncoderPath = env
	}
	if env := os.Getenv("PODFETCH_COOKIES_BROWSER"); env != "" {
		c.CookiesBrowser = env
	}
	if env := os.Getenv("PODFETCH_STEP_TIMEOUT"); env != "" {
		if secs, err := strconv.Atoi(env); err == nil {
			c.StepTimeout = secs
		}
	}
	if env := os.Getenv("PROXY_URL"); env != "" {
		c.ProxyURL = env
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		c.LogLevel = env
	}
	c.normalize()
}

// Validate rejects unusable values.
func (c *Config) Validate() error {
	if err := ValidateOutputDirectory(c.OutputDirectory); err != nil {
		return err
	}
	if err := ValidateCookiesBrowser(c.CookiesBrowser); err != nil {
		return err
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout_seconds must be >= 0")
	}
	return nil
}

// OutputRoot returns the configured output directory or the default.
func (c *Config) OutputRoot() string {
	if c.OutputDirectory != "" {
		return c.OutputDirectory
	}
	return GetDefaultOutputDirectory()
}

// AudioDirectory is where shells put tracks when no directory is given.
func (c *Config) AudioDirectory() string {
	return filepath.Join(c.OutputRoot(), "Audio")
}

// VideoDirectory is where shells put videos when no directory is given.
func (c *Config) VideoDirectory() string {
	return filepath.Join(c.OutputRoot(), "Videos")
}

// DataPath returns the data directory for history and lock files.
func (c *Config) DataPath() string {
	if c.DataDirectory != "" {
		return c.DataDirectory
	}
	return GetDataPathWithEnv()
}

// StepTimeoutDuration converts StepTimeout to a duration; zero means none.
func (c *Config) StepTimeoutDuration() time.Duration {
	return time.Duration(c.StepTimeout) * time.Second
}

// EnsureDownloadFolders creates the Audio and Videos folders under the output root.
func (c *Config) EnsureDownloadFolders() error {
	for _, dir := range []string{c.AudioDirectory(), c.VideoDirectory()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
