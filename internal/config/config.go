// Package config provides configuration management for AvatarStream
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Render  RenderConfig  `mapstructure:"render"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Avatar  AvatarConfig  `mapstructure:"avatar"`
}

// ServerConfig configures the HTTP/WebSocket listener
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig configures avatar asset loading
type ModelConfig struct {
	Path       string `mapstructure:"path"` // empty uses the built-in head
	WatchFiles bool   `mapstructure:"watch_files"`
}

// RenderConfig configures frame production
type RenderConfig struct {
	Width    int `mapstructure:"width"`
	Height   int `mapstructure:"height"`
	FPS      int `mapstructure:"fps"`
	PoolSize int `mapstructure:"pool_size"` // 0 picks from core count
}

// CacheConfig bounds the render caches
type CacheConfig struct {
	MaxEntries    int           `mapstructure:"max_entries"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SessionConfig configures streaming sessions
type SessionConfig struct {
	MaxSessions int `mapstructure:"max_sessions"`
}

// EncoderConfig configures the external video encoder
type EncoderConfig struct {
	BinaryPath string        `mapstructure:"binary_path"`
	Container  string        `mapstructure:"container"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AvatarConfig configures expression behavior
type AvatarConfig struct {
	IdleAnimation      bool          `mapstructure:"idle_animation"`
	ExpressionDuration time.Duration `mapstructure:"expression_duration"`
	LipSyncWeight      float64       `mapstructure:"lip_sync_weight"`
	EmotionWeight      float64       `mapstructure:"emotion_weight"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Path:       "",
			WatchFiles: true,
		},
		Render: RenderConfig{
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Cache: CacheConfig{
			MaxEntries:    100,
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			MaxSessions: 32,
		},
		Encoder: EncoderConfig{
			BinaryPath: "ffmpeg",
			Container:  "mp4",
			Timeout:    60 * time.Second,
		},
		Avatar: AvatarConfig{
			IdleAnimation:      true,
			ExpressionDuration: 500 * time.Millisecond,
			LipSyncWeight:      1.0,
			EmotionWeight:      0.7,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Set config paths
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".avatarstream")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("AVATARSTREAM")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".avatarstream")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("server", cfg.Server)
	viper.Set("model", cfg.Model)
	viper.Set("render", cfg.Render)
	viper.Set("cache", cfg.Cache)
	viper.Set("session", cfg.Session)
	viper.Set("encoder", cfg.Encoder)
	viper.Set("avatar", cfg.Avatar)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".avatarstream"), nil
}
