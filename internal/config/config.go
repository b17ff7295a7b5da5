package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pchat/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session"`
	Server         Server  `toml:"server"`
	Profile        Profile `toml:"profile"`
	Log            Log     `toml:"log"`
	Dev            Dev     `toml:"dev"`
}

// Server locates the REST history store and the live channel endpoint.
type Server struct {
	BaseURL        string        `toml:"base_url"`
	WSURL          string        `toml:"ws_url"`
	Token          string        `toml:"token"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// Profile identifies the viewer and how dates are shown to them.
type Profile struct {
	ViewerID int64  `toml:"viewer_id"`
	Locale   string `toml:"locale"`
	Timezone string `toml:"timezone"`
}

// Log controls the zap level.
type Log struct {
	Level string `toml:"level"`
}

// Dev configures the local development server.
type Dev struct {
	Addr      string `toml:"addr"`
	DBPath    string `toml:"db_path"`
	JWTSecret string `toml:"jwt_secret"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{
			BaseURL:        "http://localhost:8080",
			WSURL:          "ws://localhost:8080/ws",
			RequestTimeout: 10 * time.Second,
		},
		Profile: Profile{
			Locale:   "ru_RU",
			Timezone: "Local",
		},
		Log: Log{Level: "info"},
		Dev: Dev{Addr: ":8080"},
	}
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Location resolves the profile timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Profile.Timezone == "" || c.Profile.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Profile.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
