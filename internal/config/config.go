// Package config loads user settings with viper and persists them to the
// platform data directory with restrictive permissions.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("config")

// Settings holds everything the user can configure: codec/resolution
// preferences, the chosen zone, and feature toggles.
type Settings struct {
	Codec         string        `mapstructure:"codec" json:"codec"`
	Resolution    string        `mapstructure:"resolution" json:"resolution"` // "1920x1080"
	FPS           int           `mapstructure:"fps" json:"fps"`
	BitrateCapBps int           `mapstructure:"bitrate_cap_bps" json:"bitrateCapBps"`
	HDR           bool          `mapstructure:"hdr" json:"hdr"`
	Zone          string        `mapstructure:"zone" json:"zone"`
	AutoSelect    bool          `mapstructure:"auto_select" json:"autoSelect"`
	AFKDefeat     bool          `mapstructure:"afk_defeat" json:"afkDefeat"`
	LogLevel      string        `mapstructure:"log_level" json:"logLevel"`
	Proxy         ProxySettings `mapstructure:"proxy" json:"proxy"`
}

// ProxySettings configures an outbound proxy for the session-allocation
// requests this client sends; the signaling websocket connects directly.
type ProxySettings struct {
	Enabled     bool     `mapstructure:"enabled" json:"enabled"`
	Type        string   `mapstructure:"type" json:"type"` // "http", "https", "socks5"
	Host        string   `mapstructure:"host" json:"host"`
	Port        int      `mapstructure:"port" json:"port"`
	Username    string   `mapstructure:"username" json:"username,omitempty"`
	Password    string   `mapstructure:"password" json:"password,omitempty"`
	BypassLocal bool     `mapstructure:"bypass_local" json:"bypassLocal"`
	BypassList  []string `mapstructure:"bypass_list" json:"bypassList"`
}

// Default returns the built-in defaults applied before any persisted
// settings or environment overrides are read.
func Default() *Settings {
	return &Settings{
		Codec:         "h264",
		Resolution:    "1920x1080",
		FPS:           60,
		BitrateCapBps: 35_000_000,
		HDR:           false,
		Zone:          "",
		AutoSelect:    true,
		AFKDefeat:     false,
		LogLevel:      "info",
		Proxy: ProxySettings{
			Enabled:     false,
			Type:        "http",
			Port:        8080,
			BypassLocal: true,
			BypassList:  []string{"localhost", "127.0.0.1", "*.local"},
		},
	}
}

// Load reads settings.json from the platform data directory, applying
// OPENNOW_-prefixed environment overrides on top.
func Load() (*Settings, error) {
	s := Default()

	viper.SetConfigName("settings")
	viper.SetConfigType("json")
	viper.AddConfigPath(DataDir())

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OPENNOW")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read settings: %w", err)
		}
	}

	if err := viper.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("config: unmarshal settings: %w", err)
	}
	return s, nil
}

// Save writes settings.json back to the data directory, owner-only.
func Save(s *Settings) error {
	if err := os.MkdirAll(DataDir(), 0700); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}

	viper.Set("codec", s.Codec)
	viper.Set("resolution", s.Resolution)
	viper.Set("fps", s.FPS)
	viper.Set("bitrate_cap_bps", s.BitrateCapBps)
	viper.Set("hdr", s.HDR)
	viper.Set("zone", s.Zone)
	viper.Set("auto_select", s.AutoSelect)
	viper.Set("afk_defeat", s.AFKDefeat)
	viper.Set("log_level", s.LogLevel)
	viper.Set("proxy", s.Proxy)

	path := filepath.Join(DataDir(), "settings.json")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	return os.Chmod(path, 0600)
}

// DataDir returns "<user data dir>/opennow".
func DataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		log.Warn("could not resolve user config dir, falling back to home", "error", err)
		home, _ := os.UserHomeDir()
		base = home
	}
	return filepath.Join(base, "opennow")
}
