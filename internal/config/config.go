// Package config loads application configuration with viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Display    DisplayConfig    `mapstructure:"display"`
	History    HistoryConfig    `mapstructure:"history"`
}

type GeneralConfig struct {
	RestoreSession     bool `mapstructure:"restore_session"`
	CloseConnOnLastTab bool `mapstructure:"close_conn_on_last_tab"`
	ConfirmQuit        bool `mapstructure:"confirm_quit"`
}

type PaginationConfig struct {
	PageSize          int `mapstructure:"page_size"`
	PrefetchPages     int `mapstructure:"prefetch_pages"`
	LoadThreshold     int `mapstructure:"load_threshold"`
	PrefetchThreshold int `mapstructure:"prefetch_threshold"`
	MaxLoadedPages    int `mapstructure:"max_loaded_pages"`
	TrimDistancePages int `mapstructure:"trim_distance_pages"`
	// MaxResidentRows is a hard cap, not a target; raise it only knowingly.
	MaxResidentRows int `mapstructure:"max_resident_rows"`
}

type DisplayConfig struct {
	HeaderVisible bool `mapstructure:"header_visible"`
	StatusVisible bool `mapstructure:"status_visible"`
	MinColWidth   int  `mapstructure:"min_col_width"`
	MaxColWidth   int  `mapstructure:"max_col_width"`
}

type HistoryConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxEntries int  `mapstructure:"max_entries"`
}

// GetDefaults returns a Config with all default values.
func GetDefaults() *Config {
	return &Config{
		General: GeneralConfig{
			RestoreSession:     true,
			CloseConnOnLastTab: false,
			ConfirmQuit:        true,
		},
		Pagination: PaginationConfig{
			PageSize:          1000,
			PrefetchPages:     2,
			LoadThreshold:     50,
			PrefetchThreshold: 1000,
			MaxLoadedPages:    5,
			TrimDistancePages: 2,
			MaxResidentRows:   1000000,
		},
		Display: DisplayConfig{
			HeaderVisible: true,
			StatusVisible: true,
			MinColWidth:   4,
			MaxColWidth:   40,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
	}
}

// Load loads configuration from the user config directory, falling back to
// defaults when no file exists.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "lazydb"))
	}
	v.AddConfigPath(".")

	v.SetDefault("general.restore_session", true)
	v.SetDefault("general.close_conn_on_last_tab", false)
	v.SetDefault("general.confirm_quit", true)
	v.SetDefault("pagination.page_size", 1000)
	v.SetDefault("pagination.prefetch_pages", 2)
	v.SetDefault("pagination.load_threshold", 50)
	v.SetDefault("pagination.prefetch_threshold", 1000)
	v.SetDefault("pagination.max_loaded_pages", 5)
	v.SetDefault("pagination.trim_distance_pages", 2)
	v.SetDefault("pagination.max_resident_rows", 1000000)
	v.SetDefault("display.header_visible", true)
	v.SetDefault("display.status_visible", true)
	v.SetDefault("display.min_col_width", 4)
	v.SetDefault("display.max_col_width", 40)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.max_entries", 1000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// GetConfigPath returns the user config directory path.
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lazydb"), nil
}
