package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "clipkeeper"

type Config struct {
	Hotkey  HotkeyConfig  `toml:"hotkey"`
	Guard   GuardConfig   `toml:"guard"`
	Paste   PasteConfig   `toml:"paste"`
	History HistoryConfig `toml:"history"`
	Web     WebConfig     `toml:"web"`
	Tray    TrayConfig    `toml:"tray"`
	Log     LogConfig     `toml:"log"`
}

type HotkeyConfig struct {
	Toggle    string `toml:"toggle"`
	Favorites string `toml:"favorites"`
}

// GuardConfig controls the inert key tapped after a suppressed Win combo
// so the Start menu does not open on Win release.
type GuardConfig struct {
	Enabled        bool   `toml:"enabled"`
	Key            string `toml:"key"`
	ReleaseDelayMs int    `toml:"release_delay_ms"`
}

type PasteConfig struct {
	HideTimeoutMs  int `toml:"hide_timeout_ms"`
	WaitTimeoutMs  int `toml:"wait_timeout_ms"`
	WriteAttempts  int `toml:"write_attempts"`
	WriteBackoffMs int `toml:"write_backoff_ms"`
}

type HistoryConfig struct {
	MaxItems               int `toml:"max_items"`
	MaxDays                int `toml:"max_days"`
	MaxItemBytes           int `toml:"max_item_bytes"`
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`

	// Paused stops recording new clipboard changes
	Paused bool `toml:"paused"`
}

type WebConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type TrayConfig struct {
	Enabled bool `toml:"enabled"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Toggle:    "win+v",
			Favorites: "win+alt+v",
		},
		Guard: GuardConfig{
			Enabled:        true,
			Key:            "rshift",
			ReleaseDelayMs: 150,
		},
		Paste: PasteConfig{
			HideTimeoutMs:  500,
			WaitTimeoutMs:  500,
			WriteAttempts:  3,
			WriteBackoffMs: 100,
		},
		History: HistoryConfig{
			MaxItems:               1000,
			MaxDays:                30,
			MaxItemBytes:           10 << 20,
			CleanupIntervalMinutes: 10,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    7461,
		},
		Tray: TrayConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Default returns a copy of the default configuration
func Default() *Config {
	return defaultConfig()
}

// Dir returns the application data directory, creating it if needed
func Dir() (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		home, err := os.UserConfigDir()
		if err != nil {
			home = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		appData = home
	}

	configDir := filepath.Join(appData, appName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadFile loads the configuration from path.
// If the file doesn't exist, it creates it with default values.
func LoadFile(path string) (*Config, error) {
	// If config doesn't exist, create it with defaults
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Load existing config over the defaults so missing keys keep their default
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

func (c *Config) validate() error {
	if _, err := ParseHotkey(c.Hotkey.Toggle); err != nil {
		return fmt.Errorf("hotkey.toggle: %w", err)
	}
	if c.Hotkey.Favorites != "" {
		if _, err := ParseHotkey(c.Hotkey.Favorites); err != nil {
			return fmt.Errorf("hotkey.favorites: %w", err)
		}
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port out of range: %d", c.Web.Port)
	}

	defaults := defaultConfig()
	if c.Guard.Key == "" {
		c.Guard.Key = defaults.Guard.Key
	}
	if c.Guard.ReleaseDelayMs <= 0 {
		c.Guard.ReleaseDelayMs = defaults.Guard.ReleaseDelayMs
	}
	if c.Paste.HideTimeoutMs <= 0 {
		c.Paste.HideTimeoutMs = defaults.Paste.HideTimeoutMs
	}
	if c.Paste.WaitTimeoutMs <= 0 {
		c.Paste.WaitTimeoutMs = defaults.Paste.WaitTimeoutMs
	}
	if c.Paste.WriteAttempts <= 0 {
		c.Paste.WriteAttempts = defaults.Paste.WriteAttempts
	}
	if c.Paste.WriteBackoffMs < 0 {
		c.Paste.WriteBackoffMs = defaults.Paste.WriteBackoffMs
	}
	if c.History.CleanupIntervalMinutes <= 0 {
		c.History.CleanupIntervalMinutes = defaults.History.CleanupIntervalMinutes
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (g GuardConfig) ReleaseDelay() time.Duration { return ms(g.ReleaseDelayMs) }

func (p PasteConfig) HideTimeout() time.Duration  { return ms(p.HideTimeoutMs) }
func (p PasteConfig) WaitTimeout() time.Duration  { return ms(p.WaitTimeoutMs) }
func (p PasteConfig) WriteBackoff() time.Duration { return ms(p.WriteBackoffMs) }

// MaxAge is the retention window; zero keeps items forever
func (h HistoryConfig) MaxAge() time.Duration {
	return time.Duration(h.MaxDays) * 24 * time.Hour
}

func (h HistoryConfig) CleanupInterval() time.Duration {
	return time.Duration(h.CleanupIntervalMinutes) * time.Minute
}

// KeyCombo represents a parsed keyboard combination
type KeyCombo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Win   bool
	Key   string
}

// ParseHotkey parses a hotkey combo string like "win+v" or "win+alt+v"
func ParseHotkey(combo string) (KeyCombo, error) {
	var kc KeyCombo
	if strings.TrimSpace(combo) == "" {
		return kc, fmt.Errorf("empty hotkey combo")
	}
	parts := strings.Split(strings.ToLower(combo), "+")

	for i, part := range parts {
		part = strings.TrimSpace(part)

		// Check if this part is a modifier
		isModifier := false
		switch part {
		case "ctrl", "control":
			kc.Ctrl = true
			isModifier = true
		case "shift":
			kc.Shift = true
			isModifier = true
		case "alt":
			kc.Alt = true
			isModifier = true
		case "win", "windows":
			kc.Win = true
			isModifier = true
		}

		// If it's not a modifier and it's the last part, it's the key
		if !isModifier {
			if i == len(parts)-1 && part != "" {
				kc.Key = part
			} else {
				return kc, fmt.Errorf("unknown modifier: %s", part)
			}
		}
	}

	// The hook matches on a key press, so modifier-only combos are rejected
	if kc.Key == "" {
		return kc, fmt.Errorf("no key specified in combo %q", combo)
	}
	if !kc.Ctrl && !kc.Shift && !kc.Alt && !kc.Win {
		return kc, fmt.Errorf("no modifiers specified in combo %q", combo)
	}

	return kc, nil
}
