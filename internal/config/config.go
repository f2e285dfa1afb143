package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/immersive/state"
)

// Config is the tasks TUI configuration.
type Config struct {
	TasksFile    string
	LogFile      string
	LogLevel     slog.Level
	MetricsAddr  string
	AutosaveSecs int
	State        state.Config
}

const (
	defaultConfigPath = "~/.config/immersive/config.toml"
	defaultTasksFile  = "~/.local/share/immersive/tasks.yaml"
	defaultLogFile    = "~/.local/share/immersive/tasks.log"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		TasksFile: mustExpand(defaultTasksFile),
		LogFile:   mustExpand(defaultLogFile),
		LogLevel:  slog.LevelInfo,
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		TasksFile     string `toml:"tasks_file"`
		LogFile       string `toml:"log_file"`
		LogLevel      string `toml:"log_level"`
		MetricsAddr   string `toml:"metrics_addr"`
		AutosaveSecs  int    `toml:"autosave_secs"`
		Name          string `toml:"name"`
		SelectDelayMs int    `toml:"select_delay_ms"`
		IdleTimeoutMs int    `toml:"idle_timeout_ms"`
		FlushMode     string `toml:"flush_mode"`
		FlushDelayMs  int    `toml:"flush_delay_ms"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.TasksFile); v != "" {
		cfg.TasksFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("parse config: log_level: %w", err)
		}
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	if raw.AutosaveSecs > 0 {
		cfg.AutosaveSecs = raw.AutosaveSecs
	}

	cfg.State = state.Config{
		Name:          strings.TrimSpace(raw.Name),
		SelectDelayMs: raw.SelectDelayMs,
		IdleTimeoutMs: raw.IdleTimeoutMs,
		FlushMode:     strings.TrimSpace(raw.FlushMode),
		FlushDelayMs:  raw.FlushDelayMs,
	}
	if _, err := cfg.State.Options(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// StateOptions returns the state container options described by the config.
func (c Config) StateOptions() []state.Option {
	opts, err := c.State.Options()
	if err != nil {
		// Load already validated the config; a hand-built one falls back to
		// defaults.
		return nil
	}
	return opts
}

// ExpandPath resolves a leading tilde and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
