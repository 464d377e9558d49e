package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Models struct {
	Text     string `yaml:"text"`
	Image    string `yaml:"image"`
	Document string `yaml:"document"`
	Wellness string `yaml:"wellness"`
	Health   string `yaml:"health"`
}

type Config struct {
	Listen string `yaml:"listen"`
	Debug  bool   `yaml:"debug"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Gemini struct {
		APIKey         string `yaml:"api_key"`
		TimeoutMs      int    `yaml:"timeout_ms"`
		PingIntervalMs int    `yaml:"ping_interval_ms"`
	} `yaml:"gemini"`

	Models Models `yaml:"models"`

	RateLimit struct {
		Enabled   bool `yaml:"enabled"`
		MaxTokens int  `yaml:"max_tokens"`
		PerMinute int  `yaml:"per_minute"`
	} `yaml:"rate_limit"`

	Limits struct {
		MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
		MaxHistoryTurns int   `yaml:"max_history_turns"`
	} `yaml:"limits"`

	Extract struct {
		TempDir string `yaml:"temp_dir"`
	} `yaml:"extract"`

	Safety struct {
		DefaultLocale string `yaml:"default_locale"`
	} `yaml:"safety"`
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutMs) * time.Millisecond
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Gemini.PingIntervalMs) * time.Millisecond
}

var (
	mu        sync.RWMutex
	current   = defaultConfig()
	cfgPath   string
	callbacks []func()
	watchOnce sync.Once
)

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Init loads .env, the YAML file at path (optional) and the process
// environment, then starts watching the file for changes.
func Init(path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %s", err)
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	mu.Lock()
	current = cfg
	cfgPath = path
	mu.Unlock()
	if path != "" {
		watchOnce.Do(func() { go watch(path) })
	}
	return nil
}

// Load reads a config without touching the process-wide state.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = ":7458"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Gemini.TimeoutMs <= 0 {
		cfg.Gemini.TimeoutMs = 60000
	}
	if cfg.Gemini.PingIntervalMs <= 0 {
		cfg.Gemini.PingIntervalMs = 15000
	}
	if cfg.Models.Text == "" {
		cfg.Models.Text = "gemini-1.5-flash"
	}
	if cfg.Models.Image == "" {
		cfg.Models.Image = "gemini-1.5-flash-latest"
	}
	if cfg.Models.Document == "" {
		cfg.Models.Document = "gemini-1.5-flash"
	}
	if cfg.Models.Wellness == "" {
		cfg.Models.Wellness = "gemini-1.5-flash"
	}
	if cfg.Models.Health == "" {
		cfg.Models.Health = "gemini-1.5-flash"
	}
	if cfg.RateLimit.MaxTokens <= 0 {
		cfg.RateLimit.MaxTokens = 60
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = 60
	}
	if cfg.Limits.MaxUploadBytes <= 0 {
		cfg.Limits.MaxUploadBytes = 20 << 20
	}
	// negative keeps the whole history
	if cfg.Limits.MaxHistoryTurns == 0 {
		cfg.Limits.MaxHistoryTurns = 50
	}
	if cfg.Safety.DefaultLocale == "" {
		cfg.Safety.DefaultLocale = "US"
	}
}

func applyEnvOverrides(cfg *Config) {
	// GEMINI_API_KEY wins over GOOGLE_API_KEY, matching the SDK lookup order.
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_LISTEN")); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_DEBUG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gemini.TimeoutMs = n
		}
	}
}

func validate(cfg *Config) error {
	if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level %q: %w", cfg.Logging.Level, err)
	}
	if cfg.Extract.TempDir != "" {
		if fi, err := os.Stat(cfg.Extract.TempDir); err != nil || !fi.IsDir() {
			return fmt.Errorf("extract.temp_dir %q is not a directory", cfg.Extract.TempDir)
		}
	}
	return nil
}

func ReadConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func GetLogLevel() log.Level {
	lvl, err := log.ParseLevel(ReadConfig().Logging.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func GetIsDebug() bool {
	return ReadConfig().Debug
}

func AddConfigChangeCallback(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	callbacks = append(callbacks, fn)
}

func reload() {
	mu.RLock()
	path := cfgPath
	mu.RUnlock()
	cfg, err := Load(path)
	if err != nil {
		log.Errorf("reload config failed, keeping previous one: %s", err)
		return
	}
	mu.Lock()
	current = cfg
	fns := append([]func(){}, callbacks...)
	mu.Unlock()
	log.Infof("config reloaded from %s", path)
	for _, fn := range fns {
		fn()
	}
}

// watch follows the directory rather than the file so editors that replace
// the file on save are still noticed.
func watch(path string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("config watcher: %s", err)
		return
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		log.Errorf("config watcher: %s", err)
		return
	}
	name := filepath.Clean(path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher: %s", err)
		}
	}
}
