// Package config loads driver tuning parameters from YAML with environment
// variable substitution, and can hot-reload them on file changes.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level driver configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Health     HealthConfig     `yaml:"health"`
	API        APIConfig        `yaml:"api"`
	LogLevel   string           `yaml:"log_level"`
}

// ConnectionConfig tunes dialing and the framer's background pumps.
type ConnectionConfig struct {
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	ReadBufferSize       int           `yaml:"read_buffer_size"`
	FrameChannelCapacity int           `yaml:"frame_channel_capacity"`
}

// FetchConfig tunes the columnar transpose.
type FetchConfig struct {
	TransposeWorkers int           `yaml:"transpose_workers"`
	Timeout          time.Duration `yaml:"timeout"`
}

// HealthConfig tunes the liveness prober.
type HealthConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// APIConfig configures the introspection HTTP server.
type APIConfig struct {
	Bind   string `yaml:"bind"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// Redacted returns a copy of cfg safe to log: the API bearer key is masked
// (the DSN, which also carries a credential, is supplied separately at
// connect time and never stored here).
func (c Config) Redacted() Config {
	if c.API.APIKey != "" {
		c.API.APIKey = "REDACTED"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Connection.DialTimeout == 0 {
		cfg.Connection.DialTimeout = 10 * time.Second
	}
	if cfg.Connection.ReadBufferSize == 0 {
		cfg.Connection.ReadBufferSize = 8192
	}
	if cfg.Connection.FrameChannelCapacity == 0 {
		cfg.Connection.FrameChannelCapacity = 100
	}
	if cfg.Fetch.TransposeWorkers == 0 {
		cfg.Fetch.TransposeWorkers = 4
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Health.ProbeInterval == 0 {
		cfg.Health.ProbeInterval = 15 * time.Second
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.Connection.DialTimeout < 0 {
		return fmt.Errorf("connection.dial_timeout must not be negative")
	}
	if cfg.Connection.ReadBufferSize < 0 {
		return fmt.Errorf("connection.read_buffer_size must not be negative")
	}
	if cfg.Fetch.TransposeWorkers < 0 {
		return fmt.Errorf("fetch.transpose_workers must not be negative")
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:   path,
		callback: callback,
		watcher: w,
		stopCh:  make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
