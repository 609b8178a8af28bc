// Package config resolves runtime settings for the relay and the chat client.
//
// Sources are layered, later ones winning: built-in defaults, an optional TOML
// file, a .env file (never overriding variables already exported), and process
// environment variables. Command flags are applied on top by the caller.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	appDir             = "ragchat"
	defaultListen      = ":3000"
	defaultRelayURL    = "http://localhost:3000"
	defaultWarmup      = "__ping__"
	defaultLogLevel    = "info"
	sessionFileName    = "session.json"
	configFileName     = "config.toml"
	defaultEnvFileName = ".env"
)

// Environment variables consulted by Load.
const (
	EnvBackendURL       = "BACKEND_URL"
	EnvLegacyBackendURL = "NEXT_PUBLIC_BACKEND_URL"
	EnvListen           = "RAGCHAT_LISTEN"
	EnvRelayURL         = "RAGCHAT_RELAY_URL"
	EnvSessionFile      = "RAGCHAT_SESSION_FILE"
	EnvWarmupMessage    = "RAGCHAT_WARMUP_MESSAGE"
	EnvLogLevel         = "RAGCHAT_LOG_LEVEL"
	EnvLogFile          = "RAGCHAT_LOG_FILE"
)

// ErrMissingBackendURL is returned by RequireBackend when no backend is configured.
var ErrMissingBackendURL = errors.New("backend URL is not configured (set BACKEND_URL or backend_url)")

// Config is the complete ragchat configuration.
type Config struct {
	// BackendURL is the RAG backend base URL; requests go to BackendURL + "/chat".
	BackendURL string `toml:"backend_url"`
	// Listen is the relay's bind address.
	Listen string `toml:"listen"`
	// RelayURL is where the chat client reaches the relay.
	RelayURL string `toml:"relay_url"`
	// SessionFile persists the session identifier.
	SessionFile string `toml:"session_file"`
	// WarmupMessage is the sentinel sent once per load; empty disables the probe.
	WarmupMessage string `toml:"warmup_message"`
	// RequestTimeout bounds outbound calls; zero means unbounded.
	RequestTimeout time.Duration `toml:"request_timeout"`

	Log LogConfig `toml:"log"`
	UI  UIConfig  `toml:"ui"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `toml:"level"`
	// File receives logs (rotated) when set.
	File string `toml:"file"`
}

// UIConfig controls terminal rendering.
type UIConfig struct {
	Markdown  bool `toml:"markdown"`
	AltScreen bool `toml:"alt_screen"`
}

// Options tells Load where to look.
type Options struct {
	// Path is the TOML file. Empty means DefaultPath, which may be absent.
	Path string
	// EnvFile is loaded with godotenv when present. Empty means ".env".
	EnvFile string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:        defaultListen,
		RelayURL:      defaultRelayURL,
		SessionFile:   filepath.Join(userDir(), sessionFileName),
		WarmupMessage: defaultWarmup,
		Log:           LogConfig{Level: defaultLogLevel},
		UI:            UIConfig{Markdown: true, AltScreen: true},
	}
}

// DefaultPath is the config file consulted when none is given.
func DefaultPath() string {
	return filepath.Join(userDir(), configFileName)
}

func userDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, appDir)
}

// Load layers defaults, the TOML file, the .env file and the environment.
// An explicitly named TOML file must exist.
func Load(opts Options) (Config, error) {
	cfg := Default()

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFileName
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrapf(err, "load env file %s", envFile)
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.BackendURL = v
	} else if v := os.Getenv(EnvLegacyBackendURL); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvRelayURL); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv(EnvSessionFile); v != "" {
		c.SessionFile = v
	}
	if v, ok := os.LookupEnv(EnvWarmupMessage); ok {
		c.WarmupMessage = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
}

func (c *Config) normalize() {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.RelayURL = strings.TrimRight(strings.TrimSpace(c.RelayURL), "/")
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// SetBackendURL applies a flag override.
func (c *Config) SetBackendURL(url string) {
	c.BackendURL = url
	c.normalize()
}

// SetRelayURL applies a flag override.
func (c *Config) SetRelayURL(url string) {
	c.RelayURL = url
	c.normalize()
}

// RequireBackend reports ErrMissingBackendURL when no backend is set.
func (c Config) RequireBackend() error {
	if c.BackendURL == "" {
		return ErrMissingBackendURL
	}
	return nil
}
