// Package config loads the relay's configuration from environment variables
// with optional flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "SIGNAL_RELAY_LISTEN_ADDR"
	envVarLogFormat       = "SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "SIGNAL_RELAY_MODE"

	// Connection-level auth.
	envVarAuthMode  = "AUTH_MODE"
	envVarAPIKey    = "API_KEY"
	envVarJWTSecret = "JWT_SECRET"

	// WebSocket hardening knobs.
	envVarMaxMessageBytes      = "MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_MESSAGES_PER_SECOND"
	envVarSendQueueSize        = "SEND_QUEUE_SIZE"
	envVarWSIdleTimeout        = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "WS_PING_INTERVAL"
)

const (
	DefaultListenAddr           = "127.0.0.1:5000"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultMaxMessageBytes      = 64 * 1024
	DefaultMaxMessagesPerSec    = 50
	DefaultSendQueueSize        = 64
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMode            Mode = ModeHub
)

// Mode selects the relay variant served on /ws.
type Mode string

const (
	// ModeHub is the group-scoped relay: clients join named groups and signals
	// fan out to group members.
	ModeHub Mode = "hub"
	// ModeBroadcast forwards every text frame verbatim to all other open
	// connections, with no groups and no validation.
	ModeBroadcast Mode = "broadcast"
)

func (m Mode) Valid() bool { return m == ModeHub || m == ModeBroadcast }

// AuthMode selects connection-level authentication at WebSocket upgrade time.
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeJWT    AuthMode = "jwt"
)

func (m AuthMode) Valid() bool {
	return m == AuthModeNone || m == AuthModeAPIKey || m == AuthModeJWT
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	Mode Mode

	AuthMode  AuthMode
	APIKey    string
	JWTSecret string

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueSize        int
	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration
}

// Load reads configuration from the environment, applies flag overrides from
// args, and validates the result.
func Load(args []string) (Config, error) {
	cfg := Config{
		ListenAddr:           getEnvDefault(envVarListenAddr, DefaultListenAddr),
		LogFormat:            LogFormatText,
		LogLevel:             slog.LevelInfo,
		ShutdownTimeout:      DefaultShutdownTimeout,
		Mode:                 DefaultMode,
		AuthMode:             AuthModeNone,
		APIKey:               os.Getenv(envVarAPIKey),
		JWTSecret:            os.Getenv(envVarJWTSecret),
		MaxMessageBytes:      DefaultMaxMessageBytes,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSec,
		SendQueueSize:        DefaultSendQueueSize,
		WSIdleTimeout:        DefaultWSIdleTimeout,
		WSPingInterval:       DefaultWSPingInterval,
	}

	if raw := os.Getenv(envVarLogFormat); raw != "" {
		f, err := parseLogFormat(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.LogFormat = f
	}
	if raw := os.Getenv(envVarLogLevel); raw != "" {
		lvl, err := parseLogLevel(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = lvl
	}
	if raw := os.Getenv(envVarMode); raw != "" {
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw := os.Getenv(envVarAuthMode); raw != "" {
		cfg.AuthMode = AuthMode(strings.ToLower(strings.TrimSpace(raw)))
	}

	var err error
	if cfg.ShutdownTimeout, err = getEnvDuration(envVarShutdownTimeout, cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessageBytes, err = getEnvInt64(envVarMaxMessageBytes, cfg.MaxMessageBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessagesPerSecond, err = getEnvInt(envVarMaxMessagesPerSecond, cfg.MaxMessagesPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.SendQueueSize, err = getEnvInt(envVarSendQueueSize, cfg.SendQueueSize); err != nil {
		return Config{}, err
	}
	if cfg.WSIdleTimeout, err = getEnvDuration(envVarWSIdleTimeout, cfg.WSIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval, err = getEnvDuration(envVarWSPingInterval, cfg.WSPingInterval); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("signal-relay", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "listen address (host:port)")
	mode := fs.String("mode", string(cfg.Mode), "relay mode: hub or broadcast")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(*mode)))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid mode %q (expected %q or %q)", c.Mode, ModeHub, ModeBroadcast)
	}
	if !c.AuthMode.Valid() {
		return fmt.Errorf("invalid auth mode %q (expected none, api_key, or jwt)", c.AuthMode)
	}
	if c.AuthMode == AuthModeAPIKey && c.APIKey == "" {
		return fmt.Errorf("%s=api_key requires %s", envVarAuthMode, envVarAPIKey)
	}
	if c.AuthMode == AuthModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("%s=jwt requires %s", envVarAuthMode, envVarJWTSecret)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxMessageBytes)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%s must be positive", envVarSendQueueSize)
	}
	if c.WSPingInterval > 0 && c.WSIdleTimeout > 0 && c.WSPingInterval >= c.WSIdleTimeout {
		return fmt.Errorf("%s must be shorter than %s", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	return nil
}

// NewLogger constructs the process logger from the configured format/level.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
