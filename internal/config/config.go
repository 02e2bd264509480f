// Package config loads evrelay's configuration from flags, EVRELAY_*
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/die-net/evrelay/internal/dialer"
	"github.com/die-net/evrelay/internal/endpoint"
	"github.com/die-net/evrelay/internal/logging"
	"github.com/die-net/evrelay/internal/relay"
)

// EnvPrefix prefixes environment variables; --high-water is read from
// EVRELAY_HIGH_WATER.
const EnvPrefix = "EVRELAY"

// ErrInvalidConfig wraps every configuration error. It is fatal at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Listen   string
	Upstream string
	// UpstreamAddr is Upstream resolved once at startup when dialing
	// directly; proxies resolve it themselves.
	UpstreamAddr string
	Via          string

	HighWater     int
	LowWater      int
	DrainTimeout  time.Duration
	EagerUpstream bool
	ReadSize      int

	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig
	ReusePort          bool

	ShutdownTimeout time.Duration
	DebugListen     string

	Log logging.Config
}

// NewFlagSet defines every flag with its default.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("listen", "", "Listen address (host:port, or a bare port for all interfaces)")
	fs.String("upstream", "", "Upstream host:port every connection is relayed to")
	fs.String("via", "direct://", "How to reach the upstream: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")

	fs.Int("high-water", relay.DefaultHighWater, "Pause reading a side once this many bytes are queued toward its peer")
	fs.Int("low-water", relay.DefaultLowWater, "Resume reading once the peer's queue drains to this many bytes")
	fs.Duration("drain-timeout", 0, "Force-close a leg still flushing this long after its peer closed (0 waits forever)")
	fs.Bool("eager-upstream", false, "Read from the upstream immediately instead of after the first client byte")
	fs.Int("read-size", endpoint.DefaultReadSize, "Socket read and write chunk size in bytes")

	fs.Duration("dial-timeout", 10*time.Second, "Timeout for upstream DNS lookup and TCP connect")
	fs.Duration("negotiation-timeout", 10*time.Second, "Timeout for proxy negotiation when --via is set")
	fs.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.Bool("reuse-port", false, "Set SO_REUSEPORT on the listening socket")

	fs.Duration("shutdown-timeout", 10*time.Second, "How long to let active connections drain on shutdown")
	fs.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")

	fs.String("log-level", "info", "Log level: debug|info|warn|error")
	fs.String("log-format", "console", "Log format: console|json")
	fs.String("log-file", "", "Write logs to this file with rotation instead of stderr")
	fs.Int("log-max-size", 100, "Rotate the log file after this many megabytes")
	fs.Int("log-max-backups", 5, "Rotated log files to keep")
	fs.Int("log-max-age", 0, "Delete rotated log files older than this many days (0 keeps them)")
	fs.Bool("development", false, "Development logging; internal errors panic")

	fs.String("config", "", "Optional config file (yaml, toml or json) with the same keys as the flags")

	return fs
}

// Load parses args (without the program name). Up to two positional
// arguments override --listen and --upstream, in that order. A returned
// pflag.ErrHelp means usage was requested.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: config file: %v", ErrInvalidConfig, err)
		}
	}

	switch pos := fs.Args(); len(pos) {
	case 2:
		v.Set("upstream", pos[1])
		fallthrough
	case 1:
		v.Set("listen", pos[0])
	case 0:
	default:
		return nil, fmt.Errorf("%w: expected at most 2 arguments, got %d", ErrInvalidConfig, len(pos))
	}

	cfg := &Config{
		Listen:             v.GetString("listen"),
		Upstream:           v.GetString("upstream"),
		Via:                v.GetString("via"),
		HighWater:          v.GetInt("high-water"),
		LowWater:           v.GetInt("low-water"),
		DrainTimeout:       v.GetDuration("drain-timeout"),
		EagerUpstream:      v.GetBool("eager-upstream"),
		ReadSize:           v.GetInt("read-size"),
		DialTimeout:        v.GetDuration("dial-timeout"),
		NegotiationTimeout: v.GetDuration("negotiation-timeout"),
		ReusePort:          v.GetBool("reuse-port"),
		ShutdownTimeout:    v.GetDuration("shutdown-timeout"),
		DebugListen:        v.GetString("debug-listen"),
		Log: logging.Config{
			Level:       v.GetString("log-level"),
			Format:      v.GetString("log-format"),
			File:        v.GetString("log-file"),
			MaxSizeMB:   v.GetInt("log-max-size"),
			MaxBackups:  v.GetInt("log-max-backups"),
			MaxAgeDays:  v.GetInt("log-max-age"),
			Development: v.GetBool("development"),
		},
	}

	ka, err := ParseTCPKeepAlive(v.GetString("tcp-keepalive"))
	if err != nil {
		return nil, fmt.Errorf("%w: --tcp-keepalive: %v", ErrInvalidConfig, err)
	}
	cfg.KeepAlive = ka

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	listen, err := ParseListenAddr(c.Listen)
	if err != nil {
		return fmt.Errorf("%w: --listen %q: %v", ErrInvalidConfig, c.Listen, err)
	}
	c.Listen = listen

	upstream, err := ParseUpstreamAddr(c.Upstream)
	if err != nil {
		return fmt.Errorf("%w: --upstream %q: %v", ErrInvalidConfig, c.Upstream, err)
	}
	c.Upstream = upstream
	c.UpstreamAddr = upstream

	if strings.EqualFold(strings.TrimSuffix(c.Via, "://"), "direct") {
		addr, err := net.ResolveTCPAddr("tcp", upstream)
		if err != nil {
			return fmt.Errorf("%w: --upstream %q: %v", ErrInvalidConfig, c.Upstream, err)
		}
		c.UpstreamAddr = addr.String()
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.RelayConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ReadSize <= 0 {
		return fmt.Errorf("%w: --read-size must be > 0", ErrInvalidConfig)
	}
	if c.DialTimeout < 0 || c.NegotiationTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		HighWater:     c.HighWater,
		LowWater:      c.LowWater,
		DrainTimeout:  c.DrainTimeout,
		EagerUpstream: c.EagerUpstream,
	}
}

func (c *Config) DialerConfig() dialer.Config {
	return dialer.Config{
		DialTimeout:        c.DialTimeout,
		NegotiationTimeout: c.NegotiationTimeout,
		KeepAlive:          c.KeepAlive,
	}
}

func (c *Config) EndpointConfig() endpoint.Config {
	return endpoint.Config{ReadSize: c.ReadSize}
}
