package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultConfigFile is looked up in the working directory when --config is not given.
const DefaultConfigFile = "fraudviz.yaml"

// EnvPrefix prefixes every environment override, e.g. APP_HTTP_LISTEN_ADDR.
const EnvPrefix = "APP_"

// Snapshot store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// Config holds runtime configuration for the visuals service and CLI.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Session  SessionConfig  `koanf:"session"`
	Backend  BackendConfig  `koanf:"backend"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Theme    ThemeConfig    `koanf:"theme"`
	Log      LogConfig      `koanf:"log"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

type HTTPConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type SessionConfig struct {
	Secret string `koanf:"secret"`
	Name   string `koanf:"name"`
	Secure bool   `koanf:"secure"`
}

// BackendConfig points at the scoring API that owns uploads and history.
type BackendConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	Cookie        string        `koanf:"cookie"`
	SessionCookie string        `koanf:"session_cookie"`
	PollInterval  time.Duration `koanf:"poll_interval"`
}

// SnapshotConfig selects where the local fallback copy of each viewer's state lives.
type SnapshotConfig struct {
	Driver        string        `koanf:"driver"`
	SQLitePath    string        `koanf:"sqlite_path"`
	MySQLHost     string        `koanf:"mysql_host"`
	MySQLPort     int           `koanf:"mysql_port"`
	MySQLUser     string        `koanf:"mysql_user"`
	MySQLPassword string        `koanf:"mysql_password"`
	MySQLName     string        `koanf:"mysql_name"`
	ConnTimeout   time.Duration `koanf:"conn_timeout"`
	QueryTimeout  time.Duration `koanf:"query_timeout"`
	Retention     time.Duration `koanf:"retention"`
}

type ThemeConfig struct {
	File string `koanf:"file"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.listen_addr":        ":8080",
		"http.read_timeout":       10 * time.Second,
		"http.write_timeout":      20 * time.Second,
		"http.shutdown_timeout":   10 * time.Second,
		"session.name":            "fraudviz",
		"session.secret":          "",
		"session.secure":          false,
		"backend.enabled":         false,
		"backend.base_url":        "http://127.0.0.1:5000",
		"backend.timeout":         5 * time.Second,
		"backend.cookie":          "",
		"backend.session_cookie":  "session",
		"backend.poll_interval":   30 * time.Second,
		"snapshot.driver":         DriverSQLite,
		"snapshot.sqlite_path":    "fraudviz.db",
		"snapshot.mysql_host":     "127.0.0.1",
		"snapshot.mysql_port":     3306,
		"snapshot.mysql_user":     "fraudviz",
		"snapshot.mysql_password": "",
		"snapshot.mysql_name":     "fraudviz",
		"snapshot.conn_timeout":   5 * time.Second,
		"snapshot.query_timeout":  5 * time.Second,
		"snapshot.retention":      30 * 24 * time.Hour,
		"theme.file":              "",
		"log.level":               "info",
		"log.format":              "text",
	}
}

// Load layers configuration: defaults, then the YAML file, then APP_* environment
// variables, then flags that were explicitly set. KEY=VALUE env files under
// /etc/default are applied first as environment defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	loadEnvDefaultsFromFiles()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = used
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	cfg.Snapshot.Driver = strings.ToLower(strings.TrimSpace(cfg.Snapshot.Driver))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"listen":          "http.listen_addr",
	"backend-url":     "backend.base_url",
	"backend-enabled": "backend.enabled",
	"backend-cookie":  "backend.cookie",
	"poll-interval":   "backend.poll_interval",
	"snapshot-driver": "snapshot.driver",
	"snapshot-db":     "snapshot.sqlite_path",
	"theme":           "theme.file",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// envKey maps APP_HTTP_LISTEN_ADDR to http.listen_addr: the first underscore after the
// prefix separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.ListenAddr) == "" {
		errs = append(errs, errors.New("http.listen_addr is required"))
	}
	switch c.Snapshot.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Snapshot.SQLitePath) == "" {
			errs = append(errs, errors.New("snapshot.sqlite_path is required for the sqlite driver"))
		}
	case DriverMySQL:
		if c.Snapshot.MySQLHost == "" || c.Snapshot.MySQLName == "" {
			errs = append(errs, errors.New("snapshot.mysql_host and snapshot.mysql_name are required for the mysql driver"))
		}
	case DriverNone, "":
	default:
		errs = append(errs, fmt.Errorf("snapshot.driver %q is not one of sqlite, mysql, none", c.Snapshot.Driver))
	}
	if c.Backend.Enabled {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SnapshotEnabled reports whether a local snapshot store is configured.
func (c Config) SnapshotEnabled() bool {
	return c.Snapshot.Driver != DriverNone && c.Snapshot.Driver != ""
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}

// MySQLDSN returns a mysql driver DSN with safe defaults for TCP access.
func (c SnapshotConfig) MySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("timeout", c.ConnTimeout.String())
	params.Set("readTimeout", c.QueryTimeout.String())
	params.Set("writeTimeout", c.QueryTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort, c.MySQLName, params.Encode())
}

// loadEnvDefaultsFromFiles applies KEY=VALUE files as environment defaults. Variables
// already set in the process environment win.
func loadEnvDefaultsFromFiles() {
	candidates := []string{"./fraudviz.env", "/etc/default/fraudviz"}
	if explicit := strings.TrimSpace(os.Getenv("APP_ENV_FILE")); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		candidates = append(candidates, filepath.Join(credDir, "fraudviz-secrets"))
	}
	for _, candidate := range candidates {
		abs := candidate
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				abs = filepath.Join(wd, candidate)
			}
		}
		_ = applyEnvDefaultsFromFile(abs)
	}
}

func applyEnvDefaultsFromFile(path string) error {
	f, err := os.Open(path) // #nosec G304 -- fixed candidate list
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key == "" {
			continue
		}

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}

	return scanner.Err()
}
