// Package config loads settings from defaults, an optional YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// EnvPrefix prefixes every environment variable read. Nested keys are
// separated by a double underscore, e.g. BLUNDERFIX_DB__PATH.
const EnvPrefix = "BLUNDERFIX_"

type Config struct {
	DB     DBConfig     `koanf:"db"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	Review ReviewConfig `koanf:"review"`
	Filter FilterConfig `koanf:"filter"`
	Import ImportConfig `koanf:"import"`
	Sync   SyncConfig   `koanf:"sync"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ReviewConfig struct {
	SessionBreakMinutes int `koanf:"session_break_minutes" validate:"min=1"`
	DayWindowDays       int `koanf:"day_window_days" validate:"min=1"`
}

// FilterConfig is the default severity filter applied when a request does
// not name one.
type FilterConfig struct {
	Inaccuracy  bool `koanf:"inaccuracy"`
	Mistake     bool `koanf:"mistake"`
	Blunder     bool `koanf:"blunder"`
	ExcludeLost bool `koanf:"exclude_lost"`
}

// Severity converts the configured filter to its domain form.
func (f FilterConfig) Severity() domain.SeverityFilter {
	return domain.SeverityFilter{
		Inaccuracy:  f.Inaccuracy,
		Mistake:     f.Mistake,
		Blunder:     f.Blunder,
		ExcludeLost: f.ExcludeLost,
	}
}

type ImportConfig struct {
	LichessMaxGames  int           `koanf:"lichess_max_games" validate:"min=1"`
	ChessComMaxGames int           `koanf:"chesscom_max_games" validate:"min=1"`
	HTTPTimeout      time.Duration `koanf:"http_timeout" validate:"min=1s"`
	LichessBaseURL   string        `koanf:"lichess_base_url" validate:"required,url"`
	ChessComBaseURL  string        `koanf:"chesscom_base_url" validate:"required,url"`
	UserAgent        string        `koanf:"user_agent"`
}

type SyncConfig struct {
	ReposDir    string         `koanf:"repos_dir" validate:"required"`
	Parallelism int            `koanf:"parallelism" validate:"min=1"`
	Sources     []SourceConfig `koanf:"sources" validate:"dive"`
}

// SourceConfig is a PGN collection: a local directory or a git URL. Games
// are filed under Username, or under the file's most frequent player.
type SourceConfig struct {
	Path     string `koanf:"path" validate:"required"`
	Username string `koanf:"username"`
}

var defaults = map[string]any{
	"db.path":                      "blunderfix.db",
	"server.addr":                  "127.0.0.1:8080",
	"log.level":                    "info",
	"log.format":                   "text",
	"review.session_break_minutes": 60,
	"review.day_window_days":       60,
	"filter.inaccuracy":            false,
	"filter.mistake":               false,
	"filter.blunder":               true,
	"filter.exclude_lost":          false,
	"import.lichess_max_games":     100,
	"import.chesscom_max_games":    200,
	"import.http_timeout":          "60s",
	"import.lichess_base_url":      "https://lichess.org",
	"import.chesscom_base_url":     "https://api.chess.com",
	"import.user_agent":            "blunderfix",
	"sync.repos_dir":               "repos",
	"sync.parallelism":             4,
}

// flagKeys maps the flags registered by BindFlags to configuration keys.
var flagKeys = map[string]string{
	"db":          "db.path",
	"addr":        "server.addr",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"repos-dir":   "sync.repos_dir",
	"parallelism": "sync.parallelism",
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "blunderfix.yaml", "path to the YAML configuration file")
	fs.String("db", "blunderfix.db", "path to the SQLite database file")
	fs.String("addr", "127.0.0.1:8080", "address the HTTP API listens on")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("repos-dir", "repos", "directory git sources are cloned into")
	fs.Int("parallelism", 4, "number of sources synced concurrently")
}

var validate = validator.New()

// Load builds the configuration. The file named by the --config flag is
// optional unless the flag was set explicitly. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	path, explicit := "blunderfix.yaml", false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			path, explicit = f.Value.String(), f.Changed
		}
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: config: %v", domain.ErrInvalidInput, err)
	}
	return &cfg, nil
}

// envKey turns BLUNDERFIX_IMPORT__HTTP_TIMEOUT into import.http_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

