package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting read from the environment.
type Config struct {
	DataDir  string
	HTTPAddr string

	// StoreDriver is sqlite, postgres, mysql or mongo.
	StoreDriver   string
	StoreDSN      string
	MongoDatabase string

	// RedisURL enables the cross-process event bus when set.
	RedisURL string

	AutosaveSchedule string
	PruneSchedule    string
	HistoryLimit     int
	// MediaGrace protects recently written media files from pruning.
	MediaGrace time.Duration

	SampleRate  int
	Channels    int
	InputDevice string

	Editor  string
	LogFile string
}

// Load reads envFile (if it exists) into the process environment and then
// builds a Config from LYRICLAB_* variables.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	home, _ := os.UserHomeDir()
	cfg := &Config{
		DataDir:          getenv("LYRICLAB_DATA_DIR", filepath.Join(home, ".local", "share", "lyriclab")),
		HTTPAddr:         getenv("LYRICLAB_HTTP_ADDR", ":8080"),
		StoreDriver:      strings.ToLower(getenv("LYRICLAB_STORE_DRIVER", "sqlite")),
		StoreDSN:         os.Getenv("LYRICLAB_STORE_DSN"),
		MongoDatabase:    getenv("LYRICLAB_MONGO_DATABASE", "lyriclab"),
		RedisURL:         os.Getenv("LYRICLAB_REDIS_URL"),
		AutosaveSchedule: getenv("LYRICLAB_AUTOSAVE_SCHEDULE", "@every 30s"),
		PruneSchedule:    getenv("LYRICLAB_PRUNE_SCHEDULE", "@daily"),
		InputDevice:      os.Getenv("LYRICLAB_INPUT_DEVICE"),
		Editor:           getenv("LYRICLAB_EDITOR", getenv("EDITOR", "nvim")),
		LogFile:          os.Getenv("LYRICLAB_LOG_FILE"),
	}

	var err error
	if cfg.HistoryLimit, err = getint("LYRICLAB_HISTORY_LIMIT", 40); err != nil {
		return nil, err
	}
	if cfg.SampleRate, err = getint("LYRICLAB_SAMPLE_RATE", 44100); err != nil {
		return nil, err
	}
	if cfg.Channels, err = getint("LYRICLAB_CHANNELS", 1); err != nil {
		return nil, err
	}

	grace := getenv("LYRICLAB_MEDIA_GRACE", "10m")
	if cfg.MediaGrace, err = time.ParseDuration(grace); err != nil {
		return nil, fmt.Errorf("LYRICLAB_MEDIA_GRACE: %w", err)
	}

	switch cfg.StoreDriver {
	case "sqlite":
	case "postgres", "mysql", "mongo":
		if cfg.StoreDSN == "" {
			return nil, fmt.Errorf("LYRICLAB_STORE_DSN is required for driver %q", cfg.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("unknown LYRICLAB_STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// DBPath is the local SQLite file. It always holds the edit history and,
// with the sqlite driver, the projects too.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "lyriclab.db") }

func (c *Config) MediaDir() string { return filepath.Join(c.DataDir, "media") }

// EditDir holds text blocks exported for editing in an external editor.
func (c *Config) EditDir() string { return filepath.Join(c.DataDir, "edit") }

// SetupLogging sends the standard logger to path. An empty path leaves
// logging on stderr. The returned closer is nil in that case.
func SetupLogging(path string) (io.Closer, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return f, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
