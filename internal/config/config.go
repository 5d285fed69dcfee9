package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultThreshold is the LBPH distance below which a prediction is accepted.
const DefaultThreshold = 80.0

type Config struct {
	GalleryDir  string         `yaml:"gallery_dir"`
	CascadePath string         `yaml:"cascade_path"`
	Threshold   float64        `yaml:"threshold"`
	Camera      CameraConfig   `yaml:"camera"`
	HTTP        HTTPConfig     `yaml:"http"`
	Database    DatabaseConfig `yaml:"database"`
	Journal     JournalConfig  `yaml:"journal"`
	Log         LogConfig      `yaml:"log"`
}

type CameraConfig struct {
	Indices  []int    `yaml:"indices"`  // device indices tried in order
	Backends []string `yaml:"backends"` // capture API names tried for every index
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	Input    string   `yaml:"input"` // file or URL decoded by ffmpeg instead of a camera
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables the sightings journal
}

type JournalConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"` // longest gap bridged inside one sighting
	MinDuration time.Duration `yaml:"min_duration"` // shorter sightings are dropped as blips
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		GalleryDir:  "dataset",
		CascadePath: "assets/haarcascade_frontalface_default.xml",
		Threshold:   DefaultThreshold,
		Camera: CameraConfig{
			Indices:  []int{0, 1, 2},
			Backends: []string{"default", "v4l2", "any"},
			Width:    640,
			Height:   480,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8080"},
		Journal: JournalConfig{
			GracePeriod: 2 * time.Second,
			MinDuration: 500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load layers defaults, an optional YAML file, a .env file and VIGIL_* / POSTGRES_*
// environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.GalleryDir = envString("VIGIL_GALLERY_DIR", cfg.GalleryDir)
	cfg.CascadePath = envString("VIGIL_CASCADE_PATH", cfg.CascadePath)
	cfg.Threshold = envFloat("VIGIL_THRESHOLD", cfg.Threshold)
	cfg.Camera.Width = envInt("VIGIL_CAMERA_WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = envInt("VIGIL_CAMERA_HEIGHT", cfg.Camera.Height)
	cfg.Camera.Input = envString("VIGIL_INPUT", cfg.Camera.Input)
	if s := os.Getenv("VIGIL_CAMERA_INDICES"); s != "" {
		if idx, err := ParseIndices(s); err == nil {
			cfg.Camera.Indices = idx
		}
	}
	if s := os.Getenv("VIGIL_CAMERA_BACKENDS"); s != "" {
		cfg.Camera.Backends = splitList(s)
	}
	cfg.HTTP.Addr = envString("VIGIL_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)
	cfg.Journal.GracePeriod = envDuration("VIGIL_GRACE_PERIOD", cfg.Journal.GracePeriod)
	cfg.Journal.MinDuration = envDuration("VIGIL_MIN_SIGHTING", cfg.Journal.MinDuration)

	if cfg.Database.URL == "" {
		cfg.Database.URL = DatabaseURLFromEnv()
	}
}

// DatabaseURLFromEnv builds a connection string from POSTGRES_* variables.
// DATABASE_URL wins when set; an empty result disables the journal.
func DatabaseURLFromEnv() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.GalleryDir == "" {
		return errors.New("gallery directory must not be empty")
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", c.Threshold)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if len(c.Camera.Indices) == 0 && c.Camera.Input == "" {
		return errors.New("no camera indices configured")
	}
	if c.Journal.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive, got %s", c.Journal.GracePeriod)
	}
	if c.Journal.MinDuration < 0 {
		return fmt.Errorf("minimum sighting duration must not be negative, got %s", c.Journal.MinDuration)
	}
	return nil
}

// ParseIndices parses a comma-separated list of device indices such as "0,1,2".
func ParseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid device index %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("no device indices given")
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads a positive integer, falling back to the default when unset or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultVal
}
