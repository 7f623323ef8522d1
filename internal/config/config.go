package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MiB = int64(1024 * 1024)
	GiB = 1024 * MiB
)

type Config struct {
	BotToken string `yaml:"bot_token"`

	// Unrestricted download path: a self-hosted Bot API server.
	UseLocalAPI       bool   `yaml:"use_local_api"`
	LocalAPIEndpoint  string `yaml:"local_api_endpoint"`  // e.g. http://localhost:8081/bot%s/%s
	LocalFileEndpoint string `yaml:"local_file_endpoint"` // e.g. http://localhost:8081/file/bot%s/%s

	MaxFileSize     int64         `yaml:"max_file_size"`
	RestrictedLimit int64         `yaml:"restricted_limit"`
	InlineLimit     int64         `yaml:"inline_limit"`
	UploadLimit     int64         `yaml:"upload_limit"`
	DownloadChunk   int           `yaml:"download_chunk"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// UploadTimeout bounds one result upload; local-server uploads reach 2 GiB.
	UploadTimeout time.Duration `yaml:"upload_timeout"`

	DataDir           string        `yaml:"data_dir"`
	TempMaxAge        time.Duration `yaml:"temp_max_age"`
	TempSweepInterval time.Duration `yaml:"temp_sweep_interval"`

	MaxWorkers        int           `yaml:"max_workers"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	TransformFloor    time.Duration `yaml:"transform_floor"`
	TransformPerMiB   time.Duration `yaml:"transform_per_mib"`
	JobBudget         time.Duration `yaml:"job_budget"`

	FFmpegPath    string `yaml:"ffmpeg_path"`
	FFmpegPreset  string `yaml:"ffmpeg_preset"`
	FFmpegCRF     int    `yaml:"ffmpeg_crf"`
	FFmpegMaxRate string `yaml:"ffmpeg_maxrate"`
	FFmpegBufSize string `yaml:"ffmpeg_bufsize"`

	TransformBackend string        `yaml:"transform_backend"` // local|asynq
	SessionStore     string        `yaml:"session_store"`     // memory|redis
	SessionTTL       time.Duration `yaml:"session_ttl"`
	RedisAddr        string        `yaml:"redis_addr"`

	FilebinEnable    bool   `yaml:"filebin_enable"`
	FilebinBase      string `yaml:"filebin_base"`
	FilebinBinPrefix string `yaml:"filebin_bin_prefix"`

	HTTPAddr string `yaml:"http_addr"`
}

// Defaults mirrors the values the bot has always shipped with.
func Defaults() Config {
	return Config{
		UseLocalAPI:       true,
		MaxFileSize:       2 * GiB,
		RestrictedLimit:   20 * MiB,
		InlineLimit:       50 * MiB,
		UploadLimit:       49 * MiB,
		DownloadChunk:     256 * 1024,
		DownloadTimeout:   10 * time.Minute,
		UploadTimeout:     time.Hour,
		DataDir:           "data",
		TempMaxAge:        6 * time.Hour,
		TempSweepInterval: 30 * time.Minute,
		MaxWorkers:        4,
		ProcessingTimeout: 600 * time.Second,
		TransformFloor:    30 * time.Second,
		TransformPerMiB:   1500 * time.Millisecond,
		JobBudget:         30 * time.Minute,
		FFmpegPath:        "ffmpeg",
		FFmpegPreset:      "ultrafast",
		FFmpegCRF:         23,
		FFmpegMaxRate:     "200M",
		FFmpegBufSize:     "4M",
		TransformBackend:  "local",
		SessionStore:      "memory",
		SessionTTL:        24 * time.Hour,
		RedisAddr:         "localhost:6379",
		FilebinBase:       "https://filebin.net",
		HTTPAddr:          ":8080",
	}
}

// Load starts from Defaults, overlays the YAML file named by CONFIG_FILE (if
// any) and finally the environment. The caller is expected to have loaded
// .env already.
func Load() (Config, error) {
	c := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &c); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&c)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func loadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.BotToken = getenv("BOT_TOKEN", c.BotToken)
	c.UseLocalAPI = mustBool("USE_LOCAL_API", c.UseLocalAPI)
	c.LocalAPIEndpoint = getenv("LOCAL_API_ENDPOINT", c.LocalAPIEndpoint)
	c.LocalFileEndpoint = getenv("LOCAL_FILE_ENDPOINT", c.LocalFileEndpoint)

	c.MaxFileSize = mustInt64("MAX_FILE_SIZE", c.MaxFileSize)
	c.RestrictedLimit = int64(mustInt("RESTRICTED_LIMIT_MB", int(c.RestrictedLimit/MiB))) * MiB
	c.InlineLimit = int64(mustInt("INLINE_LIMIT_MB", int(c.InlineLimit/MiB))) * MiB
	c.UploadLimit = int64(mustInt("TG_UPLOAD_LIMIT_MB", int(c.UploadLimit/MiB))) * MiB
	c.DownloadChunk = mustInt("DOWNLOAD_CHUNK", c.DownloadChunk)
	c.DownloadTimeout = mustDuration("DOWNLOAD_TIMEOUT", c.DownloadTimeout)
	c.UploadTimeout = mustDuration("UPLOAD_TIMEOUT", c.UploadTimeout)

	c.DataDir = getenv("DATA_DIR", c.DataDir)
	c.TempMaxAge = mustDuration("TEMP_MAX_AGE", c.TempMaxAge)
	c.TempSweepInterval = mustDuration("TEMP_SWEEP_INTERVAL", c.TempSweepInterval)

	c.MaxWorkers = mustInt("MAX_WORKERS", c.MaxWorkers)
	c.ProcessingTimeout = mustSeconds("PROCESSING_TIMEOUT", c.ProcessingTimeout)
	c.TransformFloor = mustDuration("TRANSFORM_FLOOR", c.TransformFloor)
	c.TransformPerMiB = mustDuration("TRANSFORM_PER_MIB", c.TransformPerMiB)
	c.JobBudget = mustDuration("JOB_BUDGET", c.JobBudget)

	c.FFmpegPath = getenv("FFMPEG_PATH", c.FFmpegPath)
	c.FFmpegPreset = getenv("FFMPEG_PRESET", c.FFmpegPreset)
	c.FFmpegCRF = mustInt("FFMPEG_CRF", c.FFmpegCRF)
	c.FFmpegMaxRate = getenv("FFMPEG_MAXRATE", c.FFmpegMaxRate)
	c.FFmpegBufSize = getenv("FFMPEG_BUFSIZE", c.FFmpegBufSize)

	c.TransformBackend = strings.ToLower(getenv("TRANSFORM_BACKEND", c.TransformBackend))
	c.SessionStore = strings.ToLower(getenv("SESSION_STORE", c.SessionStore))
	c.SessionTTL = mustDuration("SESSION_TTL", c.SessionTTL)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)

	c.FilebinEnable = mustBool("FILEBIN_ENABLE", c.FilebinEnable)
	c.FilebinBase = strings.TrimRight(getenv("FILEBIN_BASE", c.FilebinBase), "/")
	c.FilebinBinPrefix = getenv("FILEBIN_BIN_PREFIX", c.FilebinBinPrefix)

	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
}

// Validate rejects combinations neither process can run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("MAX_WORKERS must be >= 1, got %d", c.MaxWorkers))
	}
	if c.DownloadChunk < 4096 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_CHUNK must be >= 4096, got %d", c.DownloadChunk))
	}
	if c.TransformFloor <= 0 || c.ProcessingTimeout < c.TransformFloor {
		errs = append(errs, fmt.Errorf("PROCESSING_TIMEOUT (%s) must be >= TRANSFORM_FLOOR (%s)", c.ProcessingTimeout, c.TransformFloor))
	}
	switch c.TransformBackend {
	case "local", "asynq":
	default:
		errs = append(errs, fmt.Errorf("TRANSFORM_BACKEND must be local or asynq, got %q", c.TransformBackend))
	}
	switch c.SessionStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.SessionStore))
	}
	if c.UseLocalAPI && c.LocalAPIEndpoint != "" && !strings.Contains(c.LocalAPIEndpoint, "%s") {
		errs = append(errs, fmt.Errorf("LOCAL_API_ENDPOINT must contain %%s placeholders, got %q", c.LocalAPIEndpoint))
	}
	return errors.Join(errs...)
}

// ValidateBot adds the checks only the bot process needs.
func (c Config) ValidateBot() error {
	if c.BotToken == "" {
		return errors.Join(errors.New("BOT_TOKEN required"), c.Validate())
	}
	return c.Validate()
}

// LocalAPIEnabled reports whether the unrestricted path should be attempted.
func (c Config) LocalAPIEnabled() bool {
	return c.UseLocalAPI && c.LocalAPIEndpoint != ""
}

// TempDir is where every scoped temp file lives. Worker and bot must agree
// on it when the asynq backend is used.
func (c Config) TempDir() string { return filepath.Join(c.DataDir, "tmp") }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
func mustInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}
func mustBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return def
}
func mustDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// mustSeconds accepts both a bare number of seconds (legacy PROCESSING_TIMEOUT=600)
// and a Go duration string.
func mustSeconds(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
