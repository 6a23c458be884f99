// Package config loads the process configuration.
//
// Values come from, in increasing precedence: built-in defaults, a config
// file (YAML, TOML or JSON), .env files and N2S_* environment variables.
// Nested keys map to variables by upper-casing and replacing dots with
// underscores, so database.host is N2S_DATABASE_HOST.
//
// A Config is built once at start-up and passed to the components that need
// it. Nothing in this package keeps global state.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "N2S"

// DefaultEnvFile is loaded from the working directory when present.
const DefaultEnvFile = ".env"

const redacted = "******"

// Device selects the compute backend.
type Device string

// Supported devices.
const (
	DeviceCPU    Device = "cpu"
	DeviceWebGPU Device = "webgpu"
)

// ParseDevice converts a device name to a Device. Matching is case-insensitive
// and "gpu" is accepted for DeviceWebGPU.
func ParseDevice(name string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu":
		return DeviceCPU, nil
	case "webgpu", "gpu":
		return DeviceWebGPU, nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu or webgpu)", name)
	}
}

// Database holds connection parameters for the schema database.
type Database struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	Name     string `mapstructure:"name" json:"name"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// DSN returns a postgres:// connection URL.
func (d Database) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// Model identifies the pretrained encoder, tokenizer and fine-tuned
// checkpoint of one stage.
type Model struct {
	Pretrained string `mapstructure:"pretrained" json:"pretrained"`
	Tokenizer  string `mapstructure:"tokenizer" json:"tokenizer"`
	Checkpoint string `mapstructure:"checkpoint" json:"checkpoint"`
}

// Mirror is the optional S3-compatible store for model files.
type Mirror struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	Region    string `mapstructure:"region" json:"region"`
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m Mirror) Enabled() bool {
	return m.Endpoint != ""
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Config is the complete process configuration.
type Config struct {
	Database Database `mapstructure:"database" json:"database"`
	M1       Model    `mapstructure:"m1" json:"m1"`
	M2       Model    `mapstructure:"m2" json:"m2"`

	Device    Device `mapstructure:"device" json:"device"`
	Analyze   bool   `mapstructure:"analyze" json:"analyze"`
	MaxSeqLen int    `mapstructure:"max_seq_len" json:"max_seq_len"`

	CacheDir    string `mapstructure:"cache_dir" json:"cache_dir"`
	Mirror      Mirror `mapstructure:"mirror" json:"mirror"`
	Log         Log    `mapstructure:"log" json:"log"`
	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr"`
}

// Default checkpoint locations, relative to the working directory.
const (
	DefaultM1Checkpoint = "saved_models/M1v2_chinese-roberta-wwm-ext_v1.safetensors"
	DefaultM2Checkpoint = "saved_models/M2_albert_chinese_large_v1.safetensors"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "nl2sql")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("m1.pretrained", "hfl/chinese-roberta-wwm-ext")
	v.SetDefault("m1.tokenizer", "hfl/chinese-roberta-wwm-ext")
	v.SetDefault("m1.checkpoint", DefaultM1Checkpoint)
	v.SetDefault("m2.pretrained", "voidful/albert_chinese_large")
	v.SetDefault("m2.tokenizer", "voidful/albert_chinese_large")
	v.SetDefault("m2.checkpoint", DefaultM2Checkpoint)

	v.SetDefault("device", string(DeviceCPU))
	v.SetDefault("analyze", true)
	v.SetDefault("max_seq_len", 512)

	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.bucket", "models")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.use_ssl", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics_addr", "")
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "n2s", "models")
	}
	return filepath.Join(os.TempDir(), "n2s", "models")
}

// NewViper returns a viper instance with defaults and environment binding
// set up. Callers may bind command-line flags to it before passing it to
// Load with WithViper.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

type options struct {
	viper       *viper.Viper
	workDir     string
	envFiles    []string
	envExplicit bool
}

// Option configures Load.
type Option func(*options)

// WithViper loads through v instead of a fresh NewViper instance.
func WithViper(v *viper.Viper) Option {
	return func(o *options) { o.viper = v }
}

// WithWorkDir sets the directory relative checkpoint paths are resolved
// against. It defaults to the process working directory.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

// WithEnvFiles replaces the default .env lookup with explicit files, which
// must exist.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) {
		o.envFiles = paths
		o.envExplicit = true
	}
}

// Load builds a Config. path names a config file and may be empty. Variables
// already present in the environment take precedence over .env files.
func Load(path string, opts ...Option) (Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.viper == nil {
		o.viper = NewViper()
	}
	if o.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("working directory: %w", err)
		}
		o.workDir = wd
	}

	if err := loadEnvFiles(o); err != nil {
		return Config{}, err
	}

	if path != "" {
		o.viper.SetConfigFile(path)
		if err := o.viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := o.viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	device, err := ParseDevice(string(cfg.Device))
	if err != nil {
		return Config{}, err
	}
	cfg.Device = device
	cfg.M1.Checkpoint = resolvePath(o.workDir, cfg.M1.Checkpoint)
	cfg.M2.Checkpoint = resolvePath(o.workDir, cfg.M2.Checkpoint)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFiles(o options) error {
	paths := o.envFiles
	if !o.envExplicit {
		err := godotenv.Load(filepath.Join(o.workDir, DefaultEnvFile))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", DefaultEnvFile, err)
		}
		return nil
	}
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func resolvePath(workDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseDevice(string(c.Device)); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSeqLen < 3 {
		errs = append(errs, fmt.Errorf("max_seq_len must be at least 3, got %d", c.MaxSeqLen))
	}
	if c.M1.Pretrained == "" {
		errs = append(errs, errors.New("m1.pretrained is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database.port out of range: %d", c.Database.Port))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Mirror.Enabled() && c.Mirror.Bucket == "" {
		errs = append(errs, errors.New("mirror.bucket is required when mirror.endpoint is set"))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Database.Password != "" {
		c.Database.Password = redacted
	}
	if c.Mirror.SecretKey != "" {
		c.Mirror.SecretKey = redacted
	}
	return c
}

// String renders the redacted configuration as indented JSON.
func (c Config) String() string {
	data, err := json.MarshalIndent(c.Redacted(), "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
