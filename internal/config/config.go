// Package config resolves run settings from defaults, an optional YAML file
// and the environment. CLI flags are layered on top by cmd/snapper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

const (
	DefaultBaseURL = "https://kytc-api-v100-lts-qrntk7e3ra-uc.a.run.app/api/"
	MaxInputRows   = 1000
)

// DefaultReturnKeys are the route fields requested when none are configured.
var DefaultReturnKeys = []string{
	"District_Number",
	"County_Name",
	"Route_Unique_Identifier",
	"Milepoint",
	"Route",
	"Road_Name",
	"Bridge_Identifier",
	"Geometry",
}

// Config is the resolved run configuration.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	SnapDistance   float64       `yaml:"snap_distance"`
	ReturnKeys     []string      `yaml:"return_keys"`
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	ProgressEvery  int           `yaml:"progress_every"`
	InputRows      int           `yaml:"input_rows"`
	GeometryColumn string        `yaml:"geometry_column"`
	LogLevel       string        `yaml:"log_level"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

func Defaults() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		SnapDistance:   routeapi.DefaultSnapDistance,
		ReturnKeys:     append([]string(nil), DefaultReturnKeys...),
		Concurrency:    100,
		RequestTimeout: routeapi.DefaultTimeout,
		MaxAttempts:    5,
		ProgressEvery:  200,
		InputRows:      MaxInputRows,
		GeometryColumn: "GEOMETRY",
		LogLevel:       "info",
	}
}

// Load resolves defaults, then the YAML file at path (if non-empty), then
// environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
// Unset or blank variables leave the field unchanged.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.setString("ROUTE_API_BASE_URL", &c.BaseURL)
	e.setFloat("SNAP_DISTANCE", &c.SnapDistance)
	if v := e.get("RETURN_KEYS"); v != "" {
		c.ReturnKeys = SplitList(v)
	}
	e.setInt("CONCURRENCY", &c.Concurrency)
	e.setDuration("REQUEST_TIMEOUT", &c.RequestTimeout)
	e.setInt("MAX_ATTEMPTS", &c.MaxAttempts)
	e.setFloat("RATE_LIMIT_RPS", &c.RateLimitRPS)
	e.setInt("PROGRESS_EVERY", &c.ProgressEvery)
	e.setInt("INPUT_ROWS", &c.InputRows)
	e.setString("GEOMETRY_COLUMN", &c.GeometryColumn)
	e.setString("LOG_LEVEL", &c.LogLevel)
	e.setString("METRICS_ADDR", &c.MetricsAddr)
	return e.err
}

// Validate checks ranges and the base URL.
func (c Config) Validate() error {
	if _, err := routeapi.ParseBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.InputRows < 1 || c.InputRows > MaxInputRows {
		return fmt.Errorf("input rows must be between 1 and %d (got %d)", MaxInputRows, c.InputRows)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", c.Concurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0 (got %s)", c.RequestTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.SnapDistance <= 0 {
		return fmt.Errorf("snap distance must be > 0 (got %g)", c.SnapDistance)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must be >= 0 (got %g)", c.RateLimitRPS)
	}
	if strings.TrimSpace(c.GeometryColumn) == "" {
		return fmt.Errorf("geometry column is required")
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// envReader keeps the first parse error so ApplyEnv reads like a list of fields.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) get(name string) string {
	return strings.TrimSpace(e.getenv(name))
}

func (e *envReader) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
}

func (e *envReader) setString(name string, dst *string) {
	if v := e.get(name); v != "" {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	v := e.get(name)
	if v == "" {
		return
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = out
}

func (e *envReader) setFloat(name string, dst *float64) {
	v := e.get(name)
	if v == "" {
		return
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = out
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	v := e.get(name)
	if v == "" {
		return
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = out
}
