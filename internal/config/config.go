// Package config builds the run configuration from command-line flags.
// Every flag falls back to a PROXYPROBE_* environment variable, then to a
// built-in default.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/August26/proxyprobe/internal/checker"
	"github.com/August26/proxyprobe/internal/model"
)

const envPrefix = "PROXYPROBE_"

// Load parses args (without the program name). Usage and parse errors are
// written to errOut. flag.ErrHelp is returned as is for -h.
func Load(args []string, errOut io.Writer) (*model.Config, error) {
	var cfg model.Config

	fs := flag.NewFlagSet("proxyprobe", flag.ContinueOnError)
	fs.SetOutput(errOut)

	fs.StringVar(&cfg.InputFile, "input", getEnv("INPUT", ""), "path to file with proxy list, one per line")
	fs.StringVar(&cfg.Target, "target", getEnv("TARGET", checker.DefaultTarget), "echo endpoint returning {\"origin\": \"<ip>\"}")
	fs.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("TIMEOUT", 10*time.Second), "timeout for each proxy check")
	fs.IntVar(&cfg.Concurrency, "concurrency", getEnvInt("CONCURRENCY", 0), "max concurrent checks, 0 runs all at once")
	fs.IntVar(&cfg.Retries, "retries", getEnvInt("RETRIES", 1), "attempts per proxy (min 1); http errors are never retried")
	fs.BoolVar(&cfg.Strict, "strict", getEnvBool("STRICT", false), "abort on any malformed proxy line")
	fs.StringVar(&cfg.OutputFile, "output", getEnv("OUTPUT", ""), "optional path to write results")
	fs.StringVar(&cfg.OutputFormat, "format", getEnv("FORMAT", "json"), "output format: json | csv | txt")
	fs.BoolVar(&cfg.Table, "table", getEnvBool("TABLE", false), "print a result table and summary")
	fs.StringVar(&cfg.GeoIPCity, "geoip-city", getEnv("GEOIP_CITY", ""), "path to a GeoLite2/GeoIP2 City database")
	fs.StringVar(&cfg.GeoIPASN, "geoip-asn", getEnv("GEOIP_ASN", ""), "path to a GeoLite2/GeoIP2 ASN database")
	fs.StringVar(&cfg.DBPath, "db", getEnv("DB", ""), "optional sqlite file to record the run in")
	fs.BoolVar(&cfg.DetectRealIP, "detect-real-ip", getEnvBool("DETECT_REAL_IP", false), "query the target directly first to classify anonymity")
	fs.BoolVar(&cfg.InsecureTLS, "insecure", getEnvBool("INSECURE", false), "skip TLS verification of the target")
	fs.BoolVar(&cfg.Verbose, "verbose", getEnvBool("VERBOSE", false), "enable debug logs")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "json"), "log format: json | text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 && cfg.InputFile == "" {
		cfg.InputFile = fs.Arg(0)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg, normalizes values that have a safe minimum and
// stores the parsed target in cfg.TargetURL.
func Validate(cfg *model.Config) error {
	var problems []string

	if cfg.InputFile == "" {
		problems = append(problems, "--input is required")
	}
	if cfg.Timeout <= 0 {
		problems = append(problems, "--timeout must be positive")
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}

	u, err := url.Parse(cfg.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("--target %q must be an absolute http(s) url", cfg.Target))
	} else {
		cfg.TargetURL = u
	}

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	switch cfg.OutputFormat {
	case "json", "csv", "txt":
	default:
		problems = append(problems, fmt.Sprintf("--format %q must be json, csv or txt", cfg.OutputFormat))
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("--log-format %q must be json or text", cfg.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(envPrefix + key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(envPrefix + key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(envPrefix + key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
