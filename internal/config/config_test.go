package config

import (
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/August26/proxyprobe/internal/checker"
	"github.com/August26/proxyprobe/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"-input", "proxies.txt"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target != checker.DefaultTarget {
		t.Fatalf("target = %q", cfg.Target)
	}
	if cfg.TargetURL == nil || cfg.TargetURL.String() != checker.DefaultTarget {
		t.Fatalf("parsed target = %v", cfg.TargetURL)
	}
	if cfg.Timeout != 10*time.Second || cfg.Concurrency != 0 || cfg.Retries != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.OutputFormat != "json" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected formats %+v", cfg)
	}
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("PROXYPROBE_INPUT", "env.txt")
	t.Setenv("PROXYPROBE_TIMEOUT", "3s")
	t.Setenv("PROXYPROBE_CONCURRENCY", "16")
	t.Setenv("PROXYPROBE_STRICT", "true")
	t.Setenv("PROXYPROBE_FORMAT", "CSV")

	cfg, err := Load([]string{"-concurrency", "4"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InputFile != "env.txt" || cfg.Timeout != 3*time.Second || !cfg.Strict {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("flag should override env, got %d", cfg.Concurrency)
	}
	if cfg.OutputFormat != "csv" {
		t.Fatalf("format = %q", cfg.OutputFormat)
	}
}

func TestLoad_BadEnvFallsBack(t *testing.T) {
	t.Setenv("PROXYPROBE_RETRIES", "many")
	cfg, err := Load([]string{"-input", "p.txt"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retries != 1 {
		t.Fatalf("retries = %d", cfg.Retries)
	}
}

func TestLoad_PositionalInput(t *testing.T) {
	cfg, err := Load([]string{"-timeout", "2s", "list.txt"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InputFile != "list.txt" {
		t.Fatalf("input = %q", cfg.InputFile)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][]string{
		"missing input": {},
		"zero timeout":  {"-input", "p", "-timeout", "0s"},
		"bad target":    {"-input", "p", "-target", "ftp://x/ip"},
		"bad format":    {"-input", "p", "-format", "xml"},
		"bad log":       {"-input", "p", "-log-format", "yaml"},
	}
	for name, args := range cases {
		if _, err := Load(args, io.Discard); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	cfg := model.Config{InputFile: "p", Timeout: time.Second, Target: "http://%zz", OutputFormat: "json", LogFormat: "json"}
	if err := Validate(&cfg); err == nil || cfg.TargetURL != nil {
		t.Fatalf("unparseable target must fail without a parsed url, got %v %v", err, cfg.TargetURL)
	}
}

func TestLoad_Help(t *testing.T) {
	var out strings.Builder
	_, err := Load([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "-concurrency") {
		t.Fatalf("usage not printed: %q", out.String())
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg, err := Load([]string{"-input", "p", "-retries", "0", "-concurrency", "-3"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retries != 1 || cfg.Concurrency != 0 {
		t.Fatalf("not normalized: %+v", cfg)
	}
}
