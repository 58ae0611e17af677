package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/yelp-ingest/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"YELP_API_KEY", "MAX_ZIPS", "YELP_DELAY", "STORE_DRIVER", "PG_DSN",
		"ZIP_RANGES", "REDIS_URL", "METRICS_ADDR", "LOG_LEVEL", "NOTEBOOK",
	} {
		t.Setenv(key, "")
	}
}

func TestParseConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("YELP_API_KEY", "k")
	t.Setenv("MAX_ZIPS", "10")

	cfg, err := parseConfig([]string{"-max-zips", "2", "-delay", "250ms", "-notebook"}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if cfg.MaxZips != 2 || cfg.Delay != 250*time.Millisecond || !cfg.Notebook {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StoreDriver != config.DriverMongo {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{name: "missing api key", args: nil, wantErr: "YELP_API_KEY"},
		{name: "unknown flag", env: map[string]string{"YELP_API_KEY": "k"}, args: []string{"-bogus"}, wantErr: "bogus"},
		{name: "bad store", env: map[string]string{"YELP_API_KEY": "k"}, args: []string{"-store", "sqlite"}, wantErr: "unknown store driver"},
		{name: "postgres without dsn", env: map[string]string{"YELP_API_KEY": "k"}, args: []string{"-store", "postgres"}, wantErr: "PG_DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := parseConfig(tt.args, io.Discard)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("parseConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfig_Help(t *testing.T) {
	clearEnv(t)
	var out bytes.Buffer
	_, err := parseConfig([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("error = %v, want flag.ErrHelp", err)
	}
	for _, name := range []string{"-notebook", "-max-zips", "-delay", "-store", "-metrics-addr", "-log-level"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("usage missing %s", name)
		}
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)
	err := run(context.Background(), nil, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "YELP_API_KEY") {
		t.Errorf("run() error = %v", err)
	}
}
