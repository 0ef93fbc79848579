package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileKeepsCommandLineFlags(t *testing.T) {
	var cfg ServerConfig
	cfg.BindFlags()
	if err := flag.CommandLine.Parse([]string{"-port", "9999"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "server.yaml")
	data := []byte("port: 1234\nlog_level: debug\ncatalog_source: /srv/envs.json\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9999 {
		t.Fatalf("port = %d, want the command line value to win", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want the file value", cfg.LogLevel)
	}
	if cfg.CatalogSource != "/srv/envs.json" {
		t.Fatalf("catalog_source = %q", cfg.CatalogSource)
	}
}
