package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("missing files must not fail: %v", err)
	}
	if cfg.LogLevel != zerolog.InfoLevel || cfg.LogFormat != FormatAuto {
		t.Fatalf("log defaults: %v %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ProcCmdline != "/proc/cmdline" || cfg.Cmdline != "" {
		t.Fatalf("cmdline defaults: %q %q", cfg.ProcCmdline, cfg.Cmdline)
	}
	if cfg.CacheFile != "/etc/zfs/zpool.cache" || cfg.Zpool != "/usr/bin/zpool" {
		t.Fatalf("unit defaults: %q %q", cfg.CacheFile, cfg.Zpool)
	}
	if cfg.Source != "" {
		t.Fatalf("source: %q", cfg.Source)
	}
}

func TestYAMLAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "zfsgen.yaml")
	data := []byte("" +
		"log:\n  level: debug\n  format: console\n" +
		"proc_cmdline: /tmp/cmdline\n" +
		"cache_file: /etc/zfs/other.cache\n" +
		"zpool: /sbin/zpool\n")
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != cfgPath {
		t.Fatalf("source: %s", cfg.Source)
	}
	if cfg.LogLevel != zerolog.DebugLevel || cfg.LogFormat != FormatConsole {
		t.Fatalf("log from yaml: %v %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ProcCmdline != "/tmp/cmdline" || cfg.CacheFile != "/etc/zfs/other.cache" || cfg.Zpool != "/sbin/zpool" {
		t.Fatalf("paths from yaml: %+v", cfg)
	}

	// env overrides file
	t.Setenv("ZFSGEN_LOG_LEVEL", "warn")
	t.Setenv("ZFSGEN_LOG_FORMAT", "json")
	t.Setenv("ZFSGEN_ZPOOL", "/usr/local/sbin/zpool")
	t.Setenv("SYSTEMD_PROC_CMDLINE", "root=zfs:tank rw")

	cfg2, err := Load(cfgPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg2.LogLevel != zerolog.WarnLevel || cfg2.LogFormat != FormatJSON {
		t.Fatalf("log env override: %v %s", cfg2.LogLevel, cfg2.LogFormat)
	}
	if cfg2.Zpool != "/usr/local/sbin/zpool" {
		t.Fatalf("zpool env override: %s", cfg2.Zpool)
	}
	if cfg2.Cmdline != "root=zfs:tank rw" {
		t.Fatalf("cmdline override: %q", cfg2.Cmdline)
	}
	if cfg2.Query().Source() != "string" {
		t.Fatalf("query should use the override")
	}
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "zfsgen")
	if err := os.WriteFile(envFile, []byte("ZFSGEN_CACHE_FILE=/run/zpool.cache\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("ZFSGEN_CACHE_FILE") })

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheFile != "/run/zpool.cache" {
		t.Fatalf("cache file from env file: %s", cfg.CacheFile)
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("ZFSGEN_LOG_LEVEL", "chatty")
	t.Setenv("ZFSGEN_LOG_FORMAT", "xml")
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != zerolog.InfoLevel || cfg.LogFormat != FormatAuto {
		t.Fatalf("fallbacks: %v %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Query().Source() != "/proc/cmdline" {
		t.Fatalf("query source: %s", cfg.Query().Source())
	}
}

func TestBrokenYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zfsgen.yaml")
	if err := os.WriteFile(path, []byte("log: [unterminated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZFSGEN_ZPOOL", "/sbin/zpool")
	cfg, err := Load(path, "")
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.Source != "" {
		t.Fatalf("broken file reported as source: %s", cfg.Source)
	}
	if cfg.LogLevel != zerolog.InfoLevel || cfg.CacheFile != "/etc/zfs/zpool.cache" || cfg.ProcCmdline != "/proc/cmdline" {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.Zpool != "/sbin/zpool" {
		t.Fatalf("env not applied: %s", cfg.Zpool)
	}
}

func TestUnreadableEnvFileKeepsDefaults(t *testing.T) {
	// a directory opens fine but cannot be read as a file
	cfg, err := Load("", t.TempDir())
	if err == nil {
		t.Fatalf("expected read error")
	}
	if cfg.CacheFile != "/etc/zfs/zpool.cache" || cfg.Zpool != "/usr/bin/zpool" || cfg.LogFormat != FormatAuto {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}
