package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"nithronos/boot/zfsgen/internal/cmdline"
	"nithronos/boot/zfsgen/internal/units"
)

const (
	DefaultPath    = "/etc/zfs/zfsgen.yaml"
	DefaultEnvFile = "/etc/default/zfsgen"
	EnvPrefix      = "ZFSGEN"

	// CmdlineEnv is the override systemd's own generators honour.
	CmdlineEnv = "SYSTEMD_PROC_CMDLINE"
)

const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	LogLevel  zerolog.Level
	LogFormat string

	ProcCmdline string
	// Cmdline replaces the contents of ProcCmdline when set.
	Cmdline string

	CacheFile string
	Zpool     string

	// Source is the config file that was read, empty if none.
	Source string
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment. envFile is loaded into the environment first
// without overriding variables that are already set. Environment wins
// over the file.
//
// The returned Config is always usable. Missing files are ignored; files
// that cannot be read or parsed are skipped and reported in the error.
func Load(path, envFile string) (Config, error) {
	var errs []error
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("load env file %s: %w", envFile, err))
		}
	}

	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatAuto)
	v.SetDefault("proc_cmdline", cmdline.DefaultPath)
	v.SetDefault("cache_file", units.DefaultCacheFile)
	v.SetDefault("zpool", units.DefaultZpool)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("cmdline", CmdlineEnv); err != nil {
		errs = append(errs, err)
	}

	cfg := Config{}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("read config %s: %w", path, err))
			}
		} else {
			cfg.Source = path
		}
	}

	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(v.GetString("log.level")); err == nil && l != zerolog.NoLevel {
		level = l
	}
	cfg.LogLevel = level

	switch f := strings.ToLower(v.GetString("log.format")); f {
	case FormatJSON, FormatConsole:
		cfg.LogFormat = f
	default:
		cfg.LogFormat = FormatAuto
	}

	cfg.ProcCmdline = v.GetString("proc_cmdline")
	cfg.Cmdline = v.GetString("cmdline")
	cfg.CacheFile = v.GetString("cache_file")
	cfg.Zpool = v.GetString("zpool")
	return cfg, errors.Join(errs...)
}

// Query returns the command line source the configuration points at.
func (c Config) Query() *cmdline.Cmdline {
	if c.Cmdline != "" {
		return cmdline.FromString(c.Cmdline)
	}
	return cmdline.New(c.ProcCmdline)
}
