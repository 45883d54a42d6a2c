package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nithronos/boot/zfsgen/internal/cmdline"
	"nithronos/boot/zfsgen/internal/config"
	"nithronos/boot/zfsgen/internal/generator"
	"nithronos/boot/zfsgen/internal/logging"
	"nithronos/boot/zfsgen/internal/units"
)

var (
	// Version info (set by build)
	version = "dev"
	commit  = "unknown"
)

var errUsage = errors.New("usage")

var (
	cfgFile    string
	envFile    string
	outputJSON bool
	planLine   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zfsgen <normal-dir> [<early-dir> <late-dir>]",
		Short: "systemd generator for ZFS root filesystems",
		Long: `zfsgen reads root= from the kernel command line and, for ZFS roots,
writes the units that import the root pool and mount the root dataset
in the initrd. It is meant to be run by systemd as a generator.`,
		Args:          generatorArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: runGenerator,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "environment file loaded before the config")

	rootCmd.AddCommand(
		newPlanCmd(),
		newInspectCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// generatorArgs accepts the single output directory, or the three
// directories systemd passes to every generator (only the first is used).
func generatorArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 || len(args) == 3 {
		return nil
	}
	return fmt.Errorf("%w: %s expects <normal-dir> [<early-dir> <late-dir>], got %d arguments", errUsage, cmd.Name(), len(args))
}

// setup loads the configuration and builds the logger. A config that
// fails to load is reported and replaced by defaults so that a broken
// file never stops the boot.
func setup() (config.Config, zerolog.Logger) {
	cfg, err := config.Load(cfgFile, envFile)
	log := logging.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("configuration not fully loaded, using defaults for the rest")
	}
	return cfg, log
}

func runGenerator(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	q := cfg.Query()
	dir := args[0]

	log.Debug().Str("dir", dir).Str("cmdline", q.Source()).Str("config", cfg.Source).Msg("generator starting")

	e := units.New(dir,
		units.WithCacheFile(cfg.CacheFile),
		units.WithZpool(cfg.Zpool),
		units.WithLogger(log),
	)
	if err := generator.Run(q, e, log); err != nil {
		log.Error().Err(err).Msg("generator failed")
		return err
	}
	return nil
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what would be generated for a command line",
		Long: `Decide the import and mount configuration for the running kernel's
command line (or --cmdline) and print it without writing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			q := cfg.Query()
			if planLine != "" {
				q = cmdline.FromString(planLine)
			}
			p, err := generator.Decide(q, log)
			if err != nil {
				return err
			}
			printPlanSummary(cmd.ErrOrStderr(), p, cfg)
			return printOutput(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&planLine, "cmdline", "", "kernel command line to evaluate instead of the running one")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Show the units generated under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := units.Inspect(args[0])
			if err != nil {
				return err
			}
			if rep.Empty() {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "no ZFS units found in %s\n", args[0])
			}
			return printOutput(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zfsgen %s (commit: %s)\n", version, commit)
		},
	}
}

func printPlanSummary(w io.Writer, p generator.Plan, cfg config.Config) {
	if p.NothingToDo() {
		color.New(color.FgYellow).Fprintln(w, "not a ZFS root, nothing would be generated")
		return
	}
	ok := color.New(color.FgGreen)
	dim := color.New(color.FgCyan)
	ok.Fprintf(w, "✓ %s root, mounting %s\n", p.Root.Kind, p.What)
	dim.Fprintf(w, "  scan:  %s import %s -N -o cachefile=none%s\n", cfg.Zpool, p.Root.Pool, p.ImportFlags)
	if p.IgnoreCache {
		dim.Fprintln(w, "  cache: ignored (zfs_ignorecache=1)")
	} else {
		dim.Fprintf(w, "  cache: %s import %s -N -c %s%s\n", cfg.Zpool, p.Root.Pool, cfg.CacheFile, p.ImportFlags)
	}
	dim.Fprintf(w, "  options: %s\n", p.Options)
}

func printOutput(w io.Writer, v any) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
