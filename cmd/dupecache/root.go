package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	dupecache "github.com/mattkeenan/dupecache/pkg"
)

// CLI holds the command tree and the streams it reads and writes
type CLI struct {
	rootCmd *cobra.Command

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    int
	debug      string
	overrides  []string

	// shutdown is closed to cancel a running search; nil means install a signal handler
	shutdown <-chan struct{}
	exitCode int
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *CLI {
	c := &CLI{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:           "dupecache",
		Short:         "Find duplicate files using persistent partial-hash caches",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "configuration file (default: $XDG_CONFIG_HOME/dupecache/config.ini)")
	flags.CountVarP(&c.verbose, "verbose", "v", "increase verbosity (-v, -vv, -vvv)")
	flags.StringVar(&c.debug, "debug", "", "comma-separated debug flags (router, cache)")
	flags.StringArrayVar(&c.overrides, "set", nil, "override a configuration value, as key:value")

	rootCmd.AddCommand(c.newFindCmd())
	rootCmd.AddCommand(c.newInitCmd())
	rootCmd.AddCommand(c.newPruneCmd())
	rootCmd.AddCommand(c.newStatsCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	c.rootCmd = rootCmd
	return c
}

// defaultConfigPath returns the per-user configuration file location
func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate configuration directory: %w", err)
	}
	return filepath.Join(dir, "dupecache", "config.ini"), nil
}

// options loads the configuration, applies --set overrides and sets up logging
func (c *CLI) options() (*dupecache.Options, error) {
	configPath := c.configPath
	if configPath == "" {
		var err error
		if configPath, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := dupecache.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyOverrides(c.overrides); err != nil {
		return nil, err
	}

	dupecache.SetLogOutput(c.stderr)
	dupecache.ApplyVerboseConfig(cfg.GetVerboseConfig(), c.verbose, c.debug)

	return cfg.Options()
}

// shutdownChan returns the injected cancellation channel or one closed by SIGINT/SIGTERM
func (c *CLI) shutdownChan() <-chan struct{} {
	if c.shutdown != nil {
		return c.shutdown
	}
	return setupSignalHandler(c.stderr)
}

// dirArg returns the absolute directory named by args, or the working directory
func dirArg(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid directory %s: %w", dir, err)
	}
	return abs, nil
}
