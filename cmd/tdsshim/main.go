package main

import (
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/spf13/cobra"
	_ "github.com/thda/tds"
	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
	Driver     string
	DSN        string
}

var validFormats = []string{"text", "json"}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tdsshim",
		Short:         "Emulated prepared statements for TDS servers",
		Long:          "Run parameterized SQL against SQL Server or Sybase ASE with client-side interpolation and cursor hand-off.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "underlying driver (sqlserver|tds|sqlite3), overrides the config")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "data source name, overrides the config")

	cmd.AddCommand(newRenderCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	if o.DSN != "" {
		cfg.DSN = o.DSN
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
