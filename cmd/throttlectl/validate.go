package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KARTIKrocks/go-throttler/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a throttler config file",
	Long: `Load the config file, apply defaults and check every throttler
definition. Each invalid field is reported on its own line.

Examples:
  # Validate the default config
  throttlectl validate

  # Validate a TOML file
  throttlectl validate --config throttlers.toml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	f, err := config.Load(cfgFile)
	if err != nil {
		var fe config.FieldErrors
		if errors.As(err, &fe) {
			for _, field := range fe {
				fmt.Fprintf(out, "✗ %s: %s\n", field.Field, field.Err)
			}
			return fmt.Errorf("%s: %d invalid field(s)", cfgFile, len(fe))
		}
		return err
	}

	for _, t := range f.Throttlers {
		if _, err := t.Build(); err != nil {
			return fmt.Errorf("throttler %s: %w", t.Name, err)
		}
		fmt.Fprintf(out, "✓ %s: %d per %s (on_full: %s)\n", t.Name, t.RateLimit, t.Period, t.OnFull)
	}
	fmt.Fprintf(out, "✓ Configuration valid (%d throttlers)\n", len(f.Throttlers))
	return nil
}
