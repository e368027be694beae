package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/tpsl-guard/internal/config"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or generate configuration",
		Long: `Print the effective configuration after defaults, the YAML file and
environment overrides have been applied. Credentials are never printed.

Examples:
  tpslctl config
  tpslctl config --format json
  tpslctl config init --output tpsl.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rc.Config()
			switch format {
			case "table", "":
				reporting.WriteConfig(rc.out, cfg)
				return nil
			case "json":
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(rc.out, string(data))
				return nil
			case "yaml":
				return writeYAML(rc, cfg)
			}
			return fmt.Errorf("unknown format %q (use table, json or yaml)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")

	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

// writeYAML prints cfg with the credentials blanked
func writeYAML(rc *RootConfig, cfg *config.Config) error {
	redacted := *cfg
	redacted.Exchange.APIKey = ""
	redacted.Exchange.APISecret = ""
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return err
	}
	_, err = rc.out.Write(data)
	return err
}

func newConfigInitCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "tpsl.yaml", "output config file path")
	return cmd
}
