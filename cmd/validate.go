package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/sle/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without connecting.

With --print the effective configuration, defaults included, is written as YAML.

Examples:
  sle validate -c /etc/sle/config.yml
  sle validate -c config.yml --print`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, validatePrint, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

var validatePrint bool

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false,
		"print the effective configuration as YAML")
}

func runValidate(path string, printYAML bool, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "VALID: service instance %s on %s, %d sink(s)\n",
		cfg.RCF.ServiceInstanceID,
		cfg.Provider.Address,
		len(cfg.Sinks),
	)
	if !printYAML {
		return nil
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"sle": cfg}); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	return enc.Close()
}
