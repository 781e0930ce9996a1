package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-council-planner/pkg/config"
	"github.com/noah-isme/sma-council-planner/pkg/logger"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type cliOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "council-cli",
		Short:        "Plan class council tables from a teacher roster",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline details to stderr")

	root.AddCommand(newPlanCmd(v, opts))
	root.AddCommand(newTokenCmd(v, opts))
	return root
}

// loadConfig reads the shared configuration after flags have been bound to v.
func loadConfig(v *viper.Viper, opts *cliOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWith(v)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !opts.verbose {
		return cfg, zap.NewNop(), nil
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func checkOutput(format string, allowed ...string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	for _, candidate := range allowed {
		if format == candidate {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported output %q (want %s)", format, strings.Join(allowed, ", "))
}

// writeStructured prints value as indented JSON or as YAML with the same keys.
func writeStructured(w io.Writer, format string, value interface{}) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if format == outputJSON {
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	var generic interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
