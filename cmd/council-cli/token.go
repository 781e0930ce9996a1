package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/sma-council-planner/internal/dto"
	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
)

const outputText = "text"

type tokenFlags struct {
	subject string
	role    string
	ttl     time.Duration
	output  string
}

func newTokenCmd(v *viper.Viper, opts *cliOptions) *cobra.Command {
	flags := &tokenFlags{}
	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Mint a service token for the council API",
		Example: `  council-cli token --subject ops --role ADMIN --ttl 72h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, v, opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&flags.role, "role", string(models.RoleViewer), "ADMIN or VIEWER")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", 0, "token lifetime (default from JWT_EXPIRATION)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputText, "text, json or yaml")
	cmd.Flags().String("secret", "", "signing secret (default from JWT_SECRET)")
	_ = cmd.MarkFlagRequired("subject")

	cobra.CheckErr(bindFlags(cmd, v, map[string]string{"secret": "JWT_SECRET"}))
	return cmd
}

func runToken(cmd *cobra.Command, v *viper.Viper, opts *cliOptions, flags *tokenFlags) error {
	output, err := checkOutput(flags.output, outputText, outputJSON, outputYAML)
	if err != nil {
		return err
	}
	cfg, logr, err := loadConfig(v, opts)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	tokens := service.NewTokenService(nil, logr, service.TokenConfig{
		Secret:     cfg.Auth.Secret,
		Expiration: cfg.Auth.Expiration,
		Issuer:     cfg.Auth.Issuer,
	})
	issued, err := tokens.Issue(dto.TokenRequest{Subject: flags.subject, Role: models.ServiceRole(flags.role)}, flags.ttl)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output == outputText {
		_, err = fmt.Fprintln(w, issued.Token)
		return err
	}
	return writeStructured(w, output, issued)
}
