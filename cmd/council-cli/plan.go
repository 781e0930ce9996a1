package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
	"github.com/noah-isme/sma-council-planner/pkg/export"
)

type planFlags struct {
	file    string
	output  string
	zipPath string
	pdfPath string
}

func newPlanCmd(v *viper.Viper, opts *cliOptions) *cobra.Command {
	flags := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Group complete letters into council tables and validate every row",
		Example: `  council-cli plan --file docentes.csv
  council-cli plan --file docentes.csv --max-group-size 3 --zip tables.zip --pdf tables.pdf
  council-cli plan --file docentes.csv --output yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd.Context(), cmd, v, opts, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "roster file, one row per teacher")
	cmd.Flags().String("delimiter", "", `field delimiter: ";", "," or "\t" (default from PLANNER_DELIMITER)`)
	cmd.Flags().String("teacher-column", "", "teacher name column (default from PLANNER_TEACHER_COLUMN)")
	cmd.Flags().Int("max-group-size", 0, "letters per table (default from PLANNER_MAX_GROUP_SIZE)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputTable, "table, json or yaml")
	cmd.Flags().StringVar(&flags.zipPath, "zip", "", "write the CSV archive to this path")
	cmd.Flags().StringVar(&flags.pdfPath, "pdf", "", "write the PDF document to this path")
	_ = cmd.MarkFlagRequired("file")

	cobra.CheckErr(bindFlags(cmd, v, map[string]string{
		"delimiter":      "PLANNER_DELIMITER",
		"teacher-column": "PLANNER_TEACHER_COLUMN",
		"max-group-size": "PLANNER_MAX_GROUP_SIZE",
	}))
	return cmd
}

func runPlan(ctx context.Context, cmd *cobra.Command, v *viper.Viper, opts *cliOptions, flags *planFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	output, err := checkOutput(flags.output, outputTable, outputJSON, outputYAML)
	if err != nil {
		return err
	}
	cfg, logr, err := loadConfig(v, opts)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	src, err := os.Open(flags.file)
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer src.Close()

	table, err := service.DecodeRoster(src, cfg.Planner.Delimiter)
	if err != nil {
		return err
	}

	planner := service.NewCouncilPlannerService(service.NewMemoryPlanRunStore(cfg.Planner.ResultTTL), nil, nil, nil, logr, service.CouncilPlannerConfig{
		TeacherColumn: cfg.Planner.TeacherColumn,
		MaxGroupSize:  cfg.Planner.MaxGroupSize,
	})
	out, err := planner.Plan(ctx, service.PlanInput{
		Table:  table,
		Source: filepath.Base(flags.file),
	})
	if err != nil {
		return err
	}
	result := out.Run.Result

	if err := writeExports(result, flags); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output != outputTable {
		return writeStructured(w, output, result)
	}
	_, err = fmt.Fprint(w, renderPlan(result))
	return err
}

func writeExports(result models.PlanResult, flags *planFlags) error {
	if flags.zipPath != "" {
		payload, err := service.RenderArchive(result, export.NewCSVExporter(), export.NewZIPExporter())
		if err != nil {
			return fmt.Errorf("render archive: %w", err)
		}
		if err := os.WriteFile(flags.zipPath, payload, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
	}
	if flags.pdfPath != "" {
		payload, err := service.RenderDocument(result, export.NewPDFExporter())
		if err != nil {
			return fmt.Errorf("render document: %w", err)
		}
		if err := os.WriteFile(flags.pdfPath, payload, 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
	}
	return nil
}
