package service

import (
	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/pkg/roster"
)

// PipelineOptions tunes a single planning pass.
type PipelineOptions struct {
	TeacherColumn string
	MaxGroupSize  int
}

// RunCouncilPipeline runs registry, conflict graph, grouping, assembly and
// row validation over a roster. The registry is the only failing stage.
func RunCouncilPipeline(table roster.Table, opts PipelineOptions) (*models.PlanResult, error) {
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = models.DefaultMaxGroupSize
	}

	reg, err := BuildClassRegistry(table, opts.TeacherColumn)
	if err != nil {
		return nil, err
	}

	graph := BuildConflictGraph(reg)
	groups := GroupLetters(reg.CompleteLetters, graph, opts.MaxGroupSize)
	tables := AssembleTables(groups, reg)
	validation := ValidateRows(tables, reg)

	return &models.PlanResult{
		TeacherColumn:     reg.TeacherColumn,
		MaxGroupSize:      opts.MaxGroupSize,
		ValidColumns:      reg.ValidColumns,
		IgnoredColumns:    reg.IgnoredColumns,
		CompleteLetters:   reg.CompleteLetters,
		IncompleteLetters: reg.IncompleteLetters,
		Conflicts:         graph,
		Groups:            groups,
		Tables:            tables,
		Summary:           SummarizeTables(tables),
		Validation:        validation,
		InvalidRows:       CountInvalidRows(validation),
	}, nil
}
