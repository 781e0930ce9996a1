package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/roster"
)

// BuildClassRegistry derives the class to teacher mapping from a roster.
// Columns that are not class labels are reported as ignored. Headers that
// normalise to the same label merge their teachers. Rows without a teacher
// name are skipped.
func BuildClassRegistry(table roster.Table, teacherColumn string) (*models.ClassRegistry, error) {
	if strings.TrimSpace(teacherColumn) == "" {
		teacherColumn = models.DefaultTeacherColumn
	}
	teacherIdx, ok := table.Lookup(teacherColumn)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrMissingColumn, fmt.Sprintf("teacher column %q not found", teacherColumn))
	}

	reg := &models.ClassRegistry{
		TeacherColumn:  table.Columns[teacherIdx],
		ValidColumns:   make([]string, 0),
		IgnoredColumns: make([]string, 0),
		Teachers:       make(map[string]models.TeacherSet),
	}

	classColumns := make(map[int]string)
	for i, column := range table.Columns {
		if i == teacherIdx {
			continue
		}
		label, ok := models.ParseClassLabel(column)
		if !ok {
			reg.IgnoredColumns = append(reg.IgnoredColumns, column)
			continue
		}
		canonical := label.String()
		classColumns[i] = canonical
		if _, seen := reg.Teachers[canonical]; !seen {
			reg.ValidColumns = append(reg.ValidColumns, canonical)
			reg.Teachers[canonical] = models.TeacherSet{}
		}
	}

	for row := range table.Rows {
		teacher := strings.TrimSpace(table.Cell(row, teacherIdx))
		if teacher == "" {
			continue
		}
		for col, label := range classColumns {
			if strings.TrimSpace(table.Cell(row, col)) != "" {
				reg.Teachers[label][teacher] = struct{}{}
			}
		}
	}

	years := make(map[string]map[int]struct{})
	for _, column := range reg.ValidColumns {
		label, _ := models.ParseClassLabel(column)
		if years[label.Letter] == nil {
			years[label.Letter] = make(map[int]struct{})
		}
		years[label.Letter][label.Year] = struct{}{}
	}

	letters := lo.Keys(years)
	sort.Strings(letters)
	reg.CompleteLetters, reg.IncompleteLetters = lo.FilterReject(letters, func(letter string, _ int) bool {
		for year := models.FirstYear; year <= models.LastYear; year++ {
			if _, ok := years[letter][year]; !ok {
				return false
			}
		}
		return true
	})

	if len(reg.CompleteLetters) == 0 {
		msg := "no letter has classes for every year 1-5"
		if len(reg.IncompleteLetters) > 0 {
			msg = fmt.Sprintf("%s (incomplete letters: %s)", msg, strings.Join(reg.IncompleteLetters, ", "))
		}
		return nil, appErrors.Clone(appErrors.ErrNoCompleteLetters, msg)
	}
	return reg, nil
}
