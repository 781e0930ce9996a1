package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
	"github.com/noah-isme/sma-council-planner/pkg/export"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	badStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// renderPlan lays out summary, tables and validation for a terminal.
func renderPlan(result models.PlanResult) string {
	var b strings.Builder

	b.WriteString(headingStyle.Render("Council planning") + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("teacher column: %s   max group size: %d", result.TeacherColumn, result.MaxGroupSize)) + "\n")
	b.WriteString(fmt.Sprintf("complete letters: %s\n", joinOrDash(result.CompleteLetters)))
	if len(result.IncompleteLetters) > 0 {
		b.WriteString(mutedStyle.Render("incomplete letters (skipped): "+strings.Join(result.IncompleteLetters, ", ")) + "\n")
	}
	if len(result.IgnoredColumns) > 0 {
		b.WriteString(mutedStyle.Render("ignored columns: "+strings.Join(result.IgnoredColumns, ", ")) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(headingStyle.Render("Groups") + "\n")
	b.WriteString(datasetTable(service.SummaryDataset(result.Summary)) + "\n\n")

	for _, councilTable := range result.Tables {
		b.WriteString(headingStyle.Render(service.TableTitle(councilTable)) + "\n")
		b.WriteString(datasetTable(service.TableDataset(councilTable)) + "\n\n")
	}

	b.WriteString(headingStyle.Render("Row validation") + "\n")
	b.WriteString(datasetTable(service.ValidationDataset(result.Validation)) + "\n")
	if result.InvalidRows > 0 {
		b.WriteString(badStyle.Render(strconv.Itoa(result.InvalidRows)+" row(s) share a teacher") + "\n")
	} else {
		b.WriteString(okStyle.Render("every row is free of shared teachers") + "\n")
	}
	return b.String()
}

func datasetTable(data export.Dataset) string {
	records := data.Records()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle)
	if len(records) == 0 {
		return t.Render()
	}
	t.Headers(records[0]...)
	t.Rows(records[1:]...)
	return t.Render()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
