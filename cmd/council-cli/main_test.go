package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
)

// writeRoster gives every class its own teacher. years maps a letter to how
// many years (from 1) it has classes for.
func writeRoster(t *testing.T, years map[string]int) string {
	t.Helper()
	letters := make([]string, 0, len(years))
	for letter := range years {
		letters = append(letters, letter)
	}
	sort.Strings(letters)

	columns := []string{"Docente"}
	for _, letter := range letters {
		for year := 1; year <= years[letter]; year++ {
			columns = append(columns, fmt.Sprintf("%d%s", year, letter))
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, ";") + "\n")
	for i, class := range columns[1:] {
		cells := make([]string, len(columns))
		cells[0] = "T-" + class
		cells[i+1] = "x"
		b.WriteString(strings.Join(cells, ";") + "\n")
	}

	path := filepath.Join(t.TempDir(), "docentes.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func complete(letters ...string) map[string]int {
	years := make(map[string]int, len(letters))
	for _, letter := range letters {
		years[letter] = 5
	}
	return years
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanJSONOutput(t *testing.T) {
	path := writeRoster(t, complete("A", "B"))

	out, err := execute(t, "plan", "--file", path, "--output", "json")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []interface{}{"A", "B"}, result["complete_letters"])
	assert.Equal(t, float64(0), result["invalid_rows"])
	assert.Len(t, result["tables"], 1)
}

func TestPlanYAMLOutputHonoursMaxGroupSize(t *testing.T) {
	path := writeRoster(t, complete("A", "B", "C"))

	out, err := execute(t, "plan", "-f", path, "-o", "yaml", "--max-group-size", "1")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result["max_group_size"])
	assert.Len(t, result["groups"], 3)
}

func TestPlanTableOutputWritesExports(t *testing.T) {
	path := writeRoster(t, complete("A", "B"))
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "tables.zip")
	pdfPath := filepath.Join(dir, "tables.pdf")

	out, err := execute(t, "plan", "--file", path, "--zip", zipPath, "--pdf", pdfPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Table 1 – Columns: A, B")
	assert.Contains(t, out, "1A")
	assert.Contains(t, out, "5B")
	assert.Contains(t, out, "A | B")
	assert.NotContains(t, out, "T-1A")
	assert.Contains(t, out, "every row is free of shared teachers")

	reader, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer reader.Close()
	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"table_1_AB.csv", "group_summary.csv", "row_validation.csv"}, names)

	pdf, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRenderPlanListsSharedTeachers(t *testing.T) {
	result := models.PlanResult{
		TeacherColumn:   "Docente",
		MaxGroupSize:    2,
		CompleteLetters: []string{"A", "B"},
		Tables: []models.CouncilTable{{
			Index:   1,
			Letters: []string{"A", "B"},
			Rows:    []models.TableRow{{Year: 1, Cells: []string{"1A", "1B"}}},
		}},
		Summary: []models.GroupSummary{{Table: 1, Letters: []string{"A", "B"}, Count: 2}},
		Validation: []models.RowValidation{{
			Table: 1,
			Year:  1,
			Valid: false,
			Conflicts: []models.RowConflict{
				{ClassA: "1A", ClassB: "1B", Teachers: []string{"Rossi", "Bianchi"}},
			},
		}},
		InvalidRows: 1,
	}

	out := renderPlan(result)
	assert.Contains(t, out, "1 row(s) share a teacher")
	assert.Contains(t, out, "Bianchi, Rossi")
	assert.Contains(t, out, "No")
	assert.NotContains(t, out, "every row is free of shared teachers")
}

func TestPlanReportsIncompleteLetters(t *testing.T) {
	path := writeRoster(t, map[string]int{"A": 5, "B": 4})

	out, err := execute(t, "plan", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "incomplete letters (skipped): B")
	assert.Contains(t, out, "Table 1 – Columns: A")
}

func TestPlanFatalErrors(t *testing.T) {
	cases := []struct {
		name string
		args func(path string) []string
		path string
		code string
	}{
		{
			name: "missing teacher column",
			path: writeRoster(t, complete("A")),
			args: func(path string) []string {
				return []string{"plan", "--file", path, "--teacher-column", "Nombre"}
			},
			code: appErrors.ErrMissingColumn.Code,
		},
		{
			name: "no complete letters",
			path: writeRoster(t, map[string]int{"A": 4, "B": 4}),
			args: func(path string) []string { return []string{"plan", "--file", path} },
			code: appErrors.ErrNoCompleteLetters.Code,
		},
		{
			name: "group size out of range",
			path: writeRoster(t, complete("A")),
			args: func(path string) []string {
				return []string{"plan", "--file", path, "--max-group-size", "27"}
			},
			code: appErrors.ErrValidation.Code,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args(tc.path)...)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestPlanRejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "plan", "--file", writeRoster(t, complete("A")), "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestPlanRequiresFile(t *testing.T) {
	_, err := execute(t, "plan")
	require.Error(t, err)
}

func TestTokenIssuesVerifiableToken(t *testing.T) {
	out, err := execute(t, "token", "--subject", "ops", "--role", "admin", "--secret", "cli-secret", "--output", "json")
	require.NoError(t, err)

	var issued struct {
		Token   string `json:"token"`
		Subject string `json:"subject"`
		Role    string `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "ops", issued.Subject)
	assert.Equal(t, "ADMIN", issued.Role)

	tokens := service.NewTokenService(nil, nil, service.TokenConfig{Secret: "cli-secret"})
	claims, err := tokens.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "ops", claims.Subject)
}

func TestTokenTextOutputIsBareToken(t *testing.T) {
	out, err := execute(t, "token", "--subject", "dash", "--secret", "cli-secret")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	assert.Equal(t, 2, strings.Count(token, "."))
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	_, err := execute(t, "token", "--subject", "ops", "--role", "owner", "--secret", "cli-secret")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
