package service

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/roster"
)

// buildRoster turns teacher -> classes into a roster with one "x" per assignment.
func buildRoster(assignments map[string][]string, extraColumns ...string) roster.Table {
	labelSet := map[string]struct{}{}
	for _, classes := range assignments {
		for _, class := range classes {
			labelSet[class] = struct{}{}
		}
	}
	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	columns := append([]string{"Docente"}, labels...)
	columns = append(columns, extraColumns...)

	teachers := make([]string, 0, len(assignments))
	for teacher := range assignments {
		teachers = append(teachers, teacher)
	}
	sort.Strings(teachers)

	table := roster.Table{Columns: columns}
	for _, teacher := range teachers {
		row := make([]string, len(columns))
		row[0] = teacher
		for _, class := range assignments[teacher] {
			for i, column := range columns {
				if column == class {
					row[i] = "x"
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// disjointLetters gives each class of each letter its own teacher.
func disjointLetters(letters ...string) map[string][]string {
	assignments := map[string][]string{}
	for _, letter := range letters {
		for year := 1; year <= 5; year++ {
			class := fmt.Sprintf("%d%s", year, letter)
			assignments["T-"+class] = []string{class}
		}
	}
	return assignments
}

func TestPipelineDisjointLettersShareOneTable(t *testing.T) {
	result, err := RunCouncilPipeline(buildRoster(disjointLetters("A", "B")), PipelineOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, result.CompleteLetters)
	assert.Empty(t, result.Conflicts["A"])
	assert.Empty(t, result.Conflicts["B"])
	assert.Equal(t, []models.Group{{"A", "B"}}, result.Groups)
	require.Len(t, result.Validation, 5)
	for _, record := range result.Validation {
		assert.True(t, record.Valid)
	}
	assert.Equal(t, 0, result.InvalidRows)
	assert.Equal(t, models.DefaultMaxGroupSize, result.MaxGroupSize)
}

func TestPipelineSharedTeacherSeparatesLetters(t *testing.T) {
	assignments := disjointLetters("A", "B")
	assignments["Shared"] = []string{"3A", "3B"}

	result, err := RunCouncilPipeline(buildRoster(assignments), PipelineOptions{})
	require.NoError(t, err)

	assert.True(t, result.Conflicts.Conflicts("A", "B"))
	assert.True(t, result.Conflicts.Conflicts("B", "A"))
	assert.Equal(t, []models.Group{{"A"}, {"B"}}, result.Groups)
	assert.Equal(t, 0, result.InvalidRows)
}

func TestPipelineMutuallyConflictingLettersOpenNewGroups(t *testing.T) {
	letters := []string{"A", "B", "C", "D", "E"}
	assignments := disjointLetters(letters...)
	assignments["Everyone"] = []string{"1A", "1B", "1C", "1D", "1E"}

	result, err := RunCouncilPipeline(buildRoster(assignments), PipelineOptions{MaxGroupSize: 4})
	require.NoError(t, err)

	for _, letter := range letters {
		assert.Equal(t, 4, result.Conflicts.Degree(letter))
	}
	assert.Equal(t, []models.Group{{"A"}, {"B"}, {"C"}, {"D"}, {"E"}}, result.Groups)
	assert.Len(t, result.Validation, 25)
	assert.Equal(t, 0, result.InvalidRows)
}

func TestValidateRowsCatchesConflictingRow(t *testing.T) {
	reg := &models.ClassRegistry{Teachers: map[string]models.TeacherSet{
		"3A": models.NewTeacherSet("Rossi", "Verdi"),
		"3B": models.NewTeacherSet("Bianchi"),
		"3C": models.NewTeacherSet("Verdi", "Rossi"),
	}}
	tables := []models.CouncilTable{{
		Index:   1,
		Letters: []string{"A", "B", "C"},
		Rows: []models.TableRow{
			{Year: 2, Cells: []string{"", "", ""}},
			{Year: 3, Cells: []string{"3A", "3B", "3C"}},
		},
	}}

	records := ValidateRows(tables, reg)
	require.Len(t, records, 2)
	assert.True(t, records[0].Valid)
	assert.False(t, records[1].Valid)
	assert.Equal(t, []models.RowConflict{{ClassA: "3A", ClassB: "3C", Teachers: []string{"Rossi", "Verdi"}}}, records[1].Conflicts)
	assert.Equal(t, 1, CountInvalidRows(records))
}

func TestPipelineIgnoresMalformedClassColumns(t *testing.T) {
	table := buildRoster(disjointLetters("A"), "6A", "1a", "Note")
	table.Rows[0][len(table.Columns)-3] = "x"
	table.Rows[0][len(table.Columns)-2] = "x"

	result, err := RunCouncilPipeline(table, PipelineOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"6A", "1a", "Note"}, result.IgnoredColumns)
	assert.NotContains(t, result.ValidColumns, "6A")
	assert.NotContains(t, result.ValidColumns, "1a")
	assert.Equal(t, []string{"A"}, result.CompleteLetters)
}

func TestBuildClassRegistryErrors(t *testing.T) {
	_, err := BuildClassRegistry(roster.Table{Columns: []string{"Teacher", "1A"}}, "")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMissingColumn.Code))

	assignments := map[string][]string{"Rossi": {"1A", "2A", "3A", "4A"}}
	_, err = BuildClassRegistry(buildRoster(assignments), "Docente")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNoCompleteLetters.Code))
	assert.Contains(t, err.Error(), "A")
}

func TestBuildClassRegistryNormalisesInput(t *testing.T) {
	table := roster.Table{
		Columns: []string{"docente", "1A", " 1A ", "2A", "3A", "4A", "5A", "1B"},
		Rows: [][]string{
			{" Rossi ", "x", "", "", "", "", "", ""},
			{"Verdi", "", "x", "x", "x", "x", "x", " "},
			{"  ", "x", "x", "x", "x", "x", "x", "x"},
		},
	}

	reg, err := BuildClassRegistry(table, "Docente")
	require.NoError(t, err)

	assert.Equal(t, "docente", reg.TeacherColumn)
	assert.Equal(t, []string{"1A", "2A", "3A", "4A", "5A", "1B"}, reg.ValidColumns)
	assert.Equal(t, []string{"Rossi", "Verdi"}, reg.Teachers["1A"].Sorted())
	assert.Empty(t, reg.Teachers["1B"])
	assert.Equal(t, []string{"A"}, reg.CompleteLetters)
	assert.Equal(t, []string{"B"}, reg.IncompleteLetters)
}

func TestGroupLettersOrdersByDegreeThenLetter(t *testing.T) {
	graph := models.ConflictGraph{
		"A": {"C": {}},
		"B": {"C": {}},
		"C": {"A": {}, "B": {}},
	}
	groups := GroupLetters([]string{"B", "A", "C"}, graph, 4)
	assert.Equal(t, []models.Group{{"C"}, {"A", "B"}}, groups)
}

func TestGroupLettersRespectsMaxSize(t *testing.T) {
	graph := models.ConflictGraph{}
	letters := []string{"F", "E", "D", "C", "B", "A"}
	for _, l := range letters {
		graph[l] = models.LetterSet{}
	}

	assert.Equal(t, []models.Group{{"A", "B", "C", "D"}, {"E", "F"}}, GroupLetters(letters, graph, 0))
	assert.Equal(t, []models.Group{{"A", "B"}, {"C", "D"}, {"E", "F"}}, GroupLetters(letters, graph, 2))
}

func TestPipelineInvariants(t *testing.T) {
	assignments := disjointLetters("A", "B", "C", "D", "E", "F", "G")
	assignments["Rossi"] = []string{"2A", "2B", "4G"}
	assignments["Verdi"] = []string{"5C", "5D", "5E", "1G"}
	assignments["Neri"] = []string{"3F", "3A"}

	first, err := RunCouncilPipeline(buildRoster(assignments), PipelineOptions{MaxGroupSize: 3})
	require.NoError(t, err)
	second, err := RunCouncilPipeline(buildRoster(assignments), PipelineOptions{MaxGroupSize: 3})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for letter, neighbours := range first.Conflicts {
		for other := range neighbours {
			assert.True(t, first.Conflicts.Conflicts(other, letter), "%s-%s", letter, other)
		}
	}

	seen := map[string]int{}
	for _, group := range first.Groups {
		assert.LessOrEqual(t, len(group), 3)
		for _, letter := range group {
			seen[letter]++
		}
	}
	for _, letter := range first.CompleteLetters {
		assert.Equal(t, 1, seen[letter], letter)
	}
	assert.Len(t, seen, len(first.CompleteLetters))

	require.Len(t, first.Tables, len(first.Groups))
	for i, table := range first.Tables {
		assert.Equal(t, i+1, table.Index)
		require.Len(t, table.Rows, 5)
		for y, row := range table.Rows {
			assert.Equal(t, y+1, row.Year)
			assert.Len(t, row.Cells, len(table.Letters))
		}
		assert.Equal(t, models.GroupSummary{Table: i + 1, Letters: table.Letters, Count: len(table.Letters)}, first.Summary[i])
	}
	assert.Len(t, first.Validation, 5*len(first.Tables))
}
