package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// FirstYear and LastYear bound the school years a class may belong to.
	FirstYear = 1
	LastYear  = 5
	// DefaultMaxGroupSize is the number of letters per council table.
	DefaultMaxGroupSize = 4
	// DefaultTeacherColumn names the roster column holding teacher names.
	DefaultTeacherColumn = "Docente"
)

var classLabelPattern = regexp.MustCompile(`^[1-5][A-Z]$`)

// ClassLabel identifies a class by year and section letter, e.g. 3B.
type ClassLabel struct {
	Year   int    `json:"year"`
	Letter string `json:"letter"`
}

// ParseClassLabel accepts a trimmed header of the form <year><letter>.
func ParseClassLabel(raw string) (ClassLabel, bool) {
	trimmed := strings.TrimSpace(raw)
	if !classLabelPattern.MatchString(trimmed) {
		return ClassLabel{}, false
	}
	return ClassLabel{Year: int(trimmed[0] - '0'), Letter: trimmed[1:]}, true
}

// String renders the canonical label.
func (l ClassLabel) String() string {
	return fmt.Sprintf("%d%s", l.Year, l.Letter)
}

// TeacherSet is the set of teachers assigned to one class.
type TeacherSet map[string]struct{}

// NewTeacherSet builds a set from names.
func NewTeacherSet(names ...string) TeacherSet {
	set := make(TeacherSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s TeacherSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether the sets share at least one teacher.
func (s TeacherSet) Intersects(other TeacherSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for name := range small {
		if large.Has(name) {
			return true
		}
	}
	return false
}

// Shared returns the sorted intersection.
func (s TeacherSet) Shared(other TeacherSet) []string {
	shared := make([]string, 0)
	for name := range s {
		if other.Has(name) {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)
	return shared
}

// Sorted returns the members in ascending order.
func (s TeacherSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted array.
func (s TeacherSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of names.
func (s *TeacherSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewTeacherSet(names...)
	return nil
}

// ClassRegistry is the validated view of a roster: which classes exist,
// who teaches them and which letters cover every year.
type ClassRegistry struct {
	TeacherColumn     string                `json:"teacher_column"`
	ValidColumns      []string              `json:"valid_columns"`
	IgnoredColumns    []string              `json:"ignored_columns"`
	Teachers          map[string]TeacherSet `json:"teachers"`
	CompleteLetters   []string              `json:"complete_letters"`
	IncompleteLetters []string              `json:"incomplete_letters"`
}

// Label returns the class label for (year, letter) when that class exists.
func (r *ClassRegistry) Label(year int, letter string) (string, bool) {
	label := ClassLabel{Year: year, Letter: letter}.String()
	_, ok := r.Teachers[label]
	return label, ok
}

// TeachersOf returns the teacher set of a class label, empty when unknown.
func (r *ClassRegistry) TeachersOf(label string) TeacherSet {
	if set, ok := r.Teachers[label]; ok {
		return set
	}
	return TeacherSet{}
}

// LetterSet is a set of section letters.
type LetterSet map[string]struct{}

// Has reports membership.
func (s LetterSet) Has(letter string) bool {
	_, ok := s[letter]
	return ok
}

// Sorted returns the members in ascending order.
func (s LetterSet) Sorted() []string {
	letters := make([]string, 0, len(s))
	for letter := range s {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	return letters
}

// MarshalJSON encodes the set as a sorted array.
func (s LetterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of letters.
func (s *LetterSet) UnmarshalJSON(data []byte) error {
	var letters []string
	if err := json.Unmarshal(data, &letters); err != nil {
		return err
	}
	set := make(LetterSet, len(letters))
	for _, letter := range letters {
		set[letter] = struct{}{}
	}
	*s = set
	return nil
}

// ConflictGraph maps each complete letter to the letters it cannot share a
// table with. The relation is symmetric and every letter has an entry.
type ConflictGraph map[string]LetterSet

// Degree is the number of letters conflicting with letter.
func (g ConflictGraph) Degree(letter string) int {
	return len(g[letter])
}

// Conflicts reports whether a and b share a teacher in some year.
func (g ConflictGraph) Conflicts(a, b string) bool {
	return g[a].Has(b)
}

// Group is an ordered list of letters that share one council table.
type Group []string

// TableRow is one year of a council table. Cells align with the table letters.
type TableRow struct {
	Year  int      `json:"year"`
	Cells []string `json:"cells"`
}

// CouncilTable is the year by letter grid of one group, numbered from 1.
type CouncilTable struct {
	Index   int        `json:"index"`
	Letters []string   `json:"letters"`
	Rows    []TableRow `json:"rows"`
}

// RowConflict names two classes in the same row that share teachers.
type RowConflict struct {
	ClassA   string   `json:"class_a"`
	ClassB   string   `json:"class_b"`
	Teachers []string `json:"teachers"`
}

// RowValidation is the verdict for one (table, year) row.
type RowValidation struct {
	Table     int           `json:"table"`
	Year      int           `json:"year"`
	Valid     bool          `json:"valid"`
	Conflicts []RowConflict `json:"conflicts,omitempty"`
}

// GroupSummary describes one table for overview listings.
type GroupSummary struct {
	Table   int      `json:"table"`
	Letters []string `json:"letters"`
	Count   int      `json:"count"`
}
