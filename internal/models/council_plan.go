package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PlanResult is the complete output of one planner run.
type PlanResult struct {
	TeacherColumn     string          `json:"teacher_column"`
	MaxGroupSize      int             `json:"max_group_size"`
	ValidColumns      []string        `json:"valid_columns"`
	IgnoredColumns    []string        `json:"ignored_columns"`
	CompleteLetters   []string        `json:"complete_letters"`
	IncompleteLetters []string        `json:"incomplete_letters"`
	Conflicts         ConflictGraph   `json:"conflicts"`
	Groups            []Group         `json:"groups"`
	Tables            []CouncilTable  `json:"tables"`
	Summary           []GroupSummary  `json:"summary"`
	Validation        []RowValidation `json:"validation"`
	InvalidRows       int             `json:"invalid_rows"`
}

// Valid reports whether every assembled row passed validation.
func (r PlanResult) Valid() bool {
	return r.InvalidRows == 0
}

// Value marshals the result to JSON for persistence.
func (r PlanResult) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal plan result: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the result.
func (r *PlanResult) Scan(value interface{}) error {
	if value == nil {
		*r = PlanResult{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for PlanResult", value)
	}
	if len(data) == 0 {
		*r = PlanResult{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal plan result: %w", err)
	}
	return nil
}

// PlanRun is a persisted planner invocation.
type PlanRun struct {
	ID            string     `db:"id" json:"id"`
	Fingerprint   string     `db:"fingerprint" json:"fingerprint"`
	Source        string     `db:"source" json:"source"`
	TeacherColumn string     `db:"teacher_column" json:"teacher_column"`
	MaxGroupSize  int        `db:"max_group_size" json:"max_group_size"`
	GroupCount    int        `db:"group_count" json:"group_count"`
	InvalidRows   int        `db:"invalid_rows" json:"invalid_rows"`
	Result        PlanResult `db:"result" json:"result"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// PlanRunSummary is the listing view of a run without its result body.
type PlanRunSummary struct {
	ID            string    `db:"id" json:"id"`
	Fingerprint   string    `db:"fingerprint" json:"fingerprint"`
	Source        string    `db:"source" json:"source"`
	TeacherColumn string    `db:"teacher_column" json:"teacher_column"`
	MaxGroupSize  int       `db:"max_group_size" json:"max_group_size"`
	GroupCount    int       `db:"group_count" json:"group_count"`
	InvalidRows   int       `db:"invalid_rows" json:"invalid_rows"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Summary strips the result body.
func (r PlanRun) Summary() PlanRunSummary {
	return PlanRunSummary{
		ID:            r.ID,
		Fingerprint:   r.Fingerprint,
		Source:        r.Source,
		TeacherColumn: r.TeacherColumn,
		MaxGroupSize:  r.MaxGroupSize,
		GroupCount:    r.GroupCount,
		InvalidRows:   r.InvalidRows,
		CreatedAt:     r.CreatedAt,
	}
}
