package service

import (
	"github.com/samber/lo"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

// ValidateRows checks every assembled row independently of how the groups
// were formed. A row is valid when no two of its classes share a teacher;
// rows with fewer than two classes are trivially valid.
func ValidateRows(tables []models.CouncilTable, reg *models.ClassRegistry) []models.RowValidation {
	results := make([]models.RowValidation, 0)
	for _, table := range tables {
		for _, row := range table.Rows {
			labels := lo.Compact(row.Cells)
			record := models.RowValidation{Table: table.Index, Year: row.Year, Valid: true}
			for i := 0; i < len(labels); i++ {
				for j := i + 1; j < len(labels); j++ {
					shared := reg.TeachersOf(labels[i]).Shared(reg.TeachersOf(labels[j]))
					if len(shared) == 0 {
						continue
					}
					record.Valid = false
					record.Conflicts = append(record.Conflicts, models.RowConflict{
						ClassA:   labels[i],
						ClassB:   labels[j],
						Teachers: shared,
					})
				}
			}
			results = append(results, record)
		}
	}
	return results
}

// CountInvalidRows returns how many records failed validation.
func CountInvalidRows(records []models.RowValidation) int {
	return lo.CountBy(records, func(r models.RowValidation) bool { return !r.Valid })
}
