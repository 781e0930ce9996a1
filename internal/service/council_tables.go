package service

import (
	"github.com/samber/lo"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

// AssembleTables lays each group out as a year by letter grid. Missing
// classes become empty cells.
func AssembleTables(groups []models.Group, reg *models.ClassRegistry) []models.CouncilTable {
	tables := make([]models.CouncilTable, 0, len(groups))
	for i, group := range groups {
		table := models.CouncilTable{
			Index:   i + 1,
			Letters: append([]string(nil), group...),
			Rows:    make([]models.TableRow, 0, models.LastYear-models.FirstYear+1),
		}
		for year := models.FirstYear; year <= models.LastYear; year++ {
			cells := lo.Map(group, func(letter string, _ int) string {
				label, ok := reg.Label(year, letter)
				if !ok {
					return ""
				}
				return label
			})
			table.Rows = append(table.Rows, models.TableRow{Year: year, Cells: cells})
		}
		tables = append(tables, table)
	}
	return tables
}

// SummarizeTables lists the letters and size of each table.
func SummarizeTables(tables []models.CouncilTable) []models.GroupSummary {
	return lo.Map(tables, func(table models.CouncilTable, _ int) models.GroupSummary {
		return models.GroupSummary{Table: table.Index, Letters: table.Letters, Count: len(table.Letters)}
	})
}
