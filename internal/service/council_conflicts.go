package service

import (
	"github.com/noah-isme/sma-council-planner/internal/models"
)

// BuildConflictGraph marks two complete letters as conflicting when, for
// some year, their classes share a teacher. Every complete letter gets an
// entry, empty when it conflicts with nothing.
func BuildConflictGraph(reg *models.ClassRegistry) models.ConflictGraph {
	graph := make(models.ConflictGraph, len(reg.CompleteLetters))
	for _, letter := range reg.CompleteLetters {
		graph[letter] = models.LetterSet{}
	}

	letters := reg.CompleteLetters
	for i := 0; i < len(letters); i++ {
		for j := i + 1; j < len(letters); j++ {
			if lettersShareTeacher(reg, letters[i], letters[j]) {
				graph[letters[i]][letters[j]] = struct{}{}
				graph[letters[j]][letters[i]] = struct{}{}
			}
		}
	}
	return graph
}

func lettersShareTeacher(reg *models.ClassRegistry, a, b string) bool {
	for year := models.FirstYear; year <= models.LastYear; year++ {
		labelA, okA := reg.Label(year, a)
		labelB, okB := reg.Label(year, b)
		if !okA || !okB {
			continue
		}
		if reg.TeachersOf(labelA).Intersects(reg.TeachersOf(labelB)) {
			return true
		}
	}
	return false
}
