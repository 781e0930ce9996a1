package service

import (
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

// GroupLetters partitions letters with a first-fit decreasing heuristic:
// letters are visited by conflict degree (highest first, ties by letter) and
// placed in the first group with room and no conflicting member, otherwise
// in a new group. maxGroupSize <= 0 selects the default of 4.
func GroupLetters(letters []string, graph models.ConflictGraph, maxGroupSize int) []models.Group {
	if maxGroupSize <= 0 {
		maxGroupSize = models.DefaultMaxGroupSize
	}

	ordered := append([]string(nil), letters...)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := graph.Degree(ordered[i]), graph.Degree(ordered[j])
		if di == dj {
			return ordered[i] < ordered[j]
		}
		return di > dj
	})

	groups := make([]models.Group, 0)
	for _, letter := range ordered {
		placed := false
		for i, group := range groups {
			if len(group) >= maxGroupSize {
				continue
			}
			clash := lo.ContainsBy(group, func(member string) bool {
				return graph.Conflicts(letter, member)
			})
			if clash {
				continue
			}
			groups[i] = append(group, letter)
			placed = true
			break
		}
		if !placed {
			groups = append(groups, models.Group{letter})
		}
	}
	return groups
}
