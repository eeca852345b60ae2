// Package graph provides structural validation and topological leveling for
// job pipelines.
package graph

import (
	"fmt"
	"sort"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Levels computes the topological levels of a pipeline using Kahn's
// algorithm. Each level holds the ids of jobs whose dependencies all lie in
// earlier levels, so every job within a level is safe to run in parallel.
// Duplicate ids, references to unknown ids and cycles are fatal.
func Levels(specs []types.JobSpec) ([][]string, error) {
	return levelsWithSatisfied(specs, nil)
}

// LevelsResumed computes levels for a partially executed pipeline.
// Dependencies on ids in done are treated as already satisfied, which is how
// a checkpoint's terminal jobs are excluded from the remaining graph.
func LevelsResumed(specs []types.JobSpec, done map[string]bool) ([][]string, error) {
	return levelsWithSatisfied(specs, done)
}

// Validate runs the structural checks without returning the levels.
func Validate(specs []types.JobSpec) error {
	_, err := Levels(specs)
	return err
}

func levelsWithSatisfied(specs []types.JobSpec, satisfied map[string]bool) ([][]string, error) {
	known := make(map[string]bool, len(specs))
	var dups []string
	for i := range specs {
		id := specs[i].ID
		if id == "" {
			return nil, &types.ValidationError{Reason: "job with empty id"}
		}
		if known[id] {
			dups = append(dups, id)
		}
		known[id] = true
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, &types.ValidationError{Reason: "duplicate job ids", IDs: dups}
	}

	// Adjacency and indegree, ignoring satisfied (already terminal) deps.
	dependents := make(map[string][]string, len(specs))
	indegree := make(map[string]int, len(specs))
	var dangling []string
	for i := range specs {
		id := specs[i].ID
		indegree[id] += 0
		for _, dep := range specs[i].DependsOn {
			if satisfied[dep] {
				continue
			}
			if !known[dep] {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", id, dep))
				continue
			}
			dependents[dep] = append(dependents[dep], id)
			indegree[id]++
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return nil, &types.ValidationError{Reason: "unknown dependencies", IDs: dangling}
	}

	// Successive rounds of zero-indegree removal. Each round is one level.
	var levels [][]string
	remaining := len(specs)
	for remaining > 0 {
		var level []string
		for id, deg := range indegree {
			if deg == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			// Whatever is left participates in (or depends on) a cycle.
			var cycle []string
			for id := range indegree {
				cycle = append(cycle, id)
			}
			sort.Strings(cycle)
			return nil, &types.ValidationError{Reason: "dependency cycle", IDs: cycle}
		}
		sort.Strings(level)
		for _, id := range level {
			delete(indegree, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		levels = append(levels, level)
		remaining -= len(level)
	}

	return levels, nil
}

// Dependents builds the downstream adjacency map: job id to the set of ids
// that depend on it, directly or via a fan-in source reference.
func Dependents(specs []types.JobSpec) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(specs))
	for i := range specs {
		out[specs[i].ID] = make(map[string]bool)
	}
	for i := range specs {
		for _, dep := range specs[i].DependsOn {
			if _, ok := out[dep]; ok {
				out[dep][specs[i].ID] = true
			}
		}
	}
	return out
}
