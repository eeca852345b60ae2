package graph

import (
	"errors"
	"testing"

	"github.com/forgeml/orchestrator/pkg/types"
)

func spec(id string, deps ...string) types.JobSpec {
	return types.JobSpec{ID: id, Type: "task", DependsOn: deps}
}

func levelOf(levels [][]string, id string) int {
	for i, level := range levels {
		for _, x := range level {
			if x == id {
				return i
			}
		}
	}
	return -1
}

func TestLevels_RespectsDependencies(t *testing.T) {
	specs := []types.JobSpec{
		spec("preprocess"),
		spec("train", "preprocess"),
		spec("validate", "train"),
		spec("deploy", "validate"),
		spec("report", "preprocess"),
	}

	levels, err := Levels(specs)
	if err != nil {
		t.Fatalf("Levels failed: %v", err)
	}

	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if levelOf(levels, s.ID) <= levelOf(levels, dep) {
				t.Errorf("job %s scheduled at level %d, not after dependency %s at level %d",
					s.ID, levelOf(levels, s.ID), dep, levelOf(levels, dep))
			}
		}
	}

	// train and report share no dependency chain, so they land on one level.
	if levelOf(levels, "train") != levelOf(levels, "report") {
		t.Errorf("expected train and report on the same level, got %d and %d",
			levelOf(levels, "train"), levelOf(levels, "report"))
	}
}

func TestLevels_SingleLevelForIndependentJobs(t *testing.T) {
	levels, err := Levels([]types.JobSpec{spec("a"), spec("b"), spec("c")})
	if err != nil {
		t.Fatalf("Levels failed: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 3 {
		t.Fatalf("expected one level of 3 jobs, got %v", levels)
	}
}

func TestLevels_CycleReported(t *testing.T) {
	specs := []types.JobSpec{
		spec("a", "c"),
		spec("b", "a"),
		spec("c", "b"),
		spec("standalone"),
	}

	_, err := Levels(specs)
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.IDs) == 0 {
		t.Fatal("cycle error names no ids")
	}
	named := false
	for _, id := range verr.IDs {
		if id == "a" || id == "b" || id == "c" {
			named = true
		}
	}
	if !named {
		t.Errorf("cycle error should name at least one cycle member, got %v", verr.IDs)
	}
}

func TestLevels_DuplicateIDs(t *testing.T) {
	_, err := Levels([]types.JobSpec{spec("a"), spec("a")})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLevels_DanglingDependency(t *testing.T) {
	_, err := Levels([]types.JobSpec{spec("a", "ghost")})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLevelsResumed_SatisfiedDepsExcluded(t *testing.T) {
	remaining := []types.JobSpec{
		spec("validate", "train"),
		spec("deploy", "validate"),
	}

	levels, err := LevelsResumed(remaining, map[string]bool{"train": true})
	if err != nil {
		t.Fatalf("LevelsResumed failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", levels)
	}
	if levels[0][0] != "validate" || levels[1][0] != "deploy" {
		t.Errorf("unexpected leveling: %v", levels)
	}
}

func TestDependents(t *testing.T) {
	deps := Dependents([]types.JobSpec{
		spec("a"),
		spec("b", "a"),
		spec("c", "a", "b"),
	})

	if !deps["a"]["b"] || !deps["a"]["c"] || !deps["b"]["c"] {
		t.Errorf("unexpected dependents map: %v", deps)
	}
	if len(deps["c"]) != 0 {
		t.Errorf("leaf job should have no dependents: %v", deps["c"])
	}
}
