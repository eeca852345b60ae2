package expand

import (
	"testing"

	"github.com/forgeml/orchestrator/pkg/types"
)

func TestFanOut_CartesianProduct(t *testing.T) {
	spec := &types.JobSpec{
		ID:   "sweep",
		Type: "fan-out",
		FanOut: &types.FanOutSpec{
			Template: types.FanOutTemplate{
				Type:        "train",
				NamePattern: "train-lr${lr}-bs${bs}",
				Config: map[string]interface{}{
					"learning_rate": "${lr}",
					"batch_size":    "${bs}",
					"dataset":       "cifar10",
				},
			},
			Parameters: []types.Parameter{
				{Name: "lr", Values: []interface{}{0.001, 0.01, 0.1}},
				{Name: "bs", Values: []interface{}{16, 32}},
			},
		},
	}

	generated, err := FanOut(spec)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if len(generated) != 6 {
		t.Fatalf("expected 6 generated jobs, got %d", len(generated))
	}

	matches := 0
	for _, g := range generated {
		if g.Type != "train" {
			t.Errorf("job %s has type %s", g.ID, g.Type)
		}
		if len(g.DependsOn) != 1 || g.DependsOn[0] != "sweep" {
			t.Errorf("job %s should depend on the fan-out job, got %v", g.ID, g.DependsOn)
		}
		if g.Config["dataset"] != "cifar10" {
			t.Errorf("job %s lost untemplated config: %v", g.ID, g.Config)
		}
		// Exact-placeholder values keep their native types.
		if g.Config["learning_rate"] == 0.01 && g.Config["batch_size"] == 32 {
			matches++
			if g.ID != "train-lr0.01-bs32" {
				t.Errorf("unexpected id for lr=0.01 bs=32: %s", g.ID)
			}
		}
	}
	if matches != 1 {
		t.Errorf("combination lr=0.01 bs=32 should appear exactly once, found %d", matches)
	}
}

func TestFanOut_DeepSubstitution(t *testing.T) {
	spec := &types.JobSpec{
		ID:   "grid",
		Type: "fan-out",
		FanOut: &types.FanOutSpec{
			Template: types.FanOutTemplate{
				Type:        "train",
				NamePattern: "m-${depth}",
				Config: map[string]interface{}{
					"model": map[string]interface{}{
						"depth": "${depth}",
						"name":  "resnet-${depth}",
						"tags":  []interface{}{"sweep", "${depth}"},
					},
				},
			},
			Parameters: []types.Parameter{
				{Name: "depth", Values: []interface{}{18}},
			},
		},
	}

	generated, err := FanOut(spec)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}

	model := generated[0].Config["model"].(map[string]interface{})
	if model["depth"] != 18 {
		t.Errorf("exact placeholder should keep int type, got %T %v", model["depth"], model["depth"])
	}
	if model["name"] != "resnet-18" {
		t.Errorf("interpolation failed: %v", model["name"])
	}
	tags := model["tags"].([]interface{})
	if tags[1] != 18 {
		t.Errorf("slice substitution failed: %v", tags)
	}
}

func TestFanOut_AmbiguousNamePattern(t *testing.T) {
	spec := &types.JobSpec{
		ID: "bad",
		FanOut: &types.FanOutSpec{
			Template: types.FanOutTemplate{Type: "train", NamePattern: "same-name"},
			Parameters: []types.Parameter{
				{Name: "lr", Values: []interface{}{0.1, 0.2}},
			},
		},
	}
	if _, err := FanOut(spec); err == nil {
		t.Fatal("expected error for colliding generated ids")
	}
}

func TestAggregate_BestMetric(t *testing.T) {
	outputs := []map[string]interface{}{
		{"accuracy": 0.80, "run": "a"},
		{"accuracy": 0.95, "run": "b"},
		{"accuracy": 0.88, "run": "c"},
	}

	result, err := Aggregate(&types.FanInSpec{
		Aggregation: types.AggregateBestMetric,
		MetricField: "accuracy",
	}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result["accuracy"] != 0.95 || result["run"] != "b" {
		t.Errorf("expected the 0.95 output, got %v", result)
	}
	if result["selected_index"] != 1 {
		t.Errorf("expected selected_index 1, got %v", result["selected_index"])
	}
}

func TestAggregate_WorstMetricTieBreak(t *testing.T) {
	outputs := []map[string]interface{}{
		{"loss": 0.5, "run": "first"},
		{"loss": 0.5, "run": "second"},
		{"loss": 0.9, "run": "third"},
	}

	result, err := Aggregate(&types.FanInSpec{
		Aggregation: types.AggregateWorstMetric,
		MetricField: "loss",
	}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result["run"] != "first" {
		t.Errorf("tie should resolve to the first-generated output, got %v", result["run"])
	}
}

func TestAggregate_CollectAllPreservesOrder(t *testing.T) {
	outputs := []map[string]interface{}{
		{"i": 0}, {"i": 1}, {"i": 2},
	}
	result, err := Aggregate(&types.FanInSpec{Aggregation: types.AggregateCollectAll}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	collected := result["outputs"].([]interface{})
	for i, item := range collected {
		if item.(map[string]interface{})["i"] != i {
			t.Errorf("order not preserved at %d: %v", i, item)
		}
	}
	if result["count"] != 3 {
		t.Errorf("wrong count: %v", result["count"])
	}
}

func TestAggregate_AverageMetrics(t *testing.T) {
	outputs := []map[string]interface{}{
		{"accuracy": 0.8, "loss": 0.4, "note": "skip me"},
		{"accuracy": 0.9, "loss": 0.2},
	}
	result, err := Aggregate(&types.FanInSpec{Aggregation: types.AggregateAverageMetrics}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	averages := result["averages"].(map[string]interface{})
	if avg := averages["accuracy"].(float64); avg < 0.8499 || avg > 0.8501 {
		t.Errorf("wrong accuracy mean: %v", avg)
	}
	if avg := averages["loss"].(float64); avg < 0.2999 || avg > 0.3001 {
		t.Errorf("wrong loss mean: %v", avg)
	}
	if _, ok := averages["note"]; ok {
		t.Error("non-numeric fields must not be averaged")
	}
}

func TestAggregate_MajorityVote(t *testing.T) {
	outputs := []map[string]interface{}{
		{"label": "cat"},
		{"label": "dog"},
		{"label": "cat"},
	}
	result, err := Aggregate(&types.FanInSpec{
		Aggregation: types.AggregateMajorityVote,
		MetricField: "label",
	}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result["value"] != "cat" || result["votes"] != 2 {
		t.Errorf("unexpected vote result: %v", result)
	}
}

func TestAggregate_CustomReducer(t *testing.T) {
	outputs := []map[string]interface{}{
		{"n": 1}, {"n": 2}, {"n": 3},
	}
	result, err := Aggregate(&types.FanInSpec{
		Aggregation: types.AggregateCustom,
		Reducer: func(outs []map[string]interface{}) (map[string]interface{}, error) {
			sum := 0
			for _, o := range outs {
				sum += o["n"].(int)
			}
			return map[string]interface{}{"sum": sum}, nil
		},
	}, outputs)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if result["sum"] != 6 {
		t.Errorf("custom reducer result: %v", result)
	}
}
