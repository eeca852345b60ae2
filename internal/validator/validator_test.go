package validator

import (
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return v
}

func TestValidatePipeline_Valid(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{
		"name": "training",
		"jobs": [
			{"id": "prepare", "type": "prepare-data"},
			{"id": "train", "type": "train-model", "depends_on": ["prepare"],
			 "retry": {"max_retries": 2},
			 "config": {"epochs": 10}},
			{"id": "evaluate", "type": "evaluate", "depends_on": ["train"],
			 "condition": {"expression": "outputs.train.accuracy > 0.8"}}
		]
	}`))

	if !result.Valid {
		t.Fatalf("expected valid, got errors: %+v", result.Errors)
	}
}

func TestValidatePipeline_MissingJobs(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{"name": "empty"}`))
	if result.Valid {
		t.Fatal("pipeline without jobs should be invalid")
	}
}

func TestValidatePipeline_BadJobID(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{
		"jobs": [{"id": "1-starts-with-digit", "type": "noop"}]
	}`))
	if result.Valid {
		t.Fatal("job id starting with a digit should be invalid")
	}
}

func TestValidatePipeline_BadAggregation(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{
		"jobs": [
			{"id": "sweep", "fan_out": {
				"template": {"type": "train", "name_pattern": "train-${lr}"},
				"parameters": [{"name": "lr", "values": [0.1, 0.01]}]
			}},
			{"id": "pick", "depends_on": ["sweep"],
			 "fan_in": {"source": "sweep", "aggregation": "not-a-strategy"}}
		]
	}`))
	if result.Valid {
		t.Fatal("unknown aggregation strategy should be invalid")
	}
}

func TestValidatePipeline_FanOutNeedsParameters(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{
		"jobs": [
			{"id": "sweep", "fan_out": {"template": {"type": "train"}}}
		]
	}`))
	if result.Valid {
		t.Fatal("fan-out without parameters should be invalid")
	}
}

func TestValidatePipeline_InvalidJSON(t *testing.T) {
	v := newValidator(t)

	result := v.ValidatePipelineJSON([]byte(`{not json`))
	if result.Valid {
		t.Fatal("malformed JSON should be invalid")
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected at least one error")
	}
}
