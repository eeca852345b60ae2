package engine

import (
	"testing"
)

func TestExprEvaluator_Evaluate(t *testing.T) {
	eval := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		env        map[string]interface{}
		want       interface{}
		wantErr    bool
	}{
		{
			name:       "simple arithmetic",
			expression: "1 + 2",
			env:        map[string]interface{}{},
			want:       3,
			wantErr:    false,
		},
		{
			name:       "variable access",
			expression: "x + y",
			env:        map[string]interface{}{"x": 10, "y": 5},
			want:       15,
			wantErr:    false,
		},
		{
			name:       "comparison",
			expression: "accuracy > 0.8",
			env:        map[string]interface{}{"accuracy": 0.9},
			want:       true,
			wantErr:    false,
		},
		{
			name:       "nested output access",
			expression: "outputs.train.status",
			env: map[string]interface{}{
				"outputs": map[string]interface{}{
					"train": map[string]interface{}{
						"status": "converged",
					},
				},
			},
			want:    "converged",
			wantErr: false,
		},
		{
			name:       "ternary operator",
			expression: "deploy ? 'prod' : 'staging'",
			env:        map[string]interface{}{"deploy": true},
			want:       "prod",
			wantErr:    false,
		},
		{
			name:       "complex condition",
			expression: "status == 'complete' && retries < 3",
			env:        map[string]interface{}{"status": "complete", "retries": 1},
			want:       true,
			wantErr:    false,
		},
		{
			name:       "invalid expression",
			expression: "invalid syntax !!!",
			env:        map[string]interface{}{},
			want:       nil,
			wantErr:    true,
		},
		{
			name:       "undefined variable",
			expression: "undefined_var",
			env:        map[string]interface{}{},
			want:       nil,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(tt.expression, tt.env)
			if (err != nil) != tt.wantErr {
				t.Errorf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Evaluate() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestExprEvaluator_EvaluateBool(t *testing.T) {
	eval := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		env        map[string]interface{}
		want       bool
		wantErr    bool
	}{
		{
			name:       "true condition",
			expression: "x > 5",
			env:        map[string]interface{}{"x": 10},
			want:       true,
		},
		{
			name:       "false condition",
			expression: "x > 5",
			env:        map[string]interface{}{"x": 3},
			want:       false,
		},
		{
			name:       "int truthy",
			expression: "count",
			env:        map[string]interface{}{"count": 5},
			want:       true,
		},
		{
			name:       "int falsy",
			expression: "count",
			env:        map[string]interface{}{"count": 0},
			want:       false,
		},
		{
			name:       "string truthy",
			expression: "name",
			env:        map[string]interface{}{"name": "test"},
			want:       true,
		},
		{
			name:       "string falsy",
			expression: "name",
			env:        map[string]interface{}{"name": ""},
			want:       false,
		},
		{
			name:       "nil value",
			expression: "value",
			env:        map[string]interface{}{"value": nil},
			want:       false,
		},
		{
			name:       "float truthy",
			expression: "score",
			env:        map[string]interface{}{"score": 0.5},
			want:       true,
		},
		{
			name:       "complex boolean expression",
			expression: "(a && b) || c",
			env:        map[string]interface{}{"a": true, "b": false, "c": true},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateBool(tt.expression, tt.env)
			if (err != nil) != tt.wantErr {
				t.Errorf("EvaluateBool() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("EvaluateBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExprEvaluator_Caching(t *testing.T) {
	eval := NewExprEvaluator()

	result1, err := eval.Evaluate("x + 1", map[string]interface{}{"x": 5})
	if err != nil {
		t.Fatalf("First evaluation failed: %v", err)
	}
	if result1 != 6 {
		t.Errorf("First result = %v, want 6", result1)
	}

	// Same expression with a different environment reuses the program.
	result2, err := eval.Evaluate("x + 1", map[string]interface{}{"x": 10})
	if err != nil {
		t.Fatalf("Second evaluation failed: %v", err)
	}
	if result2 != 11 {
		t.Errorf("Second result = %v, want 11", result2)
	}

	eval.mu.RLock()
	_, cached := eval.compiled["x + 1"]
	eval.mu.RUnlock()
	if !cached {
		t.Error("Expression should be cached")
	}
}

func TestExprEvaluator_MaxLength(t *testing.T) {
	eval := NewExprEvaluator()
	eval.MaxExpressionLength = 10

	if _, err := eval.Evaluate("1 + 2", map[string]interface{}{}); err != nil {
		t.Errorf("Short expression should not error: %v", err)
	}

	if _, err := eval.Evaluate("this_is_a_very_long_expression_that_exceeds_limit", map[string]interface{}{}); err == nil {
		t.Error("Long expression should return error")
	}
}

func TestBuildEnvironment(t *testing.T) {
	depOutputs := map[string]map[string]interface{}{
		"train":    {"accuracy": 0.93, "epochs": 10},
		"evaluate": {"passed": true},
	}
	contextVars := map[string]interface{}{"execution_id": "exec-123"}

	env := BuildEnvironment(depOutputs, contextVars)

	outputs, ok := env["outputs"].(map[string]map[string]interface{})
	if !ok {
		t.Fatal("outputs should be map[string]map[string]interface{}")
	}
	if outputs["train"]["accuracy"] != 0.93 {
		t.Error("outputs.train.accuracy should be 0.93")
	}

	ctx, ok := env["context"].(map[string]interface{})
	if !ok {
		t.Fatal("context should be map[string]interface{}")
	}
	if ctx["execution_id"] != "exec-123" {
		t.Error("context.execution_id should be exec-123")
	}
}

func TestBuildEnvironment_NilInputs(t *testing.T) {
	env := BuildEnvironment(nil, nil)

	if _, ok := env["outputs"]; !ok {
		t.Error("outputs should exist even when nil")
	}
	if _, ok := env["context"]; !ok {
		t.Error("context should exist even when nil")
	}
}
