package types

import "time"

// AggregationStrategy selects how a fan-in job reduces sibling outputs.
type AggregationStrategy string

const (
	AggregateCollectAll     AggregationStrategy = "collect-all"
	AggregateBestMetric     AggregationStrategy = "best-metric"
	AggregateWorstMetric    AggregationStrategy = "worst-metric"
	AggregateAverageMetrics AggregationStrategy = "average-metrics"
	AggregateMajorityVote   AggregationStrategy = "majority-vote"
	AggregateCustom         AggregationStrategy = "custom"
)

// Parameter is one axis of a fan-out expansion.
type Parameter struct {
	Name   string        `json:"name"`
	Values []interface{} `json:"values"`
}

// FanOutTemplate is the blueprint for each generated job. ${name}
// placeholders in NamePattern and throughout Config are substituted with the
// parameter values of one combination.
type FanOutTemplate struct {
	Type        string                 `json:"type"`
	NamePattern string                 `json:"name_pattern"`
	Config      map[string]interface{} `json:"config,omitempty"`
	Retry       *RetryPolicy           `json:"retry,omitempty"`
	Timeout     time.Duration          `json:"timeout,omitempty"`
	Resources   *ResourceLimits        `json:"resources,omitempty"`
}

// FanOutSpec expands one job into the Cartesian product of its parameter
// value lists. Generated jobs depend on the fan-out job itself.
type FanOutSpec struct {
	Template   FanOutTemplate `json:"template"`
	Parameters []Parameter    `json:"parameters"`
}

// ReducerFunc is a caller-supplied custom aggregation over sibling outputs,
// in generation order.
type ReducerFunc func(outputs []map[string]interface{}) (map[string]interface{}, error)

// FanInSpec aggregates the outputs of every job generated by the referenced
// fan-out. It cannot dispatch until all generated siblings are terminal.
type FanInSpec struct {
	// Source is the id of the paired fan-out job.
	Source      string              `json:"source"`
	Aggregation AggregationStrategy `json:"aggregation"`

	// MetricField names the numeric field used by best-metric, worst-metric
	// and majority-vote.
	MetricField string `json:"metric_field,omitempty"`

	// ReducerName resolves a reducer registered with the engine; Reducer is
	// used directly when set. Only consulted for AggregateCustom.
	ReducerName string      `json:"reducer_name,omitempty"`
	Reducer     ReducerFunc `json:"-"`
}
