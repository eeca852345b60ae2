package expand

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Aggregate reduces the outputs of a fan-out's generated jobs, in generation
// order, according to the fan-in's strategy. Ties in metric and vote
// strategies are broken by the first-generated output.
func Aggregate(spec *types.FanInSpec, outputs []map[string]interface{}) (map[string]interface{}, error) {
	switch spec.Aggregation {
	case types.AggregateCollectAll:
		collected := make([]interface{}, len(outputs))
		for i, out := range outputs {
			collected[i] = out
		}
		return map[string]interface{}{
			"outputs": collected,
			"count":   len(outputs),
		}, nil

	case types.AggregateBestMetric:
		return selectByMetric(spec, outputs, true)

	case types.AggregateWorstMetric:
		return selectByMetric(spec, outputs, false)

	case types.AggregateAverageMetrics:
		return averageMetrics(outputs), nil

	case types.AggregateMajorityVote:
		return majorityVote(spec, outputs)

	case types.AggregateCustom:
		if spec.Reducer == nil {
			return nil, fmt.Errorf("custom aggregation without a reducer")
		}
		return spec.Reducer(outputs)

	default:
		return nil, fmt.Errorf("unknown aggregation strategy %q", spec.Aggregation)
	}
}

func selectByMetric(spec *types.FanInSpec, outputs []map[string]interface{}, best bool) (map[string]interface{}, error) {
	if spec.MetricField == "" {
		return nil, fmt.Errorf("%s aggregation requires a metric field", spec.Aggregation)
	}

	chosen := -1
	var chosenVal float64
	for i, out := range outputs {
		val, ok := numericField(out, spec.MetricField)
		if !ok {
			continue
		}
		if chosen == -1 || (best && val > chosenVal) || (!best && val < chosenVal) {
			chosen = i
			chosenVal = val
		}
	}
	if chosen == -1 {
		return nil, fmt.Errorf("no output carries numeric field %q", spec.MetricField)
	}

	result := make(map[string]interface{}, len(outputs[chosen])+1)
	for k, v := range outputs[chosen] {
		result[k] = v
	}
	result["selected_index"] = chosen
	return result, nil
}

func averageMetrics(outputs []map[string]interface{}) map[string]interface{} {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, out := range outputs {
		for k, v := range out {
			if f, ok := toFloat(v); ok {
				sums[k] += f
				counts[k]++
			}
		}
	}

	averages := make(map[string]interface{}, len(sums))
	for k, sum := range sums {
		averages[k] = sum / float64(counts[k])
	}
	return map[string]interface{}{
		"averages": averages,
		"count":    len(outputs),
	}
}

func majorityVote(spec *types.FanInSpec, outputs []map[string]interface{}) (map[string]interface{}, error) {
	if spec.MetricField == "" {
		return nil, fmt.Errorf("majority-vote aggregation requires a metric field")
	}

	// Ballot keys are rendered values; the first-seen order breaks ties.
	votes := make(map[string]int)
	firstSeen := make(map[string]int)
	values := make(map[string]interface{})
	for i, out := range outputs {
		v, ok := out[spec.MetricField]
		if !ok {
			continue
		}
		key := fmt.Sprint(v)
		if _, seen := votes[key]; !seen {
			firstSeen[key] = i
			values[key] = v
		}
		votes[key]++
	}
	if len(votes) == 0 {
		return nil, fmt.Errorf("no output carries field %q", spec.MetricField)
	}

	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if votes[keys[a]] != votes[keys[b]] {
			return votes[keys[a]] > votes[keys[b]]
		}
		return firstSeen[keys[a]] < firstSeen[keys[b]]
	})

	winner := keys[0]
	return map[string]interface{}{
		"value": values[winner],
		"votes": votes[winner],
		"total": len(outputs),
	}, nil
}

func numericField(out map[string]interface{}, field string) (float64, bool) {
	v, ok := out[field]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
