// Package expand turns fan-out templates into concrete job sets and resolves
// fan-in aggregation over their outputs.
package expand

import (
	"fmt"
	"strings"

	"github.com/forgeml/orchestrator/pkg/types"
)

// FanOut computes the Cartesian product of the fan-out's parameter value
// lists and instantiates the template once per combination. Generated jobs
// depend on the fan-out job itself; their ids are returned in generation
// order, which fan-in tie-breaking relies on.
func FanOut(spec *types.JobSpec) ([]types.JobSpec, error) {
	fo := spec.FanOut
	if fo == nil {
		return nil, fmt.Errorf("job %s has no fan_out config", spec.ID)
	}
	if fo.Template.Type == "" {
		return nil, fmt.Errorf("job %s: fan_out template has no type", spec.ID)
	}
	if fo.Template.NamePattern == "" {
		return nil, fmt.Errorf("job %s: fan_out template has no name pattern", spec.ID)
	}
	for _, p := range fo.Parameters {
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("job %s: parameter %q has no values", spec.ID, p.Name)
		}
	}

	combos := cartesian(fo.Parameters)
	generated := make([]types.JobSpec, 0, len(combos))
	seen := make(map[string]bool, len(combos))

	for _, combo := range combos {
		id := substituteString(fo.Template.NamePattern, combo)
		if seen[id] {
			return nil, fmt.Errorf("job %s: name pattern %q does not distinguish combination %v", spec.ID, fo.Template.NamePattern, combo)
		}
		seen[id] = true

		generated = append(generated, types.JobSpec{
			ID:        id,
			Type:      fo.Template.Type,
			DependsOn: []string{spec.ID},
			Config:    substituteMap(fo.Template.Config, combo),
			Retry:     fo.Template.Retry,
			Timeout:   fo.Template.Timeout,
			Resources: fo.Template.Resources,
		})
	}

	return generated, nil
}

// cartesian enumerates all combinations in odometer order: the last
// parameter varies fastest, so generation order is deterministic.
func cartesian(params []types.Parameter) []map[string]interface{} {
	total := 1
	for _, p := range params {
		total *= len(p.Values)
	}

	combos := make([]map[string]interface{}, 0, total)
	idx := make([]int, len(params))
	for {
		combo := make(map[string]interface{}, len(params))
		for i, p := range params {
			combo[p.Name] = p.Values[idx[i]]
		}
		combos = append(combos, combo)

		pos := len(params) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(params[pos].Values) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return combos
}

// substituteString replaces every ${name} placeholder with the rendered
// parameter value.
func substituteString(s string, params map[string]interface{}) string {
	for name, value := range params {
		s = strings.ReplaceAll(s, "${"+name+"}", fmt.Sprint(value))
	}
	return s
}

// substituteValue resolves placeholders through a config tree. A string that
// is exactly one placeholder keeps the parameter's native type; anything
// else interpolates. Maps and slices are walked recursively.
func substituteValue(v interface{}, params map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") && strings.Count(val, "${") == 1 {
			name := val[2 : len(val)-1]
			if raw, ok := params[name]; ok {
				return raw
			}
		}
		return substituteString(val, params)
	case map[string]interface{}:
		return substituteMap(val, params)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, params)
		}
		return out
	default:
		return v
	}
}

func substituteMap(m map[string]interface{}, params map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[substituteString(k, params)] = substituteValue(v, params)
	}
	return out
}
