package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key computes the content-addressable cache key for a job: a hash over the
// job type, its config, the outputs of its resolved dependencies and the
// handler version. Identical inputs yield identical keys regardless of map
// key ordering, so all values are canonicalized before hashing.
func Key(jobType string, config map[string]interface{}, depOutputs map[string]map[string]interface{}, handlerVersion string) string {
	h := sha256.New()
	h.Write([]byte(jobType))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(depOutputs)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(config)))
	h.Write([]byte{0})
	h.Write([]byte(handlerVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON renders a value as JSON with all object keys sorted at every
// depth. Values are normalized through a JSON round trip first so that
// struct, map and typed-slice representations of the same data hash equally.
func canonicalJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!unhashable:%v", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	var b strings.Builder
	writeCanonical(&b, decoded)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(val)
		b.Write(raw)
	}
}
