// Package diff computes sparse structural deltas between content snapshots
// and classifies what kind of change a new snapshot represents.
package diff

import (
	"encoding/json"
	"strconv"

	"github.com/nextmonthlab/progress-versioning/internal/domain"
)

// Compute returns the sparse structural delta between two snapshots.
// Fields identical in both are omitted. Nested objects and arrays are
// compared recursively so small edits inside large documents produce
// small diffs. A nil previous snapshot is treated as empty, so the
// result records every field of next as added.
//
// The result is deterministic: the same inputs always produce the same
// diff, and Compute(a, a) is always empty.
func Compute(prev, next domain.Snapshot) domain.Diff {
	if prev == nil {
		prev = domain.Snapshot{}
	}
	if next == nil {
		next = domain.Snapshot{}
	}
	return diffMaps(prev, next)
}

func diffMaps(oldVal, newVal map[string]interface{}) map[string]interface{} {
	result := map[string]interface{}{}

	keys := map[string]struct{}{}
	for k := range oldVal {
		keys[k] = struct{}{}
	}
	for k := range newVal {
		keys[k] = struct{}{}
	}

	for key := range keys {
		ov := oldVal[key]
		nv := newVal[key]
		if equalValues(ov, nv) {
			continue
		}
		result[key] = diffValue(ov, nv)
	}

	return result
}

func diffValue(ov, nv interface{}) interface{} {
	if om, ok := asMap(ov); ok {
		if nm, ok := asMap(nv); ok {
			return diffMaps(om, nm)
		}
	}
	if oa, ok := ov.([]interface{}); ok {
		if na, ok := nv.([]interface{}); ok {
			return diffSlices(oa, na)
		}
	}
	return map[string]interface{}{"old": ov, "new": nv}
}

// diffSlices compares arrays element-wise, keyed by index, so that a
// single changed element does not mark the whole array as replaced.
func diffSlices(oldArr, newArr []interface{}) map[string]interface{} {
	result := map[string]interface{}{}

	n := len(oldArr)
	if len(newArr) > n {
		n = len(newArr)
	}

	for i := 0; i < n; i++ {
		var ov, nv interface{}
		if i < len(oldArr) {
			ov = oldArr[i]
		}
		if i < len(newArr) {
			nv = newArr[i]
		}
		if equalValues(ov, nv) {
			continue
		}
		result[strconv.Itoa(i)] = diffValue(ov, nv)
	}

	return result
}

// equalValues compares two values by canonical JSON encoding.
// json.Marshal sorts map keys, so the comparison is deterministic.
func equalValues(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case domain.JSONMap:
		return m, true
	}
	return nil, false
}
