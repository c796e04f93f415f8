package scanner

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookupPath walks a dot-separated path (e.g. "data.product.price.final")
// through a decoded JSON document. Numeric path segments index into
// arrays. Returns nil if any segment is missing, matching the "degrade to
// zero value" behavior extractors rely on rather than panicking on a
// platform response shape change.
func lookupPath(raw []byte, path string) any {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
