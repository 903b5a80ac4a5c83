package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// buildPreview produces the small schema preview retained inline when a
// result is offloaded. JSON arrays keep their first few records, JSON
// objects keep their top-level key list, and anything else keeps its
// leading bytes.
func buildPreview(payload []byte, previewItems, maxBytes int) string {
	if previewItems <= 0 {
		previewItems = 2
	}
	if maxBytes <= 0 {
		maxBytes = 1024
	}

	trimmed := strings.TrimSpace(string(payload))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err == nil {
			total := len(items)
			if len(items) > previewItems {
				items = items[:previewItems]
			}
			head, err := json.Marshal(items)
			if err == nil {
				return fmt.Sprintf("first %d of %d records: %s", len(items), total, clip(string(head), maxBytes))
			}
		}
	case strings.HasPrefix(trimmed, "{"):
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err == nil {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return fmt.Sprintf("object with keys: %s", clip(strings.Join(keys, ", "), maxBytes))
		}
	}
	return clip(trimmed, maxBytes)
}

// truncateInline is the degraded path when offload storage is down: cut
// the payload at the limit and say so, rather than failing the call.
func truncateInline(payload []byte, limit int) (string, bool) {
	if len(payload) <= limit {
		return string(payload), false
	}
	return string(payload[:limit]), true
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
