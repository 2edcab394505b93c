package musicapi

import (
	"encoding/json"
	"strings"
)

// taskIDPaths lists the accepted locations of the task id, in order.
var taskIDPaths = [][]string{
	{"data", "taskId"},
	{"data", "task_id"},
	{"data", "id"},
	{"taskId"},
	{"task_id"},
	{"id"},
}

// TaskID extracts the task id from a submission response. The upstream API
// isn't consistent about where it places the id, so every known path is
// checked.
func TaskID(b []byte) (string, bool) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(b, &root); err != nil {
		return "", false
	}
	for _, path := range taskIDPaths {
		if id, ok := lookup(root, path); ok {
			return id, true
		}
	}
	return "", false
}

func lookup(m map[string]json.RawMessage, path []string) (string, bool) {
	raw, ok := m[path[0]]
	if !ok {
		return "", false
	}
	if len(path) > 1 {
		var child map[string]json.RawMessage
		if err := json.Unmarshal(raw, &child); err != nil {
			return "", false
		}
		return lookup(child, path[1:])
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
