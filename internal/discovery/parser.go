package discovery

import "strings"

// KeyValueParser is the fallback RowParser shipped with the worker binary.
// It understands the "Field: value" block format produced by the exec
// service's raw mode: blocks separated by blank lines become rows, keys are
// lowercased with spaces folded to underscores. Vendor template parsing
// lives in the external exec service; this keeps the worker usable against
// devices that emit pre-formatted output.
type KeyValueParser struct{}

// Parse splits raw output into field-map rows.
func (KeyValueParser) Parse(_ string, raw string) ([]map[string]any, error) {
	var rows []map[string]any
	current := map[string]any{}

	flush := func() {
		if len(current) > 0 {
			rows = append(rows, current)
			current = map[string]any{}
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.ReplaceAll(key, " ", "_")
		if key == "" {
			continue
		}
		current[key] = strings.TrimSpace(value)
	}
	flush()
	return rows, nil
}
