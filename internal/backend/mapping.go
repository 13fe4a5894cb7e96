package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseMapping reads a manual style mapping from a JSON object or from
// "target=template" pairs separated by commas or newlines.
func ParseMapping(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	mapping := map[string]string{}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return nil, fmt.Errorf("invalid style mapping: %w", err)
		}
		return mapping, nil
	}

	pairs := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		target, template, ok := strings.Cut(pair, "=")
		target, template = strings.TrimSpace(target), strings.TrimSpace(template)
		if !ok || target == "" || template == "" {
			return nil, fmt.Errorf("invalid style mapping entry %q, expected target=template", pair)
		}
		mapping[target] = template
	}
	return mapping, nil
}
