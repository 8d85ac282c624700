package document

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadStructured decodes JSON or YAML and re-serializes it into a readable
// indented text form for embedding. A top-level array yields one Document
// per element so each record embeds and retrieves independently; anything
// else yields a single Document.
func (l *Loader) loadStructured(path, format string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var data any
	switch format {
	case "json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported structured format %q", format)
	}

	if items, ok := data.([]any); ok {
		docs := make([]Document, 0, len(items))
		for i, item := range items {
			doc := New(renderValue(item, 0), path, format)
			doc.Metadata["record"] = i
			docs = append(docs, doc)
		}
		return docs, nil
	}

	return []Document{New(renderValue(data, 0), path, format)}, nil
}

// renderValue flattens decoded structured data into "key: value" lines.
// Keys are sorted so the same file always renders to the same text.
func renderValue(v any, depth int) string {
	indent := strings.Repeat("  ", depth)

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, k := range keys {
			child := val[k]
			if isScalar(child) {
				fmt.Fprintf(&b, "%s%s: %s\n", indent, k, renderScalar(child))
			} else {
				fmt.Fprintf(&b, "%s%s:\n%s", indent, k, renderValue(child, depth+1))
			}
		}
		return b.String()

	case []any:
		var b strings.Builder
		for _, item := range val {
			if isScalar(item) {
				fmt.Fprintf(&b, "%s- %s\n", indent, renderScalar(item))
			} else {
				fmt.Fprintf(&b, "%s-\n%s", indent, renderValue(item, depth+1))
			}
		}
		return b.String()

	default:
		return indent + renderScalar(v) + "\n"
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}

func renderScalar(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
