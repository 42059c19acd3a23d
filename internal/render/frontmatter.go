package render

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var frontmatterDelim = []byte("---\n")

// SplitFrontmatter separates a page source into its YAML frontmatter map
// and markdown body. A page without a frontmatter block yields an empty
// map and the full source as body.
func SplitFrontmatter(source []byte) (map[string]any, []byte, error) {
	if !bytes.HasPrefix(source, frontmatterDelim) {
		return map[string]any{}, source, nil
	}

	rest := source[len(frontmatterDelim):]
	end := bytes.Index(rest, frontmatterDelim)
	if end < 0 {
		// Opening delimiter without a closing one.
		return nil, nil, fmt.Errorf("unterminated frontmatter block")
	}

	var meta map[string]any
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return nil, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, rest[end+len(frontmatterDelim):], nil
}

// metaString reads a string-valued frontmatter field.
func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// metaBool reads a bool-valued frontmatter field.
func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}

// metaTime reads a date field. YAML may hand back a time.Time directly or
// a string in one of the usual date layouts.
func metaTime(meta map[string]any, key string) time.Time {
	switch v := meta[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// metaStrings reads a list-of-strings field, tolerating the single-string
// shorthand.
func metaStrings(meta map[string]any, key string) []string {
	switch v := meta[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
