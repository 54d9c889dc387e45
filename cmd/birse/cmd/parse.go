package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/biggo-labs/birse-go/pkg/shopify"
)

// parseBox parses "x,y,w,h".
func parseBox(s string) (shopify.Box, error) {
	var box shopify.Box
	parts := strings.Split(s, ",")
	if len(parts) != len(box) {
		return box, fmt.Errorf("xywh must have 4 comma separated numbers, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return box, fmt.Errorf("xywh[%d]: %w", i, err)
		}
		box[i] = v
	}
	return box, nil
}

// parseMetafields parses "namespace.key" values. The key may itself contain dots.
func parseMetafields(values []string) ([]shopify.MetafieldKey, error) {
	out := make([]shopify.MetafieldKey, 0, len(values))
	for _, v := range values {
		ns, key, ok := strings.Cut(strings.TrimSpace(v), ".")
		if !ok || ns == "" || key == "" {
			return nil, fmt.Errorf("metafield must be namespace.key, got %q", v)
		}
		out = append(out, shopify.MetafieldKey{Namespace: ns, Key: key})
	}
	return out, nil
}

// parseMetadata parses "key=value" pairs. Values that are valid JSON
// (numbers, booleans, objects) keep their type; anything else is a string.
// It returns nil when values is empty.
func parseMetadata(values []string) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(values))
	for _, v := range values {
		key, raw, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("metadata must be key=value, got %q", v)
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = raw
		}
	}
	return out, nil
}
