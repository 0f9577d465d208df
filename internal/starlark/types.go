// Package starlark bridges lineage records into Starlark values so that
// user supplied expressions can inspect nodes.
package starlark

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// NodeValue converts a lineage node to a frozen Starlark struct.
// Exposed as: node.id, node.name, node.type, node.tags, node.properties
func NodeValue(n core.Node) (starlark.Value, error) {
	props, err := GoToStarlark(n.Properties)
	if err != nil {
		return nil, fmt.Errorf("node %q properties: %w", n.ID, err)
	}
	tags, err := GoToStarlark(n.Tags())
	if err != nil {
		return nil, fmt.Errorf("node %q tags: %w", n.ID, err)
	}

	v := starlarkstruct.FromStringDict(starlark.String("node"), starlark.StringDict{
		"id":         starlark.String(n.ID),
		"name":       starlark.String(n.Name),
		"type":       starlark.String(string(n.Type)),
		"tags":       tags,
		"properties": props,
	})
	v.Freeze()
	return v, nil
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		// sorted so dict iteration order is stable across calls
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
