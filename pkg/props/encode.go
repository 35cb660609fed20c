package props

import (
	"bytes"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// jsonValue makes non-finite floats representable; JSON has no NaN.
func jsonValue(v any) any {
	if f, ok := v.(float64); ok {
		switch {
		case math.IsNaN(f):
			return "NAN"
		case math.IsInf(f, 1):
			return "+INFINITY"
		case math.IsInf(f, -1):
			return "-INFINITY"
		}
	}
	return v
}

// MarshalJSON renders the list as a JSON object in header order. Array entries
// become JSON arrays.
func (l *List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range l.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val any
		if len(e.values) == 1 {
			val = jsonValue(e.values[0])
		} else {
			vals := make([]any, len(e.values))
			for j, v := range e.values {
				vals[j] = jsonValue(v)
			}
			val = vals
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("props: marshal %s: %w", e.name, err)
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON loads a flat JSON object. Numbers without a fraction become int64.
func (l *List) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("props: expected JSON object")
	}
	*l = *NewList()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("props: expected string key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if arr, ok := raw.([]any); ok {
			for _, v := range arr {
				if err := l.Add(name, fromJSON(v), ""); err != nil {
					return err
				}
			}
			continue
		}
		if err := l.Add(name, fromJSON(raw), ""); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func fromJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// MarshalYAML renders the list as an ordered YAML mapping.
func (l *List) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range l.entries {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: e.name}
		val := &yaml.Node{}
		var src any = e.values[0]
		if len(e.values) > 1 {
			src = e.values
		}
		if err := val.Encode(yamlValue(src)); err != nil {
			return nil, fmt.Errorf("props: encode %s: %w", e.name, err)
		}
		if e.comment != "" {
			val.LineComment = e.comment
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

func yamlValue(v any) any {
	if vals, ok := v.([]any); ok {
		out := make([]any, len(vals))
		for i, x := range vals {
			out[i] = jsonValue(x)
		}
		return out
	}
	return jsonValue(v)
}

// FlattenYAML decodes a nested YAML mapping into a Set with dotted names, so
// `compression: {algorithm: GZIP_2}` becomes `compression.algorithm`.
func FlattenYAML(data []byte) (*Set, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("props: parse yaml: %w", err)
	}
	out := NewSet()
	if err := flatten(out, "", root); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(out *Set, prefix string, m map[string]any) error {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]any:
			if err := flatten(out, name, x); err != nil {
				return err
			}
		case []any:
			for _, item := range x {
				if err := out.Add(name, item, ""); err != nil {
					return err
				}
			}
		default:
			if err := out.Set(name, x, ""); err != nil {
				return err
			}
		}
	}
	return nil
}
