package preset

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/linuxmatters/takemaster/internal/processor"
)

// Params are the parameters of one Pass-1 stage in file order. YAML scalar
// tags decide the value kind: 80 is an int, 80.0 a float, "80" a string.
// Sequences of [x, y] pairs (or {x, y} mappings) are curves.
type Params []processor.Param

// UnmarshalYAML decodes a mapping node, keeping key order.
func (ps *Params) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", n.Line)
	}
	out := make(Params, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("line %d: param %q: %w", v.Line, k.Value, err)
		}
		out = append(out, processor.P(k.Value, val))
	}
	*ps = out
	return nil
}

func decodeValue(v *yaml.Node) (processor.Value, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		switch v.ShortTag() {
		case "!!int":
			var i int64
			if err := v.Decode(&i); err != nil {
				return processor.Value{}, err
			}
			return processor.Int(i), nil
		case "!!float":
			var f float64
			if err := v.Decode(&f); err != nil {
				return processor.Value{}, err
			}
			return processor.Float(f), nil
		case "!!bool":
			var b bool
			if err := v.Decode(&b); err != nil {
				return processor.Value{}, err
			}
			return processor.Bool(b), nil
		case "!!str":
			return processor.String(v.Value), nil
		}
		return processor.Value{}, fmt.Errorf("unsupported value %q (%s)", v.Value, v.ShortTag())
	case yaml.SequenceNode:
		points := make([]processor.CurvePoint, 0, len(v.Content))
		for _, item := range v.Content {
			p, err := decodePoint(item)
			if err != nil {
				return processor.Value{}, err
			}
			points = append(points, p)
		}
		return processor.Curve(points...), nil
	}
	return processor.Value{}, fmt.Errorf("expected a scalar or a curve")
}

func decodePoint(n *yaml.Node) (processor.CurvePoint, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		var xy []float64
		if err := n.Decode(&xy); err != nil {
			return processor.CurvePoint{}, err
		}
		if len(xy) != 2 {
			return processor.CurvePoint{}, fmt.Errorf("line %d: curve point needs two numbers, got %d", n.Line, len(xy))
		}
		return processor.CurvePoint{X: xy[0], Y: xy[1]}, nil
	case yaml.MappingNode:
		var p struct {
			X *float64 `yaml:"x"`
			Y *float64 `yaml:"y"`
		}
		if err := n.Decode(&p); err != nil {
			return processor.CurvePoint{}, err
		}
		if p.X == nil || p.Y == nil {
			return processor.CurvePoint{}, fmt.Errorf("line %d: curve point needs x and y", n.Line)
		}
		return processor.CurvePoint{X: *p.X, Y: *p.Y}, nil
	}
	return processor.CurvePoint{}, fmt.Errorf("line %d: curve point must be [x, y] or {x, y}", n.Line)
}

// MarshalJSON writes [key, kind, value] triples in order, so the
// fingerprint changes when order or kind changes.
func (ps Params) MarshalJSON() ([]byte, error) {
	entries := make([][3]string, len(ps))
	for i, p := range ps {
		entries[i] = [3]string{p.Key, p.Value.Kind().String(), p.Value.String()}
	}
	return json.Marshal(entries)
}

// Config converts the parameters into a processor configuration.
func (ps Params) Config() (processor.Config, error) {
	return processor.NewConfig(ps...)
}
