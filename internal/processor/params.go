package processor

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the type tag of a parameter Value.
type Kind int

const (
	KindFloat Kind = iota + 1
	KindInt
	KindBool
	KindString
	KindCurve
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindCurve:
		return "curve"
	}
	return "invalid"
}

// CurvePoint is one (x, y) breakpoint of a curve parameter.
type CurvePoint struct {
	X, Y float64
}

// Value is a tagged parameter value. Only the field matching Kind is set.
type Value struct {
	kind  Kind
	f     float64
	i     int64
	b     bool
	s     string
	curve []CurvePoint
}

func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Curve(points ...CurvePoint) Value {
	return Value{kind: KindCurve, curve: slices.Clone(points)}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindCurve:
		parts := make([]string, len(v.curve))
		for i, p := range v.curve {
			parts[i] = fmt.Sprintf("(%g,%g)", p.X, p.Y)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return "<invalid>"
}

// Param is one named entry of a Config.
type Param struct {
	Key   string
	Value Value
}

// P is shorthand for building a Param.
func P(key string, v Value) Param { return Param{Key: key, Value: v} }

// Config is an ordered, immutable set of parameters.
type Config struct {
	params []Param
	index  map[string]int
}

// NewConfig builds a Config. Keys must be unique and values tagged.
func NewConfig(params ...Param) (Config, error) {
	c := Config{params: make([]Param, 0, len(params)), index: make(map[string]int, len(params))}
	for _, p := range params {
		if p.Key == "" {
			return Config{}, &ConfigError{Reason: "empty parameter name"}
		}
		if p.Value.kind == 0 {
			return Config{}, &ConfigError{Key: p.Key, Reason: "value has no type"}
		}
		if _, dup := c.index[p.Key]; dup {
			return Config{}, &ConfigError{Key: p.Key, Reason: "duplicate parameter"}
		}
		if p.Value.kind == KindCurve {
			p.Value.curve = slices.Clone(p.Value.curve)
		}
		c.index[p.Key] = len(c.params)
		c.params = append(c.params, p)
	}
	return c, nil
}

// Len returns the number of parameters.
func (c Config) Len() int { return len(c.params) }

// Keys returns parameter names in configured order.
func (c Config) Keys() []string {
	keys := make([]string, len(c.params))
	for i, p := range c.params {
		keys[i] = p.Key
	}
	return keys
}

// Params returns a copy of the parameters in order.
func (c Config) Params() []Param {
	return slices.Clone(c.params)
}

// Lookup returns the raw value for key.
func (c Config) Lookup(key string) (Value, bool) {
	i, ok := c.index[key]
	if !ok {
		return Value{}, false
	}
	return c.params[i].Value, true
}

// params reads a Config for one processor, keeping the first error so the
// factory can check once at the end.
type params struct {
	id   FilterID
	cfg  Config
	used map[string]bool
	err  error
}

func newParams(id FilterID, cfg Config) *params {
	return &params{id: id, cfg: cfg, used: make(map[string]bool)}
}

func (p *params) fail(key, format string, args ...any) {
	if p.err == nil {
		p.err = &ConfigError{Processor: p.id, Key: key, Reason: fmt.Sprintf(format, args...)}
	}
}

func (p *params) lookup(key string, want Kind) (Value, bool) {
	p.used[key] = true
	v, ok := p.cfg.Lookup(key)
	if !ok {
		return Value{}, false
	}
	// ints are accepted where a float is expected
	if want == KindFloat && v.kind == KindInt {
		return Float(float64(v.i)), true
	}
	if v.kind != want {
		p.fail(key, "expected %s, got %s", want, v.kind)
		return Value{}, false
	}
	return v, true
}

// optFloat returns (value, true) when key is set, for parameters whose
// default is derived adaptively from measurements.
func (p *params) optFloat(key string, lo, hi float64) (float64, bool) {
	v, ok := p.lookup(key, KindFloat)
	if !ok {
		return 0, false
	}
	if v.f < lo || v.f > hi {
		p.fail(key, "%g out of range [%g, %g]", v.f, lo, hi)
		return 0, false
	}
	return v.f, true
}

func (p *params) float(key string, def, lo, hi float64) float64 {
	if v, ok := p.optFloat(key, lo, hi); ok {
		return v
	}
	return def
}

func (p *params) int(key string, def, lo, hi int) int {
	v, ok := p.lookup(key, KindInt)
	if !ok {
		return def
	}
	if v.i < int64(lo) || v.i > int64(hi) {
		p.fail(key, "%d out of range [%d, %d]", v.i, lo, hi)
		return def
	}
	return int(v.i)
}

func (p *params) bool(key string, def bool) bool {
	v, ok := p.lookup(key, KindBool)
	if !ok {
		return def
	}
	return v.b
}

func (p *params) str(key, def string, allowed ...string) string {
	v, ok := p.lookup(key, KindString)
	if !ok {
		return def
	}
	if len(allowed) > 0 && !slices.Contains(allowed, v.s) {
		p.fail(key, "%q is not one of %s", v.s, strings.Join(allowed, ", "))
		return def
	}
	return v.s
}

func (p *params) curve(key string) []CurvePoint {
	v, ok := p.lookup(key, KindCurve)
	if !ok {
		return nil
	}
	for i := 1; i < len(v.curve); i++ {
		if v.curve[i].X <= v.curve[i-1].X {
			p.fail(key, "curve x values must increase")
			return nil
		}
	}
	return slices.Clone(v.curve)
}

// ignored lists keys the processor never read. They fall back to nothing and
// are reported in the stage analysis.
func (p *params) ignored() []string {
	var out []string
	for _, k := range p.cfg.Keys() {
		if !p.used[k] {
			out = append(out, k)
		}
	}
	return out
}
