// Package dynamic builds codecs from WIT type descriptions, for tools that
// encode and decode wire buffers without generated bindings.
//
// Values use plain Go shapes:
//
//	bool, u8..s64, f32, f64   bool, uint8..int64, float32, float64
//	char                      rune
//	string                    string
//	list<u8>                  []byte
//	list<T>, tuple<...>       []any
//	option<T>                 nil or the value
//	record                    map[string]any
//	enum                      case name
//	flags                     []string of set flags
//	variant, result           Variant
//	own, borrow               ffiruntime.Handle
//
// Encoding is lenient: numbers of any Go type, including the float64 and
// json.Number values produced by encoding/json, are accepted when they fit
// the target type.
package dynamic

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// Variant is the dynamic value of a variant or result. Value is nil for
// cases without a payload.
type Variant struct {
	Case  string `json:"case"`
	Value any    `json:"value,omitempty"`
}

// For returns the codec for t.
func For(t wit.Type) (codec.Codec[any], error) {
	return build(t, nil)
}

func build(t wit.Type, path []string) (codec.Codec[any], error) {
	switch t := t.(type) {
	case wit.Bool:
		return codec.Custom(codec.Bool, box[bool], coerceBool), nil
	case wit.S8:
		return codec.Custom(codec.Int8, box[int8], coerceInt[int8]("s8")), nil
	case wit.S16:
		return codec.Custom(codec.Int16, box[int16], coerceInt[int16]("s16")), nil
	case wit.S32:
		return codec.Custom(codec.Int32, box[int32], coerceInt[int32]("s32")), nil
	case wit.S64:
		return codec.Custom(codec.Int64, box[int64], coerceInt[int64]("s64")), nil
	case wit.U8:
		return codec.Custom(codec.Uint8, box[uint8], coerceInt[uint8]("u8")), nil
	case wit.U16:
		return codec.Custom(codec.Uint16, box[uint16], coerceInt[uint16]("u16")), nil
	case wit.U32:
		return codec.Custom(codec.Uint32, box[uint32], coerceInt[uint32]("u32")), nil
	case wit.U64:
		return codec.Custom(codec.Uint64, box[uint64], coerceInt[uint64]("u64")), nil
	case wit.F32:
		return codec.Custom(codec.Float32, box[float32], coerceFloat[float32]("f32")), nil
	case wit.F64:
		return codec.Custom(codec.Float64, box[float64], coerceFloat[float64]("f64")), nil
	case wit.Char:
		return codec.Custom(codec.Uint32, liftChar, coerceChar), nil
	case wit.String:
		return codec.Custom(codec.String, box[string], coerceString), nil
	case *wit.TypeDef:
		return buildDef(t, path)
	case nil:
		return nil, errors.New(errors.PhaseValidate, errors.KindNilPointer).
			Path(path...).
			Detail("nil type").
			Build()
	default:
		return nil, unsupported(path, t)
	}
}

func buildDef(t *wit.TypeDef, path []string) (codec.Codec[any], error) {
	switch kind := t.Kind.(type) {
	case *wit.List:
		if _, ok := kind.Type.(wit.U8); ok {
			return codec.Custom(codec.Bytes, box[[]byte], coerceBytes), nil
		}
		elem, err := build(kind.Type, path)
		if err != nil {
			return nil, err
		}
		return codec.Custom(codec.Sequence(elem), box[[]any], func(v any) ([]any, error) {
			return coerceSlice(v, "list")
		}), nil
	case *wit.Option:
		inner, err := build(kind.Type, path)
		if err != nil {
			return nil, err
		}
		return codec.Custom(codec.Optional(inner), deref, ref), nil
	case *wit.Tuple:
		elems := make([]codec.Codec[any], len(kind.Types))
		for i, et := range kind.Types {
			c, err := build(et, append(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			elems[i] = c
		}
		return tupleCodec{elems: elems}, nil
	case *wit.Record:
		fields := make([]recordField, len(kind.Fields))
		for i, f := range kind.Fields {
			c, err := build(f.Type, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			fields[i] = recordField{name: f.Name, codec: c}
		}
		return recordCodec{name: typeName(t), fields: fields}, nil
	case *wit.Enum:
		names := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			names[i] = c.Name
		}
		return enumOf(typeName(t), names), nil
	case *wit.Flags:
		names := make([]string, len(kind.Flags))
		for i, f := range kind.Flags {
			names[i] = f.Name
		}
		return flagsOf(names, path)
	case *wit.Variant:
		cases := make([]variantCase, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = variantCase{name: c.Name, typ: c.Type}
		}
		return variantOf(typeName(t), cases, path)
	case *wit.Result:
		return variantOf("result", []variantCase{
			{name: "ok", typ: kind.OK},
			{name: "err", typ: kind.Err},
		}, path)
	case *wit.Own, *wit.Borrow:
		return codec.Custom(codec.Uint64, liftHandle, coerceInt[uint64]("handle")), nil
	case wit.Type:
		return build(kind, path)
	default:
		return nil, unsupported(path, kind)
	}
}

func typeName(t *wit.TypeDef) string {
	if t.Name != nil {
		return *t.Name
	}
	return ""
}

func unsupported(path []string, t any) *errors.Error {
	return errors.New(errors.PhaseValidate, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported type %T", t).
		Build()
}

func box[T any](v T) (any, error) { return v, nil }

func liftHandle(h uint64) (any, error) { return ffiruntime.Handle(h), nil }

func deref(p *any) (any, error) {
	if p == nil {
		return nil, nil
	}
	return *p, nil
}

func ref(v any) (*any, error) {
	if v == nil {
		return nil, nil
	}
	return &v, nil
}

// tupleCodec writes its elements back to back.
type tupleCodec struct {
	elems []codec.Codec[any]
}

func (c tupleCodec) Read(b *wire.Buffer) (any, error) {
	out := make([]any, len(c.elems))
	for i, e := range c.elems {
		v, err := e.Read(b)
		if err != nil {
			return nil, errors.WithPath(err, fmt.Sprint(i))
		}
		out[i] = v
	}
	return out, nil
}

func (c tupleCodec) values(v any) ([]any, error) {
	vs, err := coerceSlice(v, "tuple")
	if err != nil {
		return nil, err
	}
	if len(vs) != len(c.elems) {
		return nil, errors.InvalidInput(errors.PhaseEncode,
			fmt.Sprintf("tuple needs %d elements, got %d", len(c.elems), len(vs)))
	}
	return vs, nil
}

func (c tupleCodec) Write(v any, b *wire.Buffer) error {
	vs, err := c.values(v)
	if err != nil {
		return err
	}
	for i, e := range c.elems {
		if err := e.Write(vs[i], b); err != nil {
			return errors.WithPath(err, fmt.Sprint(i))
		}
	}
	return nil
}

func (c tupleCodec) AllocationSize(v any) int {
	vs, err := c.values(v)
	if err != nil {
		return 0
	}
	n := 0
	for i, e := range c.elems {
		n += e.AllocationSize(vs[i])
	}
	return n
}

type recordField struct {
	name  string
	codec codec.Codec[any]
}

// recordCodec writes its fields in declaration order with no prefix.
type recordCodec struct {
	name   string
	fields []recordField
}

func (c recordCodec) Read(b *wire.Buffer) (any, error) {
	out := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		v, err := f.codec.Read(b)
		if err != nil {
			return nil, errors.WithPath(err, f.name)
		}
		out[f.name] = v
	}
	return out, nil
}

func (c recordCodec) values(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(v, "record "+c.name)
	}
	for _, f := range c.fields {
		if _, ok := m[f.name]; !ok {
			return nil, errors.InvalidInput(errors.PhaseEncode, "missing field "+f.name)
		}
	}
	return m, nil
}

func (c recordCodec) Write(v any, b *wire.Buffer) error {
	m, err := c.values(v)
	if err != nil {
		return err
	}
	for _, f := range c.fields {
		if err := f.codec.Write(m[f.name], b); err != nil {
			return errors.WithPath(err, f.name)
		}
	}
	return nil
}

func (c recordCodec) AllocationSize(v any) int {
	m, err := c.values(v)
	if err != nil {
		return 0
	}
	n := 0
	for _, f := range c.fields {
		n += f.codec.AllocationSize(m[f.name])
	}
	return n
}

// enumOf carries a case name as its 1-based index.
func enumOf(name string, cases []string) codec.Codec[any] {
	return codec.Custom(codec.Enum[int32](name, len(cases)),
		func(idx int32) (any, error) { return cases[idx-1], nil },
		func(v any) (int32, error) {
			if s, ok := v.(string); ok {
				for i, c := range cases {
					if c == s {
						return int32(i + 1), nil
					}
				}
				return 0, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("%s has no case %q", name, s))
			}
			return coerceInt[int32]("enum " + name)(v)
		})
}

// flagsOf carries a set of flag names as a u32 bit set, flag i in bit i.
func flagsOf(names []string, path []string) (codec.Codec[any], error) {
	if len(names) > 32 {
		return nil, errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Path(path...).
			Detail("flags with %d members exceed 32", len(names)).
			Build()
	}
	return codec.Custom(codec.Uint32,
		func(bits uint32) (any, error) {
			if bits>>len(names) != 0 {
				return nil, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("flag bits %#x outside %d flags", bits, len(names)))
			}
			set := []string{}
			for i, n := range names {
				if bits&(1<<i) != 0 {
					set = append(set, n)
				}
			}
			return set, nil
		},
		func(v any) (uint32, error) {
			vs, err := coerceSlice(v, "flags")
			if err != nil {
				return 0, err
			}
			var bits uint32
			for _, e := range vs {
				s, _ := e.(string)
				found := false
				for i, n := range names {
					if n == s {
						bits |= 1 << i
						found = true
						break
					}
				}
				if !found {
					return 0, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("unknown flag %v", e))
				}
			}
			return bits, nil
		}), nil
}

type variantCase struct {
	name string
	typ  wit.Type
}

func asVariant(v any) (Variant, bool) {
	switch x := v.(type) {
	case Variant:
		return x, true
	case *Variant:
		if x != nil {
			return *x, true
		}
	case map[string]any:
		name, ok := x["case"].(string)
		if ok {
			return Variant{Case: name, Value: x["value"]}, true
		}
	}
	return Variant{}, false
}

// variantOf builds a tagged union whose cases are matched by name.
func variantOf(name string, cases []variantCase, path []string) (codec.Codec[any], error) {
	built := make([]codec.Case[any], len(cases))
	for i, vc := range cases {
		caseName := vc.name
		if vc.typ == nil {
			built[i] = codec.UnitCase[any](caseName, Variant{Case: caseName})
			continue
		}
		payload, err := build(vc.typ, append(path, caseName))
		if err != nil {
			return nil, err
		}
		built[i] = codec.PayloadCase(caseName, payload,
			func(p any) any { return Variant{Case: caseName, Value: p} },
			func(v any) any {
				x, _ := asVariant(v)
				return x.Value
			})
	}
	index := func(v any) int {
		x, ok := asVariant(v)
		if !ok {
			return 0
		}
		for i, vc := range cases {
			if vc.name == x.Case {
				return i + 1
			}
		}
		return 0
	}
	if name == "" {
		name = "variant"
	}
	return codec.Variant(name, index, built...), nil
}
