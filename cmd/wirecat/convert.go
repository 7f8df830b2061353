package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/codec/dynamic"
)

// wireType is a parsed type expression together with its codec.
type wireType struct {
	typ   wit.Type
	codec codec.Codec[any]
}

func loadType(expr string) (*wireType, error) {
	typ, err := dynamic.ParseType(expr)
	if err != nil {
		return nil, err
	}
	c, err := dynamic.For(typ)
	if err != nil {
		return nil, err
	}
	return &wireType{typ: typ, codec: c}, nil
}

// parseHex accepts hex digits with optional whitespace and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	return data, nil
}

func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse json: trailing data after value")
	}
	return v, nil
}

func (w *wireType) encode(input string) ([]byte, error) {
	v, err := parseJSON(input)
	if err != nil {
		return nil, err
	}
	return codec.LowerBuffer(w.codec, v)
}

func (w *wireType) decode(data []byte) (string, error) {
	v, err := codec.LiftBuffer(w.codec, data)
	if err != nil {
		return "", err
	}
	return render(w.typ, v)
}

func (w *wireType) size(input string) (int, error) {
	v, err := parseJSON(input)
	if err != nil {
		return 0, err
	}
	// Lowering validates the value before its size is reported.
	if _, err := codec.LowerBuffer(w.codec, v); err != nil {
		return 0, err
	}
	return w.codec.AllocationSize(v), nil
}

func render(t wit.Type, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(display(t, v)); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// display rewrites a decoded value into a JSON-friendly form that encode
// accepts back: chars become one-rune strings and byte lists become arrays.
func display(t wit.Type, v any) any {
	if v == nil {
		return nil
	}
	switch t := t.(type) {
	case wit.Char:
		if r, ok := v.(rune); ok {
			return string(r)
		}
	case *wit.TypeDef:
		return displayDef(t, v)
	}
	return v
}

func displayDef(t *wit.TypeDef, v any) any {
	switch kind := t.Kind.(type) {
	case *wit.List:
		if b, ok := v.([]byte); ok {
			out := make([]int, len(b))
			for i, x := range b {
				out[i] = int(x)
			}
			return out
		}
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = display(kind.Type, item)
			}
			return out
		}
	case *wit.Option:
		return display(kind.Type, v)
	case *wit.Tuple:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = display(kind.Types[i], item)
			}
			return out
		}
	case *wit.Record:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for _, f := range kind.Fields {
				out[f.Name] = display(f.Type, m[f.Name])
			}
			return out
		}
	case *wit.Variant:
		if vv, ok := v.(dynamic.Variant); ok {
			for _, c := range kind.Cases {
				if c.Name == vv.Case {
					return dynamic.Variant{Case: vv.Case, Value: display(c.Type, vv.Value)}
				}
			}
		}
	case *wit.Result:
		if vv, ok := v.(dynamic.Variant); ok {
			payload := kind.OK
			if vv.Case == "err" {
				payload = kind.Err
			}
			return dynamic.Variant{Case: vv.Case, Value: display(payload, vv.Value)}
		}
	case wit.Type:
		return display(kind, v)
	}
	return v
}
