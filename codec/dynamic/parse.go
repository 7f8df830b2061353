package dynamic

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-runtime/errors"
)

// ParseType parses a type expression:
//
//	u32, string, char, ...                 primitives
//	list<T>  option<T>  tuple<T, ...>
//	map<K, V>                              list<tuple<K, V>>
//	result  result<T>  result<_, E>  result<T, E>
//	handle  own  borrow
//	enum<a, b>  flags<a, b>
//	record<name: T, ...>  variant<a, b: T, ...>
func ParseType(expr string) (wit.Type, error) {
	p := &parser{src: expr}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return nil, errors.ParseFailed(fmt.Sprintf("type %q", expr), err)
	}
	if p.tok != "" {
		return nil, errors.ParseFailed(fmt.Sprintf("type %q", expr), p.errorf("unexpected %q", p.tok))
	}
	return t, nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(expr string) wit.Type {
	t, err := ParseType(expr)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
	tok string
	at  int
}

func isIdent(c byte) bool {
	return c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// next advances to the next token: an identifier or one of < > , :
func (p *parser) next() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
	p.at = p.pos
	if p.pos >= len(p.src) {
		p.tok = ""
		return
	}
	c := p.src[p.pos]
	if !isIdent(c) {
		p.pos++
		p.tok = string(c)
		return
	}
	start := p.pos
	for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
		p.pos++
	}
	p.tok = p.src[start:p.pos]
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Value(p.at).
		Detail("at offset %d: "+format, append([]any{p.at}, args...)...).
		Build()
}

func (p *parser) expect(tok string) error {
	if p.tok != tok {
		if p.tok == "" {
			return p.errorf("expected %q, got end of input", tok)
		}
		return p.errorf("expected %q, got %q", tok, p.tok)
	}
	p.next()
	return nil
}

func (p *parser) ident() (string, error) {
	if p.tok == "" || !isIdent(p.tok[0]) {
		return "", p.errorf("expected a name, got %q", p.tok)
	}
	name := p.tok
	p.next()
	return name, nil
}

// list parses a comma-separated list between < and >, calling item for
// each entry. It is a no-op when the next token is not <.
func (p *parser) list(item func() error) (bool, error) {
	if p.tok != "<" {
		return false, nil
	}
	p.next()
	for {
		if err := item(); err != nil {
			return true, err
		}
		if p.tok == ">" {
			p.next()
			return true, nil
		}
		if err := p.expect(","); err != nil {
			return true, err
		}
	}
}

func (p *parser) typeArgs(name string, minArgs, maxArgs int, allowBlank bool) ([]wit.Type, error) {
	var args []wit.Type
	_, err := p.list(func() error {
		if allowBlank && p.tok == "_" {
			p.next()
			args = append(args, nil)
			return nil
		}
		t, err := p.parseType()
		if err != nil {
			return err
		}
		args = append(args, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return nil, p.errorf("%s takes %d type arguments, got %d", name, minArgs, len(args))
		}
		return nil, p.errorf("%s takes %d to %d type arguments, got %d", name, minArgs, maxArgs, len(args))
	}
	return args, nil
}

func (p *parser) names(kind string) ([]string, error) {
	var names []string
	ok, err := p.list(func() error {
		n, err := p.ident()
		names = append(names, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok || len(names) == 0 {
		return nil, p.errorf("%s needs at least one case", kind)
	}
	return names, nil
}

func (p *parser) parseType() (wit.Type, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	switch name {
	case "list", "option":
		args, err := p.typeArgs(name, 1, 1, false)
		if err != nil {
			return nil, err
		}
		if name == "list" {
			return &wit.TypeDef{Kind: &wit.List{Type: args[0]}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: args[0]}}, nil

	case "tuple":
		args, err := p.typeArgs(name, 1, 64, false)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: args}}, nil

	case "map":
		args, err := p.typeArgs(name, 2, 2, false)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: &wit.TypeDef{Kind: &wit.Tuple{Types: args}}}}, nil

	case "result":
		args, err := p.typeArgs(name, 0, 2, true)
		if err != nil {
			return nil, err
		}
		r := &wit.Result{}
		if len(args) > 0 {
			r.OK = args[0]
		}
		if len(args) > 1 {
			r.Err = args[1]
		}
		return &wit.TypeDef{Kind: r}, nil

	case "handle", "own":
		return &wit.TypeDef{Kind: &wit.Own{}}, nil

	case "borrow":
		return &wit.TypeDef{Kind: &wit.Borrow{}}, nil

	case "enum":
		names, err := p.names(name)
		if err != nil {
			return nil, err
		}
		cases := make([]wit.EnumCase, len(names))
		for i, n := range names {
			cases[i] = wit.EnumCase{Name: n}
		}
		return &wit.TypeDef{Kind: &wit.Enum{Cases: cases}}, nil

	case "flags":
		names, err := p.names(name)
		if err != nil {
			return nil, err
		}
		flags := make([]wit.Flag, len(names))
		for i, n := range names {
			flags[i] = wit.Flag{Name: n}
		}
		return &wit.TypeDef{Kind: &wit.Flags{Flags: flags}}, nil

	case "record":
		var fields []wit.Field
		_, err := p.list(func() error {
			n, err := p.ident()
			if err != nil {
				return err
			}
			if err := p.expect(":"); err != nil {
				return err
			}
			t, err := p.parseType()
			if err != nil {
				return err
			}
			fields = append(fields, wit.Field{Name: n, Type: t})
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, p.errorf("record needs at least one field")
		}
		return &wit.TypeDef{Kind: &wit.Record{Fields: fields}}, nil

	case "variant":
		var cases []wit.Case
		_, err := p.list(func() error {
			n, err := p.ident()
			if err != nil {
				return err
			}
			c := wit.Case{Name: n}
			if p.tok == ":" {
				p.next()
				if c.Type, err = p.parseType(); err != nil {
					return err
				}
			}
			cases = append(cases, c)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(cases) == 0 {
			return nil, p.errorf("variant needs at least one case")
		}
		return &wit.TypeDef{Kind: &wit.Variant{Cases: cases}}, nil
	}

	t, err := wit.ParseType(name)
	if err != nil {
		return nil, p.errorf("unknown type %q", name)
	}
	return t, nil
}

// Format renders t as a type expression ParseType accepts.
func Format(t wit.Type) string {
	var b strings.Builder
	format(&b, t)
	return b.String()
}

func format(b *strings.Builder, t wit.Type) {
	switch t := t.(type) {
	case nil:
		b.WriteString("_")
	case wit.Bool:
		b.WriteString("bool")
	case wit.S8:
		b.WriteString("s8")
	case wit.S16:
		b.WriteString("s16")
	case wit.S32:
		b.WriteString("s32")
	case wit.S64:
		b.WriteString("s64")
	case wit.U8:
		b.WriteString("u8")
	case wit.U16:
		b.WriteString("u16")
	case wit.U32:
		b.WriteString("u32")
	case wit.U64:
		b.WriteString("u64")
	case wit.F32:
		b.WriteString("f32")
	case wit.F64:
		b.WriteString("f64")
	case wit.Char:
		b.WriteString("char")
	case wit.String:
		b.WriteString("string")
	case *wit.TypeDef:
		formatDef(b, t)
	default:
		fmt.Fprintf(b, "%T", t)
	}
}

func formatDef(b *strings.Builder, t *wit.TypeDef) {
	args := func(name string, ts ...wit.Type) {
		b.WriteString(name)
		b.WriteByte('<')
		for i, a := range ts {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, a)
		}
		b.WriteByte('>')
	}
	named := func(kind string, names []string, types []wit.Type) {
		b.WriteString(kind)
		b.WriteByte('<')
		for i, n := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(n)
			if types != nil && types[i] != nil {
				b.WriteString(": ")
				format(b, types[i])
			}
		}
		b.WriteByte('>')
	}

	switch kind := t.Kind.(type) {
	case *wit.List:
		args("list", kind.Type)
	case *wit.Option:
		args("option", kind.Type)
	case *wit.Tuple:
		args("tuple", kind.Types...)
	case *wit.Result:
		switch {
		case kind.OK == nil && kind.Err == nil:
			b.WriteString("result")
		case kind.Err == nil:
			args("result", kind.OK)
		default:
			args("result", kind.OK, kind.Err)
		}
	case *wit.Own:
		b.WriteString("handle")
	case *wit.Borrow:
		b.WriteString("borrow")
	case *wit.Enum:
		names := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			names[i] = c.Name
		}
		named("enum", names, nil)
	case *wit.Flags:
		names := make([]string, len(kind.Flags))
		for i, f := range kind.Flags {
			names[i] = f.Name
		}
		named("flags", names, nil)
	case *wit.Record:
		names := make([]string, len(kind.Fields))
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			names[i], types[i] = f.Name, f.Type
		}
		named("record", names, types)
	case *wit.Variant:
		names := make([]string, len(kind.Cases))
		types := make([]wit.Type, len(kind.Cases))
		for i, c := range kind.Cases {
			names[i], types[i] = c.Name, c.Type
		}
		named("variant", names, types)
	case wit.Type:
		format(b, kind)
	default:
		fmt.Fprintf(b, "%T", kind)
	}
}
