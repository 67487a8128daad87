package emit

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/tools/imports"

	"spikegen/internal/codegen"
	"spikegen/internal/model"
)

// GoEmitter renders merged structs as Go source. Pointer fields become
// handles into a runtime buffer arena; the arena itself is not generated.
type GoEmitter struct {
	cfg Config
}

func (e *GoEmitter) Name() string { return "go" }

var goTypes = map[string]string{
	"float":        "float32",
	"double":       "float64",
	"bool":         "bool",
	"int":          "int32",
	"int8_t":       "int8",
	"int16_t":      "int16",
	"int32_t":      "int32",
	"int64_t":      "int64",
	"unsigned int": "uint32",
	"uint8_t":      "uint8",
	"uint16_t":     "uint16",
	"uint32_t":     "uint32",
	"uint64_t":     "uint64",
}

func (e *GoEmitter) goType(f codegen.Field) (string, error) {
	if model.IsPointerType(f.Type) || f.Kind == codegen.FieldPointer || f.Kind == codegen.FieldPointerEGP {
		return "Handle", nil
	}
	typ := f.Type
	if typ == "scalar" {
		typ = e.cfg.Precision
	}
	if t, ok := goTypes[typ]; ok {
		return t, nil
	}
	return "", fmt.Errorf("emit go: field %s: no Go type for %q", f.Name, f.Type)
}

func exported(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return name
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (e *GoEmitter) EmitStruct(s codegen.Struct) (codegen.Emission, error) {
	if s.TypeName == "" {
		return codegen.Emission{}, fmt.Errorf("emit go: struct has no type name")
	}
	types := make([]string, len(s.Fields))
	seen := make(map[string]string, len(s.Fields))
	for i, f := range s.Fields {
		t, err := e.goType(f)
		if err != nil {
			return codegen.Emission{}, err
		}
		types[i] = t
		name := exported(f.Name)
		if prev, dup := seen[name]; dup {
			return codegen.Emission{}, fmt.Errorf("emit go: fields %s and %s export to the same name", prev, f.Name)
		}
		seen[name] = f.Name
	}
	e.cfg.Buffers.Register(s.Fields)

	var decl strings.Builder
	if s.HostOnly {
		fmt.Fprintf(&decl, "// %s is only used on the host.\n", s.TypeName)
	}
	fmt.Fprintf(&decl, "type %s struct {\n", s.TypeName)
	for i, f := range s.Fields {
		fmt.Fprintf(&decl, "%s %s // %s\n", exported(f.Name), types[i], f.Type)
	}
	decl.WriteString("}\n")

	array := arrayName(s.TypeName)
	n := len(s.Members)
	alloc := fmt.Sprintf("var %s [%d]%s\n", array, n, s.TypeName)

	var bind strings.Builder
	fmt.Fprintf(&bind, "func init() {\n%s = [%d]%s{\n", array, n, s.TypeName)
	for m, member := range s.Members {
		fmt.Fprintf(&bind, "{ // %s\n", member)
		for i, f := range s.Fields {
			fmt.Fprintf(&bind, "%s: %s,\n", exported(f.Name), e.value(f.Values[m], types[i]))
		}
		bind.WriteString("},\n")
	}
	bind.WriteString("}\n}\n")

	em := codegen.Emission{TypeName: s.TypeName}
	var err error
	if em.Declaration, err = e.format(decl.String()); err != nil {
		return codegen.Emission{}, err
	}
	if em.Allocation, err = e.format(alloc); err != nil {
		return codegen.Emission{}, err
	}
	if em.Binding, err = e.format(bind.String()); err != nil {
		return codegen.Emission{}, err
	}
	return em, nil
}

func (e *GoEmitter) value(v codegen.Value, typ string) string {
	if k, ok := v.Key(); ok {
		return fmt.Sprintf("%d /* %s */", e.cfg.Buffers.Handle(k), e.cfg.Naming.Symbol(k))
	}
	switch v.Literal {
	case "NAN":
		return typ + "(math.NaN())"
	case "INFINITY":
		return typ + "(math.Inf(1))"
	case "-INFINITY":
		return typ + "(math.Inf(-1))"
	}
	return v.Literal
}

// format gofmts one fragment. Imports are resolved once, in Assemble.
func (e *GoEmitter) format(fragment string) (string, error) {
	header := "package " + e.cfg.Package + "\n\n"
	out, err := imports.Process("merged.go", []byte(header+fragment), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return "", fmt.Errorf("emit go: format: %w", err)
	}
	_, body, _ := strings.Cut(string(out), "\n")
	return strings.TrimLeft(body, "\n"), nil
}

func (e *GoEmitter) Expr(x codegen.Expr) string {
	return renderExpr(x,
		func(name string) string { return "group." + exported(name) },
		func(name string) string { return "arena.Uint32(group." + exported(name) + ")[0]" })
}

func (e *GoEmitter) ResetStatements(ops []codegen.ResetOp) string {
	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&b, "arena.Uint32(group.%s)[%s] = 0\n", exported(op.Field), e.Expr(op.Slot))
	}
	return b.String()
}

func (e *GoEmitter) Assemble(emissions []codegen.Emission) ([]byte, error) {
	var b strings.Builder
	b.WriteString("// Code generated by spikegen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", e.cfg.Package)
	b.WriteString("// Handle indexes the runtime buffer arena.\ntype Handle uint32\n\n")
	b.WriteString("// bufferSymbols maps every handle to the buffer it stands for.\n")
	b.WriteString("var bufferSymbols = map[Handle]string{\n")
	for _, buf := range e.cfg.Buffers.Buffers() {
		fmt.Fprintf(&b, "%d: %q,\n", buf.Handle, buf.Symbol)
	}
	b.WriteString("}\n")
	for _, part := range []func(codegen.Emission) string{
		func(em codegen.Emission) string { return em.Declaration },
		func(em codegen.Emission) string { return em.Allocation },
		func(em codegen.Emission) string { return em.Binding },
	} {
		for _, em := range emissions {
			b.WriteString("\n")
			b.WriteString(part(em))
		}
	}
	out, err := imports.Process("merged.go", []byte(b.String()), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, fmt.Errorf("emit go: assemble: %w", err)
	}
	return out, nil
}
