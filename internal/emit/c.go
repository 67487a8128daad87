package emit

import (
	"fmt"
	"strings"

	"spikegen/internal/codegen"
)

// CEmitter renders merged structs as CUDA flavoured C++. Device structs live
// in constant memory and are filled by a push function; host-only structs
// are plain static arrays.
type CEmitter struct {
	cfg Config
}

func (e *CEmitter) Name() string { return "c" }

func (e *CEmitter) EmitStruct(s codegen.Struct) (codegen.Emission, error) {
	if s.TypeName == "" {
		return codegen.Emission{}, fmt.Errorf("emit c: struct has no type name")
	}
	e.cfg.Buffers.Register(s.Fields)

	var decl strings.Builder
	fmt.Fprintf(&decl, "struct %s\n{\n", s.TypeName)
	for _, f := range s.Fields {
		fmt.Fprintf(&decl, "    %s %s;\n", f.Type, f.Name)
	}
	decl.WriteString("};\n")

	array := arrayName(s.TypeName)
	n := len(s.Members)
	var alloc string
	if s.HostOnly {
		alloc = fmt.Sprintf("static %s %s[%d];\n", s.TypeName, array, n)
	} else {
		alloc = fmt.Sprintf("__device__ __constant__ %s %s%s[%d];\n", s.TypeName, e.cfg.Naming.ScalarPrefix, array, n)
	}

	var bind strings.Builder
	if s.HostOnly {
		fmt.Fprintf(&bind, "void init%s()\n{\n", s.TypeName)
		for m, member := range s.Members {
			fmt.Fprintf(&bind, "    %s[%d] = {%s}; // %s\n", array, m, e.initializer(s.Fields, m), member)
		}
		bind.WriteString("}\n")
	} else {
		fmt.Fprintf(&bind, "void push%sToDevice()\n{\n", s.TypeName)
		fmt.Fprintf(&bind, "    const %s groups[] = {\n", s.TypeName)
		for m, member := range s.Members {
			fmt.Fprintf(&bind, "        {%s}, // %s\n", e.initializer(s.Fields, m), member)
		}
		bind.WriteString("    };\n")
		fmt.Fprintf(&bind, "    CHECK_CUDA_ERRORS(cudaMemcpyToSymbol(%s%s, groups, sizeof(groups)));\n", e.cfg.Naming.ScalarPrefix, array)
		bind.WriteString("}\n")
	}

	return codegen.Emission{
		TypeName:    s.TypeName,
		Declaration: decl.String(),
		Allocation:  alloc,
		Binding:     bind.String(),
	}, nil
}

func (e *CEmitter) initializer(fields []codegen.Field, member int) string {
	values := make([]string, len(fields))
	for i, f := range fields {
		values[i] = e.value(f.Values[member])
	}
	return strings.Join(values, ", ")
}

func (e *CEmitter) value(v codegen.Value) string {
	switch v.Kind {
	case codegen.ValueBuffer:
		return e.cfg.Naming.Symbol(v.Buffer)
	case codegen.ValueAddress:
		return "&" + e.cfg.Naming.Symbol(v.Buffer)
	case codegen.ValueSymbolAddress:
		return "getSymbolAddress(" + e.cfg.Naming.Symbol(v.Buffer) + ")"
	}
	return v.Literal
}

func (e *CEmitter) Expr(x codegen.Expr) string {
	return renderExpr(x,
		func(name string) string { return "group->" + name },
		func(name string) string { return "*group->" + name })
}

func (e *CEmitter) ResetStatements(ops []codegen.ResetOp) string {
	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&b, "group->%s[%s] = 0;\n", op.Field, e.Expr(op.Slot))
	}
	return b.String()
}

func (e *CEmitter) Assemble(emissions []codegen.Emission) ([]byte, error) {
	var b strings.Builder
	b.WriteString("// Code generated by spikegen. DO NOT EDIT.\n")
	b.WriteString("#pragma once\n#include <cstdint>\n\n")
	fmt.Fprintf(&b, "typedef %s scalar;\n", e.cfg.Precision)
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
	return []byte(b.String()), nil
}
