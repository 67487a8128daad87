package emit

import (
	"errors"
	"fmt"
	"strings"

	"spikegen/internal/codegen"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Backend is a struct emitter that can also render index expressions and
// stitch emissions into one source file.
type Backend interface {
	codegen.StructEmitter
	Name() string
	// Expr renders an index expression against the struct variable group.
	Expr(e codegen.Expr) string
	// ResetStatements renders the spike counter resets of a spike queue
	// update struct, one statement per line.
	ResetStatements(ops []codegen.ResetOp) string
	Assemble(emissions []codegen.Emission) ([]byte, error)
}

// Config is shared by every backend.
type Config struct {
	Naming    Naming
	Buffers   *BufferTable
	Precision string
	// Package names the generated Go package.
	Package string
}

func DefaultConfig() Config {
	naming := DefaultNaming()
	return Config{
		Naming:    naming,
		Buffers:   NewBufferTable(naming),
		Precision: "float",
		Package:   "kernels",
	}
}

// Backends lists the backend names New accepts.
func Backends() []string { return []string{"c", "go"} }

func New(name string, cfg Config) (Backend, error) {
	if cfg.Buffers == nil {
		cfg.Buffers = NewBufferTable(cfg.Naming)
	}
	switch strings.ToLower(name) {
	case "c", "":
		return &CEmitter{cfg: cfg}, nil
	case "go":
		if cfg.Package == "" {
			cfg.Package = "kernels"
		}
		return &GoEmitter{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}

// renderExpr walks e, leaving the leaf syntax to the caller.
func renderExpr(e codegen.Expr, field, deref func(name string) string) string {
	switch x := e.(type) {
	case codegen.FieldRef:
		return field(x.Name)
	case codegen.Deref:
		return deref(x.Name)
	case codegen.Const:
		return fmt.Sprintf("%d", x.Value)
	case codegen.Raw:
		return x.Text
	case codegen.Paren:
		return "(" + renderExpr(x.X, field, deref) + ")"
	case codegen.Binary:
		l := renderExpr(x.L, field, deref)
		r := renderExpr(x.R, field, deref)
		// products of sums keep their grouping
		if x.Op == '*' || x.Op == '%' {
			l = parenthesize(x.L, l, false)
			r = parenthesize(x.R, r, true)
		}
		return l + " " + string(x.Op) + " " + r
	case nil:
		return ""
	}
	panic(fmt.Sprintf("emit: unsupported expression %T", e))
}

func parenthesize(e codegen.Expr, s string, right bool) string {
	b, ok := e.(codegen.Binary)
	if ok && (right || b.Op == '+' || b.Op == '-') {
		return "(" + s + ")"
	}
	return s
}

// arrayName is the lower camel name of the array holding every instance of
// a merged struct.
func arrayName(typeName string) string {
	if typeName == "" {
		return ""
	}
	return "merged" + strings.TrimPrefix(typeName, "Merged")
}
