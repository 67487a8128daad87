package codegen

import (
	"math"
	"strconv"
	"strings"
)

// Space says which naming prefix locates a buffer.
type Space int

const (
	// SpaceHost buffers are named without any prefix.
	SpaceHost Space = iota
	// SpaceArray buffers carry the backend's array prefix.
	SpaceArray
	// SpaceScalar symbols carry the backend's scalar prefix.
	SpaceScalar
)

func (s Space) String() string {
	switch s {
	case SpaceHost:
		return "host"
	case SpaceArray:
		return "array"
	case SpaceScalar:
		return "scalar"
	}
	return "space(" + strconv.Itoa(int(s)) + ")"
}

// BufferKey identifies one per-group buffer. The emitter joins it into a
// symbol name; nothing in this package does.
type BufferKey struct {
	Space Space
	Name  string
	Group string
}

type ValueKind int

const (
	ValueLiteral ValueKind = iota
	ValueBuffer
	ValueAddress
	ValueSymbolAddress
)

// Value is what one field resolves to for one member of a merged group.
type Value struct {
	Kind    ValueKind
	Literal string
	Buffer  BufferKey
}

func Literal(s string) Value {
	return Value{Kind: ValueLiteral, Literal: s}
}

func LiteralUint(v uint32) Value {
	return Value{Kind: ValueLiteral, Literal: strconv.FormatUint(uint64(v), 10)}
}

func LiteralFloat(v float64) Value {
	return Value{Kind: ValueLiteral, Literal: PreciseString(v)}
}

func BufferRef(space Space, name, group string) Value {
	return Value{Kind: ValueBuffer, Buffer: BufferKey{Space: space, Name: name, Group: group}}
}

func AddressOf(space Space, name, group string) Value {
	return Value{Kind: ValueAddress, Buffer: BufferKey{Space: space, Name: name, Group: group}}
}

// SymbolAddress refers to the device address of a scalar symbol.
func SymbolAddress(name, group string) Value {
	return Value{Kind: ValueSymbolAddress, Buffer: BufferKey{Space: SpaceScalar, Name: name, Group: group}}
}

// Key returns the buffer the value refers to, if any.
func (v Value) Key() (BufferKey, bool) {
	if v.Kind == ValueLiteral {
		return BufferKey{}, false
	}
	return v.Buffer, true
}

// PreciseString formats v so that parsing it back yields the same float64
// and so that it always reads as a floating point literal.
func PreciseString(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "-INFINITY"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
