package compiler

import (
	"strings"

	"spikegen/internal/codegen"
	"spikegen/internal/model"
	"spikegen/internal/storage"
)

// Layouts converts every merged group into its persisted form.
func (r Result) Layouts() []model.LayoutRecord {
	out := make([]model.LayoutRecord, len(r.Groups))
	for i, g := range r.Groups {
		fields := g.Fields()
		lf := make([]model.LayoutField, len(fields))
		for j, f := range fields {
			values := make([]string, len(f.Values))
			for k, v := range f.Values {
				values[k] = r.describe(v)
			}
			lf[j] = model.LayoutField{Name: f.Name, Type: f.Type, Kind: f.Kind.String(), Values: values}
		}
		var decl string
		if i < len(r.Emissions) {
			decl = r.Emissions[i].Declaration
		}
		out[i] = model.LayoutRecord{
			VersionedRecord: storage.Versioned(),
			RunID:           r.RunID,
			TypeName:        g.TypeName(),
			Role:            g.Role().String(),
			Index:           g.Index(),
			HostOnly:        g.HostOnly(),
			Members:         g.Members(),
			Fields:          lf,
			Declaration:     decl,
		}
	}
	return out
}

// Run summarises the compile.
func (r Result) Run() model.RunRecord {
	fields := 0
	var bytes uint64
	for _, g := range r.Groups {
		fields += len(g.Fields())
		bytes += StructSize(g.Fields(), r.precision) * uint64(len(g.Members()))
	}
	return model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              r.RunID,
		Network:         r.Network,
		Backend:         r.Backend,
		CreatedAt:       r.CreatedAt,
		MergedGroups:    len(r.Groups),
		Fields:          fields,
		Buffers:         len(r.Buffers),
		StructBytes:     bytes,
	}
}

func (r Result) describe(v codegen.Value) string {
	switch v.Kind {
	case codegen.ValueBuffer:
		return r.naming.Symbol(v.Buffer)
	case codegen.ValueAddress:
		return "&" + r.naming.Symbol(v.Buffer)
	case codegen.ValueSymbolAddress:
		return "@" + r.naming.Symbol(v.Buffer)
	}
	return v.Literal
}

var typeSizes = map[string]uint64{
	"bool":         1,
	"int8_t":       1,
	"uint8_t":      1,
	"int16_t":      2,
	"uint16_t":     2,
	"float":        4,
	"int":          4,
	"int32_t":      4,
	"unsigned int": 4,
	"uint32_t":     4,
	"double":       8,
	"int64_t":      8,
	"uint64_t":     8,
}

// StructSize is the C layout size of one struct instance with natural
// alignment. Pointers are 8 bytes and unknown value types count as 8.
func StructSize(fields []codegen.Field, precision string) uint64 {
	var size, align uint64 = 0, 1
	for _, f := range fields {
		n := fieldSize(f.Type, precision)
		if rem := size % n; rem != 0 {
			size += n - rem
		}
		size += n
		if n > align {
			align = n
		}
	}
	if rem := size % align; rem != 0 {
		size += align - rem
	}
	return size
}

func fieldSize(typ, precision string) uint64 {
	typ = strings.TrimSpace(typ)
	if strings.HasSuffix(typ, "*") {
		return 8
	}
	if typ == "scalar" {
		typ = precision
	}
	if n, ok := typeSizes[typ]; ok {
		return n
	}
	return 8
}
