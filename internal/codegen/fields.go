package codegen

import (
	"strconv"

	"spikegen/internal/model"
)

// Group is anything a merged struct can be built over.
type Group interface {
	GroupName() string
}

// Field is one member of a merged struct. Values holds the resolved value for
// every group of the merged group, in member order.
type Field struct {
	Type   string    `json:"type"`
	Name   string    `json:"name"`
	Kind   FieldKind `json:"kind"`
	Values []Value   `json:"values"`
}

// Resolver yields the value of a field for group g at position member.
type Resolver[G Group] func(g G, member int) Value

// FieldTable accumulates the fields of one merged struct in registration
// order. Resolvers run once, when a field is added; the table stores only
// their results.
type FieldTable[G Group] struct {
	groups    []G
	fields    []Field
	index     map[string]int
	generated bool
}

func NewFieldTable[G Group](groups []G) *FieldTable[G] {
	if len(groups) == 0 {
		fatalf("NewFieldTable", "merged group has no members")
	}
	return &FieldTable[G]{groups: groups, index: make(map[string]int)}
}

func (t *FieldTable[G]) Archetype() G { return t.groups[0] }

func (t *FieldTable[G]) Groups() []G { return t.groups }

// Fields returns the fields in layout order.
func (t *FieldTable[G]) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

func (t *FieldTable[G]) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

func (t *FieldTable[G]) Len() int { return len(t.fields) }

func (t *FieldTable[G]) AddField(typ, name string, resolve Resolver[G], kind FieldKind) {
	if t.generated {
		fatalf("AddField", "field %s added after generate", name)
	}
	if _, exists := t.index[name]; exists {
		fatalf("AddField", "duplicate field %s", name)
	}
	values := make([]Value, len(t.groups))
	for i, g := range t.groups {
		values[i] = resolve(g, i)
	}
	t.index[name] = len(t.fields)
	t.fields = append(t.fields, Field{Type: typ, Name: name, Kind: kind, Values: values})
}

// AddPointerField adds a pointer to the array buffer of each group.
func (t *FieldTable[G]) AddPointerField(typ, name, buffer string) {
	t.AddField(typ+"*", name, func(g G, _ int) Value {
		return BufferRef(SpaceArray, buffer, g.GroupName())
	}, FieldPointer)
}

func (t *FieldTable[G]) AddScalarField(name string, value func(g G, member int) float64) {
	t.AddField("scalar", name, func(g G, member int) Value {
		return LiteralFloat(value(g, member))
	}, FieldScalar)
}

func (t *FieldTable[G]) AddVars(vars []model.Var) {
	for _, v := range vars {
		t.AddPointerField(v.Type, v.Name, v.Name)
	}
}

// AddEGPs adds one field per extra global parameter. varName scopes the
// EGPs to one variable's initialiser.
func (t *FieldTable[G]) AddEGPs(egps []model.EGP, varName string) {
	for _, e := range egps {
		space, kind := egpPlacement(e)
		t.AddField(e.Type, e.Name+varName, func(g G, _ int) Value {
			return BufferRef(space, e.Name+varName, g.GroupName())
		}, kind)
	}
}

// AddChildEGPs adds the EGPs of child number child. owner names the
// child object that owns the buffers for a given member.
func (t *FieldTable[G]) AddChildEGPs(egps []model.EGP, child int, varName, suffix string, owner func(member, child int) string) {
	for _, e := range egps {
		space, kind := egpPlacement(e)
		t.AddField(e.Type, e.Name+varName+suffix+strconv.Itoa(child), func(_ G, member int) Value {
			return BufferRef(space, e.Name+varName, owner(member, child))
		}, kind)
	}
}

func egpPlacement(e model.EGP) (Space, FieldKind) {
	if e.IsPointer() {
		return SpaceArray, FieldPointerEGP
	}
	return SpaceHost, FieldScalarEGP
}

// AddHeterogeneousParams adds a scalar field for every parameter isHet marks
// as heterogeneous. The rest are folded into generated code as literals.
func (t *FieldTable[G]) AddHeterogeneousParams(names []string, suffix string, values func(g G) []float64, isHet func(p int) bool) {
	for p, name := range names {
		if !isHet(p) {
			continue
		}
		t.AddScalarField(name+suffix, func(g G, _ int) float64 {
			return values(g)[p]
		})
	}
}

func (t *FieldTable[G]) AddHeterogeneousDerivedParams(params []model.DerivedParam, suffix string, values func(g G) []float64, isHet func(p int) bool) {
	t.AddHeterogeneousParams(derivedNames(params), suffix, values, isHet)
}

// AddHeterogeneousVarInitParams walks the initialiser of every variable of
// the archetype and adds fields named param+var.
func (t *FieldTable[G]) AddHeterogeneousVarInitParams(vars []model.Var, inits func(g G) []model.VarInit, isHet func(v, p int) bool) {
	archetype := inits(t.Archetype())
	for v, variable := range vars {
		for p, name := range archetype[v].Snippet.ParamNames {
			if !isHet(v, p) {
				continue
			}
			t.AddScalarField(name+variable.Name, func(g G, _ int) float64 {
				return inits(g)[v].Params[p]
			})
		}
	}
}

func (t *FieldTable[G]) AddHeterogeneousVarInitDerivedParams(vars []model.Var, inits func(g G) []model.VarInit, isHet func(v, p int) bool) {
	archetype := inits(t.Archetype())
	for v, variable := range vars {
		for p, dp := range archetype[v].Snippet.DerivedParams {
			if !isHet(v, p) {
				continue
			}
			t.AddScalarField(dp.Name+variable.Name, func(g G, _ int) float64 {
				return inits(g)[v].DerivedParams[p]
			})
		}
	}
}

func (t *FieldTable[G]) AddHeterogeneousChildParams(names []string, child int, suffix string, isHet func(p int) bool, value func(member, child, p int) float64) {
	for p, name := range names {
		if !isHet(p) {
			continue
		}
		t.AddScalarField(name+suffix+strconv.Itoa(child), func(_ G, member int) float64 {
			return value(member, child, p)
		})
	}
}

func (t *FieldTable[G]) AddHeterogeneousChildDerivedParams(params []model.DerivedParam, child int, suffix string, isHet func(p int) bool, value func(member, child, p int) float64) {
	t.AddHeterogeneousChildParams(derivedNames(params), child, suffix, isHet, value)
}

func (t *FieldTable[G]) AddHeterogeneousChildVarInitParams(names []string, child, v int, suffix string, isHet func(child, v, p int) bool, inits func(member, child int) []model.VarInit) {
	for p, name := range names {
		if !isHet(child, v, p) {
			continue
		}
		t.AddScalarField(name+suffix+strconv.Itoa(child), func(_ G, member int) float64 {
			return inits(member, child)[v].Params[p]
		})
	}
}

func (t *FieldTable[G]) AddHeterogeneousChildVarInitDerivedParams(params []model.DerivedParam, child, v int, suffix string, isHet func(child, v, p int) bool, inits func(member, child int) []model.VarInit) {
	for p, dp := range params {
		if !isHet(child, v, p) {
			continue
		}
		t.AddScalarField(dp.Name+suffix+strconv.Itoa(child), func(_ G, member int) float64 {
			return inits(member, child)[v].DerivedParams[p]
		})
	}
}

// Generate hands the completed table to e. The table is frozen afterwards.
func (t *FieldTable[G]) Generate(e StructEmitter, s Struct) (Emission, error) {
	t.generated = true
	s.Fields = t.Fields()
	s.Members = make([]string, len(t.groups))
	for i, g := range t.groups {
		s.Members[i] = g.GroupName()
	}
	return e.EmitStruct(s)
}

func derivedNames(params []model.DerivedParam) []string {
	names := make([]string, len(params))
	for i, dp := range params {
		names[i] = dp.Name
	}
	return names
}
