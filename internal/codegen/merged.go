// Package codegen decides the layout of merged structs.
//
// A merged group is a set of structurally identical neuron or synapse groups
// that share one generated code path. For each merged group a builder:
//   - sorts child objects so that child i plays the same role in every member
//   - registers the structural fields the role always needs
//   - registers a runtime field for every parameter whose value differs
//     across members and is referenced by code, folding the rest
//
// The result is a field table that a StructEmitter turns into target code.
package codegen

import "strconv"

// BuildOptions carries the backend facts a builder needs.
type BuildOptions struct {
	Precision     string
	TimePrecision string
	// ArrayPrefix only names the device-side EGP fields of the host-only
	// connectivity init struct; buffer values stay typed.
	ArrayPrefix       string
	PopulationRNG     bool
	PostsynapticRemap bool
	SynRemap          bool
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Precision:         "float",
		TimePrecision:     "double",
		ArrayPrefix:       "d_",
		PopulationRNG:     true,
		PostsynapticRemap: true,
		SynRemap:          true,
	}
}

// Struct is everything an emitter needs to render one merged struct.
type Struct struct {
	TypeName string
	Role     Role
	Index    int
	HostOnly bool
	Members  []string
	Fields   []Field
}

type Emission struct {
	TypeName    string
	Declaration string
	Allocation  string
	Binding     string
}

type StructEmitter interface {
	EmitStruct(s Struct) (Emission, error)
}

// Merged is implemented by *NeuronGroupMerged and *SynapseGroupMerged only.
type Merged interface {
	Role() Role
	Index() int
	TypeName() string
	Members() []string
	Fields() []Field
	HostOnly() bool
	Generate(e StructEmitter) (Emission, error)

	merged()
}

func TypeName(role Role, index int) string {
	return "Merged" + role.String() + "Group" + strconv.Itoa(index)
}

type mergedBase[G Group] struct {
	role  Role
	index int
	opts  BuildOptions
	table *FieldTable[G]
}

func newMergedBase[G Group](role Role, index int, opts BuildOptions, groups []G) mergedBase[G] {
	return mergedBase[G]{role: role, index: index, opts: opts, table: NewFieldTable(groups)}
}

func (m *mergedBase[G]) Role() Role                      { return m.role }
func (m *mergedBase[G]) Index() int                      { return m.index }
func (m *mergedBase[G]) TypeName() string                { return TypeName(m.role, m.index) }
func (m *mergedBase[G]) Fields() []Field                 { return m.table.Fields() }
func (m *mergedBase[G]) Archetype() G                    { return m.table.Archetype() }
func (m *mergedBase[G]) Groups() []G                     { return m.table.Groups() }
func (m *mergedBase[G]) HostOnly() bool                  { return m.role == RoleSynapseConnectivityHostInit }
func (m *mergedBase[G]) Field(name string) (Field, bool) { return m.table.Field(name) }

func (m *mergedBase[G]) Members() []string {
	groups := m.table.Groups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.GroupName()
	}
	return names
}

func (m *mergedBase[G]) Generate(e StructEmitter) (Emission, error) {
	return m.table.Generate(e, Struct{
		TypeName: m.TypeName(),
		Role:     m.role,
		Index:    m.index,
		HostOnly: m.HostOnly(),
	})
}

func (m *mergedBase[G]) merged() {}

func (m *mergedBase[G]) members() int { return len(m.table.Groups()) }
