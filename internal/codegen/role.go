package codegen

import (
	"fmt"

	"github.com/goki/ki/kit"
)

// Role selects which merged struct a builder produces.
type Role int

var KiT_Role = kit.Enums.AddEnum(RoleN, false, nil)

func (r Role) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(r) }
func (r *Role) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(r, b) }

const (
	RoleNeuronSpikeQueueUpdate Role = iota
	RoleNeuronUpdate
	RoleNeuronInit
	RoleSynapseDendriticDelayUpdate
	RoleSynapseConnectivityHostInit
	RoleSynapseConnectivityInit
	RolePresynapticUpdate
	RolePostsynapticUpdate
	RoleSynapseDynamics
	RoleSynapseDenseInit
	RoleSynapseSparseInit

	RoleN
)

var roleNames = [...]string{
	RoleNeuronSpikeQueueUpdate:      "NeuronSpikeQueueUpdate",
	RoleNeuronUpdate:                "NeuronUpdate",
	RoleNeuronInit:                  "NeuronInit",
	RoleSynapseDendriticDelayUpdate: "SynapseDendriticDelayUpdate",
	RoleSynapseConnectivityHostInit: "SynapseConnectivityHostInit",
	RoleSynapseConnectivityInit:     "SynapseConnectivityInit",
	RolePresynapticUpdate:           "PresynapticUpdate",
	RolePostsynapticUpdate:          "PostsynapticUpdate",
	RoleSynapseDynamics:             "SynapseDynamics",
	RoleSynapseDenseInit:            "SynapseDenseInit",
	RoleSynapseSparseInit:           "SynapseSparseInit",
}

func (r Role) String() string {
	if r < 0 || r >= RoleN {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

func (r *Role) FromString(s string) error {
	for i, name := range roleNames {
		if name == s {
			*r = Role(i)
			return nil
		}
	}
	return fmt.Errorf("codegen: unknown role %q", s)
}

// IsInit reports whether the role initialises state rather than updating it.
func (r Role) IsInit() bool {
	switch r {
	case RoleNeuronInit, RoleSynapseConnectivityHostInit, RoleSynapseConnectivityInit,
		RoleSynapseDenseInit, RoleSynapseSparseInit:
		return true
	}
	return false
}

// FieldKind classifies how the emitter must treat a field.
type FieldKind int

var KiT_FieldKind = kit.Enums.AddEnum(FieldKindN, false, nil)

func (k FieldKind) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(k) }
func (k *FieldKind) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(k, b) }

const (
	// FieldPlain is a runtime value such as a count or a symbol address.
	FieldPlain FieldKind = iota

	// FieldScalar holds a value that could have been a literal but differs
	// across members.
	FieldScalar

	// FieldPointer points at a per-group array.
	FieldPointer

	FieldScalarEGP
	FieldPointerEGP

	FieldKindN
)

var fieldKindNames = [...]string{
	FieldPlain:      "Plain",
	FieldScalar:     "Scalar",
	FieldPointer:    "Pointer",
	FieldScalarEGP:  "ScalarEGP",
	FieldPointerEGP: "PointerEGP",
}

func (k FieldKind) String() string {
	if k < 0 || k >= FieldKindN {
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
	return fieldKindNames[k]
}

func (k *FieldKind) FromString(s string) error {
	for i, name := range fieldKindNames {
		if name == s {
			*k = FieldKind(i)
			return nil
		}
	}
	return fmt.Errorf("codegen: unknown field kind %q", s)
}

func (k FieldKind) IsEGP() bool {
	return k == FieldScalarEGP || k == FieldPointerEGP
}
