package grouping

import (
	"strconv"

	"spikegen/internal/codegen"
	"spikegen/internal/model"
)

// Options carries the backend facts that decide which synapse groups need a
// sparse init struct.
type Options struct {
	PostsynapticRemap bool
	SynRemap          bool
}

// Plan lists the merged groups of every role, in role order.
type Plan struct {
	Neuron  map[codegen.Role][]Class[*model.NeuronGroup]
	Synapse map[codegen.Role][]Class[*model.SynapseGroup]
}

// Len counts merged groups across all roles.
func (p Plan) Len() int {
	n := 0
	for _, classes := range p.Neuron {
		n += len(classes)
	}
	for _, classes := range p.Synapse {
		n += len(classes)
	}
	return n
}

var neuronRoles = []codegen.Role{
	codegen.RoleNeuronSpikeQueueUpdate,
	codegen.RoleNeuronUpdate,
	codegen.RoleNeuronInit,
}

var synapseRoles = []codegen.Role{
	codegen.RoleSynapseDendriticDelayUpdate,
	codegen.RoleSynapseConnectivityHostInit,
	codegen.RoleSynapseConnectivityInit,
	codegen.RolePresynapticUpdate,
	codegen.RolePostsynapticUpdate,
	codegen.RoleSynapseDynamics,
	codegen.RoleSynapseDenseInit,
	codegen.RoleSynapseSparseInit,
}

// Roles lists every role in build order.
func Roles() []codegen.Role {
	return append(append([]codegen.Role(nil), neuronRoles...), synapseRoles...)
}

// IsNeuronRole reports whether role is built over neuron groups.
func IsNeuronRole(role codegen.Role) bool {
	for _, r := range neuronRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Build partitions a finalized network for every role.
func Build(net *model.Network, opts Options) Plan {
	plan := Plan{
		Neuron:  make(map[codegen.Role][]Class[*model.NeuronGroup], len(neuronRoles)),
		Synapse: make(map[codegen.Role][]Class[*model.SynapseGroup], len(synapseRoles)),
	}
	for _, role := range neuronRoles {
		plan.Neuron[role] = NeuronClasses(role, net.NeuronGroups)
	}
	for _, role := range synapseRoles {
		plan.Synapse[role] = SynapseClasses(role, net.SynapseGroups, opts)
	}
	return plan
}

func NeuronClasses(role codegen.Role, groups []*model.NeuronGroup) []Class[*model.NeuronGroup] {
	var canMerge func(a, b *model.NeuronGroup) bool
	switch role {
	case codegen.RoleNeuronSpikeQueueUpdate:
		canMerge = canSpikeQueueBeMerged
	case codegen.RoleNeuronUpdate:
		canMerge = CanBeMerged
	case codegen.RoleNeuronInit:
		canMerge = CanInitBeMerged
	default:
		return nil
	}
	return Partition(groups, neuronFingerprint(role), canMerge)
}

// SynapseClasses selects the synapse groups that take part in role and
// partitions them.
func SynapseClasses(role codegen.Role, groups []*model.SynapseGroup, opts Options) []Class[*model.SynapseGroup] {
	var selected []*model.SynapseGroup
	seenTargets := make(map[string]bool)
	for _, sg := range groups {
		if !participates(role, sg, opts) {
			continue
		}
		// linearly merged inputs share one delay pointer
		if role == codegen.RoleSynapseDendriticDelayUpdate {
			if seenTargets[sg.PSModelTargetName()] {
				continue
			}
			seenTargets[sg.PSModelTargetName()] = true
		}
		selected = append(selected, sg)
	}
	return Partition(selected, synapseFingerprint(role), synapseMergePredicate(role))
}

func participates(role codegen.Role, sg *model.SynapseGroup, opts Options) bool {
	wum := sg.WUModel
	connectivity := sg.ConnectivityInitialiser.Snippet
	switch role {
	case codegen.RoleSynapseDendriticDelayUpdate:
		return sg.IsDendriticDelayRequired()
	case codegen.RoleSynapseConnectivityHostInit:
		return !sg.IsWeightSharingSlave() && connectivity != nil && connectivity.HostInitCode != ""
	case codegen.RoleSynapseConnectivityInit:
		return !sg.IsWeightSharingSlave() && connectivity != nil && connectivity.RowBuildCode != "" &&
			(sg.MatrixType.Has(model.ConnectivitySparse) || sg.MatrixType.Has(model.ConnectivityBitmask))
	case codegen.RolePresynapticUpdate:
		return sg.IsTrueSpikeRequired() || sg.IsSpikeEventRequired()
	case codegen.RolePostsynapticUpdate:
		return wum.LearnPostCode != ""
	case codegen.RoleSynapseDynamics:
		return wum.SynapseDynamicsCode != ""
	case codegen.RoleSynapseDenseInit:
		return !sg.IsWeightSharingSlave() && sg.MatrixType.Has(model.ConnectivityDense) &&
			sg.MatrixType.Has(model.WeightIndividual) && hasVarInitCode(sg.WUVarInitialisers)
	case codegen.RoleSynapseSparseInit:
		if sg.IsWeightSharingSlave() || !sg.MatrixType.Has(model.ConnectivitySparse) {
			return false
		}
		return (sg.MatrixType.Has(model.WeightIndividual) && hasVarInitCode(sg.WUVarInitialisers)) ||
			(opts.PostsynapticRemap && wum.LearnPostCode != "") ||
			(opts.SynRemap && wum.SynapseDynamicsCode != "")
	}
	return false
}

func hasVarInitCode(inits []model.VarInit) bool {
	for _, vi := range inits {
		if !vi.Empty() {
			return true
		}
	}
	return false
}

func synapseMergePredicate(role codegen.Role) func(a, b *model.SynapseGroup) bool {
	switch role {
	case codegen.RoleSynapseDendriticDelayUpdate:
		return func(a, b *model.SynapseGroup) bool { return true }
	case codegen.RoleSynapseConnectivityHostInit, codegen.RoleSynapseConnectivityInit:
		return (*model.SynapseGroup).CanConnectivityInitBeMerged
	case codegen.RoleSynapseDenseInit, codegen.RoleSynapseSparseInit:
		return (*model.SynapseGroup).CanWUInitBeMerged
	}
	return (*model.SynapseGroup).CanWUBeMerged
}

func synapseFingerprint(role codegen.Role) func(*model.SynapseGroup) string {
	return func(sg *model.SynapseGroup) string {
		switch role {
		case codegen.RoleSynapseDendriticDelayUpdate:
			return Fingerprint(nil)
		case codegen.RoleSynapseConnectivityHostInit, codegen.RoleSynapseConnectivityInit:
			return Fingerprint([]string{
				"conn=" + sg.ConnectivityInitialiser.Snippet.Name,
				"matrix=" + strconv.FormatUint(uint64(sg.MatrixType.Connectivity()), 10),
				"ind=" + sg.SparseIndType,
			})
		}
		return Fingerprint([]string{
			"wu=" + sg.WUModel.Name,
			"matrix=" + strconv.FormatUint(uint64(sg.MatrixType), 10),
			"ind=" + sg.SparseIndType,
		})
	}
}
