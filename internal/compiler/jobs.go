package compiler

import (
	"spikegen/internal/codegen"
	"spikegen/internal/grouping"
	"spikegen/internal/model"
)

// job is one merged group to build: a role, its index within the role and
// the members, archetype first.
type job struct {
	role     codegen.Role
	index    int
	neurons  []*model.NeuronGroup
	synapses []*model.SynapseGroup
}

type neuronBuilder func(int, codegen.BuildOptions, []*model.NeuronGroup) *codegen.NeuronGroupMerged

type synapseBuilder func(int, codegen.BuildOptions, []*model.SynapseGroup) *codegen.SynapseGroupMerged

var neuronBuilders = map[codegen.Role]neuronBuilder{
	codegen.RoleNeuronSpikeQueueUpdate: codegen.NewNeuronSpikeQueueUpdate,
	codegen.RoleNeuronUpdate:           codegen.NewNeuronUpdate,
	codegen.RoleNeuronInit:             codegen.NewNeuronInit,
}

var synapseBuilders = map[codegen.Role]synapseBuilder{
	codegen.RoleSynapseDendriticDelayUpdate: codegen.NewSynapseDendriticDelayUpdate,
	codegen.RoleSynapseConnectivityHostInit: codegen.NewSynapseConnectivityHostInit,
	codegen.RoleSynapseConnectivityInit:     codegen.NewSynapseConnectivityInit,
	codegen.RolePresynapticUpdate:           codegen.NewPresynapticUpdate,
	codegen.RolePostsynapticUpdate:          codegen.NewPostsynapticUpdate,
	codegen.RoleSynapseDynamics:             codegen.NewSynapseDynamics,
	codegen.RoleSynapseDenseInit:            codegen.NewSynapseDenseInit,
	codegen.RoleSynapseSparseInit:           codegen.NewSynapseSparseInit,
}

// planJobs flattens a plan in role order.
func planJobs(plan grouping.Plan) []job {
	var jobs []job
	for _, role := range grouping.Roles() {
		if grouping.IsNeuronRole(role) {
			for i, class := range plan.Neuron[role] {
				jobs = append(jobs, job{role: role, index: i, neurons: class.Members})
			}
			continue
		}
		for i, class := range plan.Synapse[role] {
			jobs = append(jobs, job{role: role, index: i, synapses: class.Members})
		}
	}
	return jobs
}

func (j job) build(opts codegen.BuildOptions) codegen.Merged {
	if b, ok := neuronBuilders[j.role]; ok {
		return b(j.index, opts, j.neurons)
	}
	return synapseBuilders[j.role](j.index, opts, j.synapses)
}
