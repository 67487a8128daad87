package grouping

import (
	"strconv"

	"spikegen/internal/codegen"
	"spikegen/internal/model"
)

// canSpikeQueueBeMerged decides whether two neuron groups can share a spike
// queue update struct.
func canSpikeQueueBeMerged(a, b *model.NeuronGroup) bool {
	return a.IsDelayRequired() == b.IsDelayRequired() &&
		a.IsSpikeEventRequired() == b.IsSpikeEventRequired() &&
		a.IsTrueSpikeRequired() == b.IsTrueSpikeRequired()
}

// sameNeuronStructure compares everything both neuron roles depend on
// besides the child objects.
func sameNeuronStructure(a, b *model.NeuronGroup) bool {
	return a.Model == b.Model &&
		a.IsDelayRequired() == b.IsDelayRequired() &&
		a.NumDelaySlots == b.NumDelaySlots &&
		a.IsSpikeEventRequired() == b.IsSpikeEventRequired() &&
		a.IsTrueSpikeRequired() == b.IsTrueSpikeRequired() &&
		a.SpikeTimeRequired == b.SpikeTimeRequired
}

// CanBeMerged decides whether two neuron groups can share a neuron update struct.
func CanBeMerged(a, b *model.NeuronGroup) bool {
	if !sameNeuronStructure(a, b) || a.IsSimRNGRequired() != b.IsSimRNGRequired() {
		return false
	}
	if !childrenMatch(a.CurrentSources, b.CurrentSources, (*model.CurrentSource).CanBeMerged) {
		return false
	}
	if !childrenMatch(a.MergedInSyn, b.MergedInSyn, func(x, y model.MergedInSyn) bool {
		return x.Group.CanPSBeMerged(y.Group)
	}) {
		return false
	}
	if !childrenMatch(a.InSynWithPostCode, b.InSynWithPostCode, (*model.SynapseGroup).CanWUPostBeMerged) ||
		!childrenMatch(a.OutSynWithPreCode, b.OutSynWithPreCode, (*model.SynapseGroup).CanWUPreBeMerged) {
		return false
	}
	return sameEventConditions(a.SpikeEventConditions, b.SpikeEventConditions)
}

// CanInitBeMerged decides whether two neuron groups can share a neuron init struct.
func CanInitBeMerged(a, b *model.NeuronGroup) bool {
	if !sameNeuronStructure(a, b) || len(a.VarInitialisers) != len(b.VarInitialisers) {
		return false
	}
	for i := range a.VarInitialisers {
		if a.VarInitialisers[i].Snippet != b.VarInitialisers[i].Snippet {
			return false
		}
	}
	if !childrenMatch(a.CurrentSources, b.CurrentSources, (*model.CurrentSource).CanInitBeMerged) {
		return false
	}
	if !childrenMatch(a.MergedInSyn, b.MergedInSyn, func(x, y model.MergedInSyn) bool {
		return x.Group.CanPSInitBeMerged(y.Group)
	}) {
		return false
	}
	return childrenMatch(a.InSynWithPostVars, b.InSynWithPostVars, (*model.SynapseGroup).CanWUPostInitBeMerged) &&
		childrenMatch(a.OutSynWithPreVars, b.OutSynWithPreVars, (*model.SynapseGroup).CanWUPreInitBeMerged)
}

// childrenMatch reports whether b's children can be ordered to line up with a's.
func childrenMatch[C any](a, b []C, canMerge func(x, y C) bool) bool {
	_, ok := codegen.MatchChildren(a, b, canMerge)
	return ok
}

// sameEventConditions compares threshold conditions as sets of code strings.
// Conditions reading EGPs also need their model's EGP layout to agree.
func sameEventConditions(a, b []model.SpikeEventCondition) bool {
	return childrenMatch(a, b, func(x, y model.SpikeEventCondition) bool {
		if x.Code != y.Code || x.EGPInThresholdCode != y.EGPInThresholdCode {
			return false
		}
		return !x.EGPInThresholdCode || x.SynapseGroup.WUModel == y.SynapseGroup.WUModel
	})
}

func neuronFingerprint(role codegen.Role) func(*model.NeuronGroup) string {
	return func(ng *model.NeuronGroup) string {
		if role == codegen.RoleNeuronSpikeQueueUpdate {
			return Fingerprint([]string{
				"delay=" + strconv.FormatBool(ng.IsDelayRequired()),
				"evnt=" + strconv.FormatBool(ng.IsSpikeEventRequired()),
				"spk=" + strconv.FormatBool(ng.IsTrueSpikeRequired()),
			})
		}
		cs := make([]string, len(ng.CurrentSources))
		for i, c := range ng.CurrentSources {
			cs[i] = c.Model.Name
		}
		in := make([]string, len(ng.MergedInSyn))
		for i, m := range ng.MergedInSyn {
			in[i] = m.Group.PSModel.Name
		}
		return Fingerprint([]string{
			"model=" + ng.Model.Name,
			"slots=" + strconv.FormatUint(uint64(ng.NumDelaySlots), 10),
			"vars=" + strconv.Itoa(len(ng.VarInitialisers)),
		}, cs, in)
	}
}
