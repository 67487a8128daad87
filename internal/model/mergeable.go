package model

import "math"

// Mergeability predicates decide whether two objects can share one merged
// struct layout. They compare structure only; parameter values may differ.

func (cs *CurrentSource) CanBeMerged(other *CurrentSource) bool {
	return cs.Model == other.Model
}

func (cs *CurrentSource) CanInitBeMerged(other *CurrentSource) bool {
	return cs.Model == other.Model && sameInitSnippets(cs.VarInitialisers, other.VarInitialisers)
}

func (sg *SynapseGroup) CanPSBeMerged(other *SynapseGroup) bool {
	return sg.PSModel == other.PSModel &&
		sg.MatrixType.Has(WeightIndividualPSM) == other.MatrixType.Has(WeightIndividualPSM) &&
		sg.IsDendriticDelayRequired() == other.IsDendriticDelayRequired()
}

func (sg *SynapseGroup) CanPSInitBeMerged(other *SynapseGroup) bool {
	if sg.PSModel != other.PSModel || sg.MatrixType.Has(WeightIndividualPSM) != other.MatrixType.Has(WeightIndividualPSM) {
		return false
	}
	if sg.IsDendriticDelayRequired() != other.IsDendriticDelayRequired() {
		return false
	}
	return sameInitSnippets(sg.PSVarInitialisers, other.PSVarInitialisers)
}

func (sg *SynapseGroup) CanWUPreBeMerged(other *SynapseGroup) bool {
	return sg.WUModel == other.WUModel
}

func (sg *SynapseGroup) CanWUPostBeMerged(other *SynapseGroup) bool {
	return sg.WUModel == other.WUModel
}

func (sg *SynapseGroup) CanWUPreInitBeMerged(other *SynapseGroup) bool {
	return sg.WUModel == other.WUModel && sameInitSnippets(sg.WUPreVarInitialisers, other.WUPreVarInitialisers)
}

func (sg *SynapseGroup) CanWUPostInitBeMerged(other *SynapseGroup) bool {
	return sg.WUModel == other.WUModel && sameInitSnippets(sg.WUPostVarInitialisers, other.WUPostVarInitialisers)
}

// CanWUBeMerged is the predicate for the synapse update roles.
func (sg *SynapseGroup) CanWUBeMerged(other *SynapseGroup) bool {
	if sg.WUModel != other.WUModel || sg.MatrixType != other.MatrixType {
		return false
	}
	if sg.DelaySteps != other.DelaySteps || sg.BackPropDelaySteps != other.BackPropDelaySteps {
		return false
	}
	if sg.Src.Model != other.Src.Model || sg.Trg.Model != other.Trg.Model {
		return false
	}
	if sg.Src.NumDelaySlots != other.Src.NumDelaySlots || sg.Trg.NumDelaySlots != other.Trg.NumDelaySlots {
		return false
	}
	if sg.IsDendriticDelayRequired() != other.IsDendriticDelayRequired() ||
		sg.MaxDendriticDelayTimesteps != other.MaxDendriticDelayTimesteps {
		return false
	}
	if sg.SparseIndType != other.SparseIndType || sg.IsWeightSharingSlave() != other.IsWeightSharingSlave() {
		return false
	}
	if sg.MatrixType.Has(ConnectivityProcedural) && sg.ConnectivityInitialiser.Snippet != other.ConnectivityInitialiser.Snippet {
		return false
	}
	if sg.MatrixType.Has(WeightProcedural) && !sameInitSnippets(sg.WUVarInitialisers, other.WUVarInitialisers) {
		return false
	}
	return true
}

// CanWUInitBeMerged is the predicate for dense and sparse weight initialisation.
func (sg *SynapseGroup) CanWUInitBeMerged(other *SynapseGroup) bool {
	if sg.WUModel != other.WUModel || sg.MatrixType != other.MatrixType {
		return false
	}
	if sg.SparseIndType != other.SparseIndType {
		return false
	}
	return sameInitSnippets(sg.WUVarInitialisers, other.WUVarInitialisers)
}

func (sg *SynapseGroup) CanConnectivityInitBeMerged(other *SynapseGroup) bool {
	return sg.ConnectivityInitialiser.Snippet == other.ConnectivityInitialiser.Snippet &&
		sg.MatrixType.Connectivity() == other.MatrixType.Connectivity() &&
		sg.SparseIndType == other.SparseIndType
}

func sameInitSnippets(a, b []VarInit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Snippet != b[i].Snippet {
			return false
		}
	}
	return true
}

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
