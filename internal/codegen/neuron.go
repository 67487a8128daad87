package codegen

import (
	"strconv"

	"spikegen/internal/model"
)

// NeuronGroupMerged is the merged struct of the neuron roles: spike queue
// update, neuron update and neuron init.
type NeuronGroupMerged struct {
	mergedBase[*model.NeuronGroup]

	// sorted child lists, indexed [member][child]
	currentSources [][]*model.CurrentSource
	mergedInSyns   [][]model.MergedInSyn
	inSynWUPost    [][]*model.SynapseGroup
	outSynWUPre    [][]*model.SynapseGroup
}

// NewNeuronSpikeQueueUpdate builds the struct used to advance spike queues
// and reset spike counts at the start of every timestep.
func NewNeuronSpikeQueueUpdate(index int, opts BuildOptions, groups []*model.NeuronGroup) *NeuronGroupMerged {
	m := &NeuronGroupMerged{mergedBase: newMergedBase(RoleNeuronSpikeQueueUpdate, index, opts, groups)}
	t := m.table
	arch := m.Archetype()

	if arch.IsDelayRequired() {
		t.AddField("unsigned int", "numDelaySlots", func(ng *model.NeuronGroup, _ int) Value {
			return LiteralUint(ng.NumDelaySlots)
		}, FieldPlain)
		t.AddField("volatile unsigned int*", "spkQuePtr", func(ng *model.NeuronGroup, _ int) Value {
			return SymbolAddress("spkQuePtr", ng.Name)
		}, FieldPlain)
	}

	t.AddPointerField("unsigned int", "spkCnt", "glbSpkCnt")
	if arch.IsSpikeEventRequired() {
		t.AddPointerField("unsigned int", "spkCntEvnt", "glbSpkCntEvnt")
	}
	return m
}

// NewNeuronUpdate builds the struct used by the neuron update kernel.
func NewNeuronUpdate(index int, opts BuildOptions, groups []*model.NeuronGroup) *NeuronGroupMerged {
	m := newNeuronGroupMerged(RoleNeuronUpdate, index, opts, groups)
	arch := m.Archetype()

	m.inSynWUPost = SortChildren("incoming synapses with postsynaptic code",
		childLists(groups, func(ng *model.NeuronGroup) []*model.SynapseGroup { return ng.InSynWithPostCode }),
		(*model.SynapseGroup).CanWUPostBeMerged)
	m.outSynWUPre = SortChildren("outgoing synapses with presynaptic code",
		childLists(groups, func(ng *model.NeuronGroup) []*model.SynapseGroup { return ng.OutSynWithPreCode }),
		(*model.SynapseGroup).CanWUPreBeMerged)

	m.addWUUpdateChildren("WUPost", arch.InSynWithPostCode, m.inSynWUPost,
		func(wu *model.WeightUpdateModel) ([]model.Var, string) { return wu.PostVars, wu.PostSpikeCode })
	m.addWUUpdateChildren("WUPre", arch.OutSynWithPreCode, m.outSynWUPre,
		func(wu *model.WeightUpdateModel) ([]model.Var, string) { return wu.PreVars, wu.PreSpikeCode })
	return m
}

// NewNeuronInit builds the struct used by the neuron initialisation kernel.
func NewNeuronInit(index int, opts BuildOptions, groups []*model.NeuronGroup) *NeuronGroupMerged {
	m := newNeuronGroupMerged(RoleNeuronInit, index, opts, groups)
	arch := m.Archetype()

	m.inSynWUPost = SortChildren("incoming synapses with postsynaptic variables",
		childLists(groups, func(ng *model.NeuronGroup) []*model.SynapseGroup { return ng.InSynWithPostVars }),
		(*model.SynapseGroup).CanWUPostInitBeMerged)
	m.outSynWUPre = SortChildren("outgoing synapses with presynaptic variables",
		childLists(groups, func(ng *model.NeuronGroup) []*model.SynapseGroup { return ng.OutSynWithPreVars }),
		(*model.SynapseGroup).CanWUPreInitBeMerged)

	m.addWUInitChildren("WUPost", arch.InSynWithPostVars, m.inSynWUPost,
		func(sg *model.SynapseGroup) ([]model.Var, []model.VarInit) {
			return sg.WUModel.PostVars, sg.WUPostVarInitialisers
		})
	m.addWUInitChildren("WUPre", arch.OutSynWithPreVars, m.outSynWUPre,
		func(sg *model.SynapseGroup) ([]model.Var, []model.VarInit) {
			return sg.WUModel.PreVars, sg.WUPreVarInitialisers
		})
	return m
}

func newNeuronGroupMerged(role Role, index int, opts BuildOptions, groups []*model.NeuronGroup) *NeuronGroupMerged {
	init := role.IsInit()
	m := &NeuronGroupMerged{mergedBase: newMergedBase(role, index, opts, groups)}
	t := m.table
	arch := m.Archetype()

	m.mergedInSyns = SortChildren("merged postsynaptic inputs",
		childLists(groups, func(ng *model.NeuronGroup) []model.MergedInSyn { return ng.MergedInSyn }),
		func(a, b model.MergedInSyn) bool {
			if init {
				return a.Group.CanPSInitBeMerged(b.Group)
			}
			return a.Group.CanPSBeMerged(b.Group)
		})
	m.currentSources = SortChildren("current sources",
		childLists(groups, func(ng *model.NeuronGroup) []*model.CurrentSource { return ng.CurrentSources }),
		func(a, b *model.CurrentSource) bool {
			if init {
				return a.CanInitBeMerged(b)
			}
			return a.CanBeMerged(b)
		})

	t.AddField("unsigned int", "numNeurons", func(ng *model.NeuronGroup, _ int) Value {
		return LiteralUint(ng.NumNeurons)
	}, FieldPlain)

	t.AddPointerField("unsigned int", "spkCnt", "glbSpkCnt")
	t.AddPointerField("unsigned int", "spk", "glbSpk")
	if arch.IsSpikeEventRequired() {
		t.AddPointerField("unsigned int", "spkCntEvnt", "glbSpkCntEvnt")
		t.AddPointerField("unsigned int", "spkEvnt", "glbSpkEvnt")
	}
	if arch.IsDelayRequired() {
		t.AddField("volatile unsigned int*", "spkQuePtr", func(ng *model.NeuronGroup, _ int) Value {
			return SymbolAddress("spkQuePtr", ng.Name)
		}, FieldPlain)
	}
	if arch.SpikeTimeRequired {
		t.AddPointerField(opts.TimePrecision, "sT", "sT")
	}
	if opts.PopulationRNG && arch.IsSimRNGRequired() {
		t.AddPointerField("curandState", "rng", "rng")
	}

	nm := arch.Model
	if len(nm.Vars) != len(arch.VarInitialisers) {
		fatalf("NeuronGroupMerged", "group %s has %d variables but %d initialisers", arch.Name, len(nm.Vars), len(arch.VarInitialisers))
	}
	for v, variable := range nm.Vars {
		vi := arch.VarInitialisers[v]
		if !init || !vi.Empty() {
			t.AddPointerField(variable.Type, variable.Name, variable.Name)
		}
		if init {
			t.AddEGPs(vi.Snippet.ExtraGlobalParams, variable.Name)
		}
	}

	inits := func(ng *model.NeuronGroup) []model.VarInit { return ng.VarInitialisers }
	if init {
		t.AddHeterogeneousVarInitParams(nm.Vars, inits, func(v, p int) bool {
			vi := arch.VarInitialisers[v]
			return classify([]string{vi.Snippet.Code}, vi.Snippet.ParamNames[p], m.members(), func(member int) float64 {
				return at(at(groups[member].VarInitialisers, v, "variable").Params, p, "var init param")
			})
		})
		t.AddHeterogeneousVarInitDerivedParams(nm.Vars, inits, func(v, p int) bool {
			vi := arch.VarInitialisers[v]
			return classify([]string{vi.Snippet.Code}, vi.Snippet.DerivedParams[p].Name, m.members(), func(member int) float64 {
				return at(at(groups[member].VarInitialisers, v, "variable").DerivedParams, p, "var init derived param")
			})
		})
	} else {
		t.AddEGPs(nm.ExtraGlobalParams, "")
		t.AddHeterogeneousParams(nm.ParamNames, "", func(ng *model.NeuronGroup) []float64 { return ng.Params },
			func(p int) bool {
				return classify(nm.Code(), nm.ParamNames[p], m.members(), func(member int) float64 {
					return at(groups[member].Params, p, "neuron param")
				})
			})
		t.AddHeterogeneousDerivedParams(nm.DerivedParams, "", func(ng *model.NeuronGroup) []float64 { return ng.DerivedParams },
			func(p int) bool {
				return classify(nm.Code(), nm.DerivedParams[p].Name, m.members(), func(member int) float64 {
					return at(groups[member].DerivedParams, p, "neuron derived param")
				})
			})
	}

	for i, in := range arch.MergedInSyn {
		m.addMergedInSyn(i, in.Group)
	}
	for i, cs := range arch.CurrentSources {
		m.addCurrentSource(i, cs)
	}
	m.addEventThresholdEGPs()
	return m
}

func (m *NeuronGroupMerged) addMergedInSyn(i int, sg *model.SynapseGroup) {
	t := m.table
	init := m.role.IsInit()
	target := func(member, child int) string {
		return at(at(m.mergedInSyns, member, "member"), child, "merged input").Group.PSModelTargetName()
	}
	pointer := func(typ, name, buffer string) {
		t.AddField(typ+"*", name+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
			return BufferRef(SpaceArray, buffer, target(member, i))
		}, FieldPointer)
	}

	pointer(m.opts.Precision, "inSynInSyn", "inSyn")
	if sg.IsDendriticDelayRequired() {
		pointer(m.opts.Precision, "denDelayInSyn", "denDelay")
		t.AddField("volatile unsigned int*", "denDelayPtrInSyn"+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
			return SymbolAddress("denDelayPtr", target(member, i))
		}, FieldPlain)
	}

	psm := sg.PSModel
	inits := func(member, child int) []model.VarInit {
		return at(at(m.mergedInSyns, member, "member"), child, "merged input").Group.PSVarInitialisers
	}
	for v, variable := range psm.Vars {
		if sg.MatrixType.Has(model.WeightIndividualPSM) {
			vi := at(sg.PSVarInitialisers, v, "postsynaptic variable")
			if !init || !vi.Empty() {
				pointer(variable.Type, variable.Name+"InSyn", variable.Name)
			}
			if init {
				m.addChildVarInit(vi.Snippet, i, v, variable.Name+"InSyn", inits)
				t.AddChildEGPs(vi.Snippet.ExtraGlobalParams, i, variable.Name, "InSyn", target)
			}
		} else if !init {
			het := classify(psm.Code(), variable.Name, m.members(), func(member int) float64 {
				return at(at(at(m.mergedInSyns, member, "member"), i, "merged input").Group.PSConstInitVals(), v, "postsynaptic variable")
			})
			if het {
				t.AddScalarField(variable.Name+"InSyn"+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) float64 {
					return m.mergedInSyns[member][i].Group.PSConstInitVals()[v]
				})
			}
		}
	}

	if init {
		return
	}
	t.AddHeterogeneousChildParams(psm.ParamNames, i, "InSyn", func(p int) bool {
		return classify(psm.Code(), psm.ParamNames[p], m.members(), func(member int) float64 {
			return at(m.mergedInSyns[member][i].Group.PSParams, p, "postsynaptic param")
		})
	}, func(member, child, p int) float64 {
		return m.mergedInSyns[member][child].Group.PSParams[p]
	})
	t.AddHeterogeneousChildDerivedParams(psm.DerivedParams, i, "InSyn", func(p int) bool {
		return classify(psm.Code(), psm.DerivedParams[p].Name, m.members(), func(member int) float64 {
			return at(m.mergedInSyns[member][i].Group.PSDerivedParams, p, "postsynaptic derived param")
		})
	}, func(member, child, p int) float64 {
		return m.mergedInSyns[member][child].Group.PSDerivedParams[p]
	})
	t.AddChildEGPs(psm.ExtraGlobalParams, i, "", "InSyn", target)
}

func (m *NeuronGroupMerged) addCurrentSource(i int, cs *model.CurrentSource) {
	t := m.table
	init := m.role.IsInit()
	owner := func(member, child int) string {
		return at(at(m.currentSources, member, "member"), child, "current source").Name
	}
	inits := func(member, child int) []model.VarInit {
		return at(at(m.currentSources, member, "member"), child, "current source").VarInitialisers
	}

	csm := cs.Model
	for v, variable := range csm.Vars {
		vi := at(cs.VarInitialisers, v, "current source variable")
		if !init || !vi.Empty() {
			if model.IsPointerType(variable.Type) {
				fatalf("NeuronGroupMerged", "current source variable %s has pointer type %s", variable.Name, variable.Type)
			}
			t.AddField(variable.Type+"*", variable.Name+"CS"+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
				return BufferRef(SpaceArray, variable.Name, owner(member, i))
			}, FieldPointer)
		}
		if init {
			m.addChildVarInit(vi.Snippet, i, v, variable.Name+"CS", inits)
			t.AddChildEGPs(vi.Snippet.ExtraGlobalParams, i, variable.Name, "CS", owner)
		}
	}

	if init {
		return
	}
	codes := []string{csm.InjectionCode}
	t.AddHeterogeneousChildParams(csm.ParamNames, i, "CS", func(p int) bool {
		return classify(codes, csm.ParamNames[p], m.members(), func(member int) float64 {
			return at(m.currentSources[member][i].Params, p, "current source param")
		})
	}, func(member, child, p int) float64 {
		return m.currentSources[member][child].Params[p]
	})
	t.AddHeterogeneousChildDerivedParams(csm.DerivedParams, i, "CS", func(p int) bool {
		return classify(codes, csm.DerivedParams[p].Name, m.members(), func(member int) float64 {
			return at(m.currentSources[member][i].DerivedParams, p, "current source derived param")
		})
	}, func(member, child, p int) float64 {
		return m.currentSources[member][child].DerivedParams[p]
	})
	t.AddChildEGPs(csm.ExtraGlobalParams, i, "", "CS", owner)
}

// addChildVarInit adds the heterogeneous params and derived params of the
// initialiser of variable v of child i.
func (m *NeuronGroupMerged) addChildVarInit(snippet *model.InitVarSnippet, i, v int, suffix string, inits func(member, child int) []model.VarInit) {
	codes := []string{snippet.Code}
	m.table.AddHeterogeneousChildVarInitParams(snippet.ParamNames, i, v, suffix, func(child, v, p int) bool {
		return classify(codes, snippet.ParamNames[p], m.members(), func(member int) float64 {
			return at(at(inits(member, child), v, "variable").Params, p, "var init param")
		})
	}, inits)
	m.table.AddHeterogeneousChildVarInitDerivedParams(snippet.DerivedParams, i, v, suffix, func(child, v, p int) bool {
		return classify(codes, snippet.DerivedParams[p].Name, m.members(), func(member int) float64 {
			return at(at(inits(member, child), v, "variable").DerivedParams, p, "var init derived param")
		})
	}, inits)
}

// addEventThresholdEGPs adds every EGP of a weight update model whose event
// threshold condition references EGPs. All EGPs of such a model are added,
// not only the referenced ones.
func (m *NeuronGroupMerged) addEventThresholdEGPs() {
	conditions := SortChildren("event threshold conditions reading EGPs",
		childLists(m.Groups(), func(ng *model.NeuronGroup) []model.SpikeEventCondition {
			var out []model.SpikeEventCondition
			for _, c := range ng.SpikeEventConditions {
				if c.EGPInThresholdCode {
					out = append(out, c)
				}
			}
			return out
		}),
		func(a, b model.SpikeEventCondition) bool {
			return a.Code == b.Code && a.SynapseGroup.WUModel == b.SynapseGroup.WUModel
		})

	for i, c := range conditions[0] {
		for _, e := range c.SynapseGroup.WUModel.ExtraGlobalParams {
			space, kind := egpPlacement(e)
			m.table.AddField(e.Type, e.Name+"EventThresh"+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
				return BufferRef(space, e.Name, at(conditions[member], i, "event threshold condition").SynapseGroup.Name)
			}, kind)
		}
	}
}

// addWUUpdateChildren adds the pre or postsynaptic variables, parameters and
// EGPs of the weight update models attached to each member.
func (m *NeuronGroupMerged) addWUUpdateChildren(suffix string, archetype []*model.SynapseGroup, sorted [][]*model.SynapseGroup,
	side func(*model.WeightUpdateModel) ([]model.Var, string)) {
	t := m.table
	owner := func(member, child int) string {
		return at(at(sorted, member, "member"), child, "synapse group").Name
	}
	for i, sg := range archetype {
		wum := sg.WUModel
		vars, code := side(wum)
		codes := []string{code}
		for _, variable := range vars {
			t.AddField(variable.Type+"*", variable.Name+suffix+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
				return BufferRef(SpaceArray, variable.Name, owner(member, i))
			}, FieldPointer)
		}
		t.AddHeterogeneousChildParams(wum.ParamNames, i, suffix, func(p int) bool {
			return classify(codes, wum.ParamNames[p], m.members(), func(member int) float64 {
				return at(sorted[member][i].WUParams, p, "weight update param")
			})
		}, func(member, child, p int) float64 {
			return sorted[member][child].WUParams[p]
		})
		t.AddHeterogeneousChildDerivedParams(wum.DerivedParams, i, suffix, func(p int) bool {
			return classify(codes, wum.DerivedParams[p].Name, m.members(), func(member int) float64 {
				return at(sorted[member][i].WUDerivedParams, p, "weight update derived param")
			})
		}, func(member, child, p int) float64 {
			return sorted[member][child].WUDerivedParams[p]
		})
		t.AddChildEGPs(wum.ExtraGlobalParams, i, "", suffix, owner)
	}
}

// addWUInitChildren adds the pre or postsynaptic variables of the weight
// update models attached to each member, with their initialiser params.
func (m *NeuronGroupMerged) addWUInitChildren(suffix string, archetype []*model.SynapseGroup, sorted [][]*model.SynapseGroup,
	side func(*model.SynapseGroup) ([]model.Var, []model.VarInit)) {
	t := m.table
	owner := func(member, child int) string {
		return at(at(sorted, member, "member"), child, "synapse group").Name
	}
	inits := func(member, child int) []model.VarInit {
		_, vi := side(at(at(sorted, member, "member"), child, "synapse group"))
		return vi
	}
	for i, sg := range archetype {
		vars, varInits := side(sg)
		for v, variable := range vars {
			vi := at(varInits, v, "weight update variable")
			if !vi.Empty() {
				t.AddField(variable.Type+"*", variable.Name+suffix+strconv.Itoa(i), func(_ *model.NeuronGroup, member int) Value {
					return BufferRef(SpaceArray, variable.Name, owner(member, i))
				}, FieldPointer)
			}
			m.addChildVarInit(vi.Snippet, i, v, variable.Name+suffix, inits)
			t.AddChildEGPs(vi.Snippet.ExtraGlobalParams, i, variable.Name, suffix, owner)
		}
	}
}

// ResetOps lists the spike counters to zero at the start of a timestep.
func (m *NeuronGroupMerged) ResetOps() []ResetOp {
	if m.role != RoleNeuronSpikeQueueUpdate {
		fatalf("ResetOps", "%s has no spike count reset", m.TypeName())
	}
	arch := m.Archetype()
	zero := Const{Value: 0}
	var ops []ResetOp
	if arch.IsDelayRequired() {
		slot := Deref{Name: "spkQuePtr"}
		if arch.IsSpikeEventRequired() {
			ops = append(ops, ResetOp{Field: "spkCntEvnt", Slot: slot})
		}
		if arch.IsTrueSpikeRequired() {
			ops = append(ops, ResetOp{Field: "spkCnt", Slot: slot})
		} else {
			ops = append(ops, ResetOp{Field: "spkCnt", Slot: zero})
		}
		return ops
	}
	if arch.IsSpikeEventRequired() {
		ops = append(ops, ResetOp{Field: "spkCntEvnt", Slot: zero})
	}
	return append(ops, ResetOp{Field: "spkCnt", Slot: zero})
}

// CurrentQueueOffset is the offset of the current slot of a delayed group's
// spike queue.
func (m *NeuronGroupMerged) CurrentQueueOffset() Expr {
	m.requireDelay("CurrentQueueOffset")
	return mul(Deref{Name: "spkQuePtr"}, FieldRef{Name: "numNeurons"})
}

// PrevQueueOffset is the offset of the slot written one timestep ago.
func (m *NeuronGroupMerged) PrevQueueOffset() Expr {
	m.requireDelay("PrevQueueOffset")
	n := m.Archetype().NumDelaySlots
	return mul(slotExpr("spkQuePtr", 1, n), FieldRef{Name: "numNeurons"})
}

func (m *NeuronGroupMerged) requireDelay(op string) {
	if m.role != RoleNeuronUpdate {
		fatalf(op, "%s is not a neuron update group", m.TypeName())
	}
	if !m.Archetype().IsDelayRequired() {
		fatalf(op, "%s has no delay slots", m.TypeName())
	}
}

// childLists gathers one child list per member, in member order.
func childLists[C any](groups []*model.NeuronGroup, children func(*model.NeuronGroup) []C) [][]C {
	out := make([][]C, len(groups))
	for i, ng := range groups {
		out[i] = children(ng)
	}
	return out
}
