package codegen

import "spikegen/internal/model"

// SynapseGroupMerged is the merged struct of every synapse role.
type SynapseGroupMerged struct {
	mergedBase[*model.SynapseGroup]

	// archetypeCode is the weight update code the role substitutes
	// parameters into.
	archetypeCode string
}

// NewSynapseDendriticDelayUpdate builds the struct used to advance the
// dendritic delay ring buffer pointers.
func NewSynapseDendriticDelayUpdate(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	m := &SynapseGroupMerged{mergedBase: newMergedBase(RoleSynapseDendriticDelayUpdate, index, opts, groups)}
	m.table.AddField("volatile unsigned int*", "denDelayPtr", func(sg *model.SynapseGroup, _ int) Value {
		return SymbolAddress("denDelayPtr", sg.PSModelTargetName())
	}, FieldPlain)
	return m
}

// NewSynapseConnectivityHostInit builds the host-only struct used to run
// connectivity host init code.
func NewSynapseConnectivityHostInit(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	m := &SynapseGroupMerged{mergedBase: newMergedBase(RoleSynapseConnectivityHostInit, index, opts, groups)}
	snippet := m.connectivitySnippet()
	m.addCounts()
	m.addConnectivityInitParams([]string{snippet.HostInitCode})

	// both the host copy and the device copy of each EGP are reachable
	for _, e := range snippet.ExtraGlobalParams {
		m.table.AddField(e.Type+"*", e.Name, func(sg *model.SynapseGroup, _ int) Value {
			return AddressOf(SpaceHost, e.Name, sg.Name)
		}, FieldPlain)
		m.table.AddField(e.Type+"*", opts.ArrayPrefix+e.Name, func(sg *model.SynapseGroup, _ int) Value {
			return AddressOf(SpaceArray, e.Name, sg.Name)
		}, FieldPlain)
	}
	return m
}

// NewSynapseConnectivityInit builds the struct used to initialise sparse or
// bitmask connectivity on the device.
func NewSynapseConnectivityInit(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	m := &SynapseGroupMerged{mergedBase: newMergedBase(RoleSynapseConnectivityInit, index, opts, groups)}
	snippet := m.connectivitySnippet()
	arch := m.Archetype()
	m.addCounts()
	m.addConnectivityInitParams([]string{snippet.RowBuildCode})

	switch {
	case arch.MatrixType.Has(model.ConnectivitySparse):
		m.table.AddPointerField("unsigned int", "rowLength", "rowLength")
		m.table.AddPointerField(arch.SparseIndType, "ind", "ind")
	case arch.MatrixType.Has(model.ConnectivityBitmask):
		m.table.AddPointerField("uint32_t", "gp", "gp")
	}
	m.table.AddEGPs(snippet.ExtraGlobalParams, "")
	return m
}

func NewPresynapticUpdate(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	return newSynapseGroupMerged(RolePresynapticUpdate, index, opts, groups)
}

func NewPostsynapticUpdate(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	return newSynapseGroupMerged(RolePostsynapticUpdate, index, opts, groups)
}

func NewSynapseDynamics(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	return newSynapseGroupMerged(RoleSynapseDynamics, index, opts, groups)
}

func NewSynapseDenseInit(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	return newSynapseGroupMerged(RoleSynapseDenseInit, index, opts, groups)
}

func NewSynapseSparseInit(index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	return newSynapseGroupMerged(RoleSynapseSparseInit, index, opts, groups)
}

func archetypeCode(role Role, wum *model.WeightUpdateModel) string {
	switch role {
	case RolePresynapticUpdate:
		return wum.PresynapticCode()
	case RolePostsynapticUpdate:
		return wum.LearnPostCode
	case RoleSynapseDynamics:
		return wum.SynapseDynamicsCode
	}
	return ""
}

func newSynapseGroupMerged(role Role, index int, opts BuildOptions, groups []*model.SynapseGroup) *SynapseGroupMerged {
	m := &SynapseGroupMerged{mergedBase: newMergedBase(role, index, opts, groups)}
	t := m.table
	arch := m.Archetype()
	wum := arch.WUModel
	m.archetypeCode = archetypeCode(role, wum)
	update := !role.IsInit()

	t.AddField("unsigned int", "rowStride", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.RowStride())
	}, FieldPlain)
	if role == RolePostsynapticUpdate || role == RoleSynapseSparseInit {
		t.AddField("unsigned int", "colStride", func(sg *model.SynapseGroup, _ int) Value {
			return LiteralUint(sg.MaxSourceConnections)
		}, FieldPlain)
	}
	t.AddField("unsigned int", "numSrcNeurons", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.Src.NumNeurons)
	}, FieldPlain)
	t.AddField("unsigned int", "numTrgNeurons", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.Trg.NumNeurons)
	}, FieldPlain)

	// roles that deliver postsynaptic input
	if role == RolePresynapticUpdate || role == RoleSynapseDynamics {
		if arch.IsDendriticDelayRequired() {
			m.addPSPointerField(opts.Precision, "denDelay", "denDelay")
			t.AddField("volatile unsigned int*", "denDelayPtr", func(sg *model.SynapseGroup, _ int) Value {
				return SymbolAddress("denDelayPtr", sg.PSModelTargetName())
			}, FieldPlain)
		} else {
			m.addPSPointerField(opts.Precision, "inSyn", "inSyn")
		}
	}

	switch role {
	case RolePresynapticUpdate:
		if arch.IsTrueSpikeRequired() {
			m.addSrcPointerField("unsigned int", "srcSpkCnt", "glbSpkCnt")
			m.addSrcPointerField("unsigned int", "srcSpk", "glbSpk")
		}
		if arch.IsSpikeEventRequired() {
			m.addSrcPointerField("unsigned int", "srcSpkCntEvnt", "glbSpkCntEvnt")
			m.addSrcPointerField("unsigned int", "srcSpkEvnt", "glbSpkEvnt")
		}
	case RolePostsynapticUpdate:
		m.addTrgPointerField("unsigned int", "trgSpkCnt", "glbSpkCnt")
		m.addTrgPointerField("unsigned int", "trgSpk", "glbSpk")
	}

	if update {
		m.addUpdateFields()
	}
	m.addConnectivityFields()
	m.addWUVarFields()
	return m
}

func (m *SynapseGroupMerged) addUpdateFields() {
	t := m.table
	arch := m.Archetype()
	wum := arch.WUModel
	codes := []string{m.archetypeCode}
	groups := m.Groups()

	if arch.Src.IsDelayRequired() {
		t.AddField("volatile unsigned int*", "srcSpkQuePtr", func(sg *model.SynapseGroup, _ int) Value {
			return SymbolAddress("spkQuePtr", sg.Src.Name)
		}, FieldPlain)
	}
	if arch.Trg.IsDelayRequired() {
		t.AddField("volatile unsigned int*", "trgSpkQuePtr", func(sg *model.SynapseGroup, _ int) Value {
			return SymbolAddress("spkQuePtr", sg.Trg.Name)
		}, FieldPlain)
	}

	neuronParams := func(nm *model.NeuronModel, ng func(*model.SynapseGroup) *model.NeuronGroup) {
		t.AddHeterogeneousParams(nm.ParamNames, "", func(sg *model.SynapseGroup) []float64 { return ng(sg).Params },
			func(p int) bool {
				return classify(codes, nm.ParamNames[p], m.members(), func(member int) float64 {
					return at(ng(groups[member]).Params, p, "neuron param")
				})
			})
		t.AddHeterogeneousDerivedParams(nm.DerivedParams, "", func(sg *model.SynapseGroup) []float64 { return ng(sg).DerivedParams },
			func(p int) bool {
				return classify(codes, nm.DerivedParams[p].Name, m.members(), func(member int) float64 {
					return at(ng(groups[member]).DerivedParams, p, "neuron derived param")
				})
			})
	}
	src := func(sg *model.SynapseGroup) *model.NeuronGroup { return sg.Src }
	trg := func(sg *model.SynapseGroup) *model.NeuronGroup { return sg.Trg }
	neuronParams(arch.Src.Model, src)
	neuronParams(arch.Trg.Model, trg)

	for _, v := range arch.Src.Model.Vars {
		if model.References(codes, v.Name+"_pre") {
			m.addSrcPointerField(v.Type, v.Name+"Pre", v.Name)
		}
	}
	for _, v := range arch.Trg.Model.Vars {
		if model.References(codes, v.Name+"_post") {
			m.addTrgPointerField(v.Type, v.Name+"Post", v.Name)
		}
	}
	m.addNeuronEGPRefs(arch.Src.Model.ExtraGlobalParams, "_pre", "Pre", src)
	m.addNeuronEGPRefs(arch.Trg.Model.ExtraGlobalParams, "_post", "Post", trg)

	if wum.PreSpikeTimeRequired {
		m.addSrcPointerField(m.opts.TimePrecision, "sTPre", "sT")
	}
	if wum.PostSpikeTimeRequired {
		m.addTrgPointerField(m.opts.TimePrecision, "sTPost", "sT")
	}

	t.AddHeterogeneousParams(wum.ParamNames, "", func(sg *model.SynapseGroup) []float64 { return sg.WUParams },
		func(p int) bool {
			return classify(codes, wum.ParamNames[p], m.members(), func(member int) float64 {
				return at(groups[member].WUParams, p, "weight update param")
			})
		})
	t.AddHeterogeneousDerivedParams(wum.DerivedParams, "", func(sg *model.SynapseGroup) []float64 { return sg.WUDerivedParams },
		func(p int) bool {
			return classify(codes, wum.DerivedParams[p].Name, m.members(), func(member int) float64 {
				return at(groups[member].WUDerivedParams, p, "weight update derived param")
			})
		})

	t.AddVars(wum.PreVars)
	t.AddVars(wum.PostVars)
	t.AddEGPs(wum.ExtraGlobalParams, "")

	if arch.MatrixType.Has(model.ConnectivityProcedural) {
		m.addConnectivityInitParams([]string{m.connectivitySnippet().RowBuildCode})
	}
}

func (m *SynapseGroupMerged) addNeuronEGPRefs(egps []model.EGP, tokenSuffix, fieldSuffix string, ng func(*model.SynapseGroup) *model.NeuronGroup) {
	for _, e := range egps {
		if !model.References([]string{m.archetypeCode}, e.Name+tokenSuffix) {
			continue
		}
		space, kind := egpPlacement(e)
		m.table.AddField(e.Type, e.Name+fieldSuffix, func(sg *model.SynapseGroup, _ int) Value {
			return BufferRef(space, e.Name, ng(sg).Name)
		}, kind)
	}
}

func (m *SynapseGroupMerged) addConnectivityFields() {
	arch := m.Archetype()
	wum := arch.WUModel
	switch {
	case arch.MatrixType.Has(model.ConnectivitySparse):
		m.addWeightSharingPointerField("unsigned int", "rowLength", "rowLength")
		m.addWeightSharingPointerField(arch.SparseIndType, "ind", "ind")

		if m.opts.PostsynapticRemap && wum.LearnPostCode != "" &&
			(m.role == RolePostsynapticUpdate || m.role == RoleSynapseSparseInit) {
			m.addWeightSharingPointerField("unsigned int", "colLength", "colLength")
			m.addWeightSharingPointerField("unsigned int", "remap", "remap")
		}
		if m.opts.SynRemap && wum.SynapseDynamicsCode != "" &&
			(m.role == RoleSynapseDynamics || m.role == RoleSynapseSparseInit) {
			m.addWeightSharingPointerField("unsigned int", "synRemap", "synRemap")
		}
	case arch.MatrixType.Has(model.ConnectivityBitmask):
		m.addWeightSharingPointerField("uint32_t", "gp", "gp")
	case arch.MatrixType.Has(model.ConnectivityProcedural):
		m.table.AddEGPs(m.connectivitySnippet().ExtraGlobalParams, "")
	}
}

func (m *SynapseGroupMerged) addWUVarFields() {
	t := m.table
	arch := m.Archetype()
	vars := arch.WUModel.Vars
	groups := m.Groups()
	update := !m.role.IsInit()
	procedural := arch.MatrixType.Has(model.WeightProcedural)
	individual := arch.MatrixType.Has(model.WeightIndividual)

	if (procedural && update) || individual {
		// procedural update or individual init
		initialising := (procedural && update) || !update
		if len(arch.WUVarInitialisers) != len(vars) {
			fatalf("SynapseGroupMerged", "group %s has %d weight update variables but %d initialisers", arch.Name, len(vars), len(arch.WUVarInitialisers))
		}
		if initialising {
			inits := func(sg *model.SynapseGroup) []model.VarInit { return sg.WUVarInitialisers }
			t.AddHeterogeneousVarInitParams(vars, inits, func(v, p int) bool {
				snippet := arch.WUVarInitialisers[v].Snippet
				return classify([]string{snippet.Code}, snippet.ParamNames[p], m.members(), func(member int) float64 {
					return at(at(groups[member].WUVarInitialisers, v, "variable").Params, p, "var init param")
				})
			})
			t.AddHeterogeneousVarInitDerivedParams(vars, inits, func(v, p int) bool {
				snippet := arch.WUVarInitialisers[v].Snippet
				return classify([]string{snippet.Code}, snippet.DerivedParams[p].Name, m.members(), func(member int) float64 {
					return at(at(groups[member].WUVarInitialisers, v, "variable").DerivedParams, p, "var init derived param")
				})
			})
		}

		for v, variable := range vars {
			vi := arch.WUVarInitialisers[v]
			if individual && (update || !vi.Empty()) {
				m.addWeightSharingPointerField(variable.Type, variable.Name, variable.Name)
			}
			if !initialising {
				continue
			}
			for _, e := range vi.Snippet.ExtraGlobalParams {
				space, kind := egpPlacement(e)
				t.AddField(e.Type, e.Name+variable.Name, func(sg *model.SynapseGroup, _ int) Value {
					return BufferRef(space, e.Name+variable.Name, sg.WeightSharingName())
				}, kind)
			}
		}
		return
	}

	// global values are only useful while updating
	if !arch.MatrixType.Has(model.WeightGlobal) || !update {
		return
	}
	codes := []string{m.archetypeCode}
	for v, variable := range vars {
		het := classify(codes, variable.Name, m.members(), func(member int) float64 {
			return at(groups[member].WUConstInitVals(), v, "global weight")
		})
		if het {
			t.AddScalarField(variable.Name, func(sg *model.SynapseGroup, _ int) float64 {
				return sg.WUConstInitVals()[v]
			})
		}
	}
}

func (m *SynapseGroupMerged) addCounts() {
	m.table.AddField("unsigned int", "numSrcNeurons", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.Src.NumNeurons)
	}, FieldPlain)
	m.table.AddField("unsigned int", "numTrgNeurons", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.Trg.NumNeurons)
	}, FieldPlain)
	m.table.AddField("unsigned int", "rowStride", func(sg *model.SynapseGroup, _ int) Value {
		return LiteralUint(sg.RowStride())
	}, FieldPlain)
}

func (m *SynapseGroupMerged) addConnectivityInitParams(codes []string) {
	snippet := m.connectivitySnippet()
	groups := m.Groups()
	m.table.AddHeterogeneousParams(snippet.ParamNames, "",
		func(sg *model.SynapseGroup) []float64 { return sg.ConnectivityInitialiser.Params },
		func(p int) bool {
			return classify(codes, snippet.ParamNames[p], m.members(), func(member int) float64 {
				return at(groups[member].ConnectivityInitialiser.Params, p, "connectivity param")
			})
		})
	m.table.AddHeterogeneousDerivedParams(snippet.DerivedParams, "",
		func(sg *model.SynapseGroup) []float64 { return sg.ConnectivityInitialiser.DerivedParams },
		func(p int) bool {
			return classify(codes, snippet.DerivedParams[p].Name, m.members(), func(member int) float64 {
				return at(groups[member].ConnectivityInitialiser.DerivedParams, p, "connectivity derived param")
			})
		})
}

func (m *SynapseGroupMerged) connectivitySnippet() *model.InitSparseConnectivitySnippet {
	s := m.Archetype().ConnectivityInitialiser.Snippet
	if s == nil {
		fatalf("SynapseGroupMerged", "%s: group %s has no connectivity initialiser", m.TypeName(), m.Archetype().Name)
	}
	return s
}

func (m *SynapseGroupMerged) addPSPointerField(typ, name, buffer string) {
	m.table.AddField(typ+"*", name, func(sg *model.SynapseGroup, _ int) Value {
		return BufferRef(SpaceArray, buffer, sg.PSModelTargetName())
	}, FieldPointer)
}

func (m *SynapseGroupMerged) addSrcPointerField(typ, name, buffer string) {
	m.table.AddField(typ+"*", name, func(sg *model.SynapseGroup, _ int) Value {
		return BufferRef(SpaceArray, buffer, sg.Src.Name)
	}, FieldPointer)
}

func (m *SynapseGroupMerged) addTrgPointerField(typ, name, buffer string) {
	m.table.AddField(typ+"*", name, func(sg *model.SynapseGroup, _ int) Value {
		return BufferRef(SpaceArray, buffer, sg.Trg.Name)
	}, FieldPointer)
}

// addWeightSharingPointerField points slaves at their master's buffer.
func (m *SynapseGroupMerged) addWeightSharingPointerField(typ, name, buffer string) {
	m.table.AddField(typ+"*", name, func(sg *model.SynapseGroup, _ int) Value {
		return BufferRef(SpaceArray, buffer, sg.WeightSharingName())
	}, FieldPointer)
}

// ArchetypeCode is the weight update code this role substitutes into.
func (m *SynapseGroupMerged) ArchetypeCode() string { return m.archetypeCode }

// PresynapticAxonalDelaySlot is the source spike queue slot read by the
// presynaptic update.
func (m *SynapseGroupMerged) PresynapticAxonalDelaySlot() Expr {
	arch := m.Archetype()
	if !arch.Src.IsDelayRequired() {
		fatalf("PresynapticAxonalDelaySlot", "%s: source of %s has no delay slots", m.TypeName(), arch.Name)
	}
	return slotExpr("srcSpkQuePtr", arch.DelaySteps, arch.Src.NumDelaySlots)
}

// PostsynapticBackPropDelaySlot is the target spike queue slot read by the
// postsynaptic update.
func (m *SynapseGroupMerged) PostsynapticBackPropDelaySlot() Expr {
	arch := m.Archetype()
	if !arch.Trg.IsDelayRequired() {
		fatalf("PostsynapticBackPropDelaySlot", "%s: target of %s has no delay slots", m.TypeName(), arch.Name)
	}
	return slotExpr("trgSpkQuePtr", arch.BackPropDelaySteps, arch.Trg.NumDelaySlots)
}

// DendriticDelayOffset is the start of the dendritic delay buffer row
// offset timesteps ahead. A nil offset means the current row. The caller
// adds the target neuron index.
func (m *SynapseGroupMerged) DendriticDelayOffset(offset Expr) Expr {
	arch := m.Archetype()
	if !arch.IsDendriticDelayRequired() {
		fatalf("DendriticDelayOffset", "%s: %s has no dendritic delay", m.TypeName(), arch.Name)
	}
	numTrg := FieldRef{Name: "numTrgNeurons"}
	if offset == nil {
		return mul(Deref{Name: "denDelayPtr"}, numTrg)
	}
	row := mod(add(Deref{Name: "denDelayPtr"}, offset), Const{Value: arch.MaxDendriticDelayTimesteps})
	return mul(row, numTrg)
}
