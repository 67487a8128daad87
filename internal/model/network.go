package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrDuplicateGroup = errors.New("duplicate group name")
	ErrUnknownGroup   = errors.New("unknown group")
)

// VarInit pairs a variable initialisation snippet with its parameter values.
type VarInit struct {
	Snippet       *InitVarSnippet
	Params        []float64
	DerivedParams []float64
}

// Empty reports whether the initialiser has no code and so needs no buffer handle.
func (v VarInit) Empty() bool {
	return v.Snippet == nil || v.Snippet.Code == ""
}

type ConnectivityInit struct {
	Snippet       *InitSparseConnectivitySnippet
	Params        []float64
	DerivedParams []float64
}

// MergedInSyn is one postsynaptic input of a neuron group. Group is the
// representative synapse group; Merged holds every synapse group whose
// postsynaptic model was linearly combined into it.
type MergedInSyn struct {
	Group  *SynapseGroup
	Merged []*SynapseGroup
}

// SpikeEventCondition is one distinct event threshold test evaluated by a
// presynaptic neuron group on behalf of an outgoing synapse group.
type SpikeEventCondition struct {
	Code               string
	SynapseGroup       *SynapseGroup
	EGPInThresholdCode bool
}

type NeuronGroup struct {
	Name              string
	NumNeurons        uint32
	Model             *NeuronModel
	Params            []float64
	DerivedParams     []float64
	VarInitialisers   []VarInit
	SpikeTimeRequired bool

	NumDelaySlots        uint32
	CurrentSources       []*CurrentSource
	InSyn                []*SynapseGroup
	OutSyn               []*SynapseGroup
	MergedInSyn          []MergedInSyn
	SpikeEventConditions []SpikeEventCondition

	InSynWithPostCode []*SynapseGroup
	OutSynWithPreCode []*SynapseGroup
	InSynWithPostVars []*SynapseGroup
	OutSynWithPreVars []*SynapseGroup
}

func (ng *NeuronGroup) GroupName() string { return ng.Name }

func (ng *NeuronGroup) IsDelayRequired() bool {
	return ng.NumDelaySlots > 1
}

func (ng *NeuronGroup) IsSpikeEventRequired() bool {
	for _, sg := range ng.OutSyn {
		if sg.IsSpikeEventRequired() {
			return true
		}
	}
	return false
}

func (ng *NeuronGroup) IsTrueSpikeRequired() bool {
	for _, sg := range ng.OutSyn {
		if sg.IsTrueSpikeRequired() {
			return true
		}
	}
	for _, sg := range ng.InSyn {
		if sg.WUModel.LearnPostCode != "" {
			return true
		}
	}
	return false
}

func (ng *NeuronGroup) IsSimRNGRequired() bool {
	return strings.Contains(ng.Model.SimCode, "$(gennrand_")
}

type CurrentSource struct {
	Name            string
	Model           *CurrentSourceModel
	Params          []float64
	DerivedParams   []float64
	VarInitialisers []VarInit
	Target          *NeuronGroup
}

func (cs *CurrentSource) GroupName() string { return cs.Name }

type SynapseGroup struct {
	Name                       string
	MatrixType                 MatrixType
	DelaySteps                 uint32
	BackPropDelaySteps         uint32
	MaxDendriticDelayTimesteps uint32
	MaxConnections             uint32
	MaxSourceConnections       uint32
	SparseIndType              string
	Src                        *NeuronGroup
	Trg                        *NeuronGroup

	WUModel               *WeightUpdateModel
	WUParams              []float64
	WUDerivedParams       []float64
	WUVarInitialisers     []VarInit
	WUPreVarInitialisers  []VarInit
	WUPostVarInitialisers []VarInit

	PSModel           *PostsynapticModel
	PSParams          []float64
	PSDerivedParams   []float64
	PSVarInitialisers []VarInit

	ConnectivityInitialiser ConnectivityInit
	WeightSharingMaster     *SynapseGroup

	psTargetName string
}

func (sg *SynapseGroup) GroupName() string { return sg.Name }

func (sg *SynapseGroup) IsWeightSharingSlave() bool {
	return sg.WeightSharingMaster != nil
}

// WeightSharingName is the group owning the connectivity and weight buffers.
func (sg *SynapseGroup) WeightSharingName() string {
	if sg.WeightSharingMaster != nil {
		return sg.WeightSharingMaster.Name
	}
	return sg.Name
}

// PSModelTargetName names the postsynaptic input buffers this group writes into.
func (sg *SynapseGroup) PSModelTargetName() string {
	if sg.psTargetName != "" {
		return sg.psTargetName
	}
	return sg.Name
}

func (sg *SynapseGroup) IsSpikeEventRequired() bool {
	return sg.WUModel.EventThresholdConditionCode != ""
}

func (sg *SynapseGroup) IsTrueSpikeRequired() bool {
	return sg.WUModel.SimCode != ""
}

func (sg *SynapseGroup) IsDendriticDelayRequired() bool {
	token := "$(addToInSynDelay"
	return strings.Contains(sg.WUModel.SimCode, token) ||
		strings.Contains(sg.WUModel.EventCode, token) ||
		strings.Contains(sg.WUModel.SynapseDynamicsCode, token)
}

// RowStride is the padded length of one row of the synaptic matrix.
func (sg *SynapseGroup) RowStride() uint32 {
	if sg.MatrixType.Has(ConnectivitySparse) {
		return sg.MaxConnections
	}
	return sg.Trg.NumNeurons
}

// WUConstInitVals returns the shared value of every weight update variable of
// a group with global weights.
func (sg *SynapseGroup) WUConstInitVals() []float64 {
	return constInitVals(sg.WUVarInitialisers)
}

func (sg *SynapseGroup) PSConstInitVals() []float64 {
	return constInitVals(sg.PSVarInitialisers)
}

func constInitVals(inits []VarInit) []float64 {
	values := make([]float64, len(inits))
	for i, vi := range inits {
		if len(vi.Params) > 0 {
			values[i] = vi.Params[0]
		}
	}
	return values
}

// Network is the full declarative description handed to the compiler.
type Network struct {
	Name                    string
	DT                      float64
	Precision               string
	TimePrecision           string
	MergePostsynapticModels bool

	NeuronGroups   []*NeuronGroup
	CurrentSources []*CurrentSource
	SynapseGroups  []*SynapseGroup

	finalized bool
}

func NewNetwork(name string) *Network {
	return &Network{Name: name, DT: 0.1, Precision: "float", TimePrecision: "double"}
}

func (n *Network) NeuronGroup(name string) (*NeuronGroup, bool) {
	for _, ng := range n.NeuronGroups {
		if ng.Name == name {
			return ng, true
		}
	}
	return nil, false
}

func (n *Network) SynapseGroup(name string) (*SynapseGroup, bool) {
	for _, sg := range n.SynapseGroups {
		if sg.Name == name {
			return sg, true
		}
	}
	return nil, false
}

func (n *Network) AddNeuronGroup(ng *NeuronGroup) error {
	if _, ok := n.NeuronGroup(ng.Name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateGroup, ng.Name)
	}
	n.NeuronGroups = append(n.NeuronGroups, ng)
	return nil
}

func (n *Network) AddCurrentSource(cs *CurrentSource) error {
	for _, existing := range n.CurrentSources {
		if existing.Name == cs.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateGroup, cs.Name)
		}
	}
	if cs.Target == nil {
		return fmt.Errorf("%w: current source %s has no target", ErrUnknownGroup, cs.Name)
	}
	n.CurrentSources = append(n.CurrentSources, cs)
	return nil
}

func (n *Network) AddSynapseGroup(sg *SynapseGroup) error {
	if _, ok := n.SynapseGroup(sg.Name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateGroup, sg.Name)
	}
	if sg.Src == nil || sg.Trg == nil {
		return fmt.Errorf("%w: synapse group %s needs a source and a target", ErrUnknownGroup, sg.Name)
	}
	n.SynapseGroups = append(n.SynapseGroups, sg)
	return nil
}

// Finalize derives everything the code generator reads but the description
// does not state directly: derived parameters, delay slots, child lists and
// spike event conditions. It is idempotent.
func (n *Network) Finalize() error {
	if n.finalized {
		return nil
	}
	eval := newDerivedEvaluator(n.DT)

	for _, ng := range n.NeuronGroups {
		if ng.Model == nil {
			return fmt.Errorf("neuron group %s: model is required", ng.Name)
		}
		if len(ng.VarInitialisers) != len(ng.Model.Vars) {
			return fmt.Errorf("neuron group %s: %d var initialisers for %d vars", ng.Name, len(ng.VarInitialisers), len(ng.Model.Vars))
		}
		var err error
		if ng.DerivedParams, err = eval.derive(&ng.Model.Snippet, ng.Params); err != nil {
			return fmt.Errorf("neuron group %s: %w", ng.Name, err)
		}
		if err := eval.deriveVarInits(ng.VarInitialisers); err != nil {
			return fmt.Errorf("neuron group %s: %w", ng.Name, err)
		}
		ng.NumDelaySlots = 1
		ng.CurrentSources = nil
		ng.InSyn = nil
		ng.OutSyn = nil
	}

	for _, cs := range n.CurrentSources {
		var err error
		if cs.DerivedParams, err = eval.derive(&cs.Model.Snippet, cs.Params); err != nil {
			return fmt.Errorf("current source %s: %w", cs.Name, err)
		}
		if err := eval.deriveVarInits(cs.VarInitialisers); err != nil {
			return fmt.Errorf("current source %s: %w", cs.Name, err)
		}
		cs.Target.CurrentSources = append(cs.Target.CurrentSources, cs)
	}

	for _, sg := range n.SynapseGroups {
		if err := n.finalizeSynapseGroup(eval, sg); err != nil {
			return fmt.Errorf("synapse group %s: %w", sg.Name, err)
		}
	}

	for _, ng := range n.NeuronGroups {
		ng.buildMergedInSyn(n.MergePostsynapticModels)
		ng.buildChildViews()
		ng.buildSpikeEventConditions()
	}
	n.finalized = true
	return nil
}

func (n *Network) finalizeSynapseGroup(eval *derivedEvaluator, sg *SynapseGroup) error {
	if sg.WUModel == nil || sg.PSModel == nil {
		return errors.New("weight update and postsynaptic models are required")
	}
	if len(sg.WUVarInitialisers) != len(sg.WUModel.Vars) ||
		len(sg.WUPreVarInitialisers) != len(sg.WUModel.PreVars) ||
		len(sg.WUPostVarInitialisers) != len(sg.WUModel.PostVars) ||
		len(sg.PSVarInitialisers) != len(sg.PSModel.Vars) {
		return errors.New("var initialiser count does not match model")
	}
	var err error
	if sg.WUDerivedParams, err = eval.derive(&sg.WUModel.Snippet, sg.WUParams); err != nil {
		return err
	}
	if sg.PSDerivedParams, err = eval.derive(&sg.PSModel.Snippet, sg.PSParams); err != nil {
		return err
	}
	for _, inits := range [][]VarInit{sg.WUVarInitialisers, sg.WUPreVarInitialisers, sg.WUPostVarInitialisers, sg.PSVarInitialisers} {
		if err := eval.deriveVarInits(inits); err != nil {
			return err
		}
	}
	if ci := &sg.ConnectivityInitialiser; ci.Snippet == nil && !sg.MatrixType.Has(ConnectivityDense) {
		if sg.MatrixType.Has(ConnectivityProcedural) {
			return errors.New("procedural connectivity needs a connectivity initialiser")
		}
		if ci.Snippet, err = Builtins.Connectivity.Lookup("Uninitialised"); err != nil {
			return err
		}
		ci.Params = nil
	}
	if ci := &sg.ConnectivityInitialiser; ci.Snippet != nil {
		if ci.DerivedParams, err = eval.derive(&ci.Snippet.Snippet, ci.Params); err != nil {
			return err
		}
	}
	if sg.MatrixType.Has(WeightGlobal) {
		for i, vi := range sg.WUVarInitialisers {
			if vi.Snippet == nil || len(vi.Snippet.ParamNames) != 1 {
				return fmt.Errorf("global weight %s needs a constant initialiser", sg.WUModel.Vars[i].Name)
			}
		}
	}

	if sg.MaxConnections == 0 {
		sg.MaxConnections = sg.Trg.NumNeurons
	}
	if sg.MaxSourceConnections == 0 {
		sg.MaxSourceConnections = sg.Src.NumNeurons
	}
	if sg.MaxDendriticDelayTimesteps == 0 {
		sg.MaxDendriticDelayTimesteps = 1
	}
	if sg.SparseIndType == "" {
		sg.SparseIndType = "unsigned int"
	}
	sg.psTargetName = ""

	if slots := sg.DelaySteps + 1; slots > sg.Src.NumDelaySlots {
		sg.Src.NumDelaySlots = slots
	}
	if slots := sg.BackPropDelaySteps + 1; slots > sg.Trg.NumDelaySlots {
		sg.Trg.NumDelaySlots = slots
	}
	sg.Src.OutSyn = append(sg.Src.OutSyn, sg)
	sg.Trg.InSyn = append(sg.Trg.InSyn, sg)
	return nil
}

func (ng *NeuronGroup) buildMergedInSyn(merge bool) {
	ng.MergedInSyn = nil
	for _, sg := range ng.InSyn {
		if merge {
			found := false
			for i := range ng.MergedInSyn {
				if ng.MergedInSyn[i].Group.canPSBeLinearlyCombined(sg) {
					ng.MergedInSyn[i].Merged = append(ng.MergedInSyn[i].Merged, sg)
					found = true
					break
				}
			}
			if found {
				continue
			}
		}
		ng.MergedInSyn = append(ng.MergedInSyn, MergedInSyn{Group: sg, Merged: []*SynapseGroup{sg}})
	}
	if !merge {
		return
	}
	for i, in := range ng.MergedInSyn {
		if len(in.Merged) < 2 {
			continue
		}
		target := "Merged" + strconv.Itoa(i) + "_" + ng.Name
		for _, sg := range in.Merged {
			sg.psTargetName = target
		}
	}
}

func (ng *NeuronGroup) buildChildViews() {
	ng.InSynWithPostCode = nil
	ng.OutSynWithPreCode = nil
	ng.InSynWithPostVars = nil
	ng.OutSynWithPreVars = nil
	for _, sg := range ng.InSyn {
		if sg.WUModel.PostSpikeCode != "" {
			ng.InSynWithPostCode = append(ng.InSynWithPostCode, sg)
		}
		if len(sg.WUModel.PostVars) > 0 {
			ng.InSynWithPostVars = append(ng.InSynWithPostVars, sg)
		}
	}
	for _, sg := range ng.OutSyn {
		if sg.WUModel.PreSpikeCode != "" {
			ng.OutSynWithPreCode = append(ng.OutSynWithPreCode, sg)
		}
		if len(sg.WUModel.PreVars) > 0 {
			ng.OutSynWithPreVars = append(ng.OutSynWithPreVars, sg)
		}
	}
}

func (ng *NeuronGroup) buildSpikeEventConditions() {
	ng.SpikeEventConditions = nil
	seen := make(map[string]bool)
	for _, sg := range ng.OutSyn {
		code := sg.WUModel.EventThresholdConditionCode
		if code == "" {
			continue
		}
		egpInCode := false
		for _, egp := range sg.WUModel.ExtraGlobalParams {
			if strings.Contains(code, Token(egp.Name)) {
				egpInCode = true
				break
			}
		}
		// Conditions that read a synapse group's EGPs are specific to that group.
		if !egpInCode {
			if seen[code] {
				continue
			}
			seen[code] = true
		}
		ng.SpikeEventConditions = append(ng.SpikeEventConditions, SpikeEventCondition{
			Code:               code,
			SynapseGroup:       sg,
			EGPInThresholdCode: egpInCode,
		})
	}
	sort.SliceStable(ng.SpikeEventConditions, func(i, j int) bool {
		a, b := ng.SpikeEventConditions[i], ng.SpikeEventConditions[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.SynapseGroup.Name < b.SynapseGroup.Name
	})
}

func (sg *SynapseGroup) canPSBeLinearlyCombined(other *SynapseGroup) bool {
	if sg.PSModel != other.PSModel {
		return false
	}
	if sg.MatrixType.Has(WeightIndividualPSM) || other.MatrixType.Has(WeightIndividualPSM) {
		return false
	}
	if sg.IsDendriticDelayRequired() != other.IsDendriticDelayRequired() ||
		sg.MaxDendriticDelayTimesteps != other.MaxDendriticDelayTimesteps {
		return false
	}
	return equalValues(sg.PSParams, other.PSParams) &&
		equalValues(sg.PSDerivedParams, other.PSDerivedParams) &&
		equalValues(sg.PSConstInitVals(), other.PSConstInitVals())
}
