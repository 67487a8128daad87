package model

import (
	"errors"
	"strings"
	"testing"
)

func constInit(t *testing.T, v float64) VarInit {
	t.Helper()
	snippet, err := Builtins.InitVars.Lookup("Constant")
	if err != nil {
		t.Fatalf("lookup constant: %v", err)
	}
	return VarInit{Snippet: snippet, Params: []float64{v}}
}

func izhGroup(t *testing.T, name string, n uint32) *NeuronGroup {
	t.Helper()
	izh, err := Builtins.Neurons.Lookup("Izhikevich")
	if err != nil {
		t.Fatalf("lookup izhikevich: %v", err)
	}
	return &NeuronGroup{
		Name:            name,
		NumNeurons:      n,
		Model:           izh,
		Params:          []float64{0.02, 0.2, -65, 8},
		VarInitialisers: []VarInit{constInit(t, -65), constInit(t, -13)},
	}
}

func pulseSynapse(t *testing.T, name string, src, trg *NeuronGroup, delay uint32) *SynapseGroup {
	t.Helper()
	wu, _ := Builtins.WeightUpdates.Lookup("StaticPulse")
	ps, _ := Builtins.Postsynaptic.Lookup("ExpCurr")
	return &SynapseGroup{
		Name:              name,
		MatrixType:        ConnectivityDense | WeightGlobal,
		DelaySteps:        delay,
		Src:               src,
		Trg:               trg,
		WUModel:           wu,
		WUVarInitialisers: []VarInit{constInit(t, 0.5)},
		PSModel:           ps,
		PSParams:          []float64{5.0},
	}
}

func TestFinalizeWiresChildrenAndDelays(t *testing.T) {
	net := NewNetwork("wiring")
	pre := izhGroup(t, "Pre", 10)
	post := izhGroup(t, "Post", 20)
	if err := net.AddNeuronGroup(pre); err != nil {
		t.Fatalf("add pre: %v", err)
	}
	if err := net.AddNeuronGroup(post); err != nil {
		t.Fatalf("add post: %v", err)
	}
	syn := pulseSynapse(t, "PrePost", pre, post, 4)
	if err := net.AddSynapseGroup(syn); err != nil {
		t.Fatalf("add synapse: %v", err)
	}

	if err := net.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if pre.NumDelaySlots != 5 || !pre.IsDelayRequired() {
		t.Fatalf("expected 5 delay slots on source, got %d", pre.NumDelaySlots)
	}
	if post.IsDelayRequired() {
		t.Fatal("target should not need delay")
	}
	if len(pre.OutSyn) != 1 || len(post.InSyn) != 1 || len(post.MergedInSyn) != 1 {
		t.Fatalf("unexpected wiring: out=%d in=%d merged=%d", len(pre.OutSyn), len(post.InSyn), len(post.MergedInSyn))
	}
	if syn.PSModelTargetName() != "PrePost" {
		t.Fatalf("unexpected target name %q", syn.PSModelTargetName())
	}
	if syn.MaxConnections != 20 || syn.RowStride() != 20 {
		t.Fatalf("unexpected row stride %d", syn.RowStride())
	}
	if len(syn.PSDerivedParams) != 2 {
		t.Fatalf("expected derived postsynaptic params, got %v", syn.PSDerivedParams)
	}
	if !pre.IsTrueSpikeRequired() || pre.IsSpikeEventRequired() {
		t.Fatal("unexpected spike requirements")
	}
}

func TestFinalizeMergesLinearPostsynapticModels(t *testing.T) {
	net := NewNetwork("psm")
	net.MergePostsynapticModels = true
	a := izhGroup(t, "A", 10)
	b := izhGroup(t, "B", 10)
	post := izhGroup(t, "Post", 10)
	for _, ng := range []*NeuronGroup{a, b, post} {
		if err := net.AddNeuronGroup(ng); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	s1 := pulseSynapse(t, "AP", a, post, 0)
	s2 := pulseSynapse(t, "BP", b, post, 0)
	for _, sg := range []*SynapseGroup{s1, s2} {
		if err := net.AddSynapseGroup(sg); err != nil {
			t.Fatalf("add synapse: %v", err)
		}
	}
	if err := net.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(post.MergedInSyn) != 1 || len(post.MergedInSyn[0].Merged) != 2 {
		t.Fatalf("expected one merged input of two groups, got %+v", post.MergedInSyn)
	}
	if s1.PSModelTargetName() != "Merged0_Post" || s2.PSModelTargetName() != "Merged0_Post" {
		t.Fatalf("unexpected merge targets %q %q", s1.PSModelTargetName(), s2.PSModelTargetName())
	}
}

func TestSpikeEventConditionsTrackEGPs(t *testing.T) {
	net := NewNetwork("events")
	pre := izhGroup(t, "Pre", 4)
	post := izhGroup(t, "Post", 4)
	_ = net.AddNeuronGroup(pre)
	_ = net.AddNeuronGroup(post)

	ps, _ := Builtins.Postsynaptic.Lookup("DeltaCurr")
	wu := &WeightUpdateModel{
		Snippet:                     Snippet{Name: "Thresholded", ExtraGlobalParams: []EGP{{Name: "theta", Type: "scalar"}}},
		Vars:                        []Var{{Name: "g", Type: "scalar"}},
		EventCode:                   "$(addToInSyn, $(g));",
		EventThresholdConditionCode: "$(V_pre) > $(theta)",
	}
	for _, name := range []string{"S1", "S2"} {
		sg := &SynapseGroup{
			Name:              name,
			MatrixType:        ConnectivityDense | WeightIndividual,
			Src:               pre,
			Trg:               post,
			WUModel:           wu,
			WUVarInitialisers: []VarInit{constInit(t, 1)},
			PSModel:           ps,
		}
		if err := net.AddSynapseGroup(sg); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := net.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(pre.SpikeEventConditions) != 2 {
		t.Fatalf("EGP conditions are per synapse group, got %d", len(pre.SpikeEventConditions))
	}
	for _, c := range pre.SpikeEventConditions {
		if !c.EGPInThresholdCode {
			t.Fatalf("expected EGP flag on %s", c.SynapseGroup.Name)
		}
	}
}

func TestSpikeEventConditionsCanonicalOrder(t *testing.T) {
	net := NewNetwork("events")
	pre := izhGroup(t, "Pre", 4)
	post := izhGroup(t, "Post", 4)
	_ = net.AddNeuronGroup(pre)
	_ = net.AddNeuronGroup(post)

	ps, _ := Builtins.Postsynaptic.Lookup("DeltaCurr")
	thresholded := func(name, code string) *WeightUpdateModel {
		return &WeightUpdateModel{
			Snippet:                     Snippet{Name: name, ExtraGlobalParams: []EGP{{Name: "theta", Type: "scalar"}}},
			Vars:                        []Var{{Name: "g", Type: "scalar"}},
			EventCode:                   "$(addToInSyn, $(g));",
			EventThresholdConditionCode: code,
		}
	}
	high := thresholded("High", "$(V_pre) > $(theta)")
	low := thresholded("Low", "$(V_pre) < $(theta)")
	for _, s := range []struct {
		name string
		wu   *WeightUpdateModel
	}{{"S3", high}, {"S2", low}, {"S1", high}} {
		sg := &SynapseGroup{
			Name:              s.name,
			MatrixType:        ConnectivityDense | WeightIndividual,
			Src:               pre,
			Trg:               post,
			WUModel:           s.wu,
			WUVarInitialisers: []VarInit{constInit(t, 1)},
			PSModel:           ps,
		}
		if err := net.AddSynapseGroup(sg); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := net.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	var got []string
	for _, c := range pre.SpikeEventConditions {
		got = append(got, c.SynapseGroup.Name)
	}
	// sorted by code, then by synapse group name
	if strings.Join(got, ",") != "S2,S1,S3" {
		t.Fatalf("unexpected condition order %v", got)
	}
}

func TestAddGroupRejectsDuplicates(t *testing.T) {
	net := NewNetwork("dup")
	if err := net.AddNeuronGroup(izhGroup(t, "A", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := net.AddNeuronGroup(izhGroup(t, "A", 1))
	if !errors.Is(err, ErrDuplicateGroup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestFinalizeRejectsNonConstantGlobalWeights(t *testing.T) {
	net := NewNetwork("global")
	pre := izhGroup(t, "Pre", 2)
	post := izhGroup(t, "Post", 2)
	_ = net.AddNeuronGroup(pre)
	_ = net.AddNeuronGroup(post)
	sg := pulseSynapse(t, "S", pre, post, 0)
	normal, _ := Builtins.InitVars.Lookup("Normal")
	sg.WUVarInitialisers = []VarInit{{Snippet: normal, Params: []float64{0, 1}}}
	_ = net.AddSynapseGroup(sg)
	if err := net.Finalize(); err == nil {
		t.Fatal("expected error for global weight without constant initialiser")
	}
}

func TestFinalizeDefaultsMissingConnectivity(t *testing.T) {
	cases := []struct {
		name    string
		matrix  MatrixType
		wantErr bool
	}{
		{name: "sparse", matrix: ConnectivitySparse | WeightGlobal},
		{name: "bitmask", matrix: ConnectivityBitmask | WeightGlobal},
		{name: "dense", matrix: ConnectivityDense | WeightGlobal},
		{name: "procedural", matrix: ConnectivityProcedural | WeightGlobal, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net := NewNetwork("conn")
			pre := izhGroup(t, "Pre", 2)
			post := izhGroup(t, "Post", 2)
			_ = net.AddNeuronGroup(pre)
			_ = net.AddNeuronGroup(post)
			sg := pulseSynapse(t, "S", pre, post, 0)
			sg.MatrixType = tc.matrix
			_ = net.AddSynapseGroup(sg)

			err := net.Finalize()
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), "connectivity") {
					t.Fatalf("expected a connectivity error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}
			snippet := sg.ConnectivityInitialiser.Snippet
			if tc.matrix.Has(ConnectivityDense) {
				if snippet != nil {
					t.Fatalf("dense group should keep no connectivity snippet, got %s", snippet.Name)
				}
				return
			}
			if snippet == nil || snippet.Name != "Uninitialised" {
				t.Fatalf("expected Uninitialised connectivity, got %+v", snippet)
			}
		})
	}
}

func TestParseMatrixType(t *testing.T) {
	mt, err := ParseMatrixType("sparse_individualg")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !mt.Has(ConnectivitySparse) || !mt.Has(WeightIndividual) || mt.Has(WeightGlobal) {
		t.Fatalf("unexpected flags %v", mt)
	}
	if mt.String() != "SPARSE_INDIVIDUALG" {
		t.Fatalf("unexpected name %s", mt)
	}
	if _, err := ParseMatrixType("DIAGONAL"); err == nil {
		t.Fatal("expected unknown matrix type error")
	}
}

func TestRegistryLayering(t *testing.T) {
	lib := NewLibrary()
	custom := &NeuronModel{Snippet: Snippet{Name: "Custom"}}
	if err := lib.Neurons.Register("Custom", custom); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := Builtins.Neurons.Lookup("Custom"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("custom model leaked into builtins: %v", err)
	}
	if _, err := lib.Neurons.Lookup("LIF"); err != nil {
		t.Fatalf("builtin not visible through library: %v", err)
	}
	if err := lib.Neurons.Register("Custom", custom); !errors.Is(err, ErrModelExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}
