package codegen

import (
	"errors"
	"reflect"
	"testing"

	"spikegen/internal/model"
)

var (
	constantInit = &model.InitVarSnippet{
		Snippet: model.Snippet{Name: "Constant", ParamNames: []string{"constant"}},
		Code:    "$(value) = $(constant);",
	}
	noInit = &model.InitVarSnippet{Snippet: model.Snippet{Name: "Uninitialised"}}

	leakyModel = &model.NeuronModel{
		Snippet:                model.Snippet{Name: "Leaky", ParamNames: []string{"tau", "Vrest", "unused"}},
		Vars:                   []model.Var{{Name: "V", Type: "scalar"}, {Name: "trace", Type: "scalar"}},
		SimCode:                "$(V) += ($(Vrest) - $(V)) / $(tau);",
		ThresholdConditionCode: "$(V) > 1.0",
	}
)

func constant(v float64) model.VarInit {
	return model.VarInit{Snippet: constantInit, Params: []float64{v}}
}

func leakyGroup(name string, tau, unused, v0 float64) *model.NeuronGroup {
	return &model.NeuronGroup{
		Name:            name,
		NumNeurons:      100,
		Model:           leakyModel,
		Params:          []float64{tau, -65, unused},
		VarInitialisers: []model.VarInit{constant(v0), {Snippet: noInit}},
		NumDelaySlots:   1,
	}
}

func scalarFields(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if f.Kind == FieldScalar {
			out = append(out, f)
		}
	}
	return out
}

func mustField(t *testing.T, fields []Field, name string) Field {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %s not found in %v", name, fieldNames(fields))
	return Field{}
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func TestNeuronUpdateHeterogeneousTau(t *testing.T) {
	groups := []*model.NeuronGroup{
		leakyGroup("Exc", 20, 1, 0),
		leakyGroup("Inh", 20, 2, 0),
		leakyGroup("Out", 10, 3, 0),
	}
	m := NewNeuronUpdate(0, DefaultBuildOptions(), groups)

	if m.TypeName() != "MergedNeuronUpdateGroup0" {
		t.Fatalf("unexpected type name: %s", m.TypeName())
	}
	fields := m.Fields()
	want := []string{"numNeurons", "spkCnt", "spk", "V", "trace", "tau"}
	if got := fieldNames(fields); !equalStrings(got, want) {
		t.Fatalf("unexpected fields: %v", got)
	}
	scalars := scalarFields(fields)
	if len(scalars) != 1 || scalars[0].Name != "tau" {
		t.Fatalf("expected one runtime field for tau, got %v", fieldNames(scalars))
	}
	if got := literals(scalars[0]); !equalStrings(got, []string{"20.0", "20.0", "10.0"}) {
		t.Fatalf("unexpected tau values: %v", got)
	}
	if got := m.Members(); !equalStrings(got, []string{"Exc", "Inh", "Out"}) {
		t.Fatalf("unexpected members: %v", got)
	}
}

func TestNeuronInitSkipsEmptyInitialisers(t *testing.T) {
	groups := []*model.NeuronGroup{
		leakyGroup("A", 20, 0, 0),
		leakyGroup("B", 20, 0, -1),
	}

	init := NewNeuronInit(0, DefaultBuildOptions(), groups).Fields()
	if !hasField(init, "V") || hasField(init, "trace") {
		t.Fatalf("init fields: %v", fieldNames(init))
	}
	if got := literals(mustField(t, init, "constantV")); !equalStrings(got, []string{"0.0", "-1.0"}) {
		t.Fatalf("unexpected initial values: %v", got)
	}
	if hasField(init, "tau") {
		t.Fatal("init struct should not carry model params")
	}

	update := NewNeuronUpdate(0, DefaultBuildOptions(), groups).Fields()
	if !hasField(update, "V") || !hasField(update, "trace") {
		t.Fatalf("update fields: %v", fieldNames(update))
	}
	if hasField(update, "constantV") {
		t.Fatal("update struct should not carry initialiser params")
	}
}

func TestNeuronUpdateSortsCurrentSources(t *testing.T) {
	dc := &model.CurrentSourceModel{
		Snippet:       model.Snippet{Name: "DC", ParamNames: []string{"amp"}},
		InjectionCode: "$(injectCurrent, $(amp));",
	}
	noise := &model.CurrentSourceModel{
		Snippet:       model.Snippet{Name: "Noise", ParamNames: []string{"mean"}},
		InjectionCode: "$(injectCurrent, $(mean) + $(gennrand_normal));",
	}
	a := leakyGroup("A", 20, 0, 0)
	b := leakyGroup("B", 20, 0, 0)
	a.CurrentSources = []*model.CurrentSource{
		{Name: "dcA", Model: dc, Params: []float64{1}, Target: a},
		{Name: "noiseA", Model: noise, Params: []float64{0}, Target: a},
	}
	b.CurrentSources = []*model.CurrentSource{
		{Name: "noiseB", Model: noise, Params: []float64{0}, Target: b},
		{Name: "dcB", Model: dc, Params: []float64{2}, Target: b},
	}

	fields := NewNeuronUpdate(0, DefaultBuildOptions(), []*model.NeuronGroup{a, b}).Fields()
	if got := literals(mustField(t, fields, "ampCS0")); !equalStrings(got, []string{"1.0", "2.0"}) {
		t.Fatalf("unexpected amp values: %v", got)
	}
	if hasField(fields, "meanCS1") {
		t.Fatal("homogeneous current source param should be folded")
	}
}

func TestNeuronUpdateMergedInSyn(t *testing.T) {
	psm := &model.PostsynapticModel{
		Snippet: model.Snippet{
			Name:          "Exp",
			ParamNames:    []string{"tau"},
			DerivedParams: []model.DerivedParam{{Name: "expDecay", Expr: "exp(-DT / tau)"}},
		},
		DecayCode: "$(inSyn) *= $(expDecay);",
	}
	wum := &model.WeightUpdateModel{Vars: []model.Var{{Name: "g", Type: "scalar"}}, SimCode: "$(addToInSyn, $(g));"}
	groups := []*model.NeuronGroup{leakyGroup("A", 20, 0, 0), leakyGroup("B", 20, 0, 0)}
	for i, ng := range groups {
		sg := &model.SynapseGroup{
			Name:            "Syn" + ng.Name,
			MatrixType:      model.ConnectivityDense | model.WeightGlobal,
			Trg:             ng,
			WUModel:         wum,
			PSModel:         psm,
			PSParams:        []float64{5 * float64(i+1)},
			PSDerivedParams: []float64{0.9 + 0.05*float64(i)},
		}
		ng.MergedInSyn = []model.MergedInSyn{{Group: sg, Merged: []*model.SynapseGroup{sg}}}
	}

	fields := NewNeuronUpdate(0, DefaultBuildOptions(), groups).Fields()
	in := mustField(t, fields, "inSynInSyn0")
	if in.Type != "float*" || in.Values[1].Buffer != (BufferKey{Space: SpaceArray, Name: "inSyn", Group: "SynB"}) {
		t.Fatalf("unexpected inSyn field: %+v", in)
	}
	if !hasField(fields, "expDecayInSyn0") {
		t.Fatalf("expected heterogeneous derived param, got %v", fieldNames(fields))
	}
	if hasField(fields, "tauInSyn0") {
		t.Fatal("unreferenced postsynaptic param should be folded")
	}
}

func TestNeuronUpdateEventThresholdEGPs(t *testing.T) {
	wum := &model.WeightUpdateModel{
		Snippet:                     model.Snippet{Name: "Graded", ExtraGlobalParams: []model.EGP{{Name: "thresh", Type: "scalar"}}},
		EventThresholdConditionCode: "$(V_pre) > $(thresh)",
	}
	groups := []*model.NeuronGroup{leakyGroup("A", 20, 0, 0), leakyGroup("B", 20, 0, 0)}
	for _, ng := range groups {
		sg := &model.SynapseGroup{Name: "Out" + ng.Name, Src: ng, WUModel: wum}
		ng.OutSyn = []*model.SynapseGroup{sg}
		ng.SpikeEventConditions = []model.SpikeEventCondition{{Code: wum.EventThresholdConditionCode, SynapseGroup: sg, EGPInThresholdCode: true}}
	}

	fields := NewNeuronUpdate(0, DefaultBuildOptions(), groups).Fields()
	if !hasField(fields, "spkCntEvnt") || !hasField(fields, "spkEvnt") {
		t.Fatalf("expected event fields, got %v", fieldNames(fields))
	}
	f := mustField(t, fields, "threshEventThresh0")
	if f.Kind != FieldScalarEGP || f.Values[1].Buffer != (BufferKey{Space: SpaceHost, Name: "thresh", Group: "OutB"}) {
		t.Fatalf("unexpected event threshold field: %+v", f)
	}
}

func TestNeuronUpdateAlignsEventThresholdConditions(t *testing.T) {
	wuX := &model.WeightUpdateModel{
		Snippet:                     model.Snippet{Name: "X", ExtraGlobalParams: []model.EGP{{Name: "ex", Type: "scalar"}}},
		EventThresholdConditionCode: "$(V_pre) > $(ex)",
	}
	wuY := &model.WeightUpdateModel{
		Snippet:                     model.Snippet{Name: "Y", ExtraGlobalParams: []model.EGP{{Name: "ey", Type: "scalar"}}},
		EventThresholdConditionCode: "$(V_pre) < $(ey)",
	}
	cond := func(name string, ng *model.NeuronGroup, wu *model.WeightUpdateModel) model.SpikeEventCondition {
		sg := &model.SynapseGroup{Name: name, Src: ng, WUModel: wu}
		ng.OutSyn = append(ng.OutSyn, sg)
		return model.SpikeEventCondition{Code: wu.EventThresholdConditionCode, SynapseGroup: sg, EGPInThresholdCode: true}
	}
	a, b := leakyGroup("A", 20, 0, 0), leakyGroup("B", 20, 0, 0)
	a.SpikeEventConditions = []model.SpikeEventCondition{cond("AX", a, wuX), cond("AY", a, wuY)}
	// B lists the same conditions the other way round
	b.SpikeEventConditions = []model.SpikeEventCondition{cond("BY", b, wuY), cond("BX", b, wuX)}

	fields := NewNeuronUpdate(0, DefaultBuildOptions(), []*model.NeuronGroup{a, b}).Fields()
	cases := []struct {
		field string
		want  []string
	}{
		{"exEventThresh0", []string{"AX", "BX"}},
		{"eyEventThresh1", []string{"AY", "BY"}},
	}
	for _, tc := range cases {
		f := mustField(t, fields, tc.field)
		for member, v := range f.Values {
			if v.Buffer.Group != tc.want[member] {
				t.Fatalf("%s member %d binds %s, want %s", tc.field, member, v.Buffer.Group, tc.want[member])
			}
		}
	}
}

func TestNeuronInitUsesMatchingSideInitialisers(t *testing.T) {
	wum := &model.WeightUpdateModel{
		PreVars:  []model.Var{{Name: "preTrace", Type: "scalar"}},
		PostVars: []model.Var{{Name: "postTrace", Type: "scalar"}},
	}
	groups := []*model.NeuronGroup{leakyGroup("A", 20, 0, 0), leakyGroup("B", 20, 0, 0)}
	for i, ng := range groups {
		sg := &model.SynapseGroup{
			Name:                  "Out" + ng.Name,
			Src:                   ng,
			WUModel:               wum,
			WUPreVarInitialisers:  []model.VarInit{constant(float64(i))},
			WUPostVarInitialisers: []model.VarInit{constant(7)},
		}
		ng.OutSynWithPreVars = []*model.SynapseGroup{sg}
	}

	fields := NewNeuronInit(0, DefaultBuildOptions(), groups).Fields()
	if !hasField(fields, "preTraceWUPre0") {
		t.Fatalf("expected presynaptic variable, got %v", fieldNames(fields))
	}
	if got := literals(mustField(t, fields, "constantpreTraceWUPre0")); !equalStrings(got, []string{"0.0", "1.0"}) {
		t.Fatalf("unexpected presynaptic initial values: %v", got)
	}
}

func TestNeuronSpikeQueueUpdate(t *testing.T) {
	ng := leakyGroup("A", 20, 0, 0)
	ng.NumDelaySlots = 3
	ng.OutSyn = []*model.SynapseGroup{{
		Name:    "Graded",
		Src:     ng,
		WUModel: &model.WeightUpdateModel{EventThresholdConditionCode: "$(V_pre) > 0"},
	}}

	m := NewNeuronSpikeQueueUpdate(0, DefaultBuildOptions(), []*model.NeuronGroup{ng})
	fields := m.Fields()
	if got := fieldNames(fields); !equalStrings(got, []string{"numDelaySlots", "spkQuePtr", "spkCnt", "spkCntEvnt"}) {
		t.Fatalf("unexpected fields: %v", got)
	}
	ptr := fields[1].Values[0]
	if ptr.Kind != ValueSymbolAddress || ptr.Buffer != (BufferKey{Space: SpaceScalar, Name: "spkQuePtr", Group: "A"}) {
		t.Fatalf("unexpected queue pointer: %+v", ptr)
	}

	want := []ResetOp{
		{Field: "spkCntEvnt", Slot: Deref{Name: "spkQuePtr"}},
		{Field: "spkCnt", Slot: Const{Value: 0}},
	}
	if got := m.ResetOps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected reset ops: %+v", got)
	}
}

func TestNeuronQueueOffsets(t *testing.T) {
	ng := leakyGroup("A", 20, 0, 0)
	ng.NumDelaySlots = 4
	m := NewNeuronUpdate(0, DefaultBuildOptions(), []*model.NeuronGroup{ng})

	current := Binary{Op: '*', L: Deref{Name: "spkQuePtr"}, R: FieldRef{Name: "numNeurons"}}
	if got := m.CurrentQueueOffset(); !reflect.DeepEqual(got, current) {
		t.Fatalf("unexpected current offset: %+v", got)
	}
	prev := Binary{
		Op: '*',
		L: Binary{Op: '%',
			L: Binary{Op: '+', L: Deref{Name: "spkQuePtr"}, R: Const{Value: 3}},
			R: Const{Value: 4}},
		R: FieldRef{Name: "numNeurons"},
	}
	if got := m.PrevQueueOffset(); !reflect.DeepEqual(got, prev) {
		t.Fatalf("unexpected previous offset: %+v", got)
	}

	undelayed := NewNeuronUpdate(0, DefaultBuildOptions(), []*model.NeuronGroup{leakyGroup("B", 20, 0, 0)})
	if err := catch(func() { undelayed.CurrentQueueOffset() }); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
