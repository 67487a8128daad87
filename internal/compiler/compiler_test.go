package compiler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spikegen/internal/codegen"
	"spikegen/internal/emit"
	"spikegen/internal/model"
	"spikegen/internal/netspec"
	"spikegen/internal/storage"
)

func loadVA(t *testing.T) *model.Network {
	t.Helper()
	net, err := netspec.LoadFile(filepath.Join("..", "..", "testdata", "networks", "va.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return net
}

func lookup[T any](t *testing.T, r *model.Registry[T], name string) *T {
	t.Helper()
	def, err := r.Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return def
}

func constInit(t *testing.T, v float64) model.VarInit {
	return model.VarInit{Snippet: lookup(t, model.Builtins.InitVars, "Constant"), Params: []float64{v}}
}

// delayedNetwork has A driving B through a four step axonal delay.
func delayedNetwork(t *testing.T) *model.Network {
	t.Helper()
	net := model.NewNetwork("delayed")
	izh := lookup(t, model.Builtins.Neurons, "Izhikevich")
	a := &model.NeuronGroup{Name: "A", NumNeurons: 16, Model: izh, Params: []float64{0.02, 0.2, -65, 8},
		VarInitialisers: []model.VarInit{constInit(t, -65), constInit(t, -20)}}
	b := &model.NeuronGroup{Name: "B", NumNeurons: 8, Model: izh, Params: []float64{0.1, 0.2, -65, 2},
		VarInitialisers: []model.VarInit{constInit(t, -65), constInit(t, -20)}}
	for _, ng := range []*model.NeuronGroup{a, b} {
		if err := net.AddNeuronGroup(ng); err != nil {
			t.Fatalf("add %s: %v", ng.Name, err)
		}
	}
	sg := &model.SynapseGroup{
		Name:              "AB",
		MatrixType:        model.ConnectivityDense | model.WeightIndividual,
		DelaySteps:        4,
		Src:               a,
		Trg:               b,
		WUModel:           lookup(t, model.Builtins.WeightUpdates, "StaticPulse"),
		WUVarInitialisers: []model.VarInit{constInit(t, 0.5)},
		PSModel:           lookup(t, model.Builtins.Postsynaptic, "DeltaCurr"),
	}
	if err := net.AddSynapseGroup(sg); err != nil {
		t.Fatalf("add synapse: %v", err)
	}
	return net
}

func pinned() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func findGroup(t *testing.T, res Result, typeName string) codegen.Merged {
	t.Helper()
	for _, g := range res.Groups {
		if g.TypeName() == typeName {
			return g
		}
	}
	t.Fatalf("no merged group %s", typeName)
	return nil
}

func TestCompileVogelsAbbottC(t *testing.T) {
	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = log.New(&logs, "", 0)
	opts.Now = pinned

	res, err := Compile(context.Background(), loadVA(t), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.Backend != "c" || res.Network != "va" || res.RunID == "" {
		t.Fatalf("unexpected result header: %+v", res.Run())
	}

	update := findGroup(t, res, "MergedNeuronUpdateGroup0")
	if got := strings.Join(update.Members(), ","); got != "E,I" {
		t.Fatalf("E and I should share one update struct, got %s", got)
	}
	kinds := map[string]codegen.FieldKind{}
	for _, f := range update.Fields() {
		kinds[f.Name] = f.Kind
	}
	// TauM only reaches the code through its derived parameters
	if _, ok := kinds["TauM"]; ok {
		t.Fatal("TauM is not referenced by the update code and should not be a field")
	}
	for _, name := range []string{"ExpTC", "Rmembrane", "slopeCS0"} {
		if kinds[name] != codegen.FieldScalar {
			t.Fatalf("%s should be a heterogeneous scalar field, got %v", name, kinds[name])
		}
	}
	if _, ok := kinds["Vthresh"]; ok {
		t.Fatal("homogeneous Vthresh should stay a literal in the code")
	}
	if !strings.Contains(logs.String(), "MergedNeuronUpdateGroup0.ExpTC is heterogeneous") {
		t.Fatalf("expected heterogeneity in the log:\n%s", logs.String())
	}

	src := string(res.Source)
	for _, want := range []string{"struct MergedNeuronUpdateGroup0", "d_mergedNeuronUpdateGroup0[2]", "pushMergedNeuronUpdateGroup0ToDevice"} {
		if !strings.Contains(src, want) {
			t.Fatalf("source missing %q", want)
		}
	}

	reset := res.Snippets["MergedNeuronSpikeQueueUpdateGroup0"]
	if len(reset) != 1 || reset[0].Name != "reset" || reset[0].Code != "group->spkCnt[0] = 0;\n" {
		t.Fatalf("unexpected reset snippet %+v", reset)
	}

	run := res.Run()
	if run.MergedGroups != len(res.Groups) || run.Buffers != len(res.Buffers) || run.StructBytes == 0 {
		t.Fatalf("unexpected run record %+v", run)
	}
	if !run.CreatedAt.Equal(pinned()) {
		t.Fatalf("created at %v", run.CreatedAt)
	}
	layouts := res.Layouts()
	if len(layouts) != len(res.Groups) {
		t.Fatalf("expected one layout per group, got %d", len(layouts))
	}
	for _, l := range layouts {
		if l.RunID != res.RunID || l.SchemaVersion != storage.CurrentSchemaVersion || l.Declaration == "" {
			t.Fatalf("incomplete layout %+v", l)
		}
	}
}

func TestCompileGoBackend(t *testing.T) {
	opts := DefaultOptions()
	opts.Backend = "go"
	opts.Package = "va"
	res, err := Compile(context.Background(), loadVA(t), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	src := string(res.Source)
	if !strings.Contains(src, "package va") {
		t.Fatalf("unexpected go source:\n%s", src)
	}
	if !strings.Contains(src, "type MergedNeuronUpdateGroup0 struct") {
		t.Fatalf("missing neuron update struct:\n%s", src)
	}
	reset := res.Snippets["MergedNeuronSpikeQueueUpdateGroup0"]
	if len(reset) != 1 || reset[0].Code != "arena.Uint32(group.SpkCnt)[0] = 0\n" {
		t.Fatalf("unexpected reset snippet %+v", reset)
	}
}

func TestCompileDelaySnippets(t *testing.T) {
	res, err := Compile(context.Background(), delayedNetwork(t), DefaultOptions())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	names := func(typeName string) []string {
		var out []string
		for _, s := range res.Snippets[typeName] {
			out = append(out, s.Name)
		}
		return out
	}

	var delayed string
	for _, g := range res.Groups {
		if g.Role() != codegen.RoleNeuronSpikeQueueUpdate {
			continue
		}
		if m := g.Members(); len(m) == 1 && m[0] == "A" {
			delayed = g.TypeName()
		}
	}
	if delayed == "" {
		t.Fatal("delayed source A should get its own spike queue struct")
	}
	if got := res.Snippets[delayed]; len(got) != 1 || got[0].Code != "group->spkCnt[*group->spkQuePtr] = 0;\n" {
		t.Fatalf("unexpected delayed reset %+v", got)
	}
	if got := names("MergedPresynapticUpdateGroup0"); len(got) != 1 || got[0] != "preDelaySlot" {
		t.Fatalf("presynaptic snippets = %v", got)
	}
	found := false
	for _, typeName := range []string{"MergedNeuronUpdateGroup0", "MergedNeuronUpdateGroup1"} {
		for _, n := range names(typeName) {
			if n == "currentQueueOffset" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("delayed neuron update should offer a queue offset")
	}
}

func TestCompileEventThresholdBindsOwningSynapseGroup(t *testing.T) {
	net := model.NewNetwork("events")
	izh := lookup(t, model.Builtins.Neurons, "Izhikevich")
	neuron := func(name string) *model.NeuronGroup {
		ng := &model.NeuronGroup{Name: name, NumNeurons: 4, Model: izh, Params: []float64{0.02, 0.2, -65, 8},
			VarInitialisers: []model.VarInit{constInit(t, -65), constInit(t, -20)}}
		if err := net.AddNeuronGroup(ng); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		return ng
	}
	thresholded := func(name, egp, code string) *model.WeightUpdateModel {
		return &model.WeightUpdateModel{
			Snippet:                     model.Snippet{Name: name, ExtraGlobalParams: []model.EGP{{Name: egp, Type: "scalar"}}},
			Vars:                        []model.Var{{Name: "g", Type: "scalar"}},
			EventCode:                   "$(addToInSyn, $(g));",
			EventThresholdConditionCode: code,
		}
	}
	wuX := thresholded("X", "ex", "$(V_pre) > $(ex)")
	wuY := thresholded("Y", "ey", "$(V_pre) < $(ey)")

	n1, n2, trg := neuron("N1"), neuron("N2"), neuron("T")
	ps := lookup(t, model.Builtins.Postsynaptic, "DeltaCurr")
	// N2 adds its outgoing synapses in the opposite order to N1
	for _, s := range []struct {
		name string
		src  *model.NeuronGroup
		wu   *model.WeightUpdateModel
	}{{"S1", n1, wuX}, {"S2", n1, wuY}, {"S3", n2, wuY}, {"S4", n2, wuX}} {
		sg := &model.SynapseGroup{
			Name:              s.name,
			MatrixType:        model.ConnectivityDense | model.WeightIndividual,
			Src:               s.src,
			Trg:               trg,
			WUModel:           s.wu,
			WUVarInitialisers: []model.VarInit{constInit(t, 1)},
			PSModel:           ps,
		}
		if err := net.AddSynapseGroup(sg); err != nil {
			t.Fatalf("add %s: %v", s.name, err)
		}
	}

	res, err := Compile(context.Background(), net, DefaultOptions())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	owners := map[string]map[string]bool{
		"ex": {"S1": true, "S4": true},
		"ey": {"S2": true, "S3": true},
	}
	checked := 0
	for _, g := range res.Groups {
		if g.Role() != codegen.RoleNeuronUpdate || strings.Join(g.Members(), ",") != "N1,N2" {
			continue
		}
		for _, f := range g.Fields() {
			egp, _, ok := strings.Cut(f.Name, "EventThresh")
			if !ok {
				continue
			}
			for member, v := range f.Values {
				if !owners[egp][v.Buffer.Group] {
					t.Fatalf("%s of %s binds %s, whose model has no %s", f.Name, g.Members()[member], v.Buffer.Group, egp)
				}
				checked++
			}
		}
	}
	if checked != 4 {
		t.Fatalf("expected 4 event threshold bindings across N1 and N2, got %d", checked)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Workers = 8
	opts.Now = pinned
	first, err := Compile(context.Background(), loadVA(t), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := Compile(context.Background(), loadVA(t), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !bytes.Equal(first.Source, second.Source) {
		t.Fatal("source differs between identical compiles")
	}
	if first.RunID == second.RunID {
		t.Fatal("every compile should get its own run id")
	}
}

func TestCompileUnknownBackend(t *testing.T) {
	opts := DefaultOptions()
	opts.Backend = "verilog"
	if _, err := Compile(context.Background(), loadVA(t), opts); !errors.Is(err, emit.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestCompileRejectsProceduralWithoutConnectivity(t *testing.T) {
	net := delayedNetwork(t)
	net.SynapseGroups[0].MatrixType = model.ConnectivityProcedural | model.WeightGlobal
	_, err := Compile(context.Background(), net, DefaultOptions())
	if err == nil {
		t.Fatal("expected an error for procedural connectivity without an initialiser")
	}
	if errors.Is(err, codegen.ErrInternal) {
		t.Fatalf("missing connectivity is a user error, got %v", err)
	}
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Compile(ctx, loadVA(t), DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStructSize(t *testing.T) {
	f := func(types ...string) []codegen.Field {
		out := make([]codegen.Field, len(types))
		for i, typ := range types {
			out[i] = codegen.Field{Type: typ}
		}
		return out
	}
	cases := []struct {
		fields    []codegen.Field
		precision string
		want      uint64
	}{
		{f("unsigned int", "scalar*", "scalar"), "float", 24},
		{f("unsigned int", "scalar*", "scalar"), "double", 24},
		{f("unsigned int", "scalar"), "float", 8},
		{f("bool", "double"), "float", 16},
		{f("uint8_t", "uint8_t", "uint8_t"), "float", 3},
		{f("curandState"), "float", 8},
		{nil, "float", 0},
	}
	for _, tc := range cases {
		if got := StructSize(tc.fields, tc.precision); got != tc.want {
			t.Fatalf("StructSize(%v, %s) = %d, want %d", tc.fields, tc.precision, got, tc.want)
		}
	}
}
