package spikegen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var vaPath = filepath.Join("..", "..", "testdata", "networks", "va.json")

func newMemoryClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientGenerateRunsAndLayouts(t *testing.T) {
	client := newMemoryClient(t)
	out := filepath.Join(t.TempDir(), "gen", "va.h")

	summary, err := client.Generate(context.Background(), GenerateRequest{
		NetworkPath: vaPath,
		Workers:     2,
		OutPath:     out,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if summary.RunID == "" || summary.Network != "va" || summary.Backend != "c" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Source != nil {
		t.Fatal("source should only be returned when no out path is set")
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read generated source: %v", err)
	}
	if len(data) != summary.SourceBytes || !strings.Contains(string(data), "struct MergedNeuronUpdateGroup0") {
		t.Fatalf("unexpected generated source (%d bytes)", len(data))
	}

	runs, err := client.Runs(context.Background(), 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID || runs[0].MergedGroups != summary.MergedGroups {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	layouts, err := client.Layouts(context.Background(), "")
	if err != nil {
		t.Fatalf("layouts: %v", err)
	}
	if len(layouts) != summary.MergedGroups {
		t.Fatalf("expected %d layouts, got %d", summary.MergedGroups, len(layouts))
	}
	first := layouts[0]
	if first.TypeName != "MergedNeuronSpikeQueueUpdateGroup0" {
		t.Fatalf("layouts should follow emission order, first is %s", first.TypeName)
	}
	got, err := client.Layout(context.Background(), summary.RunID, first.TypeName)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if got.Declaration != first.Declaration {
		t.Fatal("single layout lookup disagrees with the listing")
	}
}

func TestClientGenerateInlineGo(t *testing.T) {
	client := newMemoryClient(t)
	doc := `{"name":"pair",
		"neuronGroups":[
			{"name":"A","size":10,"model":"Izhikevich","params":{"a":0.02,"b":0.2,"c":-65,"d":8},"vars":{"V":-65,"U":-20}},
			{"name":"B","size":20,"model":"Izhikevich","params":{"a":0.1,"b":0.2,"c":-65,"d":2},"vars":{"V":-65,"U":-20}}]}`

	summary, err := client.Generate(context.Background(), GenerateRequest{
		NetworkJSON: []byte(doc),
		Backend:     "go",
		Package:     "pair",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	src := string(summary.Source)
	if !strings.Contains(src, "package pair") {
		t.Fatalf("unexpected source:\n%s", src)
	}
	// a and d differ between A and B
	layouts, err := client.Layouts(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("layouts: %v", err)
	}
	var scalars []string
	for _, l := range layouts {
		if l.Role != "NeuronUpdate" {
			continue
		}
		for _, f := range l.Fields {
			if f.Kind == "Scalar" {
				scalars = append(scalars, f.Name)
			}
		}
	}
	if strings.Join(scalars, ",") != "a,d" {
		t.Fatalf("heterogeneous fields = %v", scalars)
	}
}

func TestClientErrors(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Generate(ctx, GenerateRequest{}); err == nil {
		t.Fatal("expected an error without a network")
	}
	if _, err := client.Layouts(ctx, ""); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound with no runs, got %v", err)
	}
	if _, err := client.Layouts(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := client.Layout(ctx, "missing", "MergedNeuronUpdateGroup0"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := New(ctx, Options{StoreKind: "postgres"}); err == nil {
		t.Fatal("expected an error for an unsupported store")
	}
}

func TestModelsListsBuiltins(t *testing.T) {
	kinds := map[string][]string{}
	for _, m := range Models() {
		kinds[m.Kind] = append(kinds[m.Kind], m.Name)
	}
	for kind, want := range map[string]string{
		"neuron":         "LIF",
		"weight_update":  "StaticPulse",
		"postsynaptic":   "ExpCurr",
		"current_source": "DC",
		"var_init":       "Uniform",
		"connectivity":   "FixedProbability",
	} {
		found := false
		for _, n := range kinds[kind] {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s models %v missing %s", kind, kinds[kind], want)
		}
	}
}
