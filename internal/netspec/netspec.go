// Package netspec loads network descriptions from JSON.
//
// A description names its models either from the built-in library or from
// its own "models" section, then lists neuron groups, current sources and
// synapse groups. Parameters and variable initialisers are keyed by name so
// that their order does not have to match the model definition.
package netspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"spikegen/internal/model"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrInvalid      = errors.New("invalid network description")
)

type Document struct {
	Name                    string  `json:"name"`
	DT                      float64 `json:"dt,omitempty"`
	Precision               string  `json:"precision,omitempty"`
	TimePrecision           string  `json:"timePrecision,omitempty"`
	MergePostsynapticModels bool    `json:"mergePostsynapticModels,omitempty"`

	Models         Models          `json:"models"`
	NeuronGroups   []NeuronGroup   `json:"neuronGroups"`
	CurrentSources []CurrentSource `json:"currentSources,omitempty"`
	SynapseGroups  []SynapseGroup  `json:"synapseGroups,omitempty"`
}

// Models holds custom definitions. Each is registered under its own name.
type Models struct {
	Neurons        []model.NeuronModel                   `json:"neurons,omitempty"`
	WeightUpdates  []model.WeightUpdateModel             `json:"weightUpdates,omitempty"`
	Postsynaptic   []model.PostsynapticModel             `json:"postsynaptic,omitempty"`
	CurrentSources []model.CurrentSourceModel            `json:"currentSources,omitempty"`
	InitVars       []model.InitVarSnippet                `json:"initVars,omitempty"`
	Connectivity   []model.InitSparseConnectivitySnippet `json:"connectivity,omitempty"`
}

type NeuronGroup struct {
	Name              string             `json:"name"`
	Size              uint32             `json:"size"`
	Model             string             `json:"model"`
	Params            map[string]float64 `json:"params,omitempty"`
	Vars              map[string]VarInit `json:"vars,omitempty"`
	SpikeTimeRequired bool               `json:"spikeTimeRequired,omitempty"`
}

type CurrentSource struct {
	Name   string             `json:"name"`
	Model  string             `json:"model"`
	Target string             `json:"target"`
	Params map[string]float64 `json:"params,omitempty"`
	Vars   map[string]VarInit `json:"vars,omitempty"`
}

type SynapseGroup struct {
	Name                       string `json:"name"`
	MatrixType                 string `json:"matrixType"`
	Src                        string `json:"src"`
	Trg                        string `json:"trg"`
	DelaySteps                 uint32 `json:"delaySteps,omitempty"`
	BackPropDelaySteps         uint32 `json:"backPropDelaySteps,omitempty"`
	MaxDendriticDelayTimesteps uint32 `json:"maxDendriticDelayTimesteps,omitempty"`
	MaxConnections             uint32 `json:"maxConnections,omitempty"`
	MaxSourceConnections       uint32 `json:"maxSourceConnections,omitempty"`
	SparseIndType              string `json:"sparseIndType,omitempty"`
	WeightSharingMaster        string `json:"weightSharingMaster,omitempty"`

	WeightUpdate WeightUpdate  `json:"weightUpdate"`
	Postsynaptic Postsynaptic  `json:"postsynaptic"`
	Connectivity *Connectivity `json:"connectivity,omitempty"`
}

type WeightUpdate struct {
	Model    string             `json:"model"`
	Params   map[string]float64 `json:"params,omitempty"`
	Vars     map[string]VarInit `json:"vars,omitempty"`
	PreVars  map[string]VarInit `json:"preVars,omitempty"`
	PostVars map[string]VarInit `json:"postVars,omitempty"`
}

type Postsynaptic struct {
	Model  string             `json:"model"`
	Params map[string]float64 `json:"params,omitempty"`
	Vars   map[string]VarInit `json:"vars,omitempty"`
}

type Connectivity struct {
	Snippet string             `json:"snippet"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// VarInit is either a bare number, meaning a Constant initialiser, or an
// object naming an init snippet and its parameters.
type VarInit struct {
	Snippet string             `json:"snippet"`
	Params  map[string]float64 `json:"params,omitempty"`
}

func (v *VarInit) UnmarshalJSON(data []byte) error {
	var constant float64
	if err := json.Unmarshal(data, &constant); err == nil {
		*v = VarInit{Snippet: "Constant", Params: map[string]float64{"constant": constant}}
		return nil
	}
	type plain VarInit
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = VarInit(p)
	return nil
}

// Parse decodes a description. Unknown fields are rejected.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return doc, nil
}

// Load reads a description and builds the network it describes.
func Load(r io.Reader) (*model.Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

func LoadFile(path string) (*model.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	net, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return net, nil
}

// Library registers the document's custom models over the built-in set.
func (d Document) Library() (*model.Library, error) {
	lib := model.NewLibrary()
	for i := range d.Models.Neurons {
		m := &d.Models.Neurons[i]
		if err := lib.Neurons.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	for i := range d.Models.WeightUpdates {
		m := &d.Models.WeightUpdates[i]
		if err := lib.WeightUpdates.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	for i := range d.Models.Postsynaptic {
		m := &d.Models.Postsynaptic[i]
		if err := lib.Postsynaptic.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	for i := range d.Models.CurrentSources {
		m := &d.Models.CurrentSources[i]
		if err := lib.CurrentSource.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	for i := range d.Models.InitVars {
		m := &d.Models.InitVars[i]
		if err := lib.InitVars.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	for i := range d.Models.Connectivity {
		m := &d.Models.Connectivity[i]
		if err := lib.Connectivity.Register(m.Name, m); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Build resolves every model name and group reference. The returned network
// is not finalized.
func (d Document) Build() (*model.Network, error) {
	lib, err := d.Library()
	if err != nil {
		return nil, err
	}
	net := model.NewNetwork(d.Name)
	if d.DT > 0 {
		net.DT = d.DT
	}
	if d.Precision != "" {
		net.Precision = d.Precision
	}
	if d.TimePrecision != "" {
		net.TimePrecision = d.TimePrecision
	}
	net.MergePostsynapticModels = d.MergePostsynapticModels

	for _, spec := range d.NeuronGroups {
		ng, err := buildNeuronGroup(lib, spec)
		if err != nil {
			return nil, fmt.Errorf("neuron group %s: %w", spec.Name, err)
		}
		if err := net.AddNeuronGroup(ng); err != nil {
			return nil, err
		}
	}
	for _, spec := range d.CurrentSources {
		cs, err := buildCurrentSource(lib, net, spec)
		if err != nil {
			return nil, fmt.Errorf("current source %s: %w", spec.Name, err)
		}
		if err := net.AddCurrentSource(cs); err != nil {
			return nil, err
		}
	}
	for _, spec := range d.SynapseGroups {
		sg, err := buildSynapseGroup(lib, net, spec)
		if err != nil {
			return nil, fmt.Errorf("synapse group %s: %w", spec.Name, err)
		}
		if err := net.AddSynapseGroup(sg); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func buildNeuronGroup(lib *model.Library, spec NeuronGroup) (*model.NeuronGroup, error) {
	m, err := lookup(lib.Neurons, spec.Model)
	if err != nil {
		return nil, err
	}
	params, err := orderParams(m.ParamNames, spec.Params)
	if err != nil {
		return nil, err
	}
	inits, err := varInits(lib, m.Vars, spec.Vars)
	if err != nil {
		return nil, err
	}
	return &model.NeuronGroup{
		Name:              spec.Name,
		NumNeurons:        spec.Size,
		Model:             m,
		Params:            params,
		VarInitialisers:   inits,
		SpikeTimeRequired: spec.SpikeTimeRequired,
	}, nil
}

func buildCurrentSource(lib *model.Library, net *model.Network, spec CurrentSource) (*model.CurrentSource, error) {
	m, err := lookup(lib.CurrentSource, spec.Model)
	if err != nil {
		return nil, err
	}
	target, ok := net.NeuronGroup(spec.Target)
	if !ok {
		return nil, fmt.Errorf("%w: target %q", model.ErrUnknownGroup, spec.Target)
	}
	params, err := orderParams(m.ParamNames, spec.Params)
	if err != nil {
		return nil, err
	}
	inits, err := varInits(lib, m.Vars, spec.Vars)
	if err != nil {
		return nil, err
	}
	return &model.CurrentSource{
		Name:            spec.Name,
		Model:           m,
		Params:          params,
		VarInitialisers: inits,
		Target:          target,
	}, nil
}

func buildSynapseGroup(lib *model.Library, net *model.Network, spec SynapseGroup) (*model.SynapseGroup, error) {
	matrix, err := model.ParseMatrixType(spec.MatrixType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	src, ok := net.NeuronGroup(spec.Src)
	if !ok {
		return nil, fmt.Errorf("%w: source %q", model.ErrUnknownGroup, spec.Src)
	}
	trg, ok := net.NeuronGroup(spec.Trg)
	if !ok {
		return nil, fmt.Errorf("%w: target %q", model.ErrUnknownGroup, spec.Trg)
	}

	wum, err := lookup(lib.WeightUpdates, spec.WeightUpdate.Model)
	if err != nil {
		return nil, err
	}
	psm, err := lookup(lib.Postsynaptic, spec.Postsynaptic.Model)
	if err != nil {
		return nil, err
	}

	sg := &model.SynapseGroup{
		Name:                       spec.Name,
		MatrixType:                 matrix,
		DelaySteps:                 spec.DelaySteps,
		BackPropDelaySteps:         spec.BackPropDelaySteps,
		MaxDendriticDelayTimesteps: spec.MaxDendriticDelayTimesteps,
		MaxConnections:             spec.MaxConnections,
		MaxSourceConnections:       spec.MaxSourceConnections,
		SparseIndType:              spec.SparseIndType,
		Src:                        src,
		Trg:                        trg,
		WUModel:                    wum,
		PSModel:                    psm,
	}
	if sg.WUParams, err = orderParams(wum.ParamNames, spec.WeightUpdate.Params); err != nil {
		return nil, fmt.Errorf("weight update: %w", err)
	}
	if sg.WUVarInitialisers, err = varInits(lib, wum.Vars, spec.WeightUpdate.Vars); err != nil {
		return nil, fmt.Errorf("weight update: %w", err)
	}
	if sg.WUPreVarInitialisers, err = varInits(lib, wum.PreVars, spec.WeightUpdate.PreVars); err != nil {
		return nil, fmt.Errorf("weight update pre vars: %w", err)
	}
	if sg.WUPostVarInitialisers, err = varInits(lib, wum.PostVars, spec.WeightUpdate.PostVars); err != nil {
		return nil, fmt.Errorf("weight update post vars: %w", err)
	}
	if sg.PSParams, err = orderParams(psm.ParamNames, spec.Postsynaptic.Params); err != nil {
		return nil, fmt.Errorf("postsynaptic: %w", err)
	}
	if sg.PSVarInitialisers, err = varInits(lib, psm.Vars, spec.Postsynaptic.Vars); err != nil {
		return nil, fmt.Errorf("postsynaptic: %w", err)
	}

	if c := spec.Connectivity; c != nil {
		snippet, err := lookup(lib.Connectivity, c.Snippet)
		if err != nil {
			return nil, err
		}
		params, err := orderParams(snippet.ParamNames, c.Params)
		if err != nil {
			return nil, fmt.Errorf("connectivity: %w", err)
		}
		sg.ConnectivityInitialiser = model.ConnectivityInit{Snippet: snippet, Params: params}
	} else if matrix.Has(model.ConnectivityProcedural) {
		return nil, fmt.Errorf("%w: procedural connectivity needs a connectivity snippet", ErrInvalid)
	}

	if spec.WeightSharingMaster != "" {
		master, ok := net.SynapseGroup(spec.WeightSharingMaster)
		if !ok {
			return nil, fmt.Errorf("%w: weight sharing master %q", model.ErrUnknownGroup, spec.WeightSharingMaster)
		}
		sg.WeightSharingMaster = master
	}
	return sg, nil
}

func lookup[T any](r *model.Registry[T], name string) (*T, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	return def, nil
}

// orderParams lays named values out in declaration order. Every declared
// parameter must be given and no other.
func orderParams(names []string, values map[string]float64) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing param %s", ErrInvalid, name)
		}
		out[i] = v
	}
	if len(values) != len(names) {
		for name := range values {
			if !contains(names, name) {
				return nil, fmt.Errorf("%w: unknown param %s", ErrInvalid, name)
			}
		}
	}
	return out, nil
}

// varInits resolves one initialiser per declared variable. Variables left
// out are Uninitialised.
func varInits(lib *model.Library, vars []model.Var, specs map[string]VarInit) ([]model.VarInit, error) {
	out := make([]model.VarInit, len(vars))
	for i, v := range vars {
		spec, ok := specs[v.Name]
		if !ok {
			spec = VarInit{Snippet: "Uninitialised"}
		}
		snippet, err := lookup(lib.InitVars, spec.Snippet)
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", v.Name, err)
		}
		params, err := orderParams(snippet.ParamNames, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", v.Name, err)
		}
		out[i] = model.VarInit{Snippet: snippet, Params: params}
	}
	for name := range specs {
		if !containsVar(vars, name) {
			return nil, fmt.Errorf("%w: unknown var %s", ErrInvalid, name)
		}
	}
	return out, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func containsVar(vars []model.Var, name string) bool {
	for _, v := range vars {
		if v.Name == name {
			return true
		}
	}
	return false
}
