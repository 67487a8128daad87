package model

import "strings"

// Var is a model state variable.
type Var struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EGP is an extra global parameter: a named buffer or scalar shared by name
// rather than stored per neuron or per synapse.
type EGP struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IsPointer reports whether the EGP is an array handle rather than a scalar.
func (e EGP) IsPointer() bool {
	return IsPointerType(e.Type)
}

// DerivedParam computes a value once from the parameter vector and the
// simulation timestep. Expr is evaluated with every parameter name and DT in
// scope.
type DerivedParam struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Snippet is the part shared by every model and initialiser.
type Snippet struct {
	Name              string         `json:"name"`
	ParamNames        []string       `json:"params,omitempty"`
	DerivedParams     []DerivedParam `json:"derivedParams,omitempty"`
	ExtraGlobalParams []EGP          `json:"extraGlobalParams,omitempty"`
}

func (s *Snippet) DerivedParamNames() []string {
	names := make([]string, len(s.DerivedParams))
	for i, dp := range s.DerivedParams {
		names[i] = dp.Name
	}
	return names
}

type NeuronModel struct {
	Snippet
	Vars                   []Var  `json:"vars,omitempty"`
	SimCode                string `json:"simCode,omitempty"`
	ThresholdConditionCode string `json:"thresholdConditionCode,omitempty"`
	ResetCode              string `json:"resetCode,omitempty"`
}

// Code returns every code string a neuron update can substitute parameters into.
func (m *NeuronModel) Code() []string {
	return []string{m.SimCode, m.ThresholdConditionCode, m.ResetCode}
}

type WeightUpdateModel struct {
	Snippet
	Vars                        []Var  `json:"vars,omitempty"`
	PreVars                     []Var  `json:"preVars,omitempty"`
	PostVars                    []Var  `json:"postVars,omitempty"`
	SimCode                     string `json:"simCode,omitempty"`
	EventCode                   string `json:"eventCode,omitempty"`
	EventThresholdConditionCode string `json:"eventThresholdConditionCode,omitempty"`
	LearnPostCode               string `json:"learnPostCode,omitempty"`
	SynapseDynamicsCode         string `json:"synapseDynamicsCode,omitempty"`
	PreSpikeCode                string `json:"preSpikeCode,omitempty"`
	PostSpikeCode               string `json:"postSpikeCode,omitempty"`
	PreSpikeTimeRequired        bool   `json:"preSpikeTimeRequired,omitempty"`
	PostSpikeTimeRequired       bool   `json:"postSpikeTimeRequired,omitempty"`
}

// PresynapticCode is the code run when a presynaptic spike or spike-like event
// is processed.
func (m *WeightUpdateModel) PresynapticCode() string {
	return m.SimCode + m.EventCode + m.EventThresholdConditionCode
}

type PostsynapticModel struct {
	Snippet
	Vars           []Var  `json:"vars,omitempty"`
	ApplyInputCode string `json:"applyInputCode,omitempty"`
	DecayCode      string `json:"decayCode,omitempty"`
}

func (m *PostsynapticModel) Code() []string {
	return []string{m.ApplyInputCode, m.DecayCode}
}

type CurrentSourceModel struct {
	Snippet
	Vars          []Var  `json:"vars,omitempty"`
	InjectionCode string `json:"injectionCode,omitempty"`
}

type InitVarSnippet struct {
	Snippet
	Code string `json:"code,omitempty"`
}

type InitSparseConnectivitySnippet struct {
	Snippet
	RowBuildCode string `json:"rowBuildCode,omitempty"`
	HostInitCode string `json:"hostInitCode,omitempty"`
}

// Token returns the substitution token form of name as it appears in code.
func Token(name string) string {
	return "$(" + name + ")"
}

// References reports whether any of codes contains the substitution token for name.
func References(codes []string, name string) bool {
	token := Token(name)
	for _, c := range codes {
		if strings.Contains(c, token) {
			return true
		}
	}
	return false
}

func IsPointerType(t string) bool {
	return strings.HasSuffix(strings.TrimSpace(t), "*")
}
