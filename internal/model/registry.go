package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrModelExists   = errors.New("model already registered")
	ErrModelNotFound = errors.New("model not found")
)

// Registry maps names to model definitions. A registry created with a parent
// falls back to it on lookup, so per-network definitions can extend the
// built-in set without mutating it.
type Registry[T any] struct {
	kind   string
	parent *Registry[T]

	mu sync.RWMutex
	m  map[string]*T
}

func newRegistry[T any](kind string, parent *Registry[T]) *Registry[T] {
	return &Registry[T]{kind: kind, parent: parent, m: make(map[string]*T)}
}

func (r *Registry[T]) Register(name string, def *T) error {
	if name == "" {
		return fmt.Errorf("%s name is required", r.kind)
	}
	if def == nil {
		return fmt.Errorf("%s %s: definition is required", r.kind, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %s %s", ErrModelExists, r.kind, name)
	}
	r.m[name] = def
	return nil
}

func (r *Registry[T]) MustRegister(name string, def *T) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

func (r *Registry[T]) Lookup(name string) (*T, error) {
	r.mu.RLock()
	def, ok := r.m[name]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}
	if r.parent != nil {
		return r.parent.Lookup(name)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrModelNotFound, r.kind, name)
}

// Names lists every name visible through the registry, sorted.
func (r *Registry[T]) Names() []string {
	seen := make(map[string]struct{})
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		for name := range reg.m {
			seen[name] = struct{}{}
		}
		reg.mu.RUnlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Library struct {
	Neurons       *Registry[NeuronModel]
	WeightUpdates *Registry[WeightUpdateModel]
	Postsynaptic  *Registry[PostsynapticModel]
	CurrentSource *Registry[CurrentSourceModel]
	InitVars      *Registry[InitVarSnippet]
	Connectivity  *Registry[InitSparseConnectivitySnippet]
}

func newLibrary(parent *Library) *Library {
	if parent == nil {
		parent = &Library{}
	}
	return &Library{
		Neurons:       newRegistry("neuron model", parent.Neurons),
		WeightUpdates: newRegistry("weight update model", parent.WeightUpdates),
		Postsynaptic:  newRegistry("postsynaptic model", parent.Postsynaptic),
		CurrentSource: newRegistry("current source model", parent.CurrentSource),
		InitVars:      newRegistry("var init snippet", parent.InitVars),
		Connectivity:  newRegistry("connectivity init snippet", parent.Connectivity),
	}
}

// Builtins holds the standard model library. It is populated at init and
// should be treated as read-only.
var Builtins = newLibrary(nil)

// NewLibrary returns an empty library layered over Builtins.
func NewLibrary() *Library {
	return newLibrary(Builtins)
}
