// Package compiler turns a network description into merged struct layouts
// and target source.
package compiler

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spikegen/internal/codegen"
	"spikegen/internal/emit"
	"spikegen/internal/grouping"
	"spikegen/internal/model"
)

type Options struct {
	Backend string
	// Workers bounds the goroutines building and emitting merged groups.
	Workers int
	Logger  *log.Logger

	ArrayPrefix  string
	ScalarPrefix string
	// Package names the generated package for the go backend.
	Package string

	PopulationRNG     bool
	PostsynapticRemap bool
	SynRemap          bool

	// Now stamps the run. Tests pin it.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Backend:           "c",
		Workers:           runtime.GOMAXPROCS(0),
		Logger:            log.New(io.Discard, "", 0),
		ArrayPrefix:       "d_",
		ScalarPrefix:      "d_",
		Package:           "kernels",
		PopulationRNG:     true,
		PostsynapticRemap: true,
		SynRemap:          true,
		Now:               time.Now,
	}
}

// Snippet is one rendered index expression or statement block of a merged
// group, for the kernel backend to splice in.
type Snippet struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type Result struct {
	RunID     string
	Network   string
	Backend   string
	CreatedAt time.Time

	Groups    []codegen.Merged
	Emissions []codegen.Emission
	Buffers   []emit.Buffer
	// Snippets holds per-struct index expressions keyed by type name.
	Snippets map[string][]Snippet
	Source   []byte

	naming    emit.Naming
	precision string
}

// Compile finalizes net, partitions it, builds every merged group and emits
// target source. A broken merge precondition aborts the whole compile with
// an error matching codegen.ErrInternal.
func Compile(ctx context.Context, net *model.Network, opts Options) (Result, error) {
	opts = withDefaults(opts)
	logger := opts.Logger

	if err := net.Finalize(); err != nil {
		return Result{}, fmt.Errorf("finalize %s: %w", net.Name, err)
	}

	naming := emit.Naming{ArrayPrefix: opts.ArrayPrefix, ScalarPrefix: opts.ScalarPrefix}
	buffers := emit.NewBufferTable(naming)
	backend, err := emit.New(opts.Backend, emit.Config{
		Naming:    naming,
		Buffers:   buffers,
		Precision: net.Precision,
		Package:   opts.Package,
	})
	if err != nil {
		return Result{}, err
	}

	plan := grouping.Build(net, grouping.Options{
		PostsynapticRemap: opts.PostsynapticRemap,
		SynRemap:          opts.SynRemap,
	})
	jobs := planJobs(plan)
	logger.Printf("network %s: %d neuron groups, %d synapse groups, %d merged groups",
		net.Name, len(net.NeuronGroups), len(net.SynapseGroups), len(jobs))

	bopts := codegen.BuildOptions{
		Precision:         net.Precision,
		TimePrecision:     net.TimePrecision,
		ArrayPrefix:       opts.ArrayPrefix,
		PopulationRNG:     opts.PopulationRNG,
		PostsynapticRemap: opts.PostsynapticRemap,
		SynRemap:          opts.SynRemap,
	}
	groups := make([]codegen.Merged, len(jobs))
	if err := forEach(ctx, opts.Workers, len(jobs), func(i int) error {
		groups[i] = jobs[i].build(bopts)
		return nil
	}); err != nil {
		return Result{}, err
	}

	// Handles are assigned in plan order so generated source is stable.
	for _, g := range groups {
		buffers.Register(g.Fields())
		logMerged(logger, g)
	}

	emissions := make([]codegen.Emission, len(groups))
	snippets := make([][]Snippet, len(groups))
	if err := forEach(ctx, opts.Workers, len(groups), func(i int) error {
		em, err := groups[i].Generate(backend)
		if err != nil {
			return fmt.Errorf("emit %s: %w", groups[i].TypeName(), err)
		}
		emissions[i] = em
		snippets[i] = indexSnippets(backend, groups[i])
		return nil
	}); err != nil {
		return Result{}, err
	}

	source, err := backend.Assemble(emissions)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:     uuid.NewString(),
		Network:   net.Name,
		Backend:   backend.Name(),
		CreatedAt: opts.Now().UTC(),
		Groups:    groups,
		Emissions: emissions,
		Buffers:   buffers.Buffers(),
		Snippets:  make(map[string][]Snippet),
		Source:    source,
		naming:    naming,
		precision: net.Precision,
	}
	for i, g := range groups {
		if len(snippets[i]) > 0 {
			res.Snippets[g.TypeName()] = snippets[i]
		}
	}
	logger.Printf("run %s: %d buffers, %d bytes of source", res.RunID, len(res.Buffers), len(source))
	return res, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Backend == "" {
		opts.Backend = def.Backend
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.Package == "" {
		opts.Package = def.Package
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return opts
}

// forEach runs fn for 0..n-1 on at most workers goroutines. Internal
// consistency panics raised by the merging engine become errors; the first
// error cancels the remaining work.
func forEach(ctx context.Context, workers, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() (err error) {
			defer codegen.Recover(&err)
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}

func logMerged(logger *log.Logger, g codegen.Merged) {
	logger.Printf("%s: %d members [%s], %d fields", g.TypeName(), len(g.Members()), strings.Join(g.Members(), " "), len(g.Fields()))
	for _, f := range g.Fields() {
		if f.Kind == codegen.FieldScalar {
			logger.Printf("  %s.%s is heterogeneous", g.TypeName(), f.Name)
		}
	}
}

// indexSnippets renders the delay and reset expressions a merged group
// offers for its role.
func indexSnippets(backend emit.Backend, g codegen.Merged) []Snippet {
	var out []Snippet
	switch m := g.(type) {
	case *codegen.NeuronGroupMerged:
		arch := m.Archetype()
		switch m.Role() {
		case codegen.RoleNeuronSpikeQueueUpdate:
			out = append(out, Snippet{Name: "reset", Code: backend.ResetStatements(m.ResetOps())})
		case codegen.RoleNeuronUpdate:
			if arch.IsDelayRequired() {
				out = append(out,
					Snippet{Name: "currentQueueOffset", Code: backend.Expr(m.CurrentQueueOffset())},
					Snippet{Name: "prevQueueOffset", Code: backend.Expr(m.PrevQueueOffset())})
			}
		}
	case *codegen.SynapseGroupMerged:
		arch := m.Archetype()
		switch m.Role() {
		case codegen.RolePresynapticUpdate, codegen.RoleSynapseDynamics:
			if m.Role() == codegen.RolePresynapticUpdate && arch.Src.IsDelayRequired() {
				out = append(out, Snippet{Name: "preDelaySlot", Code: backend.Expr(m.PresynapticAxonalDelaySlot())})
			}
			if arch.IsDendriticDelayRequired() {
				out = append(out, Snippet{Name: "denDelayOffset", Code: backend.Expr(m.DendriticDelayOffset(nil))})
			}
		case codegen.RolePostsynapticUpdate:
			if arch.Trg.IsDelayRequired() {
				out = append(out, Snippet{Name: "postDelaySlot", Code: backend.Expr(m.PostsynapticBackPropDelaySlot())})
			}
		}
	}
	return out
}
