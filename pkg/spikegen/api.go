package spikegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"spikegen/internal/compiler"
	"spikegen/internal/model"
	"spikegen/internal/netspec"
	"spikegen/internal/storage"
)

const defaultDBPath = "spikegen.db"

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	// Logger receives compile diagnostics. Nil discards them.
	Logger *log.Logger
}

type Client struct {
	store  storage.Store
	logger *log.Logger
}

type GenerateRequest struct {
	// NetworkPath names a JSON network description. NetworkJSON is used
	// when it is empty.
	NetworkPath string
	NetworkJSON []byte

	Backend string
	Workers int
	Package string
	// OutPath receives the generated source when set.
	OutPath string

	ArrayPrefix         string
	ScalarPrefix        string
	NoPopulationRNG     bool
	NoPostsynapticRemap bool
	NoSynRemap          bool
}

type GenerateSummary struct {
	RunID        string
	Network      string
	Backend      string
	MergedGroups int
	Fields       int
	Buffers      int
	StructBytes  uint64
	SourceBytes  int
	OutPath      string
	// Source is the generated source when no OutPath was given.
	Source []byte
}

type ModelItem struct {
	Kind string
	Name string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("init %s store: %w", storeKind, err)
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Generate compiles one network description, records the run and its
// layouts, and writes the source to OutPath if one is given.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	net, err := loadNetwork(req)
	if err != nil {
		return GenerateSummary{}, err
	}

	opts := compiler.DefaultOptions()
	opts.Logger = c.logger
	if req.Backend != "" {
		opts.Backend = req.Backend
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if req.Package != "" {
		opts.Package = req.Package
	}
	if req.ArrayPrefix != "" {
		opts.ArrayPrefix = req.ArrayPrefix
	}
	if req.ScalarPrefix != "" {
		opts.ScalarPrefix = req.ScalarPrefix
	}
	opts.PopulationRNG = !req.NoPopulationRNG
	opts.PostsynapticRemap = !req.NoPostsynapticRemap
	opts.SynRemap = !req.NoSynRemap

	res, err := compiler.Compile(ctx, net, opts)
	if err != nil {
		return GenerateSummary{}, err
	}

	run := res.Run()
	if err := c.store.SaveRun(ctx, run); err != nil {
		return GenerateSummary{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := c.store.SaveLayouts(ctx, run.ID, res.Layouts()); err != nil {
		return GenerateSummary{}, fmt.Errorf("save layouts %s: %w", run.ID, err)
	}

	summary := GenerateSummary{
		RunID:        run.ID,
		Network:      run.Network,
		Backend:      run.Backend,
		MergedGroups: run.MergedGroups,
		Fields:       run.Fields,
		Buffers:      run.Buffers,
		StructBytes:  run.StructBytes,
		SourceBytes:  len(res.Source),
	}
	if req.OutPath == "" {
		summary.Source = res.Source
		return summary, nil
	}
	if dir := filepath.Dir(req.OutPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return GenerateSummary{}, err
		}
	}
	if err := os.WriteFile(req.OutPath, res.Source, 0o644); err != nil {
		return GenerateSummary{}, err
	}
	summary.OutPath = filepath.Clean(req.OutPath)
	return summary, nil
}

func loadNetwork(req GenerateRequest) (*model.Network, error) {
	switch {
	case req.NetworkPath != "":
		return netspec.LoadFile(req.NetworkPath)
	case len(req.NetworkJSON) > 0:
		return netspec.Load(bytes.NewReader(req.NetworkJSON))
	default:
		return nil, errors.New("generate requires a network path or network json")
	}
}

// Runs lists recorded runs, most recent first. limit <= 0 means 20.
func (c *Client) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.store.ListRuns(ctx, limit)
}

// Layouts returns the merged struct layouts of a run. An empty runID picks
// the latest run.
func (c *Client) Layouts(ctx context.Context, runID string) ([]model.LayoutRecord, error) {
	if runID == "" {
		runs, err := c.store.ListRuns(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
		}
		runID = runs[0].ID
	}
	layouts, ok, err := c.store.ListLayouts(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return layouts, nil
}

func (c *Client) Layout(ctx context.Context, runID, typeName string) (model.LayoutRecord, error) {
	l, ok, err := c.store.GetLayout(ctx, runID, typeName)
	if err != nil {
		return model.LayoutRecord{}, err
	}
	if !ok {
		return model.LayoutRecord{}, fmt.Errorf("%w: %s has no %s", ErrRunNotFound, runID, typeName)
	}
	return l, nil
}

// Models lists the built-in model library.
func Models() []ModelItem {
	lib := model.Builtins
	var out []ModelItem
	add := func(kind string, names []string) {
		for _, n := range names {
			out = append(out, ModelItem{Kind: kind, Name: n})
		}
	}
	add("neuron", lib.Neurons.Names())
	add("weight_update", lib.WeightUpdates.Names())
	add("postsynaptic", lib.Postsynaptic.Names())
	add("current_source", lib.CurrentSource.Names())
	add("var_init", lib.InitVars.Names())
	add("connectivity", lib.Connectivity.Names())
	return out
}
