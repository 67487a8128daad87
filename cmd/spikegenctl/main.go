package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"spikegen/internal/storage"
	api "spikegen/pkg/spikegen"
)

const defaultDBPath = "spikegen.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "layouts":
		return runLayouts(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", defaultDBPath, "sqlite database path"),
	}
}

func (s storeFlags) open(ctx context.Context, logger *log.Logger) (*api.Client, error) {
	return api.New(ctx, api.Options{StoreKind: *s.kind, DBPath: *s.dbPath, Logger: logger})
}

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	store := addStoreFlags(fs)
	network := fs.String("network", "", "network description (JSON)")
	out := fs.String("out", "", "write generated source here instead of stdout")
	backend := fs.String("backend", "c", "emitter backend: c|go")
	pkg := fs.String("package", "kernels", "package name for the go backend")
	workers := fs.Int("workers", 0, "parallel build workers (0 = GOMAXPROCS)")
	arrayPrefix := fs.String("array-prefix", "d_", "prefix of device array symbols")
	scalarPrefix := fs.String("scalar-prefix", "d_", "prefix of device scalar symbols")
	noRNG := fs.Bool("no-population-rng", false, "do not give neuron groups a per-neuron RNG field")
	noPSRemap := fs.Bool("no-ps-remap", false, "disable postsynaptic remapping")
	noSynRemap := fs.Bool("no-syn-remap", false, "disable synapse remapping")
	verbose := fs.Bool("verbose", false, "log merged group decisions to stderr")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *network == "" {
		return errors.New("generate requires --network")
	}
	if *workers < 0 {
		return errors.New("workers must be >= 0")
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "[DEBUG] ", 0)
	}
	client, err := store.open(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Generate(ctx, api.GenerateRequest{
		NetworkPath:         *network,
		Backend:             *backend,
		Workers:             *workers,
		Package:             *pkg,
		OutPath:             *out,
		ArrayPrefix:         *arrayPrefix,
		ScalarPrefix:        *scalarPrefix,
		NoPopulationRNG:     *noRNG,
		NoPostsynapticRemap: *noPSRemap,
		NoSynRemap:          *noSynRemap,
	})
	if err != nil {
		return err
	}

	// Without --out the source owns stdout and the summary moves to stderr.
	w := io.Writer(os.Stdout)
	if *out == "" {
		if _, err := os.Stdout.Write(summary.Source); err != nil {
			return err
		}
		w = os.Stderr
	}
	if *jsonOut {
		type generateItem struct {
			RunID        string `json:"run_id"`
			Network      string `json:"network"`
			Backend      string `json:"backend"`
			MergedGroups int    `json:"merged_groups"`
			Fields       int    `json:"fields"`
			Buffers      int    `json:"buffers"`
			StructBytes  uint64 `json:"struct_bytes"`
			SourceBytes  int    `json:"source_bytes"`
			OutPath      string `json:"out_path,omitempty"`
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(generateItem{
			RunID:        summary.RunID,
			Network:      summary.Network,
			Backend:      summary.Backend,
			MergedGroups: summary.MergedGroups,
			Fields:       summary.Fields,
			Buffers:      summary.Buffers,
			StructBytes:  summary.StructBytes,
			SourceBytes:  summary.SourceBytes,
			OutPath:      summary.OutPath,
		})
	}
	fmt.Fprintf(w, "run_id=%s network=%s backend=%s merged_groups=%d fields=%s buffers=%s struct_bytes=%s source=%s\n",
		summary.RunID,
		summary.Network,
		summary.Backend,
		summary.MergedGroups,
		humanize.Comma(int64(summary.Fields)),
		humanize.Comma(int64(summary.Buffers)),
		humanize.Bytes(summary.StructBytes),
		humanize.Bytes(uint64(summary.SourceBytes)),
	)
	if summary.OutPath != "" {
		fmt.Fprintf(w, "wrote %s\n", summary.OutPath)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	store := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := store.open(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"),
			r.Network,
			r.Backend,
			strconv.Itoa(r.MergedGroups),
			humanize.Comma(int64(r.Fields)),
			humanize.Comma(int64(r.Buffers)),
			humanize.Bytes(r.StructBytes),
		})
	}
	return printTable(os.Stdout, []string{"RUN", "CREATED", "NETWORK", "BACKEND", "GROUPS", "FIELDS", "BUFFERS", "STRUCTS"}, rows)
}

func runLayouts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("layouts", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run to inspect (default latest)")
	typeName := fs.String("type", "", "print the declaration of one merged struct")
	jsonOut := fs.Bool("json", false, "emit layouts as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.open(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	layouts, err := client.Layouts(ctx, *runID)
	if err != nil {
		return err
	}
	if *typeName != "" {
		for _, l := range layouts {
			if l.TypeName != *typeName {
				continue
			}
			if *jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(l)
			}
			fmt.Print(l.Declaration)
			return nil
		}
		return fmt.Errorf("%w: no merged struct %s", api.ErrRunNotFound, *typeName)
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(layouts)
	}

	rows := make([][]string, 0, len(layouts))
	for _, l := range layouts {
		heterogeneous := 0
		for _, f := range l.Fields {
			if f.Kind == "Scalar" {
				heterogeneous++
			}
		}
		rows = append(rows, []string{
			l.TypeName,
			l.Role,
			strings.Join(l.Members, ","),
			strconv.Itoa(len(l.Fields)),
			strconv.Itoa(heterogeneous),
			strconv.FormatBool(l.HostOnly),
		})
	}
	return printTable(os.Stdout, []string{"TYPE", "ROLE", "MEMBERS", "FIELDS", "HETEROGENEOUS", "HOST_ONLY"}, rows)
}

func runModels(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	kind := fs.String("kind", "", "only list one kind, e.g. neuron or connectivity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rows [][]string
	for _, m := range api.Models() {
		if *kind != "" && m.Kind != *kind {
			continue
		}
		rows = append(rows, []string{m.Kind, m.Name})
	}
	if len(rows) == 0 {
		return fmt.Errorf("no models of kind %q", *kind)
	}
	return printTable(os.Stdout, []string{"KIND", "NAME"}, rows)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: spikegenctl <generate|runs|layouts|models> [flags]", msg)
}
