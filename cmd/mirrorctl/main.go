package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MatthiasLenz/TechniteLogic/internal/catalog"
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/logging"
	"github.com/MatthiasLenz/TechniteLogic/internal/mirror"
	"github.com/MatthiasLenz/TechniteLogic/internal/persistence/ledger"
	"github.com/MatthiasLenz/TechniteLogic/internal/persistence/snapshot"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

var errUsage = errors.New("usage: mirrorctl inspect [-content NAME] <snapshot> | rounds [-limit N] <ledger> | transitions [-limit N] <ledger>")

func main() {
	logging.ConfigureRuntime("mirrorctl")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mirrorctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "inspect":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		content := fs.String("content", "", "only count cells of this content type")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errUsage
		}
		return inspect(fs.Arg(0), *content, out)
	case "rounds", "transitions":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		limit := fs.Int("limit", 0, "max rows (0 = all)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errUsage
		}
		if args[0] == "rounds" {
			return listRounds(fs.Arg(0), *limit, out)
		}
		return listTransitions(fs.Arg(0), *limit, out)
	default:
		return errUsage
	}
}

func inspect(path, content string, out io.Writer) error {
	snap, err := snapshot.Read(path)
	if err != nil {
		return err
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	only := -1
	if content != "" {
		id, ok := cat.Lookup(content)
		if !ok {
			return fmt.Errorf("unknown content type %q", content)
		}
		only = int(id)
	}

	m := mirror.New(cat)
	if err := m.Restore(snap.Mirror); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	st := m.Status()
	h := snap.Header

	var (
		cfg    grid.Config
		hasCfg bool
		extent float64
		counts = make(map[uint8]int)
	)
	m.Inspect(func(g *grid.Grid, _ *technite.Collection) {
		cfg, hasCfg = g.Config()
		for i := 0; i < g.NodeCount(); i++ {
			if c, ok := g.Cell(i); ok {
				counts[c.Content]++
			}
			if top, ok := g.LayerPosition(i, int(cfg.NumLayersPerStack)-1); ok {
				extent = math.Max(extent, top.Length())
			}
		}
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "client\t%s\n", h.ClientID)
	fmt.Fprintf(tw, "taken_at\t%s\n", h.TakenAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "state\t%s\n", st.State)
	fmt.Fprintf(tw, "nodes\t%d\n", st.Nodes)
	fmt.Fprintf(tw, "units\t%d\n", st.Units)
	fmt.Fprintf(tw, "stale_units\t%d\n", st.StaleUnits)
	fmt.Fprintf(tw, "rounds\t%d\n", st.Rounds)
	fmt.Fprintf(tw, "deltas\t%d\n", st.Deltas)
	if hasCfg {
		fmt.Fprintf(tw, "layers\t%d x %g\n", cfg.NumLayersPerStack, cfg.HeightPerLayer)
		fmt.Fprintf(tw, "extent\t%.2f\n", extent)
	}
	if st.HasWorld {
		fmt.Fprintf(tw, "core\t%s\n", cat.Name(st.CoreContent))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(counts) == 0 && only < 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTENT\tCELLS")
	for id := 0; id < 256; id++ {
		n := counts[uint8(id)]
		if id == only || (only < 0 && n > 0) {
			fmt.Fprintf(tw, "%s\t%d\n", cat.Name(uint8(id)), n)
		}
	}
	return tw.Flush()
}

func listRounds(path string, limit int, out io.Writer) error {
	db, err := ledger.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := ledger.QueryRounds(context.Background(), db, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUND\tUNITS\tCHUNKS\tSTARTED\tELAPSED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", r.Round, r.Units, r.Chunks, r.Started.UTC().Format(time.RFC3339), r.Finished.Sub(r.Started))
	}
	return tw.Flush()
}

func listTransitions(path string, limit int, out io.Writer) error {
	db, err := ledger.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := ledger.QueryTransitions(context.Background(), db, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tFROM\tTO\tAT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Seq, r.From, r.To, r.At.UTC().Format(time.RFC3339Nano))
	}
	return tw.Flush()
}
