// Command rank prints a category ranking from a SQLite output of normalize.
//
// Usage:
//
//	go run ./cmd/rank -db out/storm.db -measure deaths -top 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/storm-data-normalizer/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the SQLite database written by normalize")
	runID := fs.String("run", "", "run ID to rank (default: latest run)")
	measure := fs.String("measure", string(domain.MeasureDamages), "damages, deaths or injuries")
	top := fs.Int("top", 10, "number of categories to print, 0 for all")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("missing required flag: -db")
	}
	m, err := domain.ParseMeasure(*measure)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id := *runID
	if id == "" {
		if id, err = store.LatestRunID(ctx); err != nil {
			return err
		}
	}
	report, err := store.Report(ctx, id)
	if err != nil {
		return err
	}

	ranked := domain.Rank(report.Categories, m, *top)
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID     string                     `json:"run_id"`
			Reference domain.YearMonth           `json:"reference"`
			Measure   domain.Measure             `json:"measure"`
			Rankings  []domain.CategoryAggregate `json:"rankings"`
		}{report.RunID, report.Reference, m, ranked})
	}

	fmt.Fprintf(out, "run %s, reference %s, generated %s\n",
		report.RunID, report.Reference, report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "median yearly %s\n\n", m)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\tcategory\tmedian\tmean\tyears\tevents\t")
	for i, c := range ranked {
		median, mean := m.Stats(c)
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%d\t%d\t\n", i+1, c.Category, median, mean, c.Years, c.Events)
	}
	return tw.Flush()
}
