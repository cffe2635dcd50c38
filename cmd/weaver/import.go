package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/alvmarrod/kg-weaver/internal/backend"
	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
	"github.com/alvmarrod/kg-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Add triples from files or a graph pattern to the stored dataset",
		Long: "Import appends triples to the dataset in db_path. Files are read as CSV (subject, predicate, object) " +
			"or N-Triples; with --pattern the rows of a SPARQL graph pattern are fetched page by page.",
		RunE: runImport,
	}

	cmd.Flags().String("format", "", "file format: csv or ntriples (default: from the file extension)")
	cmd.Flags().String("separator", ",", "CSV field separator")
	cmd.Flags().String("pattern", "", "graph pattern binding ?subject ?predicate ?object to fetch from the endpoint")
	cmd.Flags().Int("batch", 1000, "rows per page when fetching a graph pattern")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pattern, _ := cmd.Flags().GetString("pattern")
	if pattern == "" && len(args) == 0 {
		return fmt.Errorf("nothing to import: pass files or --pattern")
	}

	b, err := backend.Lookup(cfg.Backend, cfg.BackendOptions())
	if err != nil {
		return err
	}

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ds := dataset.New(dataset.WithValidator(b.Validator), dataset.WithSplitSeed(cfg.SplitSeed))
	existing, err := store.Load()
	if err != nil {
		return err
	}
	if err := existing.Apply(ds); err != nil {
		return fmt.Errorf("stored dataset is inconsistent: %w", err)
	}
	before := ds.Len()

	for _, path := range args {
		if err := importFile(cmd, ds, path); err != nil {
			return err
		}
	}

	if pattern != "" {
		batch, _ := cmd.Flags().GetInt("batch")
		client, err := sparql.NewClient(sparql.ClientConfig{
			Endpoint:     cfg.Endpoint(b),
			Timeout:      cfg.RequestTimeout(),
			UserAgent:    cfg.UserAgent,
			MaxBodyBytes: cfg.MaxBodyBytes,
		})
		if err != nil {
			return err
		}

		stats, err := crawler.LoadGraphPattern(cmd.Context(), client, ds, pattern, batch, func(page, pages int) {
			logrus.Debugf("Fetched page %d of %d", page, pages)
		})
		if err != nil {
			return err
		}
		logrus.Infof("Graph pattern: %d rows in %d pages, %d accepted, %d skipped",
			stats.Total, stats.Pages, stats.Accepted, stats.Skipped)
	}

	snap, err := storage.Capture(ds, cfg.TrainRatio, existing.Frontier)
	if err != nil {
		return err
	}
	if err := store.Save(snap); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d triples (%d total) into %s\n", ds.Len()-before, ds.Len(), cfg.DBPath)
	return err
}

func importFile(cmd *cobra.Command, ds *dataset.Dataset, path string) error {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = formatOf(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var stats dataset.LoadStats
	switch format {
	case "csv":
		sep, _ := cmd.Flags().GetString("separator")
		r, size := utf8.DecodeRuneInString(sep)
		if size == 0 || size != len(sep) {
			return fmt.Errorf("separator must be a single character, got %q", sep)
		}
		stats, err = ds.LoadCSV(f, r)
	case "ntriples":
		stats, err = ds.LoadNTriples(f)
	default:
		return fmt.Errorf("unknown format %q for %s (use csv or ntriples)", format, path)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	logrus.Infof("Loaded %s: %d rows, %d accepted, %d skipped", path, stats.Rows, stats.Accepted, stats.Skipped)
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".nt":
		return "ntriples"
	}
	return ""
}
