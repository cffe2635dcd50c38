package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/backend"
	"github.com/alvmarrod/kg-weaver/internal/config"
	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/metrics"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
	"github.com/alvmarrod/kg-weaver/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// Termination reasons written to the metrics file and the runs table
const (
	reasonCompleted = "completed"
	reasonCancelled = "cancelled"
	reasonDegraded  = "completed_degraded"
	reasonInvariant = "invariant_violation"
	reasonForced    = "forced_exit"
)

const progressInterval = 10 * time.Second

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured endpoint from the seed entities",
		Long: "Crawl explores the endpoint level by level from the configured seeds (or seed pattern), " +
			"then stores the triples split into train/valid/test partitions.",
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}

	cmd.Flags().Bool("resume", false, "continue from the explored-set and frontier stored in the database")
	cmd.Flags().Int("levels", 0, "override max_levels from the config file")

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if levels, _ := cmd.Flags().GetInt("levels"); levels > 0 {
		cfg.MaxLevels = levels
	}
	resume, _ := cmd.Flags().GetBool("resume")

	b, err := backend.Lookup(cfg.Backend, cfg.BackendOptions())
	if err != nil {
		return err
	}

	jobID := uuid.NewString()
	log := logrus.WithField("job", jobID)
	log.Infof("Weaver %s starting crawl against %s (backend %s)", version, cfg.Endpoint(b), b.Name)

	client, err := sparql.NewClient(sparql.ClientConfig{
		Endpoint:     cfg.Endpoint(b),
		Timeout:      cfg.RequestTimeout(),
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Parallelism:  cfg.ConcurrentWorkers,
	})
	if err != nil {
		return err
	}

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Infof("Database initialized: %s", cfg.DBPath)

	ds := dataset.New(dataset.WithValidator(b.Validator), dataset.WithSplitSeed(cfg.SplitSeed))

	seeds, err := initialFrontier(cmd.Context(), cfg, client, store, ds, resume)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		if resume {
			log.Info("Stored frontier is empty, nothing to resume")
			return nil
		}
		return fmt.Errorf("no seeds: set seeds or seed_pattern in the config file")
	}

	tracker := metrics.NewTracker(jobID)
	c, err := newCrawler(cfg, b, ds, client, tracker)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First signal stops dispatching; a second one saves what exists and exits
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	crawlDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal %v, finishing in-flight entities (send again to force exit)", sig)
			cancel()
		case <-crawlDone:
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
			emergencySave(cfg, store, ds, c, tracker)
			os.Exit(1)
		case <-crawlDone:
		}
	}()

	// Progress logger
	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Info(c.Progress().String())
				log.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	if cfg.ProgressAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveProgress(ctx, cfg.ProgressAddr, newProgressRouter(jobID, c.Progress())); err != nil {
				log.Errorf("Progress endpoint failed: %v", err)
			}
		}()
		log.Infof("Progress available at http://%s/jobs/%s/progress", cfg.ProgressAddr, jobID)
	}

	res, crawlErr := c.Crawl(ctx, seeds)

	close(crawlDone)
	close(stopProgress)
	cancel()
	wg.Wait()

	log.Info(c.Progress().String())

	if crawlErr != nil {
		log.Errorf("Crawl aborted: %v", crawlErr)
		if err := tracker.WriteToFile(cfg.MetricsPath, reasonInvariant); err != nil {
			log.Errorf("Failed to write metrics: %v", err)
		}
		return crawlErr
	}

	tracker.RecordResult(res)
	reason := reasonCompleted
	switch {
	case res.Cancelled:
		reason = reasonCancelled
	case res.Degraded:
		reason = reasonDegraded
	}

	snap, err := storage.Capture(ds, cfg.TrainRatio, res.Frontier)
	if err != nil {
		return err
	}
	if err := store.Save(snap); err != nil {
		return err
	}
	log.Infof("Saved %d entities, %d relations, %d/%d/%d train/valid/test triples, %d pending",
		len(snap.Entities), len(snap.Relations), len(snap.Train), len(snap.Valid), len(snap.Test), len(snap.Frontier))

	if err := store.SaveRun(tracker.Finish(reason)); err != nil {
		log.Errorf("Failed to record run: %v", err)
	}
	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		log.Errorf("Failed to write metrics: %v", err)
	} else {
		log.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	log.Infof("Final stats: %s (%s)", tracker.LogProgress(), reason)
	return nil
}

// initialFrontier restores the stored dataset when resuming, otherwise resolves configured seeds
func initialFrontier(ctx context.Context, cfg *config.Config, exec sparql.Executor, store *storage.Storage, ds *dataset.Dataset, resume bool) ([]string, error) {
	if resume {
		snap, err := store.Load()
		if err != nil {
			return nil, err
		}
		if err := snap.Apply(ds); err != nil {
			return nil, fmt.Errorf("stored dataset is inconsistent: %w", err)
		}
		logrus.Infof("Resuming crawl: %d entities, %d triples, %d explored, %d pending",
			len(snap.Entities), snap.Len(), len(snap.Explored), len(snap.Frontier))
		return snap.Frontier, nil
	}

	seeds := append([]string(nil), cfg.Seeds...)
	if cfg.SeedPattern != "" {
		fetched, err := crawler.FetchSeeds(ctx, exec, cfg.SeedPattern, cfg.SeedVariable)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch seeds: %w", err)
		}
		seeds = append(seeds, fetched...)
	}
	return seeds, nil
}

func newCrawler(cfg *config.Config, b backend.Backend, ds *dataset.Dataset, exec sparql.Executor, tracker *metrics.Tracker) (*crawler.Crawler, error) {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	worker := crawler.NewWorker(ds, exec, crawler.WorkerConfig{
		EntityQuery:    b.EntityQuery,
		Timeout:        cfg.RequestTimeout(),
		Limiter:        limiter,
		AcceptLiterals: cfg.AcceptLiterals,
	})

	return crawler.NewCrawler(ds, worker, crawler.Options{
		MaxLevels:          cfg.MaxLevels,
		Concurrency:        cfg.ConcurrentWorkers,
		MaxAttempts:        cfg.RetryAttempts,
		RetryDelay:         cfg.RetryDelay(),
		MaxFrontier:        cfg.MaxFrontier,
		MaxFailureFraction: cfg.FailureFraction(),
		OnDiscover: func(int, string) {
			tracker.RecordDiscovery()
		},
		OnComplete: func(comp crawler.Completion) {
			tracker.RecordCompletion(comp)
			if comp.Err != nil && !errors.Is(comp.Err, dataset.ErrInvariant) {
				logrus.WithFields(logrus.Fields{
					"level":    comp.Level,
					"entity":   comp.Canonical,
					"attempts": comp.Attempts,
				}).Debugf("Entity failed: %v", comp.Err)
			}
		},
	})
}

// emergencySave stores what the dataset holds right now. The level in flight has no
// frontier yet, so every interned entity not yet explored is stored as pending, and so is
// every entity whose query was still running.
func emergencySave(cfg *config.Config, store *storage.Storage, ds *dataset.Dataset, c *crawler.Crawler, tracker *metrics.Tracker) {
	logrus.Warn("Attempting emergency save...")

	snap, err := emergencySnapshot(ds, c, cfg.TrainRatio)
	if err != nil {
		logrus.Errorf("Emergency snapshot failed: %v", err)
	} else if err := store.Save(snap); err != nil {
		logrus.Errorf("Emergency save failed: %v", err)
	} else {
		logrus.Info("Emergency save succeeded")
	}

	if err := tracker.WriteToFile(cfg.MetricsPath, reasonForced); err != nil {
		logrus.Errorf("Emergency metrics save failed: %v", err)
	}
}

func emergencySnapshot(ds *dataset.Dataset, c *crawler.Crawler, ratio float64) (*storage.Snapshot, error) {
	// Units finishing while the snapshot is taken may have recorded only part of their edges
	running := c.InFlight()
	snap, err := storage.Capture(ds, ratio, unexplored(ds))
	if err != nil {
		return nil, err
	}
	for _, e := range append(running, c.InFlight()...) {
		snap.Requeue(e.Canonical, e.Raw)
	}
	return snap, nil
}

func unexplored(ds *dataset.Dataset) []string {
	var pending []string
	for _, e := range ds.Entities() {
		if !ds.IsExplored(e) {
			pending = append(pending, e)
		}
	}
	return pending
}
