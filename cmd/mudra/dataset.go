package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/observability"
)

func runExtract(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	src := fs.String("src", "", "directory with one image folder per label (required)")
	window := fs.Int("window", cfg.RecordWindowLength, "images per sample")
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "output dataset directory")
	fs.StringVar(&cfg.HandAssignment, "hand-assignment", cfg.HandAssignment, "hand slot rule: handedness or order")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}
	if *src == "" {
		return errors.New("extract: -src is required")
	}

	ds := openDataset(cfg, *window)
	if err := ensureManifest(ds, cfg, *window); err != nil {
		return err
	}

	det, err := app.NewDetector(cfg, true)
	if err != nil {
		return fmt.Errorf("start detector: %w", err)
	}
	defer det.Close()

	stats, err := app.Extract(ctx, *src, det, ds, cfg.Assignment())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tIMAGES\tSAMPLES\tLEFTOVER")
	for _, label := range sortedKeys(stats.Images) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", label, stats.Images[label], stats.Samples[label], stats.Leftover[label])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(stats.Skipped) > 0 {
		fmt.Printf("%d unreadable images skipped\n", len(stats.Skipped))
	}
	return nil
}

// ensureManifest checks an existing manifest or writes one for still
// images.
func ensureManifest(ds *dataset.Store, cfg *config.Config, window int) error {
	m, err := ds.ReadManifest()
	if err != nil {
		return err
	}
	if m != nil {
		if err := m.Compatible(window, cfg.Assignment()); err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Root(), err)
		}
		return nil
	}
	return ds.WriteManifest(dataset.Manifest{
		WindowLength:   window,
		HandAssignment: cfg.Assignment(),
		GapPolicy:      cfg.Gap(),
	})
}

func runSplit(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	dst := fs.String("dst", "", "output directory (default <dataset>-split)")
	ratio := fs.Float64("ratio", 0.8, "training fraction per label")
	seed := fs.Int64("seed", 0, "shuffle seed (0 picks one from the clock)")
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}

	ds := openDataset(cfg, 0)
	if *dst == "" {
		*dst = filepath.Clean(ds.Root()) + "-split"
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	result, err := ds.Split(*dst, *ratio, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	observability.GetLogger().Info().Str("dst", *dst).Int64("seed", *seed).Msg("dataset split")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tTRAIN\tVAL")
	for _, label := range sortedKeys(result.Train) {
		fmt.Fprintf(w, "%s\t%d\t%d\n", label, result.Train[label], result.Val[label])
	}
	return w.Flush()
}

func runTrain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.StringVar(&cfg.Classifier, "classifier", cfg.Classifier, "model kind: sequence or frame")
	fs.IntVar(&cfg.WindowLength, "window", cfg.WindowLength, "model window length")
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "output model file")
	fs.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "output label list")
	fs.StringVar(&cfg.HandAssignment, "hand-assignment", cfg.HandAssignment, "hand slot rule: handedness or order")
	temperature := fs.Float64("temperature", 0, "softmax temperature (0 keeps the default)")
	maxTemplates := fs.Int("max-templates", 0, "templates kept per label (0 keeps all)")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}
	if cfg.ModelBackend == config.BackendDNN {
		return errors.New("train: dnn models are trained outside mudra; set MUDRA_MODEL_BACKEND=template")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := app.Train(openDataset(cfg, 0), app.TrainOptions{
		Kind:           cfg.ClassifierKind(),
		WindowLength:   cfg.WindowLength,
		HandAssignment: cfg.Assignment(),
		ModelPath:      cfg.ModelPath,
		LabelsPath:     cfg.LabelsPath,
		Temperature:    *temperature,
		MaxTemplates:   *maxTemplates,
	}, st)
	if err != nil {
		return err
	}

	fmt.Printf("trained %s model with %d labels -> %s\n", cfg.ClassifierKind(), len(result.Labels), result.Model)
	for _, path := range result.Skipped {
		fmt.Printf("skipped %s\n", path)
	}
	return nil
}

func runLabels(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("labels", flag.ContinueOnError)
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
	fs.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "label list")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}

	labels, err := classifier.LoadLabels(cfg.LabelsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	counts, err := openDataset(cfg, 0).Counts()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL\tSAMPLES")
	seen := map[string]bool{}
	for i, label := range labels {
		seen[label] = true
		fmt.Fprintf(w, "%d\t%s\t%d\n", i, label, counts[label])
	}
	for _, label := range sortedKeys(counts) {
		if !seen[label] {
			fmt.Fprintf(w, "-\t%s\t%d\n", label, counts[label])
		}
	}
	return w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
