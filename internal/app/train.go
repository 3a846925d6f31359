package app

import (
	"fmt"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/store"
)

// TrainOptions configures Train.
type TrainOptions struct {
	Kind           classifier.Kind
	WindowLength   int
	HandAssignment keypoints.Assignment
	ModelPath      string
	LabelsPath     string
	// Temperature and MaxTemplates override the trainer defaults when set.
	Temperature  float64
	MaxTemplates int
}

// TrainResult summarises a training run.
type TrainResult struct {
	Labels  classifier.Labels `json:"labels"`
	Samples map[string]int    `json:"samples"`
	Skipped []string          `json:"skipped,omitempty"`
	Model   string            `json:"model"`
}

// Train builds a template model from every sample in the dataset and writes
// the model and its label list. When st is not nil the sign catalog is
// synced with the new labels and sample counts.
func Train(ds *dataset.Store, opts TrainOptions, st *store.Store) (TrainResult, error) {
	logger := observability.Component("train")
	result := TrainResult{Samples: map[string]int{}, Model: opts.ModelPath}

	m, err := ds.ReadManifest()
	if err != nil {
		return result, err
	}
	if m != nil && m.HandAssignment != opts.HandAssignment {
		return result, fmt.Errorf("dataset %s was recorded with hand assignment %s, configured %s",
			ds.Root(), m.HandAssignment, opts.HandAssignment)
	}

	trainer := gesture.NewTrainer(opts.WindowLength, opts.HandAssignment)
	if opts.Temperature > 0 {
		trainer.Temperature = opts.Temperature
	}
	trainer.MaxTemplates = opts.MaxTemplates

	stats, err := ds.Walk(func(label, path string, frames []keypoints.Frame) error {
		if err := trainer.Add(label, frames); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		result.Samples[label]++
		return nil
	})
	if err != nil {
		return result, err
	}
	result.Skipped = stats.Skipped

	var model *gesture.Model
	if opts.Kind == classifier.KindPerFrame {
		model, err = trainer.TrainFrames()
	} else {
		model, err = trainer.TrainSequences()
	}
	if err != nil {
		return result, fmt.Errorf("train %s model: %w", opts.Kind, err)
	}
	result.Labels = model.Labels

	if err := model.Save(opts.ModelPath); err != nil {
		return result, err
	}
	if err := model.Labels.Save(opts.LabelsPath); err != nil {
		return result, err
	}
	logger.Info().
		Str("kind", opts.Kind.String()).
		Int("labels", len(model.Labels)).
		Int("samples", stats.Loaded).
		Int("skipped", len(stats.Skipped)).
		Str("model", opts.ModelPath).
		Msg("model trained")

	if st != nil {
		if err := syncCatalog(st, model.Labels, result.Samples); err != nil {
			return result, fmt.Errorf("sync sign catalog: %w", err)
		}
	}
	return result, nil
}

func syncCatalog(st *store.Store, labels classifier.Labels, counts map[string]int) error {
	if err := st.Signs().SyncLabels(labels); err != nil {
		return err
	}
	for _, label := range labels {
		if err := st.Signs().SetSampleCount(label, counts[label]); err != nil {
			return err
		}
	}
	return nil
}
