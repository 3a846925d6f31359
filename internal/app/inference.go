package app

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
)

type inferenceJob struct {
	window     []keypoints.Frame
	generation uint64
}

type inferenceResult struct {
	prediction classifier.Prediction
	err        error
	generation uint64
}

// inferenceWorker classifies windows off the frame loop. Both directions
// are one-slot mailboxes: the frame loop is the only sender on jobs and the
// worker the only sender on results, and a newer value replaces an
// unconsumed older one.
type inferenceWorker struct {
	classifier classifier.Classifier
	jobs       chan inferenceJob
	results    chan inferenceResult
	done       chan struct{}
	wg         sync.WaitGroup
}

func newInferenceWorker(c classifier.Classifier) *inferenceWorker {
	w := &inferenceWorker{
		classifier: c,
		jobs:       make(chan inferenceJob, 1),
		results:    make(chan inferenceResult, 1),
		done:       make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *inferenceWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case job := <-w.jobs:
			start := time.Now()
			p, err := w.classifier.Classify(job.window)
			observability.ObserveClassify(time.Since(start))
			replace(w.results, inferenceResult{prediction: p, err: err, generation: job.generation})
		}
	}
}

// submit hands a window to the worker, replacing any window it has not
// picked up yet.
func (w *inferenceWorker) submit(window []keypoints.Frame, generation uint64) {
	replace(w.jobs, inferenceJob{window: window, generation: generation})
}

// poll returns the latest finished result, if any.
func (w *inferenceWorker) poll() (inferenceResult, bool) {
	select {
	case r := <-w.results:
		return r, true
	default:
		return inferenceResult{}, false
	}
}

func (w *inferenceWorker) close() {
	close(w.done)
	w.wg.Wait()
}

// replace puts v into a one-slot channel, discarding an unread value. It
// must only be called by the channel's single sender.
func replace[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
