// Package pipeline implements the batch processing orchestrator: it walks
// the library, runs the requested stages per item, persists results
// incrementally, and survives cancellation and partial failure.
//
// The orchestrator is strictly sequential within a run so at most one
// decoded image is alive at a time. It is not safe to start two runs over
// the same item set concurrently; the external scheduler must enforce
// at-most-one-active-run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/embedding"
	"github.com/phajek/mediascan/internal/face"
	"github.com/phajek/mediascan/internal/imaging"
	"github.com/phajek/mediascan/internal/labeler"
	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
	"github.com/phajek/mediascan/internal/store"
)

// Stage identifies one processing stage.
type Stage string

// Stages the orchestrator can run per item.
const (
	StageHash   Stage = "hash"
	StageFaces  Stage = "faces"
	StageLabels Stage = "labels"
	StageText   Stage = "text"
)

// State is the lifecycle state of a run.
type State string

// Run lifecycle states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress is reported after every item.
type Progress struct {
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Batch  int    `json:"batch"`
	ItemID string `json:"item_id"`
}

// Decoder loads an image bounded to a maximum long-edge dimension.
type Decoder func(path string, maxDimension int) (image.Image, error)

// Deps are the collaborators a run needs. Library and Store are required;
// Locator, Embedder and Labeler gate which stages are available.
type Deps struct {
	Library  media.Library
	Store    store.Store
	Locator  face.Locator
	Embedder embedding.Generator
	Labeler  labeler.Provider
	Decode   Decoder // defaults to imaging.DecodeBounded
}

// Options control a single run.
type Options struct {
	// Stages to run; empty means every stage whose collaborator is wired.
	Stages []Stage
	// ItemID restricts the run to one item.
	ItemID string
	// BatchSize is the number of items per batch, default 50.
	BatchSize int
	// BatchDelay inserted between batches to avoid sustained load.
	BatchDelay time.Duration
	// Force recomputes stages even when results already exist. Existing
	// results are overwritten, never duplicated.
	Force bool
	// MaxDimension bounds the decoded image's long edge, default 1024.
	MaxDimension int
	// OnProgress, when set, receives a Progress after every item.
	OnProgress func(Progress)
}

// Report summarizes a finished run. Individual item failures are not
// surfaced beyond the counter; they are logged for diagnostics.
type Report struct {
	RunID     string `json:"run_id"`
	State     State  `json:"state"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	// Retryable is set on failed runs that the external scheduler may
	// re-invoke; skip logic makes the retry cheap.
	Retryable bool `json:"retryable"`
}

// Orchestrator runs processing batches. One instance may be reused for
// sequential runs; concurrent runs are rejected.
type Orchestrator struct {
	deps Deps

	mu       sync.Mutex
	state    State
	running  bool
	progress Progress

	// Logf receives diagnostic messages for skipped/failed items.
	// Defaults to a no-op.
	Logf func(format string, args ...any)
}

// New creates an orchestrator. Decode defaults to imaging.DecodeBounded.
func New(deps Deps) *Orchestrator {
	if deps.Decode == nil {
		deps.Decode = imaging.DecodeBounded
	}
	return &Orchestrator{
		deps:  deps,
		state: StateIdle,
		Logf:  func(string, ...any) {},
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastProgress returns the most recently reported progress.
func (o *Orchestrator) LastProgress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Run processes the backlog (or one item) through the requested stages.
// Cancellation is cooperative and is a normal terminal state, not an
// error: the report carries StateCancelled and err is nil. Already
// persisted per-item results remain valid after cancellation.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running = true
	o.state = StateRunning
	o.progress = Progress{}
	o.mu.Unlock()

	report := &Report{RunID: uuid.NewString()}
	finish := func(s State) {
		o.mu.Lock()
		o.state = s
		o.running = false
		o.mu.Unlock()
		report.State = s
	}

	stages := o.resolveStages(opts.Stages)
	if len(stages) == 0 {
		finish(StateFailed)
		return report, errors.New("no runnable stages: required collaborators not wired")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = constants.DefaultBatchSize
	}
	maxDim := opts.MaxDimension
	if maxDim <= 0 {
		maxDim = constants.MaxDecodeDimension
	}

	items, err := o.deps.Library.ListAllItems(ctx)
	if err != nil {
		finish(StateFailed)
		report.Retryable = true
		return report, fmt.Errorf("failed to enumerate library: %w", err)
	}
	if opts.ItemID != "" {
		items = filterByID(items, opts.ItemID)
		if len(items) == 0 {
			finish(StateFailed)
			return report, fmt.Errorf("item %q not found in library", opts.ItemID)
		}
	}

	report.Total = len(items)
	done := 0

	for batchStart := 0; batchStart < len(items); batchStart += batchSize {
		batch := items[batchStart:min(batchStart+batchSize, len(items))]
		batchIndex := batchStart / batchSize

		for i, item := range batch {
			// Cooperative yield and cancellation checkpoint.
			if i%constants.YieldInterval == 0 {
				if ctx.Err() != nil {
					finish(StateCancelled)
					return report, nil
				}
				runtime.Gosched()
			}

			outcome, err := o.processItem(ctx, item, stages, opts.Force, maxDim)
			switch {
			case err == nil:
			case errors.Is(err, ErrOutOfMemory):
				// Terminal: abort the whole run, no retry.
				finish(StateFailed)
				report.Retryable = false
				return report, fmt.Errorf("run aborted: %w", err)
			case isItemError(err):
				// Per-item failure: log, count, continue.
				o.Logf("item %s: %v", item.ID, err)
				report.Failed++
				outcome = outcomeFailed
			default:
				// Anything else (persistence failure and the like) is a
				// retryable run failure.
				finish(StateFailed)
				report.Retryable = true
				return report, fmt.Errorf("item %s: %w", item.ID, err)
			}

			switch outcome {
			case outcomeProcessed:
				report.Processed++
			case outcomeSkipped:
				report.Skipped++
			}

			done++
			o.reportProgress(opts.OnProgress, Progress{
				Done:   done,
				Total:  report.Total,
				Batch:  batchIndex,
				ItemID: item.ID,
			})
		}

		if opts.BatchDelay > 0 && batchStart+batchSize < len(items) {
			select {
			case <-ctx.Done():
				finish(StateCancelled)
				return report, nil
			case <-time.After(opts.BatchDelay):
			}
		}
	}

	finish(StateSucceeded)
	return report, nil
}

type itemOutcome int

const (
	outcomeSkipped itemOutcome = iota
	outcomeProcessed
	outcomeFailed
)

// processItem runs the requested stages for one item. The decoded image is
// scoped to this call; nothing retains it across items.
func (o *Orchestrator) processItem(ctx context.Context, item media.MediaItem, stages []Stage, force bool, maxDim int) (itemOutcome, error) {
	if item.IsVideo {
		// Video content is enumerated but no stage consumes it yet.
		return outcomeSkipped, nil
	}

	needed, err := o.pendingStages(ctx, item.ID, stages, force)
	if err != nil {
		return outcomeFailed, err
	}
	if len(needed) == 0 {
		return outcomeSkipped, nil
	}

	img, err := o.deps.Decode(item.Path, maxDim)
	if err != nil {
		if errors.Is(err, imaging.ErrTooLarge) {
			return outcomeFailed, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
		return outcomeFailed, err
	}

	// Encoded form is only needed by the labeler stages.
	var encoded []byte
	if stagesContain(needed, StageLabels) || stagesContain(needed, StageText) {
		encoded, err = imaging.EncodeJPEG(img)
		if err != nil {
			return outcomeFailed, err
		}
	}

	for _, stage := range needed {
		if ctx.Err() != nil {
			return outcomeProcessed, nil
		}
		switch stage {
		case StageHash:
			err = o.runHashStage(ctx, item, img)
		case StageFaces:
			err = o.runFaceStage(ctx, item, img)
		case StageLabels:
			err = o.runLabelStage(ctx, item, encoded, force)
		case StageText:
			err = o.runTextStage(ctx, item, encoded, force)
		}
		if err != nil {
			// Detector failures skip the stage only; the item's other
			// stages already ran or will run.
			var detErr *face.DetectorError
			if errors.As(err, &detErr) {
				o.Logf("item %s stage %s: %v", item.ID, stage, err)
				continue
			}
			return outcomeFailed, err
		}
	}
	return outcomeProcessed, nil
}

// pendingStages filters the requested stages down to those without stored
// results, bounding repeated runs to the backlog.
func (o *Orchestrator) pendingStages(ctx context.Context, itemID string, stages []Stage, force bool) ([]Stage, error) {
	if force {
		return stages, nil
	}

	var pending []Stage
	for _, stage := range stages {
		var has bool
		var err error
		switch stage {
		case StageHash:
			has, err = o.deps.Store.HasHash(ctx, itemID)
		case StageFaces:
			has, err = o.deps.Store.IsFacesProcessed(ctx, itemID)
		case StageLabels:
			has, err = o.deps.Store.HasAnnotations(ctx, itemID, media.KindLabel)
		case StageText:
			has, err = o.deps.Store.HasAnnotations(ctx, itemID, media.KindExtractedText)
		}
		if err != nil {
			return nil, err
		}
		if !has {
			pending = append(pending, stage)
		}
	}
	return pending, nil
}

func (o *Orchestrator) runHashStage(ctx context.Context, item media.MediaItem, img image.Image) error {
	h := phash.Compute(img)
	if err := o.deps.Store.SaveHash(ctx, item.ID, h); err != nil {
		return fmt.Errorf("failed to save hash: %w", err)
	}
	return nil
}

func (o *Orchestrator) runFaceStage(ctx context.Context, item media.MediaItem, img image.Image) error {
	regions, err := o.deps.Locator.Detect(img)
	if err != nil {
		if _, ok := err.(*face.DetectorError); ok {
			return err
		}
		return &face.DetectorError{Err: err}
	}

	records := make([]media.FaceRecord, 0, len(regions))
	for i, region := range regions {
		crop, err := face.ExtractRegion(img, region.BBox, constants.DefaultRegionPadding)
		if err != nil {
			// Region clamped to nothing; drop it.
			continue
		}
		emb, err := o.deps.Embedder.Embed(crop)
		if err != nil {
			return &face.DetectorError{Err: err}
		}
		records = append(records, media.FaceRecord{
			ItemID:     item.ID,
			Index:      i,
			BBox:       region.BBox,
			Embedding:  emb,
			Confidence: region.Score,
		})
	}

	// Saved even when empty so the item counts as processed.
	if err := o.deps.Store.SaveFaces(ctx, item.ID, records); err != nil {
		return fmt.Errorf("failed to save faces: %w", err)
	}
	return nil
}

func (o *Orchestrator) runLabelStage(ctx context.Context, item media.MediaItem, encoded []byte, force bool) error {
	labels, err := o.deps.Labeler.LabelImage(ctx, encoded)
	if err != nil {
		return &face.DetectorError{Err: err}
	}

	annotations := make([]media.Annotation, 0, len(labels))
	for _, l := range labels {
		annotations = append(annotations, media.Annotation{
			ItemID:     item.ID,
			Kind:       media.KindLabel,
			Text:       l.Name,
			Confidence: l.Confidence,
		})
	}

	if force {
		if err := o.deps.Store.DeleteAnnotations(ctx, item.ID, media.KindLabel); err != nil {
			return fmt.Errorf("failed to clear labels: %w", err)
		}
	}
	if len(annotations) == 0 {
		return nil
	}
	if err := o.deps.Store.SaveAnnotations(ctx, item.ID, annotations); err != nil {
		return fmt.Errorf("failed to save labels: %w", err)
	}
	return nil
}

func (o *Orchestrator) runTextStage(ctx context.Context, item media.MediaItem, encoded []byte, force bool) error {
	text, err := o.deps.Labeler.ExtractText(ctx, encoded)
	if err != nil {
		return &face.DetectorError{Err: err}
	}

	if force {
		if err := o.deps.Store.DeleteAnnotations(ctx, item.ID, media.KindExtractedText); err != nil {
			return fmt.Errorf("failed to clear extracted text: %w", err)
		}
	}
	if text == "" {
		return nil
	}
	err = o.deps.Store.SaveAnnotations(ctx, item.ID, []media.Annotation{{
		ItemID:     item.ID,
		Kind:       media.KindExtractedText,
		Text:       text,
		Confidence: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to save extracted text: %w", err)
	}
	return nil
}

// resolveStages returns the requested stages, dropping any whose
// collaborator is missing; with no explicit request, every wired stage runs.
func (o *Orchestrator) resolveStages(requested []Stage) []Stage {
	available := []Stage{StageHash}
	if o.deps.Locator != nil && o.deps.Embedder != nil {
		available = append(available, StageFaces)
	}
	if o.deps.Labeler != nil {
		available = append(available, StageLabels, StageText)
	}

	if len(requested) == 0 {
		return available
	}
	var out []Stage
	for _, s := range requested {
		if stagesContain(available, s) {
			out = append(out, s)
		}
	}
	return out
}

func (o *Orchestrator) reportProgress(cb func(Progress), p Progress) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

// isItemError reports whether err is a per-item failure (decode or
// detector) that the run absorbs and continues past.
func isItemError(err error) bool {
	var decErr *imaging.DecodeError
	if errors.As(err, &decErr) {
		return true
	}
	var detErr *face.DetectorError
	return errors.As(err, &detErr)
}

func stagesContain(stages []Stage, s Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

func filterByID(items []media.MediaItem, id string) []media.MediaItem {
	for _, item := range items {
		if item.ID == id {
			return []media.MediaItem{item}
		}
	}
	return nil
}
