package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/phajek/mediascan/internal/face"
	"github.com/phajek/mediascan/internal/imaging"
	"github.com/phajek/mediascan/internal/labeler"
	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/store/memory"
)

// stubLibrary returns a fixed item list.
type stubLibrary struct {
	items []media.MediaItem
}

func (l *stubLibrary) ListAllItems(ctx context.Context) ([]media.MediaItem, error) {
	return l.items, nil
}

// stubLocator returns one face region per image.
type stubLocator struct {
	regions []face.Region
	err     error
}

func (l *stubLocator) Detect(img image.Image) ([]face.Region, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.regions, nil
}

// stubEmbedder returns a constant vector.
type stubEmbedder struct{}

func (stubEmbedder) Dim() int { return 128 }

func (stubEmbedder) Embed(faceImg image.Image) ([]float32, error) {
	v := make([]float32, 128)
	v[0] = 1
	return v, nil
}

// stubLabeler counts calls and returns fixed results.
type stubLabeler struct {
	mu         sync.Mutex
	labelCalls int
	textCalls  int
}

func (s *stubLabeler) Name() string { return "stub" }

func (s *stubLabeler) LabelImage(ctx context.Context, imageData []byte) ([]labeler.Label, error) {
	s.mu.Lock()
	s.labelCalls++
	s.mu.Unlock()
	return []labeler.Label{{Name: "cat", Confidence: 0.95}}, nil
}

func (s *stubLabeler) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	s.mu.Lock()
	s.textCalls++
	s.mu.Unlock()
	return "hello", nil
}

func testDecoder(path string, maxDim int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 0, 255})
		}
	}
	return img, nil
}

func testItems(n int) []media.MediaItem {
	items := make([]media.MediaItem, n)
	for i := range n {
		items[i] = media.MediaItem{
			ID:     fmt.Sprintf("item%03d", i),
			Path:   fmt.Sprintf("/photos/item%03d.jpg", i),
			Width:  64,
			Height: 64,
		}
	}
	return items
}

func testDeps(items []media.MediaItem, st *memory.Store) Deps {
	return Deps{
		Library: &stubLibrary{items: items},
		Store:   st,
		Locator: &stubLocator{regions: []face.Region{
			{BBox: media.BoundingBox{X1: 10, Y1: 10, X2: 40, Y2: 40}, Score: 0.9},
		}},
		Embedder: stubEmbedder{},
		Labeler:  &stubLabeler{},
		Decode:   testDecoder,
	}
}

func TestRun_AllStagesPersist(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	o := New(testDeps(testItems(3), st))

	report, err := o.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State != StateSucceeded {
		t.Errorf("state = %s; want succeeded", report.State)
	}
	if report.Processed != 3 || report.Skipped != 0 || report.Failed != 0 {
		t.Errorf("counts = %d/%d/%d; want 3/0/0", report.Processed, report.Skipped, report.Failed)
	}

	for _, item := range testItems(3) {
		if has, _ := st.HasHash(ctx, item.ID); !has {
			t.Errorf("item %s missing hash", item.ID)
		}
		faces, _ := st.GetFaces(ctx, item.ID)
		if len(faces) != 1 {
			t.Errorf("item %s has %d faces; want 1", item.ID, len(faces))
		}
		if hasLabel, _ := st.HasAnnotations(ctx, item.ID, media.KindLabel); !hasLabel {
			t.Errorf("item %s missing labels", item.ID)
		}
		if hasText, _ := st.HasAnnotations(ctx, item.ID, media.KindExtractedText); !hasText {
			t.Errorf("item %s missing extracted text", item.ID)
		}
	}
}

func TestRun_IdempotentReprocessing(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	deps := testDeps(testItems(4), st)
	o := New(deps)

	if _, err := o.Run(ctx, Options{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	snapshotHashes, _ := st.ListHashes(ctx)
	snapshotAnnotations, _ := st.GetAnnotations(ctx, "item000")

	second, err := o.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if second.Processed != 0 || second.Skipped != 4 {
		t.Errorf("second run processed=%d skipped=%d; want 0/4", second.Processed, second.Skipped)
	}

	// Persisted state must be byte-identical after the second run.
	hashes, _ := st.ListHashes(ctx)
	if !reflect.DeepEqual(hashes, snapshotHashes) {
		t.Error("hashes changed on idempotent rerun")
	}
	annotations, _ := st.GetAnnotations(ctx, "item000")
	if !reflect.DeepEqual(annotations, snapshotAnnotations) {
		t.Errorf("annotations changed on rerun: %+v vs %+v", annotations, snapshotAnnotations)
	}

	// The labeler must not have been called again.
	lab := deps.Labeler.(*stubLabeler)
	if lab.labelCalls != 4 {
		t.Errorf("labeler called %d times; want 4", lab.labelCalls)
	}
}

func TestRun_ForceOverwritesLabels(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	o := New(testDeps(testItems(1), st))

	if _, err := o.Run(ctx, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(ctx, Options{Force: true}); err != nil {
		t.Fatal(err)
	}

	annotations, _ := st.GetAnnotations(ctx, "item000")
	var labels int
	for _, a := range annotations {
		if a.Kind == media.KindLabel {
			labels++
		}
	}
	if labels != 1 {
		t.Errorf("forced rerun left %d label rows; want 1 (overwrite, not append)", labels)
	}
}

func TestRun_DecodeErrorSkipsItem(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	deps := testDeps(testItems(3), st)
	deps.Decode = func(path string, maxDim int) (image.Image, error) {
		if path == "/photos/item001.jpg" {
			return nil, &imaging.DecodeError{Path: path, Err: errors.New("corrupt")}
		}
		return testDecoder(path, maxDim)
	}
	o := New(deps)

	report, err := o.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("run should continue past decode errors: %v", err)
	}

	if report.State != StateSucceeded {
		t.Errorf("state = %s; want succeeded", report.State)
	}
	if report.Processed != 2 || report.Failed != 1 {
		t.Errorf("processed=%d failed=%d; want 2/1", report.Processed, report.Failed)
	}
	// The corrupt item stays unprocessed for the duplicate feature.
	if has, _ := st.HasHash(ctx, "item001"); has {
		t.Error("corrupt item should have no hash")
	}
}

func TestRun_OutOfMemoryAborts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	deps := testDeps(testItems(5), st)
	deps.Decode = func(path string, maxDim int) (image.Image, error) {
		if path == "/photos/item002.jpg" {
			return nil, fmt.Errorf("huge: %w", imaging.ErrTooLarge)
		}
		return testDecoder(path, maxDim)
	}
	o := New(deps)

	report, err := o.Run(ctx, Options{})
	if err == nil {
		t.Fatal("expected terminal error for out-of-memory")
	}
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}
	if report.State != StateFailed {
		t.Errorf("state = %s; want failed", report.State)
	}
	if report.Retryable {
		t.Error("out-of-memory must not be retryable")
	}
}

func TestRun_StoreFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.SaveHashError = errors.New("disk full")
	o := New(testDeps(testItems(2), st))

	report, err := o.Run(ctx, Options{Stages: []Stage{StageHash}})
	if err == nil {
		t.Fatal("expected error for persistence failure")
	}
	if report.State != StateFailed {
		t.Errorf("state = %s; want failed", report.State)
	}
	if !report.Retryable {
		t.Error("persistence failure should be retryable")
	}
}

func TestRun_DetectorErrorSkipsStageOnly(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	deps := testDeps(testItems(1), st)
	deps.Locator = &stubLocator{err: &face.DetectorError{Err: errors.New("model crashed")}}
	o := New(deps)

	report, err := o.Run(ctx, Options{Stages: []Stage{StageHash, StageFaces}})
	if err != nil {
		t.Fatalf("detector failure should not abort the run: %v", err)
	}
	if report.State != StateSucceeded {
		t.Errorf("state = %s; want succeeded", report.State)
	}

	// Hash stage ran, face stage was skipped.
	if has, _ := st.HasHash(ctx, "item000"); !has {
		t.Error("hash stage should have run despite detector failure")
	}
	if done, _ := st.IsFacesProcessed(ctx, "item000"); done {
		t.Error("face stage should not be marked processed after detector failure")
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := memory.New()
	deps := testDeps(testItems(40), st)

	decoded := 0
	deps.Decode = func(path string, maxDim int) (image.Image, error) {
		decoded++
		if decoded == 10 {
			cancel()
		}
		return testDecoder(path, maxDim)
	}
	o := New(deps)

	report, err := o.Run(ctx, Options{Stages: []Stage{StageHash}})
	if err != nil {
		t.Fatalf("cancellation is a normal terminal state, got error: %v", err)
	}
	if report.State != StateCancelled {
		t.Errorf("state = %s; want cancelled", report.State)
	}
	if report.Processed == 0 || report.Processed >= 40 {
		t.Errorf("expected a partial run, processed=%d", report.Processed)
	}

	// Already persisted results stay valid.
	hashes, _ := st.ListHashes(ctx)
	if len(hashes) == 0 {
		t.Error("persisted per-item results must survive cancellation")
	}
}

func TestRun_ProgressReporting(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	o := New(testDeps(testItems(7), st))

	var updates []Progress
	_, err := o.Run(ctx, Options{
		Stages:     []Stage{StageHash},
		BatchSize:  3,
		OnProgress: func(p Progress) { updates = append(updates, p) },
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(updates) != 7 {
		t.Fatalf("expected progress after every item, got %d updates", len(updates))
	}
	last := updates[len(updates)-1]
	if last.Done != 7 || last.Total != 7 {
		t.Errorf("final progress = %d/%d; want 7/7", last.Done, last.Total)
	}
	if last.Batch != 2 {
		t.Errorf("final batch index = %d; want 2", last.Batch)
	}
	for i, p := range updates {
		if p.Done != i+1 {
			t.Errorf("update %d has done=%d; want %d", i, p.Done, i+1)
		}
	}
}

func TestRun_SingleItem(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	o := New(testDeps(testItems(5), st))

	report, err := o.Run(ctx, Options{ItemID: "item003", Stages: []Stage{StageHash}})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 || report.Processed != 1 {
		t.Errorf("total=%d processed=%d; want 1/1", report.Total, report.Processed)
	}
	if has, _ := st.HasHash(ctx, "item003"); !has {
		t.Error("requested item not processed")
	}
	if has, _ := st.HasHash(ctx, "item000"); has {
		t.Error("other items must not be touched in single-item mode")
	}
}

func TestRun_UnknownItemFails(t *testing.T) {
	st := memory.New()
	o := New(testDeps(testItems(2), st))

	if _, err := o.Run(context.Background(), Options{ItemID: "missing"}); err == nil {
		t.Error("expected error for unknown item id")
	}
}

func TestRun_VideosSkipped(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	items := testItems(2)
	items[1].IsVideo = true
	o := New(testDeps(items, st))

	report, err := o.Run(ctx, Options{Stages: []Stage{StageHash}})
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 || report.Skipped != 1 {
		t.Errorf("processed=%d skipped=%d; want 1/1", report.Processed, report.Skipped)
	}
}

func TestRun_NotReentrant(t *testing.T) {
	st := memory.New()
	deps := testDeps(testItems(3), st)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	deps.Decode = func(path string, maxDim int) (image.Image, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return testDecoder(path, maxDim)
	}
	o := New(deps)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Options{Stages: []Stage{StageHash}})
		done <- err
	}()

	<-started
	if _, err := o.Run(context.Background(), Options{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}

	if o.State() != StateSucceeded {
		t.Errorf("state = %s; want succeeded", o.State())
	}
}
