package enroll

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/pipeline"
	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/types"
)

type fakeDetector struct {
	boxes []image.Rectangle
}

func (d fakeDetector) Detect(*image.Gray) ([]image.Rectangle, error) {
	return d.boxes, nil
}

type stubClassifier struct{ trainedOn []int }

func (c *stubClassifier) Predict(*image.Gray) (int, float64) { return 0, 1 }
func (c *stubClassifier) Close() error                       { return nil }

type latest struct{ f *types.Frame }

func (l latest) Latest() *types.Frame { return l.f }

type recorder struct{ paths []string }

func (r *recorder) RecordEnrollment(_ context.Context, _ string, path string) error {
	r.paths = append(r.paths, path)
	return nil
}

type harness struct {
	store   *gallery.Store
	slot    *recognizer.Slot
	trainer *recognizer.Trainer
	fail    bool
	trains  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := gallery.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{store: store, slot: recognizer.NewSlot(80)}
	h.trainer = recognizer.NewTrainer(store, func(s []*image.Gray, l []int) (recognizer.Classifier, error) {
		h.trains++
		if h.fail {
			return nil, errors.New("opencv said no")
		}
		return &stubClassifier{trainedOn: l}, nil
	}, h.slot, 80)
	return h
}

func testFrame() *types.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = byte(i % 251)
	}
	return &types.Frame{Seq: 1, Timestamp: time.Now(), Image: img}
}

var oneFace = fakeDetector{boxes: []image.Rectangle{image.Rect(30, 20, 90, 80), image.Rect(100, 10, 150, 60)}}

func TestEnrollSavesAndRetrains(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	e := New(h.store, oneFace, h.trainer, latest{testFrame()}, rec)

	res, err := e.Enroll(context.Background(), "Ali Veli!!")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.Identity != "ali_veli" || res.Index != 1 || !res.Ready || res.Labels != 1 {
		t.Errorf("result = %+v", res)
	}
	if filepath.Base(res.Path) != "ali_veli_1.jpg" {
		t.Errorf("path = %s", res.Path)
	}
	if len(rec.paths) != 1 || rec.paths[0] != res.Path {
		t.Errorf("recorder saw %v", rec.paths)
	}
	if !h.slot.Snapshot().Ready() {
		t.Error("model not installed after enrollment")
	}

	img, err := h.store.Load(gallery.Entry{Path: res.Path})
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != types.SampleSize || img.Bounds().Dy() != types.SampleSize {
		t.Errorf("saved sample is %v", img.Bounds())
	}

	res, err = e.Enroll(context.Background(), "ali veli")
	if err != nil || res.Index != 2 || res.Labels != 1 {
		t.Errorf("second enrollment = %+v, %v", res, err)
	}
}

func TestEnrollNoFaceLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	e := New(h.store, oneFace, h.trainer, latest{testFrame()}, nil)
	if _, err := e.Enroll(context.Background(), "ayse"); err != nil {
		t.Fatal(err)
	}
	before := h.slot.Snapshot()
	trains := h.trains

	e = New(h.store, fakeDetector{}, h.trainer, latest{testFrame()}, nil)
	_, err := e.Enroll(context.Background(), "mehmet")
	if !errors.Is(err, types.ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", err)
	}

	entries, _ := h.store.List()
	if len(entries) != 1 {
		t.Errorf("gallery has %d entries, want 1", len(entries))
	}
	if h.slot.Snapshot() != before || h.trains != trains {
		t.Error("model changed after a failed enrollment")
	}
}

func TestEnrollErrorKinds(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		input string
		det   pipeline.Detector
		frame *types.Frame
		want  error
	}{
		{"blank name", "   ", oneFace, testFrame(), types.ErrEmptyName},
		{"no frame yet", "ayse", oneFace, nil, types.ErrNoFrame},
		{"empty frame", "ayse", oneFace, &types.Frame{}, types.ErrNoFrame},
		{"detector unavailable", "ayse", pipeline.DisabledDetector{}, testFrame(), types.ErrModelLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(h.store, tt.det, h.trainer, latest{tt.frame}, nil)
			if _, err := e.Enroll(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if entries, _ := h.store.List(); len(entries) != 0 {
		t.Errorf("failed enrollments wrote %d samples", len(entries))
	}
}

func TestEnrollSymbolOnlyNameFallsBack(t *testing.T) {
	h := newHarness(t)
	e := New(h.store, oneFace, h.trainer, nil, nil)
	res, err := e.EnrollFrame(context.Background(), "***", testFrame())
	if err != nil {
		t.Fatal(err)
	}
	if res.Identity != "user" {
		t.Errorf("identity = %q, want user", res.Identity)
	}
}

func TestEnrollTrainingFailureKeepsPreviousModel(t *testing.T) {
	h := newHarness(t)
	e := New(h.store, oneFace, h.trainer, latest{testFrame()}, nil)
	if _, err := e.Enroll(context.Background(), "ayse"); err != nil {
		t.Fatal(err)
	}
	before := h.slot.Snapshot()

	h.fail = true
	res, err := e.Enroll(context.Background(), "mehmet")
	if !errors.Is(err, types.ErrTraining) {
		t.Fatalf("expected ErrTraining, got %v", err)
	}
	if res.Path == "" {
		t.Error("sample path missing from a result whose save succeeded")
	}
	if h.slot.Snapshot() != before {
		t.Error("previous model replaced after failed training")
	}
}

func TestEnrollGalleryMissing(t *testing.T) {
	h := newHarness(t)
	if err := os.RemoveAll(h.store.Dir()); err != nil {
		t.Fatal(err)
	}
	e := New(h.store, oneFace, h.trainer, latest{testFrame()}, nil)
	if _, err := e.Enroll(context.Background(), "ayse"); !errors.Is(err, types.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

type recordingDetector struct {
	seen *image.Gray
}

func (d *recordingDetector) Detect(gray *image.Gray) ([]image.Rectangle, error) {
	d.seen = gray
	return []image.Rectangle{image.Rect(0, 0, 40, 40)}, nil
}

func TestEnrollDetectsOnMirroredFrame(t *testing.T) {
	h := newHarness(t)
	det := &recordingDetector{}

	// Bright left half, dark right half.
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
		}
	}

	if _, err := New(h.store, det, h.trainer, nil, nil).EnrollFrame(context.Background(), "eve", &types.Frame{Seq: 1, Image: img}); err != nil {
		t.Fatalf("EnrollFrame: %v", err)
	}
	if det.seen == nil {
		t.Fatal("detector never ran")
	}
	if left, right := det.seen.GrayAt(10, 10).Y, det.seen.GrayAt(90, 10).Y; left > 50 || right < 200 {
		t.Errorf("detector saw left=%d right=%d, want the frame mirrored", left, right)
	}
}
