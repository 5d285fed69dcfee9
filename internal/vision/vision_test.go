package vision

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/vigil/internal/capture"
	"github.com/andresmejia3/vigil/internal/types"
	"gocv.io/x/gocv"
)

func TestLoadCascadeMissing(t *testing.T) {
	_, err := LoadCascade(filepath.Join(t.TempDir(), "nope.xml"))
	if !errors.Is(err, types.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestLoadCascadeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xml")
	if err := os.WriteFile(path, []byte("not a cascade"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCascade(path); !errors.Is(err, types.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestDetectAfterClose(t *testing.T) {
	c := &Cascade{classifier: gocv.NewCascadeClassifier()}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	_, err := c.Detect(image.NewGray(image.Rect(0, 0, 64, 64)))
	if !errors.Is(err, ErrCascadeClosed) {
		t.Fatalf("Detect after Close = %v, want ErrCascadeClosed", err)
	}
}

func TestOpenCameraUnknownBackend(t *testing.T) {
	if _, err := OpenCamera(capture.Target{Index: 0, Backend: "firewire"}); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestTrainLBPHSeparatesPatterns(t *testing.T) {
	stripes := func(vertical bool) *image.Gray {
		img := image.NewGray(image.Rect(0, 0, types.SampleSize, types.SampleSize))
		for y := 0; y < types.SampleSize; y++ {
			for x := 0; x < types.SampleSize; x++ {
				v := x
				if !vertical {
					v = y
				}
				if (v/5)%2 == 0 {
					img.Pix[y*img.Stride+x] = 255
				}
			}
		}
		return img
	}

	c, err := TrainLBPH([]*image.Gray{stripes(true), stripes(false)}, []int{0, 1})
	if err != nil {
		t.Fatalf("TrainLBPH: %v", err)
	}
	defer c.Close()

	if label, dist := c.Predict(stripes(false)); label != 1 || dist > 1e-6 {
		t.Errorf("Predict() = %d, %f; want 1, 0", label, dist)
	}
}

func TestTrainLBPHRejectsMismatch(t *testing.T) {
	if _, err := TrainLBPH(nil, nil); err == nil {
		t.Error("expected an error for an empty training set")
	}
}
