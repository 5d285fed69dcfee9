package vision

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/andresmejia3/vigil/internal/capture"
	"github.com/andresmejia3/vigil/internal/imaging"
	"gocv.io/x/gocv"
)

// Camera is an OpenCV video capture device.
type Camera struct {
	mu    sync.Mutex
	vc    *gocv.VideoCapture
	frame gocv.Mat
}

var backends = map[string]gocv.VideoCaptureAPI{
	"any":   gocv.VideoCaptureAny,
	"v4l2":  gocv.VideoCaptureV4L2,
	"dshow": gocv.VideoCaptureDshow,
	"msmf":  gocv.VideoCaptureMSMF,
	"avf":   gocv.VideoCaptureAVFoundation,
}

// OpenCamera is a capture.Opener for local cameras. Backend "default" lets
// OpenCV choose; the requested size is best effort.
func OpenCamera(t capture.Target) (capture.Device, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	name := strings.ToLower(t.Backend)
	if name == "" || name == "default" {
		vc, err = gocv.OpenVideoCapture(t.Index)
	} else {
		api, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("unknown capture backend %q", t.Backend)
		}
		vc, err = gocv.OpenVideoCaptureWithAPI(t.Index, api)
	}
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%s did not open", t)
	}

	if t.Width > 0 && t.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(t.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(t.Height))
	}
	return &Camera{vc: vc, frame: gocv.NewMat()}, nil
}

// Read grabs the next frame as RGBA. An empty grab is an error; the capture
// loop retries it.
func (c *Camera) Read() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil, capture.ErrClosed
	}
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, errors.New("empty frame")
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("corrupt frame: %w", err)
	}
	return imaging.ToRGBA(img), nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	c.frame.Close()
	err := c.vc.Close()
	c.vc = nil
	return err
}
