package types

import "errors"

// Error kinds surfaced to whichever collaborator triggered an operation.
var (
	// ErrModelLoad means the detector cascade is missing or unparsable.
	ErrModelLoad = errors.New("face detection model unavailable")
	// ErrIO means the gallery directory could not be read or written.
	ErrIO = errors.New("gallery i/o failure")
	// ErrNoFrame means enrollment was requested before any frame was captured.
	ErrNoFrame = errors.New("no frame available")
	// ErrNoFace means the current frame contains no detectable face.
	ErrNoFace = errors.New("no face found")
	// ErrTraining means the recognizer could not be rebuilt; the previous model is still installed.
	ErrTraining = errors.New("recognizer training failed")
	// ErrCaptureUnavailable means no device/backend combination could be opened.
	ErrCaptureUnavailable = errors.New("no capture device available")
	// ErrEmptyName means the operator supplied a blank identity name.
	ErrEmptyName = errors.New("identity name is empty")
)
