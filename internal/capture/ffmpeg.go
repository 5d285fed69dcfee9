package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/andresmejia3/vigil/internal/imaging"
	"github.com/andresmejia3/vigil/internal/utils"
)

const megabyte = 1024 * 1024

// FFmpegDevice decodes a file or stream URL through an ffmpeg subprocess that
// writes MJPEG frames to its stdout.
type FFmpegDevice struct {
	cmd     *utils.SafeCommand
	stdout  io.ReadCloser
	scanner *bufio.Scanner
}

// OpenFFmpeg starts ffmpeg on input. File inputs are paced in real time.
func OpenFFmpeg(input string, opt utils.FFmpegOptions) (*FFmpegDevice, error) {
	cmd := utils.NewSafeCommand(utils.NewFFmpegCmd(input, opt))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	return &FFmpegDevice{cmd: cmd, stdout: stdout, scanner: scanner}, nil
}

// FFmpegOpener adapts OpenFFmpeg to the Opener signature. The target's index
// and backend are ignored; only its size is used.
func FFmpegOpener(input string, realtime bool) Opener {
	return func(t Target) (Device, error) {
		return OpenFFmpeg(input, utils.FFmpegOptions{Realtime: realtime, Width: t.Width, Height: t.Height})
	}
}

func (d *FFmpegDevice) Read() (*image.RGBA, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, fmt.Errorf("frame scanner failed: %w", err)
		}
		return nil, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(d.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("corrupt frame: %w", err)
	}
	return imaging.ToRGBA(img), nil
}

// Interrupt kills ffmpeg, which ends a Read blocked on a stalled stream.
// Close still reaps the process.
func (d *FFmpegDevice) Interrupt() {
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
}

// Close stops ffmpeg. Logs captured on stderr are returned with the error when
// ffmpeg had already failed on its own.
func (d *FFmpegDevice) Close() error {
	d.stdout.Close()
	if d.cmd.ProcessState == nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	err := d.cmd.Wait()
	if err != nil && d.cmd.Stderr.Len() > 0 {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(d.cmd.Stderr.Bytes()))
	}
	return nil
}
