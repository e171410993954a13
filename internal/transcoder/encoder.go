package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// Encode parameters for web playback.
const (
	MaxWidth     = 1280
	CRF          = 23
	AudioBitrate = "128k"
	OutputSuffix = "_web.mp4"
)

// ErrTranscode wraps every encoder failure.
var ErrTranscode = errors.New("transcode failed")

// Encoder converts one input file into a web-friendly output file.
type Encoder interface {
	Encode(ctx context.Context, input, output string) error
}

// OutputName derives the transcoded file name from a stored name.
func OutputName(stored string) string {
	return strings.TrimSuffix(stored, filepath.Ext(stored)) + OutputSuffix
}

// Args returns the ffmpeg arguments for one conversion: width capped at
// MaxWidth with the aspect ratio kept, H.264 at a fixed CRF, AAC audio and
// the moov atom moved to the front for progressive download.
func Args(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", MaxWidth),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", fmt.Sprintf("%d", CRF),
		"-c:a", "aac",
		"-b:a", AudioBitrate,
		"-movflags", "+faststart",
		output,
	}
}

// FFmpegEncoder runs ffmpeg as a subprocess and tracks running processes so
// they can be killed on shutdown.
type FFmpegEncoder struct {
	path      string
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// NewFFmpegEncoder creates an encoder that runs the binary at path
// ("ffmpeg" resolves through PATH).
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{
		path:      path,
		processes: make(map[string]*exec.Cmd),
	}
}

// Encode runs one conversion. Partial output is removed on failure.
func (e *FFmpegEncoder) Encode(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, e.path, Args(input, output)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.processMu.Lock()
	e.processes[output] = cmd
	e.processMu.Unlock()

	defer func() {
		e.processMu.Lock()
		delete(e.processes, output)
		e.processMu.Unlock()
	}()

	logging.Debug("Running %s %s", e.path, strings.Join(Args(input, output), " "))

	if err := cmd.Run(); err != nil {
		if rmErr := os.Remove(output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logging.Warn("failed to remove partial output %s: %v", output, rmErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", ErrTranscode, filepath.Base(input), ctx.Err())
		}
		logging.Error("FFmpeg stderr for %s: %s", filepath.Base(input), lastLines(stderr.String(), 10))
		return fmt.Errorf("%w: %s: %w", ErrTranscode, filepath.Base(input), err)
	}

	return nil
}

// Cleanup kills every running ffmpeg process.
func (e *FFmpegEncoder) Cleanup() {
	e.processMu.Lock()
	defer e.processMu.Unlock()

	for path, cmd := range e.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoding process for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for %s: %v", path, err)
			}
		}
	}
}

// Running returns the number of tracked processes.
func (e *FFmpegEncoder) Running() int {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	return len(e.processes)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
