package browser

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// IndexFile is written next to the recording and maps each item ordinal to
// the first frame at which it was ready.
const IndexFile = "recording-index.json"

const frameBuffer = 64

// IndexEntry is one row of the recording index.
type IndexEntry struct {
	Order int `json:"order"`
	Frame int `json:"frame"`
}

// recorder feeds screencast frames to an encoder on its own goroutine so
// the CDP event loop never blocks on ffmpeg.
type recorder struct {
	enc       io.WriteCloser
	indexPath string
	logger    *zap.Logger
	frames    chan []byte
	done      chan struct{}

	mu       sync.Mutex
	written  int
	dropped  int
	writeErr error
	marks    []IndexEntry
	stopped  bool
}

func newRecorder(enc io.WriteCloser, indexPath string, logger *zap.Logger) *recorder {
	r := &recorder{
		enc:       enc,
		indexPath: indexPath,
		logger:    logger,
		frames:    make(chan []byte, frameBuffer),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *recorder) loop() {
	defer close(r.done)
	for frame := range r.frames {
		if _, err := r.enc.Write(frame); err != nil {
			r.mu.Lock()
			if r.writeErr == nil {
				r.writeErr = err
			}
			r.mu.Unlock()
			continue
		}
		r.mu.Lock()
		r.written++
		r.mu.Unlock()
	}
}

// pushEncoded queues a base64 frame from a screencast event.
func (r *recorder) pushEncoded(data string) {
	frame, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		r.logger.Debug("discarding undecodable frame", zap.Error(err))
		return
	}
	r.push(frame)
}

// push queues a frame, dropping it when the encoder is behind.
func (r *recorder) push(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	select {
	case r.frames <- frame:
	default:
		r.dropped++
	}
}

func (r *recorder) mark(order int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, IndexEntry{Order: order, Frame: r.written})
}

// stop drains queued frames, closes the encoder and writes the index.
func (r *recorder) stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.frames)
	r.mu.Unlock()
	<-r.done

	var errs []error
	if err := r.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close encoder: %w", err))
	}

	r.mu.Lock()
	marks := append([]IndexEntry{}, r.marks...)
	written, dropped, writeErr := r.written, r.dropped, r.writeErr
	r.mu.Unlock()

	if writeErr != nil {
		errs = append(errs, fmt.Errorf("write frame: %w", writeErr))
	}
	data, err := json.MarshalIndent(marks, "", "  ")
	if err == nil {
		err = os.WriteFile(r.indexPath, data, 0o600)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("write recording index: %w", err))
	}
	r.logger.Info("recording stopped", zap.Int("frames", written), zap.Int("dropped", dropped))
	return errors.Join(errs...)
}

func indexPath(recordingPath string) string {
	return filepath.Join(filepath.Dir(recordingPath), IndexFile)
}

// ffmpegArgs encodes a stream of JPEG images from stdin into VP9 webm.
func ffmpegArgs(fps int, out string) []string {
	rate := strconv.Itoa(fps)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "image2pipe",
		"-framerate", rate,
		"-c:v", "mjpeg",
		"-i", "-",
		"-c:v", "libvpx-vp9",
		"-deadline", "realtime",
		"-pix_fmt", "yuv420p",
		"-r", rate,
		out,
	}
}

// ffmpegEncoder is the stdin of a running ffmpeg process. Close waits for
// the process to finish writing the container.
type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *strings.Builder
}

func startFFmpeg(bin string, fps int, out string) (*ffmpegEncoder, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("recording encoder unavailable: %w", err)
	}
	// #nosec G204 -- binary and output path come from configuration.
	cmd := exec.Command(bin, ffmpegArgs(fps, out)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr := &strings.Builder{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegEncoder{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func (e *ffmpegEncoder) Write(p []byte) (int, error) {
	return e.stdin.Write(p)
}

func (e *ffmpegEncoder) Close() error {
	closeErr := e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(e.stderr.String()))
	}
	return closeErr
}
