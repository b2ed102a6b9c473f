package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// DefaultFFmpegPath is the encoder binary looked up on PATH.
const DefaultFFmpegPath = "ffmpeg"

// ProcessRunner runs one external encoder invocation to completion. A nil
// return means exit code 0.
type ProcessRunner interface {
	Run(ctx context.Context, args []string) error
}

// ExitError reports a non-zero exit or a spawn failure.
type ExitError struct {
	Code   int // -1 when the process could not be started or was killed
	Detail string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("exit code %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// FFmpegRunner invokes the ffmpeg binary.
type FFmpegRunner struct {
	Path string
}

// NewFFmpegRunner returns a runner for the given binary path.
func NewFFmpegRunner(path string) *FFmpegRunner {
	if path == "" {
		path = DefaultFFmpegPath
	}
	return &FFmpegRunner{Path: path}
}

// Run starts ffmpeg and waits for it to exit. The context kills the child.
func (r *FFmpegRunner) Run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	stderr := &tailBuffer{max: 4 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &ExitError{Code: -1, Err: fmt.Errorf("failed to start %s: %w", r.Path, err)}
	}
	if err := cmd.Wait(); err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return &ExitError{Code: code, Detail: lastLine(stderr.String()), Err: err}
	}
	return nil
}

// DownloadArgs copies the remote stream verbatim into a container file.
func DownloadArgs(streamURL, videoPath string) []string {
	return []string{"-y", "-i", streamURL, "-c", "copy", videoPath}
}

// ExtractAudioArgs writes 16-bit PCM stereo at 44.1kHz.
func ExtractAudioArgs(videoPath, audioPath string) []string {
	return []string{"-y", "-i", videoPath, "-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2", audioPath}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
