package capture

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestFFmpegRunner_missing_binary(t *testing.T) {
	r := NewFFmpegRunner(filepath.Join(t.TempDir(), "missing"))

	err := r.Run(context.Background(), []string{"-version"})

	var ee *ExitError
	require.True(t, errors.As(err, &ee), "expected *ExitError, got %T", err)
	assert.Equal(t, -1, ee.Code)
	assert.Empty(t, ee.Detail)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestFFmpegRunner_exit_code_and_stderr_tail(t *testing.T) {
	requireShell(t)
	r := NewFFmpegRunner("sh")

	err := r.Run(context.Background(), []string{"-c", "echo noise >&2; echo boom >&2; exit 3"})

	var ee *ExitError
	require.True(t, errors.As(err, &ee), "expected *ExitError, got %T", err)
	assert.Equal(t, 3, ee.Code)
	assert.Equal(t, "boom", ee.Detail)
	assert.Equal(t, "exit code 3: boom", err.Error())
}

func TestFFmpegRunner_success(t *testing.T) {
	requireShell(t)

	err := NewFFmpegRunner("sh").Run(context.Background(), []string{"-c", "exit 0"})

	assert.NoError(t, err)
}

func TestFFmpegRunner_context_kills_child(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewFFmpegRunner("sh").Run(ctx, []string{"-c", "exec sleep 10"})

	var ee *ExitError
	require.True(t, errors.As(err, &ee), "expected *ExitError, got %T", err)
	assert.Equal(t, -1, ee.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewFFmpegRunner_default_path(t *testing.T) {
	assert.Equal(t, DefaultFFmpegPath, NewFFmpegRunner("").Path)
}

func TestTailBuffer_keeps_last_bytes(t *testing.T) {
	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))

	assert.Equal(t, "456789ab", b.String())
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "last", lastLine("first\nsecond\n  last  \n\n"))
	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, "only", lastLine("only"))
}
