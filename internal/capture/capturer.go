package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// stderrLimit bounds how much command stderr is kept for error messages.
const stderrLimit = 4096

// waitDelay is how long Wait lingers for output pipes after the process
// group is killed.
const waitDelay = time.Second

// Capturer produces one JPEG frame.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context) ([]byte, error)

// Capture calls f(ctx).
func (f CapturerFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

// ExecCapturer runs a command that writes a JPEG to stdout.
type ExecCapturer struct {
	Binary string
	Args   []string

	// Env adds key=value pairs to the inherited environment.
	Env []string
}

// NewExecCapturer returns an ExecCapturer for binary and args.
func NewExecCapturer(binary string, args []string) *ExecCapturer {
	return &ExecCapturer{Binary: binary, Args: args}
}

// Capture runs the command once. Cancelling ctx kills the whole process group.
func (e *ExecCapturer) Capture(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.Binary, e.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the group created via Setpgid.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stdout bytes.Buffer
	stderr := &limitedBuffer{max: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrCaptureFailed, e.Binary, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCaptureFailed, e.Binary, err)
	}

	return checkJPEG(stdout.Bytes())
}

// FileCapturer returns the contents of a still image.
type FileCapturer struct {
	Path string
}

// NewFileCapturer returns a FileCapturer reading path.
func NewFileCapturer(path string) *FileCapturer {
	return &FileCapturer{Path: path}
}

// Capture reads the image from disk.
func (f *FileCapturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading still image: %w", err)
	}
	return checkJPEG(data)
}

func checkJPEG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, ErrNotJPEG
	}
	return data, nil
}

// limitedBuffer keeps the first max bytes written and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
