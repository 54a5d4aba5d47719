package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestFileCapturer(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"jpeg", write("still.jpg", jpegBytes), nil},
		{"empty", write("empty.jpg", nil), ErrEmptyFrame},
		{"png", write("still.png", []byte{0x89, 'P', 'N', 'G'}), ErrNotJPEG},
		{"missing", filepath.Join(dir, "nope.jpg"), os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewFileCapturer(tt.path).Capture(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Capture() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Capture() error = %v", err)
			}
			if string(data) != string(jpegBytes) {
				t.Errorf("Capture() = %x, want %x", data, jpegBytes)
			}
		})
	}
}

func TestFileCapturer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileCapturer("/dev/null").Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Capture() error = %v, want context.Canceled", err)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecCapturer(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name    string
		script  string
		wantErr error
		wantMsg string
	}{
		{"jpeg on stdout", `printf '\377\330\377\340'`, nil, ""},
		{"no output", `true`, ErrEmptyFrame, ""},
		{"not jpeg", `printf 'hello'`, ErrNotJPEG, ""},
		{"failing command", `echo "no camera detected" >&2; exit 3`, ErrCaptureFailed, "no camera detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewExecCapturer("sh", []string{"-c", tt.script})
			data, err := c.Capture(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Capture() error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
					t.Errorf("Capture() error = %q, want it to contain %q", err, tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Capture() error = %v", err)
			}
			if len(data) != 4 || data[0] != 0xFF || data[1] != 0xD8 {
				t.Errorf("Capture() = %x", data)
			}
		})
	}
}

func TestExecCapturer_Env(t *testing.T) {
	requireShell(t)

	c := NewExecCapturer("sh", []string{"-c", `printf '\377\330%s' "$FRAME_TAG"`})
	c.Env = []string{"FRAME_TAG=xy"}
	data, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !strings.HasSuffix(string(data), "xy") {
		t.Errorf("Capture() = %q, want env value appended", data)
	}
}

func TestExecCapturer_Timeout(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewExecCapturer("sh", []string{"-c", "sleep 10"}).Capture(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Capture() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Capture() took %v after deadline", elapsed)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("defgh")) //nolint:errcheck // never fails
	if n != 5 {
		t.Errorf("Write() = %d, want full length reported", n)
	}
	if b.String() != "abcde" {
		t.Errorf("String() = %q, want %q", b.String(), "abcde")
	}
}
