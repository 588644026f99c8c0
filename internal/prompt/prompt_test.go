package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestInteractiveConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase y", "y\n", true},
		{"uppercase Y", "Y\n", true},
		{"lowercase yes", "yes\n", true},
		{"mixed Yes", "Yes\n", true},
		{"with spaces", "  y  \n", true},
		{"without newline", "yes", true},
		{"lowercase n", "n\n", false},
		{"no", "no\n", false},
		{"empty input", "\n", false},
		{"eof", "", false},
		{"other word", "maybe\n", false},
		{"yes with suffix", "yesplease\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			p := NewInteractive(strings.NewReader(tt.input), out)

			got, err := p.Confirm(context.Background(), "Delete 2 environments?")
			if err != nil {
				t.Fatalf("Confirm() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if out.String() != "Delete 2 environments? [y/N]: " {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestInteractiveConfirmReadError(t *testing.T) {
	p := NewInteractive(failingReader{}, io.Discard)
	if _, err := p.Confirm(context.Background(), "Continue?"); err == nil {
		t.Error("Confirm() expected error")
	}
}

func TestInteractiveConfirmCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewInteractive(r, io.Discard)
	got, err := p.Confirm(ctx, "Continue?")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() error = %v, want context.Canceled", err)
	}
	if got {
		t.Error("Confirm() = true after cancellation")
	}

	// The abandoned reader is still waiting and consumes the next line.
	written := make(chan error, 1)
	go func() {
		_, err := w.Write([]byte("y\n"))
		written <- err
	}()
	select {
	case err := <-written:
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("cancelled Confirm left no reader on the input")
	}
}

func TestNonInteractive(t *testing.T) {
	got, err := NonInteractive{}.Confirm(context.Background(), "Continue?")
	if !errors.Is(err, ErrNonInteractive) {
		t.Errorf("error = %v, want ErrNonInteractive", err)
	}
	if got {
		t.Error("NonInteractive confirmed")
	}
}

func TestNewWithoutTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, ok := New(f, io.Discard).(NonInteractive); !ok {
		t.Error("New() with a regular file should be non-interactive")
	}
}
