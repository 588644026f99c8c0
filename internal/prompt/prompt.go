// Package prompt asks the operator to confirm destructive work.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ErrNonInteractive is returned when confirmation is needed but there is
// no terminal to ask on.
var ErrNonInteractive = errors.New("confirmation required but input is not a terminal (use --yes)")

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// New returns an Interactive confirmer when in is a terminal and a
// NonInteractive one otherwise, so that CI jobs fail instead of hanging.
func New(in *os.File, out io.Writer) Confirmer {
	fd := in.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return NewInteractive(in, out)
	}
	return NonInteractive{}
}

// Interactive reads answers from a line-oriented reader.
type Interactive struct {
	in  *bufio.Reader
	out io.Writer
}

// NewInteractive creates a confirmer reading from in and prompting on out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out}
}

type answer struct {
	line string
	err  error
}

// Confirm prints message with a [y/N] hint and reads one line. Only
// "y" or "yes" (any case) confirm; anything else, including end of
// input, declines.
//
// If ctx is cancelled first, Confirm returns ctx.Err() and the goroutine
// reading the input stays blocked until a line arrives. Cancellation
// only happens while the process is shutting down, so the goroutine is
// left to exit with it.
func (p *Interactive) Confirm(ctx context.Context, message string) (bool, error) {
	if _, err := fmt.Fprintf(p.out, "%s [y/N]: ", message); err != nil {
		return false, err
	}

	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("reading confirmation: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// NonInteractive refuses every confirmation.
type NonInteractive struct{}

// Confirm implements Confirmer.
func (NonInteractive) Confirm(ctx context.Context, message string) (bool, error) {
	return false, ErrNonInteractive
}
