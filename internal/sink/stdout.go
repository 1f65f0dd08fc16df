package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// Stdout writes one line per record to standard output. The writer is
// injectable for tests; logs go to stderr so stdout stays a clean event
// stream.
type Stdout struct {
	w io.Writer
}

// NewStdout creates a stdout sink. A nil writer defaults to os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w}
}

func (s *Stdout) Write(_ context.Context, line string) error {
	if _, err := fmt.Fprintln(s.w, line); err != nil {
		return &domain.TransportError{Op: "write stdout", Err: err}
	}
	return nil
}

func (s *Stdout) Close() error {
	return nil
}
