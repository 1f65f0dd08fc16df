package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// File appends one line per record to a local file. The file is opened at
// construction so an unwritable path surfaces as a SinkConfigError before
// extraction starts. Writes are unbuffered: an aborted run loses nothing
// already written.
type File struct {
	f    *os.File
	path string
}

// NewFile opens path for appending, creating it if absent.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &domain.SinkConfigError{Dest: path, Err: err}
	}
	return &File{f: f, path: path}, nil
}

func (s *File) Write(_ context.Context, line string) error {
	if _, err := fmt.Fprintln(s.f, line); err != nil {
		return &domain.TransportError{Op: fmt.Sprintf("write file %s", s.path), Err: err}
	}
	return nil
}

// Close syncs and closes the file handle. Called on every exit path,
// including signal interruption.
func (s *File) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
