package format

import "github.com/donnguyen19/code42cli/internal/domain"

// Formatter turns one raw event record into a serialized output line
// (without trailing newline). Implementations are stateless; exactly two
// exist (JSON and CEF) and are selected once at startup, never switched
// on a string at write time.
type Formatter interface {
	Format(event domain.Event) (string, error)
}
