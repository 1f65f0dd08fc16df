package sink

import "context"

// Sink is a destination for formatted event lines. Implementations append
// their own record separator. Construction validates the destination
// eagerly (DNS, file path, broker reachability) so a bad configuration
// fails before any extraction begins, never mid-stream.
type Sink interface {
	Write(ctx context.Context, line string) error
	Close() error
}
