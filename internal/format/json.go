package format

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// JSON re-emits the record exactly as the API returned it, compacted onto
// one line. Key order is preserved end-to-end because the raw bytes are
// never decoded into a map.
type JSON struct{}

func NewJSON() *JSON {
	return &JSON{}
}

func (f *JSON) Format(event domain.Event) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, event.Raw); err != nil {
		return "", fmt.Errorf("compact record: %w", err)
	}
	return buf.String(), nil
}
