package format

import (
	"fmt"
	"strings"

	"github.com/donnguyen19/code42cli/internal/domain"
)

const (
	cefVersion = "CEF:0"
	cefVendor  = "Code42"

	// defaultSeverity is used when the record carries no severity field
	// (file-exfiltration events have no intrinsic severity).
	defaultSeverity = 5
)

// fieldMapping pairs a record field name with the CEF extension key it is
// emitted under. Order here is emission order.
type fieldMapping struct {
	field string
	key   string
}

// CEF flattens a record into Common Event Format: a fixed seven-field
// header followed by key=value extension pairs built from a per-service
// mapping table. Fields absent from the record are omitted, never emitted
// as placeholders.
type CEF struct {
	product       string
	sigField      string // record field used as the signature ID
	nameField     string // record field used as the header event name
	severityField string // record field mapped onto the 0-10 scale, "" = fixed default
	mappings      []fieldMapping
}

// NewFileEventCEF builds the CEF formatter for file-exfiltration events.
func NewFileEventCEF() *CEF {
	return &CEF{
		product:   "Advanced Exfiltration Detection",
		sigField:  "eventType",
		nameField: "eventType",
		mappings: []fieldMapping{
			{"insertionTimestamp", "rt"},
			{"actor", "suser"},
			{"osHostName", "shost"},
			{"publicIpAddress", "src"},
			{"fileName", "fname"},
			{"filePath", "filePath"},
			{"fileSize", "fsize"},
			{"md5Checksum", "fileHash"},
			{"exposure", "reason"},
			{"url", "request"},
		},
	}
}

// NewAlertCEF builds the CEF formatter for security alerts.
func NewAlertCEF() *CEF {
	return &CEF{
		product:       "Alerts",
		sigField:      "type",
		nameField:     "name",
		severityField: "severity",
		mappings: []fieldMapping{
			{"createdAt", "rt"},
			{"actor", "suser"},
			{"name", "reason"},
			{"state", "outcome"},
			{"description", "msg"},
		},
	}
}

func (f *CEF) Format(event domain.Event) (string, error) {
	fields, err := event.Fields()
	if err != nil {
		return "", fmt.Errorf("decode record: %w", err)
	}

	var b strings.Builder
	b.WriteString(cefVersion)
	b.WriteByte('|')
	b.WriteString(escapeHeader(cefVendor))
	b.WriteByte('|')
	b.WriteString(escapeHeader(f.product))
	b.WriteString("|1|")
	b.WriteString(escapeHeader(stringField(fields, f.sigField)))
	b.WriteByte('|')
	b.WriteString(escapeHeader(stringField(fields, f.nameField)))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", f.severity(fields))
	b.WriteByte('|')

	first := true
	for _, m := range f.mappings {
		value, ok := fields[m.field]
		if !ok || value == nil {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(m.key)
		b.WriteByte('=')
		b.WriteString(escapeExtension(fmt.Sprintf("%v", value)))
	}

	return b.String(), nil
}

func (f *CEF) severity(fields map[string]any) int {
	if f.severityField == "" {
		return defaultSeverity
	}
	switch strings.ToUpper(stringField(fields, f.severityField)) {
	case "CRITICAL":
		return 10
	case "HIGH":
		return 8
	case "MODERATE", "MEDIUM":
		return 6
	case "LOW":
		return 3
	default:
		return defaultSeverity
	}
}

func stringField(fields map[string]any, name string) string {
	value, ok := fields[name]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

// escapeHeader backslash-escapes the characters reserved in CEF header
// fields: backslash and the pipe separator.
func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `|`, `\|`)
}

// escapeExtension backslash-escapes the characters reserved inside CEF
// extension values: backslash, equals, and pipe.
func escapeExtension(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `=`, `\=`)
	return strings.ReplaceAll(s, `|`, `\|`)
}
