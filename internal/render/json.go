package render

import (
	"encoding/json"
	"io"

	"sniff-go/internal/changes"
)

// JSONFormatter writes the wire form of a changeset as indented JSON. With a
// Location set, timestamps are shown in that zone instead of UTC.
type JSONFormatter struct {
	opts Options
}

// Format writes the formatted output to w.
func (f *JSONFormatter) Format(w io.Writer, cs *changes.Changeset[changes.Timestamp]) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(View(cs, f.opts.Location))
}

var _ Formatter = (*JSONFormatter)(nil)
