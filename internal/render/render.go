// Package render turns changesets into text, JSON or YAML for people and
// scripts.
package render

import (
	"fmt"
	"io"
	"time"

	"sniff-go/internal/changes"
)

// zonedLayout is used when timestamps are shown in a zone other than the
// canonical UTC form.
const zonedLayout = "2006-01-02 15:04:05.999999999 MST"

// Formatter writes a changeset to w.
type Formatter interface {
	Format(w io.Writer, cs *changes.Changeset[changes.Timestamp]) error
}

// Options control how a changeset is rendered.
type Options struct {
	// Location for timestamps. Nil keeps the canonical UTC form.
	Location *time.Location
	// Color enables ANSI colors in text output.
	Color bool
}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string, opts Options) (Formatter, error) {
	switch name {
	case "", "text":
		return &TextFormatter{opts: opts}, nil
	case "json":
		return &JSONFormatter{opts: opts}, nil
	case "yaml":
		return &YAMLFormatter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", name)
	}
}

// View converts every timestamp in cs to its display string in loc.
func View(cs *changes.Changeset[changes.Timestamp], loc *time.Location) *changes.Changeset[string] {
	return changes.TransformChangeset(cs, func(ts changes.Timestamp) string {
		return formatTimestamp(ts, loc)
	})
}

func formatTimestamp(ts changes.Timestamp, loc *time.Location) string {
	if loc == nil {
		return ts.String()
	}
	return ts.Time().In(loc).Format(zonedLayout)
}
