package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"sniff-go/internal/changes"
)

// TextFormatter writes one line per path prefixed with a kind indicator,
// followed by one indented line per changed attribute and a summary.
//
//	A  added path
//	D  deleted path
//	M  metadata-only change
//	E  entry content change
type TextFormatter struct {
	opts Options
}

type palette struct {
	added, deleted, meta, entry, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		added:   color.New(color.FgGreen),
		deleted: color.New(color.FgRed),
		meta:    color.New(color.FgYellow),
		entry:   color.New(color.FgCyan),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.added, p.deleted, p.meta, p.entry, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) forKind(k changes.Kind) (*color.Color, string) {
	switch k {
	case changes.KindAdded:
		return p.added, "A"
	case changes.KindDeleted:
		return p.deleted, "D"
	case changes.KindMetaOnlyChange:
		return p.meta, "M"
	case changes.KindEntryChange:
		return p.entry, "E"
	default:
		return p.dim, "?"
	}
}

// Format writes the formatted output to w.
func (f *TextFormatter) Format(w io.Writer, cs *changes.Changeset[changes.Timestamp]) error {
	p := newPalette(f.opts.Color)
	view := View(cs, f.opts.Location)

	var b strings.Builder
	fmt.Fprintf(&b, "earliest timestamp: %s\n", view.EarliestTimestamp)
	for path, diff := range view.All() {
		c, indicator := p.forKind(diff.Kind())
		fmt.Fprintf(&b, "%s %s\n", c.Sprint(indicator), path)
		for _, line := range describeDiff(diff) {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	s := changes.Summarize(cs)
	fmt.Fprintln(&b, p.dim.Sprint(summaryLine(s)))

	_, err := io.WriteString(w, b.String())
	return err
}

func summaryLine(s changes.Summary) string {
	line := fmt.Sprintf("%d paths: %d added, %d deleted, %d metadata-only, %d changed",
		s.Total(), s.Added, s.Deleted, s.MetaOnlyChange, s.EntryChange)
	if s.Grown+s.Shrunk > 0 {
		line += fmt.Sprintf("; size %s", SignedBytes(s.SizeDelta))
	}
	return line
}

// SignedBytes formats a size delta such as "+1.2 kB" or "-300 B".
func SignedBytes(delta int64) string {
	switch {
	case delta < 0:
		// two's complement negation is exact for MinInt64 once unsigned
		return signedMagnitude(-1, -uint64(delta))
	case delta > 0:
		return signedMagnitude(1, uint64(delta))
	default:
		return signedMagnitude(0, 0)
	}
}

func signedMagnitude(sign int, mag uint64) string {
	switch sign {
	case -1:
		return "-" + humanize.Bytes(mag)
	case 1:
		return "+" + humanize.Bytes(mag)
	default:
		return "0 B"
	}
}

func describeDiff(d changes.MetaEntryDiff[string]) []string {
	var lines []string
	if entry, ok := d.Entry(); ok {
		lines = append(lines, describeEntry(entry))
	}

	info := d.MetaInfo()
	for _, c := range info.Changes {
		lines = append(lines, describeMetadata(c))
	}
	if c, ok := info.Inode.Change(); ok {
		lines = append(lines, "inode: "+optional(c.From, u64String)+" -> "+optional(c.To, u64String))
	}
	for _, ts := range []struct {
		name string
		m    changes.MaybeChange[*string]
	}{
		{"created", info.Created},
		{"modified", info.Modified},
		{"accessed", info.Accessed},
		{"inode modified", info.InodeModified},
	} {
		if c, ok := ts.m.Change(); ok {
			lines = append(lines, ts.name+": "+optional(c.From, identity)+" -> "+optional(c.To, identity))
		}
	}
	return lines
}

func describeEntry(e changes.EntryDiff) string {
	switch e := e.(type) {
	case changes.FileChanged:
		return fmt.Sprintf("content: %s -> %s", e.HashChange.From.Short(), e.HashChange.To.Short())
	case changes.SymlinkChanged:
		return fmt.Sprintf("target: %s -> %s", e.PathChange.From, e.PathChange.To)
	case changes.TypeChange:
		return fmt.Sprintf("type: %s -> %s", e.From, e.To)
	case changes.OtherChange:
		return "content changed"
	default:
		return fmt.Sprintf("unhandled entry diff %T", e)
	}
}

func describeMetadata(c changes.MetadataChange) string {
	switch c := c.(type) {
	case changes.SizeChange:
		return fmt.Sprintf("size: %s -> %s (%s)",
			humanize.Bytes(c.From), humanize.Bytes(c.To), signedMagnitude(c.Delta()))
	case changes.NtfsAttributesChange:
		return "ntfs attributes: " + optional(c.From, hex32) + " -> " + optional(c.To, hex32)
	case changes.UnixPermissionsChange:
		return "mode: " + optional(c.From, octal32) + " -> " + optional(c.To, octal32)
	case changes.NlinkChange:
		return "links: " + optional(c.From, u64String) + " -> " + optional(c.To, u64String)
	case changes.UidChange:
		return "uid: " + optional(c.From, u32String) + " -> " + optional(c.To, u32String)
	case changes.GidChange:
		return "gid: " + optional(c.From, u32String) + " -> " + optional(c.To, u32String)
	case changes.NamedStreamChange:
		return fmt.Sprintf("stream %s: %s -> %s", c.Stream, streamSize(c.Change.From), streamSize(c.Change.To))
	default:
		return fmt.Sprintf("unhandled metadata change %T", c)
	}
}

func streamSize(b []byte) string {
	if b == nil {
		return "absent"
	}
	return humanize.Bytes(uint64(len(b)))
}

func optional[T any](v *T, format func(T) string) string {
	if v == nil {
		return "-"
	}
	return format(*v)
}

func identity(s string) string {
	return s
}

func u32String(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func u64String(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func octal32(v uint32) string {
	return fmt.Sprintf("%04o", v)
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

var _ Formatter = (*TextFormatter)(nil)
