package ui

import (
	"fmt"
	"strings"

	"github.com/bnema/waydmabuf/internal/capture"
	"github.com/charmbracelet/lipgloss"
)

// OutputRow is one wl_output in the outputs listing
type OutputRow struct {
	Name        uint32
	Version     uint32
	Connector   string
	Description string
	Width       int32
	Height      int32
	Refresh     int32 // mHz
	Selected    bool
}

// RenderFrame summarises a completed capture
func RenderFrame(res *capture.Result) string {
	m := res.Metadata

	lines := []string{
		SuccessStyle.Render(IconSuccess) + " " + HeaderStyle.Render(fmt.Sprintf("frame %d ready", res.FrameID)),
		FormatField("size", fmt.Sprintf("%dx%d", m.Width, m.Height)),
		FormatField("offset", fmt.Sprintf("%d,%d", m.OffsetX, m.OffsetY)),
		FormatField("format", fmt.Sprintf("%s (%d)", m.Format, uint32(m.Format))),
		FormatField("modifier", m.Modifier.String()),
		FormatField("buffer", m.BufferFlags.String()),
		FormatField("flags", m.Flags.String()),
		FormatField("objects", fmt.Sprint(m.NumObjects)),
	}
	if !res.Timestamp.IsZero() {
		lines = append(lines, FormatField("timestamp", res.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z")))
	}

	for _, o := range res.Objects {
		lines = append(lines, SubtleStyle.Render(fmt.Sprintf(
			"  #%d plane %d %s size=%d offset=%d stride=%d",
			o.Index, o.PlaneIndex, o.Handle, o.Size, o.Offset, o.Stride)))
	}

	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// RenderSupport reports whether the compositor offers frame export
func RenderSupport(iface string, version uint32, available bool) string {
	if !available {
		return ErrorStyle.Render(IconError) + " " + TextStyle.Render(iface+" not advertised")
	}
	return SuccessStyle.Render(IconSuccess) + " " + TextStyle.Render(fmt.Sprintf("%s v%d", iface, version))
}

// RenderOutputs lists outputs, marking the one a capture would use
func RenderOutputs(rows []OutputRow) string {
	if len(rows) == 0 {
		return WarningStyle.Render(IconWarning + " no outputs advertised")
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Outputs"))
	b.WriteString("\n")
	for _, r := range rows {
		label := fmt.Sprintf("%-8s name=%d v%d", orDash(r.Connector), r.Name, r.Version)
		if r.Width > 0 && r.Height > 0 {
			label += fmt.Sprintf(" %dx%d@%.2fHz", r.Width, r.Height, float64(r.Refresh)/1000)
		}
		if r.Description != "" {
			label += " " + r.Description
		}
		b.WriteString(FormatListItem(label, r.Selected))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
