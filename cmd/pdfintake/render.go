package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusPending:
		return "…"
	case models.StatusUploading:
		return "↑"
	case models.StatusSuccess:
		return "✓"
	case models.StatusError:
		return "✗"
	}
	return "?"
}

func statusColors(s models.Status) text.Colors {
	switch s {
	case models.StatusUploading:
		return text.Colors{text.FgBlue}
	case models.StatusSuccess:
		return text.Colors{text.FgGreen}
	case models.StatusError:
		return text.Colors{text.FgRed}
	}
	return text.Colors{text.FgHiBlack}
}

func statusLabel(s models.Status, colorize bool) string {
	label := statusIcon(s) + " " + s.String()
	if !colorize {
		return label
	}
	return statusColors(s).Sprint(label)
}

// renderEntries draws one row per entry in list order.
func renderEntries(entries []models.Entry, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Name", "Size", "Status", "Error"})
	for _, e := range entries {
		tw.AppendRow(table.Row{
			e.Seq,
			e.Name,
			humanize.Bytes(uint64(e.Size)),
			statusLabel(e.Status, colorize),
			e.Error,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render()
}

// renderTransition formats one progress line. Appends read as queued.
func renderTransition(t models.Transition, colorize bool) string {
	label := statusLabel(t.To, colorize)
	if t.From == t.To {
		label = statusLabel(models.StatusPending, colorize) + " (queued)"
	}
	line := fmt.Sprintf("%3d  %-40s %s", t.Seq, t.Name, label)
	if t.Error != "" {
		line += ": " + t.Error
	}
	return line
}

func summarize(entries []models.Entry) string {
	counts := make(map[models.Status]int)
	for _, e := range entries {
		counts[e.Status]++
	}
	parts := []string{fmt.Sprintf("%d succeeded", counts[models.StatusSuccess])}
	if n := counts[models.StatusError]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	if n := counts[models.StatusPending] + counts[models.StatusUploading]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d unfinished", n))
	}
	return strings.Join(parts, ", ")
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
