// Package display renders TS records for a console.
package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/thavlik/tsmeta/tsfile"
)

// Placeholder stands in for a field the TS file did not provide.
const Placeholder = "-"

// Renderer writes records in a fixed field order.
type Renderer struct {
	Out   io.Writer
	title *color.Color
	label *color.Color
}

// NewRenderer returns a Renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		Out:   out,
		title: color.New(color.FgCyan, color.Bold),
		label: color.New(color.FgYellow),
	}
}

// Fields returns the label/value pairs shown for rec.
func Fields(rec *tsfile.Record) [][2]string {
	model := Placeholder
	if rec.ModelNumber != nil {
		model = strconv.Itoa(*rec.ModelNumber)
	}
	return [][2]string{
		{"Stoichiometry", orPlaceholder(rec.Stoichiometry)},
		{"Author", orPlaceholder(rec.Author)},
		{"Method", orPlaceholder(rec.Method)},
		{"Score(s)", orPlaceholder(strings.Join(rec.Scores, ", "))},
		{"Model", model},
		{"Source", orPlaceholder(rec.SourceName)},
	}
}

// Render writes rec under a heading naming key.
func (r *Renderer) Render(key string, rec *tsfile.Record) {
	r.title.Fprintf(r.Out, "=== TS metadata for: %s ===\n", key)
	if rec == nil {
		fmt.Fprintln(r.Out, "  (no TS metadata available)")
		return
	}
	for _, f := range Fields(rec) {
		r.label.Fprintf(r.Out, "%s: ", f[0])
		fmt.Fprintln(r.Out, f[1])
	}
}

// Message writes a plain status line.
func (r *Renderer) Message(format string, args ...interface{}) {
	fmt.Fprintf(r.Out, format+"\n", args...)
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}
