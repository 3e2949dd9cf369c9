// Package progress reports how far a scan has got.
//
// Two reporters share the Reporter interface: Bar draws a progress bar in
// place and needs a terminal; Plain prints a count every few items and works
// anywhere. New picks one from the configured style and a capability probe
// taken once at startup.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/term"
)

// Reporter advances by one item and reports the new position
type Reporter interface {
	Advance()
}

// Style selects a reporter
type Style string

const (
	StyleAuto  Style = "auto"
	StyleBar   Style = "bar"
	StylePlain Style = "plain"
)

// ParseStyle validates a style name. An empty name means auto.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StyleAuto:
		return StyleAuto, nil
	case StyleBar, StylePlain:
		return st, nil
	default:
		return "", fmt.Errorf("unknown progress style %q (want auto, bar or plain)", s)
	}
}

// Capability is what the output stream supports
type Capability struct {
	Terminal bool
	Width    int
}

// Probe inspects f once at startup
func Probe(f *os.File) Capability {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return Capability{}
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	return Capability{Terminal: true, Width: width}
}

// Options configure New
type Options struct {
	Style        Style
	Capability   Capability
	GradientFrom string // hex colour, empty for the default gradient
	GradientTo   string
}

// New returns the reporter for opts. When the style is auto and the output is
// not a terminal it falls back to Plain and says so once on w.
func New(w io.Writer, desc string, total int, opts Options) Reporter {
	switch opts.Style {
	case StyleBar:
		return NewBar(w, desc, total, opts)
	case StylePlain:
		return NewPlain(w, desc, total)
	}

	if opts.Capability.Terminal {
		return NewBar(w, desc, total, opts)
	}
	fmt.Fprintln(w, "(output is not a terminal; showing plain progress counts)")
	return NewPlain(w, desc, total)
}

// Plain prints "desc: count/total" every 10 items and on the last one
type Plain struct {
	w     io.Writer
	desc  string
	total int
	count int
}

// NewPlain returns a minimal reporter
func NewPlain(w io.Writer, desc string, total int) *Plain {
	if desc == "" {
		desc = "Processing"
	}
	return &Plain{w: w, desc: desc, total: total}
}

// Advance implements Reporter
func (p *Plain) Advance() {
	p.count++
	if p.count%10 != 0 && p.count != p.total {
		return
	}
	fmt.Fprintf(p.w, "\r%s: %d/%d", p.desc, p.count, p.total)
	if p.count == p.total {
		fmt.Fprintln(p.w)
	}
}

const (
	defaultWidth = 80
	minBarWidth  = 10
)

// Bar redraws a gradient progress bar on a single line
type Bar struct {
	w     io.Writer
	desc  string
	total int
	count int
	bar   bprogress.Model
}

// NewBar returns a bar sized to the terminal width in opts
func NewBar(w io.Writer, desc string, total int, opts Options) *Bar {
	if desc == "" {
		desc = "Processing"
	}
	width := opts.Capability.Width
	if width <= 0 {
		width = defaultWidth
	}

	// room for the description and " 1234/1234"
	counter := len(fmt.Sprintf(" %d/%d", total, total))
	barWidth := width - len(desc) - counter - 2
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	return &Bar{
		w:     w,
		desc:  lipgloss.NewStyle().Bold(true).Render(desc),
		total: total,
		bar:   bprogress.New(gradient(opts.GradientFrom, opts.GradientTo), bprogress.WithWidth(barWidth)),
	}
}

// Advance implements Reporter
func (b *Bar) Advance() {
	b.count++
	pct := 1.0
	if b.total > 0 {
		pct = float64(b.count) / float64(b.total)
	}
	fmt.Fprintf(b.w, "\r%s %s %d/%d", b.desc, b.bar.ViewAs(pct), b.count, b.total)
	if b.count >= b.total {
		fmt.Fprintln(b.w)
	}
}

func gradient(from, to string) bprogress.Option {
	a, errA := colorful.Hex(from)
	z, errZ := colorful.Hex(to)
	if errA != nil || errZ != nil {
		return bprogress.WithDefaultGradient()
	}
	return bprogress.WithGradient(a.Hex(), z.Hex())
}
