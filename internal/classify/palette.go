package classify

import "github.com/fatih/color"

type swatch struct {
	name string
	attr color.Attribute
}

var swatches = []swatch{
	{"red", color.FgRed},
	{"green", color.FgGreen},
	{"yellow", color.FgYellow},
	{"blue", color.FgBlue},
	{"magenta", color.FgMagenta},
	{"cyan", color.FgCyan},
	{"hired", color.FgHiRed},
	{"higreen", color.FgHiGreen},
	{"hiyellow", color.FgHiYellow},
	{"hiblue", color.FgHiBlue},
	{"himagenta", color.FgHiMagenta},
	{"hicyan", color.FgHiCyan},
}

var gray = swatch{"gray", color.FgHiBlack}

// Palette maps category labels to terminal colours by rule position. The
// default category is always gray.
type Palette struct {
	byLabel map[string]swatch
}

// NewPalette assigns colours to labels in order, cycling when there are
// more labels than colours.
func NewPalette(labels []string, defaultLabel string) *Palette {
	p := &Palette{byLabel: make(map[string]swatch, len(labels)+1)}
	for i, l := range labels {
		p.byLabel[l] = swatches[i%len(swatches)]
	}
	p.byLabel[defaultLabel] = gray
	return p
}

// Name returns the colour name for label.
func (p *Palette) Name(label string) string {
	return p.lookup(label).name
}

// Sprint renders s in label's colour.
func (p *Palette) Sprint(label, s string) string {
	return color.New(p.lookup(label).attr).Sprint(s)
}

func (p *Palette) lookup(label string) swatch {
	if s, ok := p.byLabel[label]; ok {
		return s
	}
	return gray
}
