package badge

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// Style controls the badge visual style.
type Style string

const (
	StyleFlat       Style = "flat"
	StyleFlatSquare Style = "flat-square"
)

// ParseStyle parses a style string, defaulting to flat.
func ParseStyle(s string) Style {
	if s == "flat-square" {
		return StyleFlatSquare
	}
	return StyleFlat
}

var hexForColor = map[string]string{
	"brightgreen": "#4c1",
	"green":       "#97ca00",
	"yellowgreen": "#a4a61d",
	"yellow":      "#dfb317",
	"orange":      "#fe7d37",
	"red":         "#e05d44",
}

const (
	labelFill    = "#555"
	findingsFill = "#3c3c3c"
	criticalFill = "#b60205"
)

type segment struct {
	text  string
	fill  string
	x     float64
	width float64
}

// RenderSVG draws a three-part badge: label, grade with score, and a findings
// tally. The tally turns red when any critique finding is present.
func RenderSVG(label string, s Summary, style Style) string {
	hex, ok := hexForColor[s.Color]
	if !ok {
		hex = "#9f9f9f"
	}
	tally := findingsFill
	if s.Critical > 0 {
		tally = criticalFill
	}
	segs := layout([]segment{
		{text: label, fill: labelFill},
		{text: s.Message(), fill: hex},
		{text: s.FindingsText(), fill: tally},
	})
	last := segs[len(segs)-1]
	total := last.x + last.width

	rx := 3
	if style == StyleFlatSquare {
		rx = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="20" role="img" aria-label="%s">`+"\n",
		total, html.EscapeString(label+": "+s.Message()))
	fmt.Fprintf(&b, "  <title>%s</title>\n", html.EscapeString(title(label, s)))
	b.WriteString(`  <linearGradient id="s" x2="0" y2="100%">` + "\n")
	b.WriteString(`    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>` + "\n")
	b.WriteString(`    <stop offset="1" stop-opacity=".1"/>` + "\n")
	b.WriteString("  </linearGradient>\n")
	fmt.Fprintf(&b, `  <clipPath id="r"><rect width="%.0f" height="20" rx="%d" fill="#fff"/></clipPath>`+"\n", total, rx)
	b.WriteString(`  <g clip-path="url(#r)">` + "\n")
	for _, seg := range segs {
		fmt.Fprintf(&b, `    <rect x="%.0f" width="%.0f" height="20" fill="%s"/>`+"\n", seg.x, seg.width, seg.fill)
	}
	if style != StyleFlatSquare {
		fmt.Fprintf(&b, `    <rect width="%.0f" height="20" fill="url(#s)"/>`+"\n", total)
	}
	b.WriteString("  </g>\n")
	b.WriteString(`  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">` + "\n")
	for _, seg := range segs {
		text := html.EscapeString(seg.text)
		mid := seg.x + seg.width/2
		fmt.Fprintf(&b, `    <text x="%.1f" y="15" fill="#010101" fill-opacity=".3">%s</text>`+"\n", mid, text)
		fmt.Fprintf(&b, `    <text x="%.1f" y="14">%s</text>`+"\n", mid, text)
	}
	b.WriteString("  </g>\n</svg>\n")
	return b.String()
}

// layout assigns each segment its offset and a width estimated from its text.
func layout(segs []segment) []segment {
	x := 0.0
	for i := range segs {
		segs[i].x = x
		segs[i].width = float64(utf8.RuneCountInString(segs[i].text))*7 + 12
		x += segs[i].width
	}
	return segs
}

func title(label string, s Summary) string {
	files := "1 file"
	if s.Files != 1 {
		files = fmt.Sprintf("%d files", s.Files)
	}
	return fmt.Sprintf("%s: grade %s, lowest score %d/100 across %s, %s", label, s.Grade, s.Score, files, s.FindingsText())
}
