package main

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/cbegin/softsynth-go/internal/effects"
)

const (
	margin    = 12
	gap       = 8
	rowH      = 36
	statusH   = 22
	progressH = 12
	sideW     = 280
	eqH       = 160
	levelsW   = 112
)

// screenLayout places every panel and control of the console.
type screenLayout struct {
	songs, eq         image.Rectangle
	strips, detail    image.Rectangle
	scope, levels     image.Rectangle
	progress, status  image.Rectangle
	prev, play, next  image.Rectangle
	program           image.Rectangle
	transpose, volume image.Rectangle
	reverb, chorus    image.Rectangle
	stripCols         []image.Rectangle
	eqCols            []image.Rectangle
}

func computeLayout(w, h int) screenLayout {
	var l screenLayout
	area := inset(image.Rect(0, 0, w, h), margin)

	l.status, area = cutBottom(area, statusH)
	_, area = cutBottom(area, gap)
	var row image.Rectangle
	row, area = cutBottom(area, rowH)
	_, area = cutBottom(area, gap)
	l.progress, area = cutBottom(area, progressH)
	_, area = cutBottom(area, gap)

	widths := []int{44, 88, 44, 200, 180, 180, 56, 56}
	cells := make([]image.Rectangle, len(widths))
	rest := row
	for i, cw := range widths {
		cells[i], rest = cutLeft(rest, cw)
		_, rest = cutLeft(rest, gap)
	}
	l.prev, l.play, l.next = cells[0], cells[1], cells[2]
	l.program, l.transpose, l.volume = cells[3], cells[4], cells[5]
	l.reverb, l.chorus = cells[6], cells[7]

	side, body := cutLeft(area, sideW)
	_, body = cutLeft(body, gap)
	l.eq, l.songs = cutBottom(side, eqH)
	l.songs.Max.Y -= gap

	stripsH := body.Dy() * 3 / 5
	l.strips, body = cutTop(body, stripsH)
	_, body = cutTop(body, gap)
	l.scope, l.levels = cutLeft(body, body.Dx()-levelsW)
	l.levels.Min.X += gap

	inner := inset(l.strips, 4)
	l.detail, inner = cutTop(inner, glyphH+4)
	l.stripCols = columns(inner, 16, 3)

	eqInner := inset(l.eq, 6)
	_, eqInner = cutTop(eqInner, glyphH+2)
	l.eqCols = columns(eqInner, effects.EQBands, 6)
	return l
}

// stripParts is the geometry of one channel strip.
type stripParts struct {
	header, meter, volume, pan, program, mute, solo image.Rectangle
}

func stripGeometry(r image.Rectangle) stripParts {
	var p stripParts
	p.header, r = cutTop(r, glyphH+2)
	var buttons image.Rectangle
	buttons, r = cutBottom(r, 18)
	p.mute, p.solo = cutLeft(buttons, buttons.Dx()/2)
	p.solo.Min.X++
	p.program, r = cutBottom(r, glyphH)
	p.pan, r = cutBottom(r, 8)
	p.volume, r = cutBottom(r, 8)
	p.volume.Max.Y -= 2
	p.meter = inset(r, 2)
	return p
}

// stripTarget names the part of a channel strip under the pointer.
type stripTarget int

const (
	stripNone stripTarget = iota
	stripSelect
	stripMute
	stripSolo
)

// hitStrip finds which strip and which of its parts contain x, y.
func hitStrip(cols []image.Rectangle, x, y int) (int, stripTarget) {
	pt := image.Pt(x, y)
	for i, col := range cols {
		if !pt.In(col) {
			continue
		}
		p := stripGeometry(col)
		switch {
		case pt.In(p.mute):
			return i, stripMute
		case pt.In(p.solo):
			return i, stripSolo
		}
		return i, stripSelect
	}
	return -1, stripNone
}

// formatHz renders a frequency compactly: 400, 1.4k, 8k.
func formatHz(hz float64) string {
	if hz < 1000 {
		return fmt.Sprintf("%d", int(math.Round(hz)))
	}
	return strings.TrimSuffix(fmt.Sprintf("%.1f", hz/1000), ".0") + "k"
}

// eqBandLabel names a master EQ band by its centre, or by its edge for
// the two shelves.
func eqBandLabel(band int) string {
	xs := effects.Crossovers
	switch {
	case band <= 0:
		return "<" + formatHz(xs[0])
	case band >= len(xs):
		return ">" + formatHz(xs[len(xs)-1])
	}
	return formatHz(math.Sqrt(xs[band-1] * xs[band]))
}
