package main

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// The debug font is 6x16 per glyph at scale 1.
const (
	glyphW = 6
	glyphH = 16
)

var (
	colFace    = color.RGBA{58, 62, 70, 255}
	colWell    = color.RGBA{18, 20, 26, 255}
	colLight   = color.RGBA{104, 110, 122, 255}
	colShadow  = color.RGBA{12, 13, 16, 255}
	colText    = color.RGBA{226, 230, 236, 255}
	colDim     = color.RGBA{128, 134, 146, 255}
	colAccent  = color.RGBA{255, 170, 40, 255}
	colSelect  = color.RGBA{46, 84, 140, 255}
	colGood    = color.RGBA{70, 210, 110, 255}
	colWarn    = color.RGBA{235, 210, 60, 255}
	colHot     = color.RGBA{240, 70, 60, 255}
	colMuted   = color.RGBA{200, 60, 50, 255}
	colSoloed  = color.RGBA{230, 190, 40, 255}
	colScope   = color.RGBA{110, 220, 200, 255}
	colGridDim = color.RGBA{40, 44, 54, 255}
)

func fill(dst *ebiten.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	vector.FillRect(dst, float32(r.Min.X), float32(r.Min.Y), float32(r.Dx()), float32(r.Dy()), c, false)
}

// bevel fills r and edges it, light on the top left when raised and dark
// there when sunken.
func bevel(dst *ebiten.Image, r image.Rectangle, face color.Color, raised bool) {
	fill(dst, r, face)
	hi, lo := colLight, colShadow
	if !raised {
		hi, lo = lo, hi
	}
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), hi)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), hi)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), lo)
	fill(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), lo)
}

// vbar fills the bottom frac of r.
func vbar(dst *ebiten.Image, r image.Rectangle, frac float64, c color.Color) {
	h := int(float64(r.Dy()) * min(max(frac, 0), 1))
	fill(dst, image.Rect(r.Min.X, r.Max.Y-h, r.Max.X, r.Max.Y), c)
}

// hbar fills the left frac of r.
func hbar(dst *ebiten.Image, r image.Rectangle, frac float64, c color.Color) {
	w := int(float64(r.Dx()) * min(max(frac, 0), 1))
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), c)
}

// levelColor shades a meter segment by how close db is to full scale.
func levelColor(db float64) color.Color {
	switch {
	case db > -3:
		return colHot
	case db > -12:
		return colWarn
	}
	return colGood
}

// inset shrinks r by n on every side.
func inset(r image.Rectangle, n int) image.Rectangle {
	return image.Rect(r.Min.X+n, r.Min.Y+n, r.Max.X-n, r.Max.Y-n)
}

// cutTop splits h pixels off the top of r.
func cutTop(r image.Rectangle, h int) (image.Rectangle, image.Rectangle) {
	y := min(r.Min.Y+h, r.Max.Y)
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X, y), image.Rect(r.Min.X, y, r.Max.X, r.Max.Y)
}

// cutBottom splits h pixels off the bottom of r.
func cutBottom(r image.Rectangle, h int) (image.Rectangle, image.Rectangle) {
	y := max(r.Max.Y-h, r.Min.Y)
	return image.Rect(r.Min.X, y, r.Max.X, r.Max.Y), image.Rect(r.Min.X, r.Min.Y, r.Max.X, y)
}

// cutLeft splits w pixels off the left of r.
func cutLeft(r image.Rectangle, w int) (image.Rectangle, image.Rectangle) {
	x := min(r.Min.X+w, r.Max.X)
	return image.Rect(r.Min.X, r.Min.Y, x, r.Max.Y), image.Rect(x, r.Min.Y, r.Max.X, r.Max.Y)
}

// columns divides r into n equal columns separated by gap pixels.
func columns(r image.Rectangle, n, gap int) []image.Rectangle {
	if n <= 0 {
		return nil
	}
	w := (r.Dx() - gap*(n-1)) / n
	out := make([]image.Rectangle, n)
	for i := range out {
		x := r.Min.X + i*(w+gap)
		out[i] = image.Rect(x, r.Min.Y, x+w, r.Max.Y)
	}
	return out
}

// frac is how far x lies across r, clamped to 0..1.
func frac(r image.Rectangle, x int) float64 {
	if r.Dx() <= 0 {
		return 0
	}
	return min(max(float64(x-r.Min.X)/float64(r.Dx()), 0), 1)
}

// fit truncates s to n glyphs, marking the cut with a trailing '~'.
func fit(s string, n int) string {
	r := []rune(s)
	switch {
	case len(r) <= n:
		return s
	case n <= 1:
		return string(r[:max(n, 0)])
	}
	return string(r[:n-1]) + "~"
}

// textCache keeps debug-font renderings of recently drawn strings.
type textCache map[string]*ebiten.Image

const textCacheLimit = 2048

func (tc *textCache) render(s string) *ebiten.Image {
	if img, ok := (*tc)[s]; ok {
		return img
	}
	if len(*tc) >= textCacheLimit {
		*tc = textCache{}
	}
	img := ebiten.NewImage(len([]rune(s))*glyphW+1, glyphH)
	ebitenutil.DebugPrintAt(img, s, 0, 0)
	(*tc)[s] = img
	return img
}

// print draws s with its top left at x, y, tinted c.
func (tc *textCache) print(dst *ebiten.Image, s string, x, y int, scale float64, c color.Color) {
	if s == "" {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(c)
	dst.DrawImage(tc.render(s), op)
}

// printIn draws s clipped to r's width and centred vertically.
func (tc *textCache) printIn(dst *ebiten.Image, s string, r image.Rectangle, scale float64, c color.Color) {
	n := int(float64(r.Dx()) / (glyphW * scale))
	y := r.Min.Y + (r.Dy()-int(glyphH*scale))/2
	tc.print(dst, fit(s, n), r.Min.X, y, scale, c)
}

// printCentred draws s centred in r.
func (tc *textCache) printCentred(dst *ebiten.Image, s string, r image.Rectangle, scale float64, c color.Color) {
	s = fit(s, int(float64(r.Dx())/(glyphW*scale)))
	w := int(float64(len([]rune(s))*glyphW) * scale)
	tc.print(dst, s, r.Min.X+(r.Dx()-w)/2, r.Min.Y+(r.Dy()-int(glyphH*scale))/2, scale, c)
}
