package main

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/cbegin/softsynth-go/internal/channel"
)

// voiceScale is the voice count that fills a strip meter.
const voiceScale = 8

func (c *console) Draw(screen *ebiten.Image) {
	screen.Fill(colFace)
	l := computeLayout(c.w, c.h)

	c.drawSongs(screen, l.songs)
	c.drawEQ(screen, l.eq, l.eqCols)
	c.drawStrips(screen, l)
	c.drawScope(screen, l.scope)
	c.drawLevels(screen, l.levels)
	c.drawProgress(screen, l.progress)

	c.button(screen, l.prev, "<<", false)
	play := "Play"
	if c.seq != nil {
		play = "Stop"
	}
	c.button(screen, l.play, play, c.seq != nil)
	c.button(screen, l.next, ">>", false)
	c.button(screen, l.program, c.programName(), false)
	c.button(screen, l.reverb, "Rev", c.reverb)
	c.button(screen, l.chorus, "Cho", c.chorus)
	c.slider(screen, l.transpose, fmt.Sprintf("Tr %+d", c.transpose),
		float64(c.transpose+transposeRange)/(2*transposeRange))
	c.slider(screen, l.volume, fmt.Sprintf("Vol %3d%%", int(c.volume*100+0.5)), c.volume)

	bevel(screen, l.status, colWell, false)
	col := colDim
	if c.statusErr {
		col = colHot
	}
	c.text.printIn(screen, c.status, inset(l.status, 4), 1, col)
}

func (c *console) button(dst *ebiten.Image, r image.Rectangle, label string, lit bool) {
	face := colFace
	if lit {
		face = colSelect
	}
	bevel(dst, r, face, !lit)
	c.text.printCentred(dst, label, inset(r, 3), 1, colText)
}

// sliderTrack is the part of a slider cell the knob travels along.
func sliderTrack(r image.Rectangle) image.Rectangle {
	_, track := cutLeft(inset(r, 6), 10*glyphW)
	return track
}

func (c *console) slider(dst *ebiten.Image, r image.Rectangle, label string, pos float64) {
	bevel(dst, r, colFace, true)
	c.text.printIn(dst, label, inset(r, 6), 1, colText)
	track := sliderTrack(r)
	groove := image.Rect(track.Min.X, track.Min.Y+track.Dy()/2-2, track.Max.X, track.Min.Y+track.Dy()/2+2)
	bevel(dst, groove, colWell, false)
	x := track.Min.X + int(float64(track.Dx())*min(max(pos, 0), 1))
	bevel(dst, image.Rect(x-4, track.Min.Y+2, x+4, track.Max.Y-2), colLight, true)
}

// songListTop is where the first playlist row starts inside r.
func songListTop(r image.Rectangle) int { return r.Min.Y + 4 + glyphH + 4 }

func (c *console) drawSongs(dst *ebiten.Image, r image.Rectangle) {
	bevel(dst, r, colWell, false)
	head, _ := cutTop(inset(r, 4), glyphH)
	c.text.printIn(dst, fmt.Sprintf("Playlist (%d)", c.list.Len()), head, 1, colAccent)
	if c.list.Len() == 0 {
		c.text.print(dst, "pass MIDI files or folders", r.Min.X+6, songListTop(r), 1, colDim)
		return
	}
	rows := (r.Max.Y - songListTop(r) - 4) / glyphH
	c.listScroll = min(c.listScroll, max(c.list.Len()-rows, 0))
	for row := 0; row < rows; row++ {
		i := c.listScroll + row
		if i >= c.list.Len() {
			break
		}
		line := image.Rect(r.Min.X+3, songListTop(r)+row*glyphH, r.Max.X-3, songListTop(r)+(row+1)*glyphH)
		col := colText
		if i == c.list.cur {
			fill(dst, line, colSelect)
			col = colAccent
		}
		name := fmt.Sprintf("%2d %s", i+1, filepath.Base(c.list.files[i]))
		c.text.printIn(dst, name, inset(line, 2), 1, col)
	}
}

func (c *console) drawStrips(dst *ebiten.Image, l screenLayout) {
	bevel(dst, l.strips, colWell, false)
	c.text.printIn(dst, c.channelSummary(c.keyChannel), l.detail, 1, colAccent)

	for i, col := range l.stripCols {
		ch := c.synth.Channel(i)
		p := stripGeometry(col)

		head := colFace
		if i == c.keyChannel {
			head = colSelect
		}
		bevel(dst, p.header, head, true)
		c.text.printCentred(dst, fmt.Sprint(i+1), p.header, 1, colText)

		fill(dst, p.meter, colShadow)
		n := c.voiceBars[i]
		vbar(dst, p.meter, n/voiceScale, levelColor(-12*(1-n/voiceScale)))
		if n >= 0.5 {
			c.text.printCentred(dst, fmt.Sprint(int(n+0.5)), image.Rect(p.meter.Min.X, p.meter.Min.Y, p.meter.Max.X, p.meter.Min.Y+glyphH), 1, colText)
		}

		fill(dst, p.volume, colShadow)
		hbar(dst, p.volume, float64(ch.Controller(7))/127, colDim)

		fill(dst, p.pan, colShadow)
		mid := p.pan.Min.X + p.pan.Dx()/2
		fill(dst, image.Rect(mid, p.pan.Min.Y, mid+1, p.pan.Max.Y), colGridDim)
		px := p.pan.Min.X + int(float64(p.pan.Dx()-2)*float64(ch.Controller(10))/127)
		fill(dst, image.Rect(px, p.pan.Min.Y+1, px+2, p.pan.Max.Y-1), colAccent)

		prog := fmt.Sprint(ch.Program())
		if i == channel.PercussionChannel {
			prog = "kit"
		}
		c.text.printCentred(dst, prog, p.program, 1, colDim)

		c.toggle(dst, p.mute, "M", ch.Mute(), colMuted)
		c.toggle(dst, p.solo, "S", ch.Solo(), colSoloed)
	}
}

func (c *console) toggle(dst *ebiten.Image, r image.Rectangle, label string, on bool, lit color.Color) {
	var face color.Color = colFace
	if on {
		face = lit
	}
	bevel(dst, r, face, !on)
	c.text.printCentred(dst, label, r, 1, colText)
}

// channelSummary is the detail line for channel i.
func (c *console) channelSummary(i int) string {
	ch := c.synth.Channel(i)
	name := "(none)"
	if ins := c.synth.FindInstrument(ch.Bank(), ch.Program(), i == channel.PercussionChannel); ins != nil {
		name = ins.Name
	}
	return fmt.Sprintf("Ch %d  bank %d  prg %d  %s  vol %d  pan %+d  bend %+d  voices %d/%d",
		i+1, ch.Bank(), ch.Program(), name, ch.Controller(7), ch.Controller(10)-64,
		ch.PitchBend()-8192, c.synth.ActiveVoices(), c.synth.Config().Polyphony)
}

func (c *console) programName() string {
	ch := c.synth.Channel(c.keyChannel)
	if ins := c.synth.FindInstrument(ch.Bank(), ch.Program(), c.keyChannel == channel.PercussionChannel); ins != nil {
		return fmt.Sprintf("%d: %s", c.keyChannel+1, ins.Name)
	}
	return fmt.Sprintf("%d: program %d", c.keyChannel+1, ch.Program())
}

// eqTrack is the vertical travel of an EQ band fader.
func eqTrack(col image.Rectangle) image.Rectangle {
	_, track := cutBottom(col, glyphH*2)
	return inset(track, 4)
}

func (c *console) drawEQ(dst *ebiten.Image, r image.Rectangle, cols []image.Rectangle) {
	bevel(dst, r, colFace, true)
	head, _ := cutTop(inset(r, 6), glyphH)
	c.text.printIn(dst, "Master EQ", head, 1, colAccent)
	for band, col := range cols {
		track := eqTrack(col)
		centre := track.Min.X + track.Dx()/2
		bevel(dst, image.Rect(centre-2, track.Min.Y, centre+2, track.Max.Y), colWell, false)
		unity := track.Max.Y - int(float64(track.Dy())*(-eqMinDB)/(eqMaxDB-eqMinDB))
		fill(dst, image.Rect(track.Min.X, unity, track.Max.X, unity+1), colDim)

		y := track.Max.Y - int(float64(track.Dy())*(c.eqDB[band]-eqMinDB)/(eqMaxDB-eqMinDB))
		bevel(dst, image.Rect(track.Min.X+2, y-3, track.Max.X-2, y+3), colLight, true)

		gainRow := image.Rect(col.Min.X, col.Max.Y-glyphH*2, col.Max.X, col.Max.Y-glyphH)
		labelRow := image.Rect(col.Min.X, col.Max.Y-glyphH, col.Max.X, col.Max.Y)
		c.text.printCentred(dst, fmt.Sprintf("%+.0f", c.eqDB[band]), gainRow, 1, colText)
		c.text.printCentred(dst, eqBandLabel(band), labelRow, 1, colDim)
	}
}

func (c *console) drawScope(dst *ebiten.Image, r image.Rectangle) {
	bevel(dst, r, colShadow, false)
	in := inset(r, 3)
	mid := float32(in.Min.Y + in.Dy()/2)
	fill(dst, image.Rect(in.Min.X, int(mid), in.Max.X, int(mid)+1), colGridDim)
	c.meter.Scope(c.scope)
	if in.Dx() < 2 {
		return
	}
	half := float32(in.Dy()) / 2
	y := func(v float32) float32 { return mid - min(max(v, -1), 1)*half }
	step := float32(len(c.scope)-1) / float32(in.Dx()-1)
	prev := y(c.scope[0])
	for x := 1; x < in.Dx(); x++ {
		cur := y(c.scope[int(float32(x)*step)])
		vector.StrokeLine(dst, float32(in.Min.X+x-1), prev, float32(in.Min.X+x), cur, 1, colScope, false)
		prev = cur
	}
}

// drawLevels shows peak bars for both sides with their hold markers and
// a tick at the RMS level.
func (c *console) drawLevels(dst *ebiten.Image, r image.Rectangle) {
	bevel(dst, r, colWell, false)
	in := inset(r, 4)
	scale, bars := cutBottom(in, glyphH)
	c.text.printCentred(dst, "L     R", scale, 1, colDim)
	for i, b := range [2]*ballistics{&c.left, &c.right} {
		col := columns(bars, 2, 6)[i]
		fill(dst, col, colShadow)
		// 3 dB segments
		for db := floorDB; db < b.bar; db += 3 {
			lo := col.Max.Y - int(float64(col.Dy())*dbFrac(db))
			hi := col.Max.Y - int(float64(col.Dy())*dbFrac(min(db+3, b.bar)))
			fill(dst, image.Rect(col.Min.X, hi, col.Max.X, lo-1), levelColor(db))
		}
		if c.rms[i] > floorDB {
			y := col.Max.Y - int(float64(col.Dy())*dbFrac(c.rms[i]))
			fill(dst, image.Rect(col.Min.X+col.Dx()/3, y, col.Max.X-col.Dx()/3, y+1), colText)
		}
		if b.mark > floorDB {
			y := col.Max.Y - int(float64(col.Dy())*dbFrac(b.mark))
			fill(dst, image.Rect(col.Min.X, y, col.Max.X, y+2), levelColor(b.mark))
		}
	}
}

func (c *console) drawProgress(dst *ebiten.Image, r image.Rectangle) {
	bevel(dst, r, colWell, false)
	if c.seq == nil || c.song == nil || c.song.Duration() <= 0 {
		return
	}
	pos := min(float64(c.seq.Position())/float64(c.song.Duration()), 1)
	hbar(dst, inset(r, 2), pos, colSelect)
}
